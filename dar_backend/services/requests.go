package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"dar_platform/dar_backend/auth"
	"dar_platform/dar_backend/provisioning"
	"dar_platform/dar_backend/schema"
	"dar_platform/utils"
)

type RequestService struct {
	db          *gorm.DB
	provisioner provisioning.Client
	userAuth    auth.IdentityProvider
}

func (s *RequestService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.Group(func(r chi.Router) {
		r.Use(auth.ResearcherOrDataManagerOnly)

		r.Get("/list", s.List)
		r.Post("/create", s.Create)

		r.Get("/{request_uuid}", s.GetRequest)
		r.Delete("/{request_uuid}", s.Delete)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.DataManagerOnly)

		r.Post("/{request_uuid}/review", s.Review)
		r.Post("/{request_uuid}/commit", s.Commit)
	})

	return r
}

type requestColumnInfo struct {
	ColumnName        string `json:"column_name"`
	ColumnDescription string `json:"column_description"`
}

type requestTableInfo struct {
	TableName        string              `json:"table_name"`
	TableDescription string              `json:"table_description"`
	WhereStatement   *string             `json:"where_statement"`
	Columns          []requestColumnInfo `json:"columns"`
}

type requestListEntry struct {
	RequestId uuid.UUID `json:"request_uuid"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedOn time.Time `json:"created_on"`

	Workspace workspaceInfo `json:"workspace"`
	Creator   userInfo      `json:"creator"`
}

type requestDetail struct {
	requestListEntry

	Justification string  `json:"justification"`
	Comment       *string `json:"comment"`

	TablesAndColumns []requestTableInfo `json:"tables_and_columns"`

	ReviewerDecision *string    `json:"reviewer_decision"`
	Reviewer         *userInfo  `json:"reviewer"`
	ReviewedOn       *time.Time `json:"reviewed_on"`

	AdfLink *string `json:"adf_link"`
}

func listEntry(request *schema.Request) requestListEntry {
	entry := requestListEntry{
		RequestId: request.Id,
		Title:     request.Title,
		Status:    request.Status,
		CreatedOn: request.CreatedOn,
	}
	if request.Workspace != nil {
		entry.Workspace = workspaceInfo{WorkspaceId: request.Workspace.Id, Name: request.Workspace.Name}
	}
	if request.Creator != nil {
		entry.Creator = convertUser(*request.Creator)
	}
	return entry
}

func requestTables(request *schema.Request) []requestTableInfo {
	tables := make([]requestTableInfo, 0, len(request.Tables))
	for _, table := range request.Tables {
		columns := make([]requestColumnInfo, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, requestColumnInfo{
				ColumnName:        column.ColumnName,
				ColumnDescription: column.ColumnDescription,
			})
		}
		tables = append(tables, requestTableInfo{
			TableName:        table.TableName,
			TableDescription: table.TableDescription,
			WhereStatement:   table.WhereStatement,
			Columns:          columns,
		})
	}
	return tables
}

func (s *RequestService) List(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db.Preload("Workspace").Preload("Creator")
	if !principal.Has(auth.RoleDataManager) {
		// Researchers only ever see their own requests.
		query = query.Where("creator_id = ?", principal.UserId)
	}

	var requests []schema.Request
	if result := query.Find(&requests); result.Error != nil {
		slog.Error("sql error listing requests", "error", result.Error)
		http.Error(w, "error listing requests", http.StatusInternalServerError)
		return
	}

	entries := make([]requestListEntry, 0, len(requests))
	for i := range requests {
		entries = append(entries, listEntry(&requests[i]))
	}

	utils.WriteJsonResponse(w, entries)
}

func (s *RequestService) loadVisibleRequest(r *http.Request, principal auth.Principal) (schema.Request, error) {
	requestId, err := utils.URLParamUUID(r, "request_uuid")
	if err != nil {
		return schema.Request{}, CodedError(err, http.StatusBadRequest)
	}

	request, err := schema.GetRequest(requestId, s.db, true)
	if err != nil {
		if errors.Is(err, schema.ErrRequestNotFound) {
			return schema.Request{}, CodedError(err, http.StatusNotFound)
		}
		return schema.Request{}, CodedError(err, http.StatusInternalServerError)
	}

	// A request owned by someone else is indistinguishable from a missing one
	// for researchers.
	if !principal.Has(auth.RoleDataManager) && request.CreatorId != principal.UserId {
		return schema.Request{}, CodedError(schema.ErrRequestNotFound, http.StatusNotFound)
	}

	return request, nil
}

func (s *RequestService) GetRequest(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	request, err := s.loadVisibleRequest(r, principal)
	if err != nil {
		http.Error(w, fmt.Sprintf("error getting request: %v", err), GetResponseCode(err))
		return
	}

	detail := requestDetail{
		requestListEntry: listEntry(&request),
		Justification:    request.Justification,
		Comment:          request.Comment,
		TablesAndColumns: requestTables(&request),
		ReviewerDecision: request.ReviewerDecision,
		ReviewedOn:       request.ReviewedOn,
		AdfLink:          request.AdfLink,
	}
	if request.Reviewer != nil {
		reviewer := convertUser(*request.Reviewer)
		detail.Reviewer = &reviewer
	}

	// The pipeline link exposes provisioning internals and is reserved for
	// data managers.
	if !principal.Has(auth.RoleDataManager) {
		detail.AdfLink = nil
	}

	utils.WriteJsonResponse(w, detail)
}

type createRequestRequest struct {
	Title         string    `json:"title"`
	WorkspaceId   uuid.UUID `json:"workspace_uuid"`
	Justification string    `json:"justification"`
	Comment       *string   `json:"comment"`

	TablesAndColumns []requestTableInfo `json:"tables_and_columns"`
}

type createRequestResponse struct {
	RequestId uuid.UUID `json:"request_uuid"`
}

func (s *RequestService) Create(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params createRequestRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	newRequest := schema.Request{
		Id:            uuid.New(),
		Title:         params.Title,
		Status:        schema.StatusPending,
		CreatedOn:     time.Now().UTC(),
		Justification: params.Justification,
		Comment:       params.Comment,
		WorkspaceId:   params.WorkspaceId,
		CreatorId:     principal.UserId,
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if principal.Has(auth.RoleDataManager) {
			if err := ensureUserRegistered(txn, principal); err != nil {
				return err
			}
		}

		if err := checkWorkspaceExists(txn, params.WorkspaceId); err != nil {
			return err
		}

		// Pure researchers need an explicit grant on the target workspace.
		// Data managers can file requests against any workspace.
		if !principal.Has(auth.RoleDataManager) {
			granted, err := schema.HasWorkspaceGrant(params.WorkspaceId, principal.UserId, txn)
			if err != nil {
				return CodedError(err, http.StatusInternalServerError)
			}
			if !granted {
				return CodedError(fmt.Errorf("user does not have access to workspace %v", params.WorkspaceId), http.StatusForbidden)
			}
		}

		for _, table := range params.TablesAndColumns {
			newTable := schema.RequestTable{
				Id:               uuid.New(),
				TableName:        table.TableName,
				TableDescription: table.TableDescription,
				WhereStatement:   table.WhereStatement,
				RequestId:        newRequest.Id,
			}
			for _, column := range table.Columns {
				newTable.Columns = append(newTable.Columns, schema.RequestColumn{
					Id:                uuid.New(),
					TableId:           newTable.Id,
					ColumnName:        column.ColumnName,
					ColumnDescription: column.ColumnDescription,
				})
			}
			newRequest.Tables = append(newRequest.Tables, newTable)
		}

		if result := txn.Create(&newRequest); result.Error != nil {
			slog.Error("sql error creating request", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating request: %v", err), GetResponseCode(err))
		return
	}

	requestsCreated.Inc()
	slog.Info("created access request", "request_id", newRequest.Id, "workspace_id", newRequest.WorkspaceId, "creator_id", newRequest.CreatorId)

	utils.WriteJsonResponse(w, createRequestResponse{RequestId: newRequest.Id})
}

func (s *RequestService) Delete(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	requestId, err := utils.URLParamUUID(r, "request_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		request, err := schema.GetRequest(requestId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrRequestNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if !principal.Has(auth.RoleDataManager) && request.CreatorId != principal.UserId {
			return CodedError(schema.ErrRequestNotFound, http.StatusNotFound)
		}

		// Remove dependents explicitly so the delete does not depend on the
		// store enforcing cascades.
		result := txn.Where(
			"table_id IN (?)",
			txn.Model(&schema.RequestTable{}).Select("id").Where("request_id = ?", requestId),
		).Delete(&schema.RequestColumn{})
		if result.Error != nil {
			slog.Error("sql error deleting request columns", "request_id", requestId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		result = txn.Where("request_id = ?", requestId).Delete(&schema.RequestTable{})
		if result.Error != nil {
			slog.Error("sql error deleting request tables", "request_id", requestId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Request{Id: requestId}); result.Error != nil {
			slog.Error("sql error deleting request", "request_id", requestId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting request: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type reviewRequestRequest struct {
	Status           string `json:"status"`
	ReviewerDecision string `json:"reviewer_decision"`
}

func (s *RequestService) Review(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	requestId, err := utils.URLParamUUID(r, "request_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params reviewRequestRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if err := schema.CheckValidDecision(params.Status); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := ensureUserRegistered(txn, principal); err != nil {
			return err
		}

		request, err := schema.GetRequest(requestId, txn, false)
		if err != nil {
			if errors.Is(err, schema.ErrRequestNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		if request.Reviewed() {
			return CodedError(fmt.Errorf("request %v has already been reviewed", requestId), http.StatusConflict)
		}

		now := time.Now().UTC()
		updates := map[string]interface{}{
			"status":            params.Status,
			"reviewer_decision": params.ReviewerDecision,
			"reviewer_id":       principal.UserId,
			"reviewed_on":       now,
		}
		if result := txn.Model(&schema.Request{Id: requestId}).Updates(updates); result.Error != nil {
			slog.Error("sql error updating request review", "request_id", requestId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error reviewing request: %v", err), GetResponseCode(err))
		return
	}

	requestsReviewed.WithLabelValues(params.Status).Inc()
	slog.Info("reviewed access request", "request_id", requestId, "decision", params.Status, "reviewer_id", principal.UserId)

	utils.WriteSuccess(w)
}

type commitRequestResponse struct {
	RequestId uuid.UUID `json:"request_uuid"`
	AdfLink   string    `json:"adf_link"`
}

// Commit dispatches an approved request to the provisioning pipeline and
// stores the resulting monitoring link. A request that is missing or not yet
// approved is reported as not found either way.
func (s *RequestService) Commit(w http.ResponseWriter, r *http.Request) {
	requestId, err := utils.URLParamUUID(r, "request_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	request, err := schema.GetRequest(requestId, s.db, true)
	if err != nil {
		if errors.Is(err, schema.ErrRequestNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if request.Status != schema.StatusApproved {
		http.Error(w, fmt.Sprintf("no approved request with id %v found", requestId), http.StatusNotFound)
		return
	}

	definition := provisioning.RequestDefinition{}
	for _, table := range request.Tables {
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, column.ColumnName)
		}
		definition[table.TableName] = provisioning.TableSelection{
			Columns:        columns,
			WhereStatement: table.WhereStatement,
		}
	}

	adfLink, err := s.provisioner.Dispatch(definition, request.WorkspaceId)
	if err != nil {
		provisioningDispatches.WithLabelValues("failure").Inc()
		slog.Error("error dispatching provisioning pipeline", "request_id", requestId, "error", err)
		http.Error(w, fmt.Sprintf("error dispatching provisioning pipeline: %v", err), http.StatusBadGateway)
		return
	}
	provisioningDispatches.WithLabelValues("success").Inc()

	result := s.db.Model(&schema.Request{Id: requestId}).Update("adf_link", adfLink)
	if result.Error != nil {
		slog.Error("sql error storing pipeline link", "request_id", requestId, "error", result.Error)
		http.Error(w, "error storing pipeline link", http.StatusInternalServerError)
		return
	}

	slog.Info("committed access request to provisioning pipeline", "request_id", requestId, "workspace_id", request.WorkspaceId)

	utils.WriteJsonResponse(w, commitRequestResponse{RequestId: requestId, AdfLink: adfLink})
}
