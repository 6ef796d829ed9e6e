package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"dar_platform/dar_backend/auth"
	"dar_platform/dar_backend/schema"
	"dar_platform/utils"
)

type WorkspaceService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *WorkspaceService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.userAuth.AuthMiddleware()...)

	r.With(auth.ResearcherOrDataManagerOnly).Get("/list", s.List)

	r.Group(func(r chi.Router) {
		r.Use(auth.DataManagerOnly)

		r.Post("/create", s.Create)

		r.Route("/{workspace_uuid}", func(r chi.Router) {
			r.Get("/", s.GetWorkspace)
			r.Post("/update", s.Update)
			r.Delete("/", s.Delete)
			r.Get("/users", s.WorkspaceUsers)
		})
	})

	return r
}

type workspaceInfo struct {
	WorkspaceId uuid.UUID `json:"workspace_uuid"`
	Name        string    `json:"workspace_name"`
}

func (s *WorkspaceService) List(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	query := s.db
	if !principal.Has(auth.RoleDataManager) {
		// Researchers without a local user row have no grants and see nothing.
		registered, err := schema.UserIsRegistered(principal.UserId, s.db)
		if err != nil {
			http.Error(w, "error listing workspaces", http.StatusInternalServerError)
			return
		}
		if !registered {
			utils.WriteJsonResponse(w, []workspaceInfo{})
			return
		}

		// Researchers only see workspaces they hold a grant on.
		query = query.
			Joins("JOIN workspace_grants ON workspace_grants.workspace_id = workspaces.id").
			Where("workspace_grants.user_id = ?", principal.UserId)
	}

	var workspaces []schema.Workspace
	if result := query.Find(&workspaces); result.Error != nil {
		slog.Error("sql error listing workspaces", "error", result.Error)
		http.Error(w, "error listing workspaces", http.StatusInternalServerError)
		return
	}

	infos := make([]workspaceInfo, 0, len(workspaces))
	for _, workspace := range workspaces {
		infos = append(infos, workspaceInfo{WorkspaceId: workspace.Id, Name: workspace.Name})
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *WorkspaceService) GetWorkspace(w http.ResponseWriter, r *http.Request) {
	workspaceId, err := utils.URLParamUUID(r, "workspace_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	workspace, err := schema.GetWorkspace(workspaceId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrWorkspaceNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJsonResponse(w, workspaceInfo{WorkspaceId: workspace.Id, Name: workspace.Name})
}

// replaceGrants swaps the full grant set of a workspace. Grants are always
// written as a whole, there is no incremental add/remove.
func replaceGrants(txn *gorm.DB, workspaceId uuid.UUID, userIds []uuid.UUID) error {
	result := txn.Where("workspace_id = ?", workspaceId).Delete(&schema.WorkspaceGrant{})
	if result.Error != nil {
		slog.Error("sql error clearing workspace grants", "workspace_id", workspaceId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	if len(userIds) == 0 {
		return nil
	}

	grants := make([]schema.WorkspaceGrant, 0, len(userIds))
	for _, userId := range userIds {
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}
		grants = append(grants, schema.WorkspaceGrant{WorkspaceId: workspaceId, UserId: userId})
	}

	if result := txn.Create(&grants); result.Error != nil {
		slog.Error("sql error inserting workspace grants", "workspace_id", workspaceId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	return nil
}

type workspaceWriteRequest struct {
	Name            string      `json:"workspace_name"`
	VisibleForUsers []uuid.UUID `json:"visible_for_users"`
}

type createWorkspaceResponse struct {
	WorkspaceId uuid.UUID `json:"workspace_uuid"`
}

func (s *WorkspaceService) Create(w http.ResponseWriter, r *http.Request) {
	var params workspaceWriteRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "workspace name must be specified", http.StatusBadRequest)
		return
	}

	newWorkspace := schema.Workspace{Id: uuid.New(), Name: params.Name}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		if result := txn.Create(&newWorkspace); result.Error != nil {
			slog.Error("sql error creating workspace", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return replaceGrants(txn, newWorkspace.Id, params.VisibleForUsers)
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating workspace: %v", err), GetResponseCode(err))
		return
	}

	slog.Info("created workspace", "workspace_id", newWorkspace.Id, "name", newWorkspace.Name)

	utils.WriteJsonResponse(w, createWorkspaceResponse{WorkspaceId: newWorkspace.Id})
}

func (s *WorkspaceService) Update(w http.ResponseWriter, r *http.Request) {
	workspaceId, err := utils.URLParamUUID(r, "workspace_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params workspaceWriteRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.Name == "" {
		http.Error(w, "workspace name must be specified", http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkWorkspaceExists(txn, workspaceId); err != nil {
			return err
		}

		result := txn.Model(&schema.Workspace{Id: workspaceId}).Update("name", params.Name)
		if result.Error != nil {
			slog.Error("sql error updating workspace", "workspace_id", workspaceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return replaceGrants(txn, workspaceId, params.VisibleForUsers)
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating workspace: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *WorkspaceService) Delete(w http.ResponseWriter, r *http.Request) {
	workspaceId, err := utils.URLParamUUID(r, "workspace_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkWorkspaceExists(txn, workspaceId); err != nil {
			return err
		}

		// Requests reference the workspace without a cascade path, removing
		// a workspace with live requests would orphan them.
		var count int64
		result := txn.Model(&schema.Request{}).Where("workspace_id = ?", workspaceId).Count(&count)
		if result.Error != nil {
			slog.Error("sql error counting workspace requests", "workspace_id", workspaceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if count > 0 {
			return CodedError(fmt.Errorf("workspace %v has %d access requests and cannot be deleted", workspaceId, count), http.StatusConflict)
		}

		result = txn.Where("workspace_id = ?", workspaceId).Delete(&schema.WorkspaceGrant{})
		if result.Error != nil {
			slog.Error("sql error deleting workspace grants", "workspace_id", workspaceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.Workspace{Id: workspaceId}); result.Error != nil {
			slog.Error("sql error deleting workspace", "workspace_id", workspaceId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting workspace: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type workspaceUsersResponse struct {
	Users []uuid.UUID `json:"users"`
}

func (s *WorkspaceService) WorkspaceUsers(w http.ResponseWriter, r *http.Request) {
	workspaceId, err := utils.URLParamUUID(r, "workspace_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := checkWorkspaceExists(s.db, workspaceId); err != nil {
		http.Error(w, err.Error(), GetResponseCode(err))
		return
	}

	var grants []schema.WorkspaceGrant
	result := s.db.Find(&grants, "workspace_id = ?", workspaceId)
	if result.Error != nil {
		slog.Error("sql error listing workspace grants", "workspace_id", workspaceId, "error", result.Error)
		http.Error(w, "error listing workspace users", http.StatusInternalServerError)
		return
	}

	users := make([]uuid.UUID, 0, len(grants))
	for _, grant := range grants {
		users = append(users, grant.UserId)
	}

	utils.WriteJsonResponse(w, workspaceUsersResponse{Users: users})
}
