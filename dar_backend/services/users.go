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

type UserService struct {
	db       *gorm.DB
	userAuth auth.IdentityProvider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	if s.userAuth.AllowLocalLogin() {
		r.Post("/login", s.Login)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.With(auth.ResearcherOrDataManagerOnly).Get("/info", s.Info)

		r.Group(func(r chi.Router) {
			r.Use(auth.DataManagerOnly)

			r.Get("/list", s.List)
			r.Post("/create", s.Create)
			r.Get("/visibility-matrix", s.VisibilityMatrix)

			r.Route("/{user_uuid}", func(r chi.Router) {
				r.Get("/", s.GetUser)
				r.Post("/update", s.Update)
				r.Delete("/", s.Delete)
			})
		})
	})

	return r
}

type userInfo struct {
	UserId   uuid.UUID `json:"user_uuid"`
	FullName string    `json:"user_full_name"`
	Username string    `json:"user_username"`
}

func convertUser(user schema.User) userInfo {
	return userInfo{UserId: user.Id, FullName: user.FullName, Username: user.Username}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

func (s *UserService) Login(w http.ResponseWriter, r *http.Request) {
	var params loginRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	token, err := s.userAuth.Login(params.Username, params.Password)
	if err != nil {
		http.Error(w, "invalid login credentials", http.StatusUnauthorized)
		return
	}

	utils.WriteJsonResponse(w, loginResponse{AccessToken: token})
}

type currentUserResponse struct {
	userInfo

	Roles []auth.Role `json:"roles"`
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	principal, err := auth.PrincipalFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, currentUserResponse{
		userInfo: userInfo{UserId: principal.UserId, FullName: principal.FullName, Username: principal.Username},
		Roles:    principal.Roles,
	})
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	if result := s.db.Find(&users); result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, "error listing users", http.StatusInternalServerError)
		return
	}

	infos := make([]userInfo, 0, len(users))
	for _, user := range users {
		infos = append(infos, convertUser(user))
	}

	utils.WriteJsonResponse(w, infos)
}

func (s *UserService) GetUser(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	user, err := schema.GetUser(userId, s.db)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	utils.WriteJsonResponse(w, convertUser(user))
}

// Users carry the uuid assigned by the external identity provider, so create
// accepts the id instead of generating one.
type createUserRequest struct {
	UserId   uuid.UUID `json:"user_uuid"`
	FullName string    `json:"user_full_name"`
	Username string    `json:"user_username"`
}

func (s *UserService) Create(w http.ResponseWriter, r *http.Request) {
	var params createUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	if params.UserId == uuid.Nil || params.Username == "" {
		http.Error(w, "user uuid and username must be specified", http.StatusBadRequest)
		return
	}

	err := s.db.Transaction(func(txn *gorm.DB) error {
		var existing schema.User
		result := txn.Limit(1).Find(&existing, "id = ?", params.UserId)
		if result.Error != nil {
			slog.Error("sql error checking for duplicate user", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		if result.RowsAffected != 0 {
			return CodedError(fmt.Errorf("user with id %v already exists", params.UserId), http.StatusConflict)
		}

		newUser := schema.User{Id: params.UserId, FullName: params.FullName, Username: params.Username}
		if result := txn.Create(&newUser); result.Error != nil {
			slog.Error("sql error creating user", "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error creating user: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type updateUserRequest struct {
	FullName string `json:"user_full_name"`
	Username string `json:"user_username"`
}

func (s *UserService) Update(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params updateUserRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}

		updates := map[string]interface{}{"full_name": params.FullName, "username": params.Username}
		if result := txn.Model(&schema.User{Id: userId}).Updates(updates); result.Error != nil {
			slog.Error("sql error updating user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating user: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

func (s *UserService) Delete(w http.ResponseWriter, r *http.Request) {
	userId, err := utils.URLParamUUID(r, "user_uuid")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		if err := checkUserExists(txn, userId); err != nil {
			return err
		}

		// Requests created by the user are kept, their history belongs to
		// the workspace.
		result := txn.Where("user_id = ?", userId).Delete(&schema.WorkspaceGrant{})
		if result.Error != nil {
			slog.Error("sql error deleting user grants", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		if result := txn.Delete(&schema.User{Id: userId}); result.Error != nil {
			slog.Error("sql error deleting user", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}

		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error deleting user: %v", err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}

type visibilityMatrixResponse struct {
	UserToWorkspaces map[uuid.UUID][]uuid.UUID `json:"user_to_workspaces"`
	WorkspaceToUsers map[uuid.UUID][]uuid.UUID `json:"workspace_to_users"`
}

// VisibilityMatrix returns the full grant table pivoted both ways in a
// single scan.
func (s *UserService) VisibilityMatrix(w http.ResponseWriter, r *http.Request) {
	var grants []schema.WorkspaceGrant
	if result := s.db.Find(&grants); result.Error != nil {
		slog.Error("sql error listing workspace grants", "error", result.Error)
		http.Error(w, "error listing workspace grants", http.StatusInternalServerError)
		return
	}

	matrix := visibilityMatrixResponse{
		UserToWorkspaces: map[uuid.UUID][]uuid.UUID{},
		WorkspaceToUsers: map[uuid.UUID][]uuid.UUID{},
	}
	for _, grant := range grants {
		matrix.UserToWorkspaces[grant.UserId] = append(matrix.UserToWorkspaces[grant.UserId], grant.WorkspaceId)
		matrix.WorkspaceToUsers[grant.WorkspaceId] = append(matrix.WorkspaceToUsers[grant.WorkspaceId], grant.UserId)
	}

	utils.WriteJsonResponse(w, matrix)
}
