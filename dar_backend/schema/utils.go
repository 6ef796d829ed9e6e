package schema

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrWorkspaceNotFound = errors.New("workspace not found")
	ErrRequestNotFound   = errors.New("request not found")
	ErrDbAccessFailed    = errors.New("db access failed")
)

func GetUser(userId uuid.UUID, db *gorm.DB) (User, error) {
	var user User

	result := db.First(&user, "id = ?", userId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return user, ErrUserNotFound
		}
		slog.Error("sql error in get user", "user_id", userId, "error", result.Error)
		return user, ErrDbAccessFailed
	}

	return user, nil
}

func GetWorkspace(workspaceId uuid.UUID, db *gorm.DB) (Workspace, error) {
	var workspace Workspace

	result := db.First(&workspace, "id = ?", workspaceId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return workspace, ErrWorkspaceNotFound
		}
		slog.Error("sql error in get workspace", "workspace_id", workspaceId, "error", result.Error)
		return workspace, ErrDbAccessFailed
	}

	return workspace, nil
}

// GetRequest loads a request by id. loadDetail pulls in the workspace, the
// creator/reviewer users, and the requested tables with their columns.
func GetRequest(requestId uuid.UUID, db *gorm.DB, loadDetail bool) (Request, error) {
	var request Request

	query := db
	if loadDetail {
		query = query.
			Preload("Workspace").
			Preload("Creator").
			Preload("Reviewer").
			Preload("Tables").
			Preload("Tables.Columns")
	}

	result := query.First(&request, "id = ?", requestId)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return request, ErrRequestNotFound
		}
		slog.Error("sql error in get request", "request_id", requestId, "error", result.Error)
		return request, ErrDbAccessFailed
	}

	return request, nil
}

// HasWorkspaceGrant reports whether the user holds a grant on the workspace.
func HasWorkspaceGrant(workspaceId, userId uuid.UUID, db *gorm.DB) (bool, error) {
	var grant WorkspaceGrant
	result := db.Limit(1).Find(&grant, "workspace_id = ? and user_id = ?", workspaceId, userId)
	if result.Error != nil {
		slog.Error("sql error in workspace grant lookup", "workspace_id", workspaceId, "user_id", userId, "error", result.Error)
		return false, ErrDbAccessFailed
	}
	return result.RowsAffected != 0, nil
}

// UserIsRegistered reports whether the principal has a local user row. An
// unregistered researcher has no grants and therefore no visible workspaces.
func UserIsRegistered(userId uuid.UUID, db *gorm.DB) (bool, error) {
	_, err := GetUser(userId, db)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
