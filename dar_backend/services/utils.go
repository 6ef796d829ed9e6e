package services

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"dar_platform/dar_backend/auth"
	"dar_platform/dar_backend/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

// ensureUserRegistered creates a user row for the principal if one does not
// exist yet. Data managers act on requests without being provisioned first,
// so their rows are created lazily on first write.
func ensureUserRegistered(txn *gorm.DB, principal auth.Principal) error {
	var user schema.User
	result := txn.Limit(1).Find(&user, "id = ?", principal.UserId)
	if result.Error != nil {
		slog.Error("sql error checking for registered user", "user_id", principal.UserId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}
	if result.RowsAffected != 0 {
		return nil
	}

	newUser := schema.User{Id: principal.UserId, FullName: principal.FullName, Username: principal.Username}
	if result := txn.Create(&newUser); result.Error != nil {
		slog.Error("sql error registering user", "user_id", principal.UserId, "error", result.Error)
		return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
	}

	slog.Info("registered new user", "user_id", principal.UserId, "username", principal.Username)

	return nil
}

func checkWorkspaceExists(txn *gorm.DB, workspaceId uuid.UUID) error {
	_, err := schema.GetWorkspace(workspaceId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrWorkspaceNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}

func checkUserExists(txn *gorm.DB, userId uuid.UUID) error {
	_, err := schema.GetUser(userId, txn)
	if err != nil {
		if errors.Is(err, schema.ErrUserNotFound) {
			return CodedError(err, http.StatusNotFound)
		}
		return CodedError(err, http.StatusInternalServerError)
	}
	return nil
}
