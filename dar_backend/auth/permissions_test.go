package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func gateStatus(gate func(http.Handler) http.Handler, roles ...Role) int {
	handler := gate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	principal := Principal{UserId: uuid.New(), Username: "user@example.com", Roles: roles}
	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), principalRequestContextKey, principal))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func TestRoleGateMatrix(t *testing.T) {
	// ResearcherOnly is role specific, a pure data manager fails it.
	assert.Equal(t, http.StatusOK, gateStatus(ResearcherOnly, RoleResearcher))
	assert.Equal(t, http.StatusUnauthorized, gateStatus(ResearcherOnly, RoleDataManager))
	assert.Equal(t, http.StatusOK, gateStatus(ResearcherOnly, RoleResearcher, RoleDataManager))
	assert.Equal(t, http.StatusUnauthorized, gateStatus(ResearcherOnly))

	assert.Equal(t, http.StatusUnauthorized, gateStatus(DataManagerOnly, RoleResearcher))
	assert.Equal(t, http.StatusOK, gateStatus(DataManagerOnly, RoleDataManager))
	assert.Equal(t, http.StatusOK, gateStatus(DataManagerOnly, RoleResearcher, RoleDataManager))
	assert.Equal(t, http.StatusUnauthorized, gateStatus(DataManagerOnly))

	assert.Equal(t, http.StatusOK, gateStatus(ResearcherOrDataManagerOnly, RoleResearcher))
	assert.Equal(t, http.StatusOK, gateStatus(ResearcherOrDataManagerOnly, RoleDataManager))
	assert.Equal(t, http.StatusOK, gateStatus(ResearcherOrDataManagerOnly, RoleResearcher, RoleDataManager))
	assert.Equal(t, http.StatusUnauthorized, gateStatus(ResearcherOrDataManagerOnly))
}

func TestGateWithoutPrincipal(t *testing.T) {
	handler := DataManagerOnly(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
