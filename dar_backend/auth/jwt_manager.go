package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
)

type JwtManager struct {
	auth *jwtauth.JWTAuth
}

func NewJwtManager(secret []byte) *JwtManager {
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil)}
}

func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verifier(m.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		}))
	}
}

func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Authenticator(m.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		}))
	}
}

const (
	userIdClaim   = "user_uuid"
	nameClaim     = "name"
	usernameClaim = "preferred_username"
	rolesClaim    = "roles"
)

func (m *JwtManager) CreatePrincipalJwt(principal Principal, exp time.Duration) (string, error) {
	roles := make([]string, 0, len(principal.Roles))
	for _, role := range principal.Roles {
		roles = append(roles, string(role))
	}

	claims := map[string]interface{}{
		userIdClaim:   principal.UserId.String(),
		nameClaim:     principal.FullName,
		usernameClaim: principal.Username,
		rolesClaim:    roles,
		"exp":         time.Now().Add(exp),
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

func stringClaim(claims map[string]interface{}, key string) (string, error) {
	valueUncasted, ok := claims[key]
	if !ok {
		return "", fmt.Errorf("invalid token: unable to locate key %v in claims", key)
	}
	value, ok := valueUncasted.(string)
	if !ok {
		return "", fmt.Errorf("invalid token: value for key %v has invalid type", key)
	}
	return value, nil
}

func roleClaims(claims map[string]interface{}) []Role {
	rolesUncasted, ok := claims[rolesClaim]
	if !ok {
		return nil
	}
	rolesList, ok := rolesUncasted.([]interface{})
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(rolesList))
	for _, role := range rolesList {
		if name, ok := role.(string); ok {
			roles = append(roles, name)
		}
	}
	return ParseRoles(roles)
}

func principalFromClaims(claims map[string]interface{}) (Principal, error) {
	userId, err := stringClaim(claims, userIdClaim)
	if err != nil {
		return Principal{}, err
	}
	userUuid, err := uuid.Parse(userId)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid user uuid '%v' in token: %w", userId, err)
	}

	fullName, err := stringClaim(claims, nameClaim)
	if err != nil {
		return Principal{}, err
	}
	username, err := stringClaim(claims, usernameClaim)
	if err != nil {
		return Principal{}, err
	}

	return Principal{
		UserId:   userUuid,
		FullName: fullName,
		Username: username,
		Roles:    roleClaims(claims),
	}, nil
}

// PrincipalLoader reads the verified claims and places the Principal into
// the request context for the role gates and handlers downstream.
func (m *JwtManager) PrincipalLoader() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			_, claims, err := jwtauth.FromContext(r.Context())
			if err != nil {
				http.Error(w, fmt.Sprintf("error retrieving auth claims: %v", err), http.StatusUnauthorized)
				return
			}

			principal, err := principalFromClaims(claims)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			reqCtx := context.WithValue(r.Context(), principalRequestContextKey, principal)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}
