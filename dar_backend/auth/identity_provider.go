package auth

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Role values are matched against the role claims issued by the external
// identity provider. Any other role string carried by a token is ignored.
type Role string

const (
	RoleResearcher  Role = "Researcher"
	RoleDataManager Role = "DataManager"
)

// Principal is the authenticated caller. Roles are sourced from the identity
// token on every request and are never stored locally.
type Principal struct {
	UserId   uuid.UUID
	FullName string
	Username string
	Roles    []Role
}

func (p *Principal) Has(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func ParseRoles(roles []string) []Role {
	parsed := make([]Role, 0, len(roles))
	for _, role := range roles {
		switch Role(role) {
		case RoleResearcher, RoleDataManager:
			parsed = append(parsed, Role(role))
		}
	}
	return parsed
}

// IdentityProvider verifies the bearer credentials on incoming requests and
// places the resulting Principal into the request context.
type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	// AllowLocalLogin reports whether the provider supports the local
	// username/password login endpoint. Providers backed by an external
	// identity service return false, clients obtain tokens from that
	// service directly.
	AllowLocalLogin() bool

	// Login exchanges local credentials for an access token.
	Login(username, password string) (string, error)
}

type requestContextKey string

const principalRequestContextKey requestContextKey = "principal"

func PrincipalFromContext(r *http.Request) (Principal, error) {
	principalUntyped := r.Context().Value(principalRequestContextKey)
	if principalUntyped == nil {
		return Principal{}, fmt.Errorf("principal field not found in request context")
	}
	principal, ok := principalUntyped.(Principal)
	if !ok {
		return Principal{}, fmt.Errorf("invalid value for principal field")
	}
	return principal, nil
}
