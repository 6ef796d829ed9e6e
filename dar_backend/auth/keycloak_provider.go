package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// KeycloakIdentityProvider verifies bearer tokens issued by a Keycloak realm.
// Users and their role assignments are managed entirely in Keycloak; this
// provider only maps verified token claims onto a Principal.
type KeycloakIdentityProvider struct {
	keycloak *gocloak.GoCloak
	auditLog AuditLogger

	realm string
}

type KeycloakArgs struct {
	ServerUrl string
	Realm     string
}

func NewKeycloakIdentityProvider(auditLog AuditLogger, args KeycloakArgs) (IdentityProvider, error) {
	if args.ServerUrl == "" || args.Realm == "" {
		return nil, errors.New("keycloak server url and realm must be specified")
	}

	return &KeycloakIdentityProvider{
		keycloak: gocloak.NewClient(args.ServerUrl),
		auditLog: auditLog,
		realm:    args.Realm,
	}, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return "", errors.New("Authorization header is not a bearer token")
	}
	return token, nil
}

func keycloakRoles(claims jwt.MapClaims) []Role {
	realmAccess, ok := claims["realm_access"].(map[string]interface{})
	if !ok {
		return nil
	}
	rolesList, ok := realmAccess["roles"].([]interface{})
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

func keycloakPrincipal(claims jwt.MapClaims) (Principal, error) {
	sub, err := claims.GetSubject()
	if err != nil {
		return Principal{}, fmt.Errorf("error reading token subject: %w", err)
	}
	userUuid, err := uuid.Parse(sub)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid user uuid '%v' in token subject: %w", sub, err)
	}

	fullName, _ := claims["name"].(string)
	username, _ := claims["preferred_username"].(string)

	return Principal{
		UserId:   userUuid,
		FullName: fullName,
		Username: username,
		Roles:    keycloakRoles(claims),
	}, nil
}

func (auth *KeycloakIdentityProvider) verifyToken() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			accessToken, err := bearerToken(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()

			token, claims, err := auth.keycloak.DecodeAccessToken(ctx, accessToken, auth.realm)
			if err != nil || !token.Valid {
				http.Error(w, "invalid access token", http.StatusUnauthorized)
				return
			}

			principal, err := keycloakPrincipal(*claims)
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

func (auth *KeycloakIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.verifyToken(), auth.auditLog.Middleware}
}

func (auth *KeycloakIdentityProvider) AllowLocalLogin() bool {
	return false
}

func (auth *KeycloakIdentityProvider) Login(username, password string) (string, error) {
	return "", fmt.Errorf("local login is not supported for this identity provider")
}
