package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid login credentials")

// BasicIdentityProvider issues and verifies HS256 tokens signed with a shared
// secret. It is used for local runs and tests. A single bootstrap data
// manager account is configured at startup; all other principals are expected
// to present tokens minted out of band with the same secret.
type BasicIdentityProvider struct {
	jwtManager *JwtManager
	auditLog   AuditLogger

	bootstrap         Principal
	bootstrapPassword []byte
}

type BasicProviderArgs struct {
	Secret []byte

	BootstrapUsername string
	BootstrapFullName string
	BootstrapPassword string
}

func NewBasicIdentityProvider(auditLog AuditLogger, args BasicProviderArgs) (IdentityProvider, error) {
	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(args.BootstrapPassword), 10)
	if err != nil {
		return nil, fmt.Errorf("error encrypting bootstrap password: %w", err)
	}

	return &BasicIdentityProvider{
		jwtManager: NewJwtManager(args.Secret),
		auditLog:   auditLog,
		bootstrap: Principal{
			UserId:   uuid.New(),
			FullName: args.BootstrapFullName,
			Username: args.BootstrapUsername,
			Roles:    []Role{RoleDataManager},
		},
		bootstrapPassword: hashedPwd,
	}, nil
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{
		auth.jwtManager.Verifier(),
		auth.jwtManager.Authenticator(),
		auth.jwtManager.PrincipalLoader(),
		auth.auditLog.Middleware,
	}
}

func (auth *BasicIdentityProvider) AllowLocalLogin() bool {
	return true
}

func (auth *BasicIdentityProvider) Login(username, password string) (string, error) {
	if username != auth.bootstrap.Username {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(auth.bootstrapPassword, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	return auth.jwtManager.CreatePrincipalJwt(auth.bootstrap, 15*time.Minute)
}

// TokenFor mints an access token for an arbitrary principal. Used by the test
// harness to simulate tokens issued by the external identity provider.
func (auth *BasicIdentityProvider) TokenFor(principal Principal) (string, error) {
	return auth.jwtManager.CreatePrincipalJwt(principal, 15*time.Minute)
}
