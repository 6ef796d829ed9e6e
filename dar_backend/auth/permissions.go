package auth

import (
	"fmt"
	"net/http"
	"strings"
)

// Role gates. A failing gate responds 401 since a token without the required
// role is treated the same as an invalid identity, matching the behavior of
// the identity layer itself. Finer grained visibility filtering happens in
// the services after the gate passes.

func requireAnyRole(next http.Handler, roles ...Role) http.Handler {
	hfn := func(w http.ResponseWriter, r *http.Request) {
		principal, err := PrincipalFromContext(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		for _, role := range roles {
			if principal.Has(role) {
				next.ServeHTTP(w, r)
				return
			}
		}

		names := make([]string, 0, len(roles))
		for _, role := range roles {
			names = append(names, string(role))
		}
		http.Error(w, fmt.Sprintf("user must have %v role", strings.Join(names, " or ")), http.StatusUnauthorized)
	}
	return http.HandlerFunc(hfn)
}

func ResearcherOrDataManagerOnly(next http.Handler) http.Handler {
	return requireAnyRole(next, RoleResearcher, RoleDataManager)
}

// ResearcherOnly passes only for holders of the Researcher role. A pure data
// manager fails this gate even though data managers see more elsewhere,
// action gates are role specific, not a hierarchy.
func ResearcherOnly(next http.Handler) http.Handler {
	return requireAnyRole(next, RoleResearcher)
}

func DataManagerOnly(next http.Handler) http.Handler {
	return requireAnyRole(next, RoleDataManager)
}
