package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/authcore"
)

// Authorizer answers permission checks. *authcore.Engine implements it.
type Authorizer interface {
	Authorize(ctx context.Context, userID, resource, action string) error
}

// RequirePermission rejects requests whose authenticated user does not hold
// action on resource with 403. It must run inside [Guard]; a request without
// an auth result is rejected with 401.
func RequirePermission(authz Authorizer, resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok || authz == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if err := authz.Authorize(r.Context(), res.UserID, resource, action); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var (
	_ Authenticator = (*authcore.Engine)(nil)
	_ Authorizer    = (*authcore.Engine)(nil)
)
