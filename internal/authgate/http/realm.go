package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/authgate/internal/authgate/domain"
	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/pkg/httpx"
	"github.com/aussiebroadwan/authgate/pkg/slogx"
)

type realmKey struct{}

// RequireRealm parses the {realm} path segment once. Handlers downstream only
// ever see the typed value; unknown realms are a 404.
func RequireRealm() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			realm, err := domain.ParseRealm(r.PathValue("realm"))
			if err != nil {
				httpx.WriteError(w, http.StatusNotFound, "Not found")
				return
			}

			ctx := context.WithValue(r.Context(), realmKey{}, realm)
			ctx = slogx.WithAttrs(ctx, "realm", realm)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RealmFromContext returns the realm stored by RequireRealm.
func RealmFromContext(ctx context.Context) (domain.Realm, bool) {
	realm, ok := ctx.Value(realmKey{}).(domain.Realm)
	return realm, ok
}

// RequireSession verifies the realm's access token from the Authorization
// header or the realm's access cookie. It must run after RequireRealm.
func RequireSession(tokens *service.TokenService) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			realm, ok := RealmFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusNotFound, "Not found")
				return
			}
			authn := httpx.AuthnMiddleware(tokens.AccessVerifier(realm), CookieNamesFor(realm).Access)
			authn(next).ServeHTTP(w, r)
		})
	}
}
