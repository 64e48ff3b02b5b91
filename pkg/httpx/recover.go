package httpx

import (
	"net/http"
	"runtime/debug"

	"github.com/aussiebroadwan/authgate/pkg/slogx"
	"github.com/getsentry/sentry-go"
)

// Recover turns a panicking handler into a 500 and reports the panic to
// Sentry. It is a no-op on the Sentry side when the client is not initialised.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stack := string(debug.Stack())
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetExtra("panic", rec)
					scope.SetExtra("stack", stack)
					scope.SetTag("path", r.URL.Path)
					if id := slogx.RequestID(r.Context()); id != "" {
						scope.SetTag("request_id", id)
					}
					sentry.CaptureMessage("panic in request")
				})

				slogx.FromContext(r.Context()).Error("panic recovered",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path,
				)
				WriteError(w, http.StatusInternalServerError, "Internal server error")
			}()

			next.ServeHTTP(w, r)
		})
	}
}
