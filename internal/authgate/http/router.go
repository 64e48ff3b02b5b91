package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/authgate/internal/authgate/service"
	"github.com/aussiebroadwan/authgate/internal/authgate/store"
	"github.com/aussiebroadwan/authgate/pkg/httpx"
	"github.com/aussiebroadwan/authgate/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	cookies      CookieJar

	store          store.Store
	LoginService   *service.LoginService
	AccountService *service.AccountService
	TokenService   *service.TokenService
}

func NewRouter(
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
	secureCookies bool,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		cookies:      CookieJar{Secure: secureCookies},
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.Recover(),
		httpx.SecurityHeaders(),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.cookies.Tokens = r.TokenService

	r.registerSession()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSession() {
	login := &LoginHandler{LoginService: r.LoginService, Cookies: r.cookies}
	refresh := &RefreshHandler{TokenService: r.TokenService, Cookies: r.cookies}
	logout := &LogoutHandler{TokenService: r.TokenService, AccountService: r.AccountService, Cookies: r.cookies}
	session := &SessionHandler{AccountService: r.AccountService}
	password := &PasswordHandler{AccountService: r.AccountService}

	// POST /login - the login service runs its own fingerprint limiter with a
	// block period; this coarse IP bucket only sheds floods before hashing.
	r.Mux.Handle("POST /v1/{realm}/login",
		httpx.Chain(login,
			RequireRealm(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/{realm}/refresh",
		httpx.Chain(refresh,
			RequireRealm(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.Mux.Handle("POST /v1/{realm}/logout",
		httpx.Chain(logout,
			RequireRealm(),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// Authenticated endpoints - limited per subject once the token is verified
	r.Mux.Handle("GET /v1/{realm}/session",
		httpx.Chain(session,
			RequireRealm(),
			RequireSession(r.TokenService),
			httpx.RateLimitBySubject(httpx.LenientLimit),
		),
	)

	r.Mux.Handle("POST /v1/{realm}/password",
		httpx.Chain(password,
			RequireRealm(),
			RequireSession(r.TokenService),
			httpx.RateLimitBySubject(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
