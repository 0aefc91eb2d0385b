package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tokengate/internal/auth/service"
	"github.com/aussiebroadwan/tokengate/pkg/httpx"
	"github.com/aussiebroadwan/tokengate/pkg/jwtx"
	"github.com/aussiebroadwan/tokengate/pkg/metricsx"
	"github.com/aussiebroadwan/tokengate/pkg/slogx"

	_ "github.com/aussiebroadwan/tokengate/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	gate         httpx.GateConfig
	metrics      *metricsx.Metrics
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	database    service.Pinger
	revocations service.Pinger

	TokenService *service.TokenService
	UserService  *service.UserService
	Cookies      CookieConfig
}

func NewRouter(
	gate httpx.GateConfig,
	buildVersion string,
	database, revocations service.Pinger,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		gate:         gate,
		metrics:      gate.Metrics,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		database:     database,
		revocations:  revocations,
		logger:       logger,
		Cookies:      DefaultCookieConfig(),
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			tokengate Session Service API
//	@version		0.1.0
//	@description	Username/password sign-in issuing HS256 signed access and refresh tokens, with
//	@description	server-side revocation on sign-out.
//	@description
//	@description				Access tokens are accepted from the Authorization header or the token cookie.
//	@description				Refresh tokens from the Authorization-refresh header or the refresh_token cookie.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/tokengate
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
//
//	@securityDefinitions.apikey	RefreshAuth
//	@in							header
//	@name						Authorization-refresh
//	@description				JWT refresh token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h under pattern, instrumented with the pattern as its
// route label. mws run inside the instrumentation, first one outermost.
func (r *Router) handle(pattern string, h http.Handler, mws ...httpx.Middleware) {
	r.Mux.Handle(pattern, r.metrics.Instrument(pattern, httpx.Chain(h, mws...)))
}

func (r *Router) limited(pattern string) httpx.RateLimitOption {
	return httpx.WithRateLimitMetrics(r.metrics, pattern)
}

func (r *Router) registerAuth() {
	// POST /auth/signup - strict rate limit by IP (account creation)
	const signup = "POST /auth/signup"
	r.handle(signup, &SignUpHandler{TokenService: r.TokenService},
		httpx.RateLimitByIP(httpx.StrictLimit, r.limited(signup)),
	)

	// POST /auth/signin - strict rate limit by IP + username to slow brute force
	const signin = "POST /auth/signin"
	r.handle(signin, &SignInHandler{TokenService: r.TokenService, Cookies: r.Cookies},
		httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "username", r.limited(signin)),
	)

	// GET /auth/signout - reads both tokens itself, no gate
	const signout = "GET /auth/signout"
	r.handle(signout, &SignOutHandler{TokenService: r.TokenService, Cookies: r.Cookies},
		httpx.RateLimitByIP(httpx.ModerateLimit, r.limited(signout)),
	)

	// GET /auth/refresh-token - refresh tokens only
	const refresh = "GET /auth/refresh-token"
	r.handle(refresh, &RefreshHandler{TokenService: r.TokenService},
		httpx.RateLimitByIP(httpx.ModerateLimit, r.limited(refresh)),
		httpx.RequireKinds(r.gate, jwtx.KindRefresh),
	)

	const token = "GET /auth/token"
	r.handle(token, TokenHandler(),
		httpx.RequireKinds(r.gate, jwtx.KindAccess),
		httpx.RateLimitByUser(httpx.PublicLimit, r.limited(token)),
	)
}

func (r *Router) registerUsers() {
	h := &UsersHandler{UserService: r.UserService}

	// Every user endpoint needs an access token; limits are per user.
	secured := func(pattern string, fn http.HandlerFunc) {
		r.handle(pattern, fn,
			httpx.RequireKinds(r.gate, jwtx.KindAccess),
			httpx.RateLimitByUser(httpx.PublicLimit, r.limited(pattern)),
		)
	}

	secured("GET /user/profile", h.HandleProfile)
	secured("GET /user/{id}", h.HandleGet)
	secured("GET /user/{$}", h.HandleList)

	// PUT /user/ - moderate limit, writes
	const update = "PUT /user/{$}"
	r.handle(update, http.HandlerFunc(h.HandleUpdate),
		httpx.RequireKinds(r.gate, jwtx.KindAccess),
		httpx.RateLimitByUser(httpx.ModerateLimit, r.limited(update)),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - public rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.database, r.revocations),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}
