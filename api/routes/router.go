package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/licensor-backend/api/controllers"
	"github.com/angelmondragon/licensor-backend/api/middleware"
	"github.com/angelmondragon/licensor-backend/internal/auth"
	"github.com/angelmondragon/licensor-backend/internal/licenses"
	"github.com/angelmondragon/licensor-backend/pkg/auth/session"
	"github.com/angelmondragon/licensor-backend/pkg/config"
	"github.com/angelmondragon/licensor-backend/pkg/db"
	"github.com/angelmondragon/licensor-backend/pkg/enums"
	"github.com/angelmondragon/licensor-backend/pkg/logger"
	"github.com/angelmondragon/licensor-backend/pkg/redis"
)

type sessionManager interface {
	session.AccessSessionChecker
	Rotate(context.Context, string, string) (string, string, error)
	Revoke(context.Context, string) error
}

// cache is the redis surface the HTTP layer needs: fixed-window counters for
// the login throttle, idempotency records and the readiness ping.
type cache interface {
	redis.IdempotencyStore
	redis.Pinger
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Params groups the router's collaborators. Metrics and PublicLimiter are
// optional.
type Params struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             db.Pinger
	Cache          cache
	Sessions       sessionManager
	Auth           auth.Service
	Licenses       licenses.Service
	PublicLimiter  *middleware.PublicRateLimiter
	MetricsHandler http.Handler
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginIdentLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, p.Cache))
	})

	if p.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", p.MetricsHandler)
	}

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, p.Cache, logg)).Post("/login", controllers.AuthLogin(p.Auth, logg))
		r.Post("/logout", controllers.AuthLogout(p.Sessions, cfg.JWT, logg))
		r.Post("/refresh", controllers.AuthRefresh(p.Sessions, cfg.JWT, logg))
		r.With(middleware.Auth(cfg.JWT, p.Sessions, logg)).Get("/me", controllers.AuthMe(p.Auth, logg))
	})

	// Client endpoints are unauthenticated; the license key is the credential.
	r.Route("/api/v1/licenses", func(r chi.Router) {
		if p.PublicLimiter != nil {
			r.Use(p.PublicLimiter.Handler)
		}
		r.Post("/activate", controllers.LicenseActivate(p.Licenses, logg))
		r.Post("/verify", controllers.LicenseVerify(p.Licenses, logg))
		r.Post("/deactivate", controllers.LicenseDeactivate(p.Licenses, logg))
	})

	r.Route("/api/v1/portal", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Get("/ping", controllers.PrivatePing())
		r.Get("/licenses", controllers.PortalLicenses(p.Licenses, logg))
		r.Get("/plans", controllers.PortalPlans())
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.RequireRole(logg, string(enums.UserRoleAdmin)))
		r.Get("/ping", controllers.AdminPing())
		r.Get("/dashboard", controllers.AdminDashboard(p.Licenses, logg))
		// Idempotency matches on the full route pattern, which is only known
		// once the endpoint is resolved, so it is attached per route.
		idem := middleware.Idempotency(p.Cache, logg)
		r.Route("/licenses", func(r chi.Router) {
			r.Get("/", controllers.AdminLicenseList(p.Licenses, logg))
			r.With(idem).Post("/", controllers.AdminLicenseCreate(p.Licenses, logg))
			r.Get("/{licenseId}", controllers.AdminLicenseGet(p.Licenses, logg))
			r.Get("/{licenseId}/heartbeats", controllers.AdminLicenseHeartbeats(p.Licenses, logg))
			r.With(idem).Post("/{licenseId}/extend", controllers.AdminLicenseExtend(p.Licenses, logg))
			r.Post("/{licenseId}/revoke", controllers.AdminLicenseRevoke(p.Licenses, logg))
			r.Post("/{licenseId}/unbind", controllers.AdminLicenseUnbind(p.Licenses, logg))
		})
	})

	return r
}
