package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mybank/internal/api/middleware"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type Services struct {
	Identity domain.IdentityService
	Users    domain.UserService
	Ledger   domain.LedgerService
	Search   domain.SearchService
	Workflow domain.WorkflowService
	Audit    domain.AuditLogService
}

type RouterOptions struct {
	Health         *HealthHandler
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

func NewRouter(svc Services, opts RouterOptions, log logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(chiMiddleware.Timeout(opts.RequestTimeout))
	}
	r.Use(middleware.Tracing)
	r.Use(middleware.Metrics)
	r.Use(middleware.RequestLogger(log))

	if opts.Health != nil {
		opts.Health.RegisterRoutes(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	authHandler := NewAuthHandler(svc.Identity, svc.Users, svc.Workflow, log)
	userHandler := NewUserHandler(svc.Users, log)
	accountHandler := NewAccountHandler(svc.Ledger, svc.Search, log)
	requestHandler := NewRequestHandler(svc.Workflow, log)
	auditLogHandler := NewAuditLogHandler(svc.Audit, log)
	authenticator := middleware.NewAuthenticator(svc.Identity, log)
	limiter := middleware.NewRateLimiter(opts.RateLimitRPS, opts.RateLimitBurst)

	r.Route("/api", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(limiter.Middleware)
			authHandler.RegisterPublicRoutes(public)
		})

		api.Group(func(authed chi.Router) {
			authed.Use(authenticator.Authenticate)
			authHandler.RegisterRoutes(authed)

			// Everything else is closed to holders of a temporary password.
			authed.Group(func(current chi.Router) {
				current.Use(middleware.RequirePasswordCurrent(log))
				userHandler.RegisterRoutes(current)
				accountHandler.RegisterRoutes(current)
				requestHandler.RegisterRoutes(current)
				auditLogHandler.RegisterRoutes(current)
			})
		})
	})

	return r
}
