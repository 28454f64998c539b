package app

import (
	"database/sql"
	"net/http"
	"time"

	"agrosurvey/internal/analytics"
	"agrosurvey/internal/app/apiresp"
	"agrosurvey/internal/app/observability"
	"agrosurvey/internal/auth"
	"agrosurvey/internal/survey"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP layer routes to. DB is optional and
// only feeds connection pool metrics.
type Dependencies struct {
	DB        *sql.DB
	Logger    *zap.Logger
	Survey    *survey.Service
	Analytics *analytics.Service
	Auth      *auth.Service
}

func NewRouter(cfg Config, deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	collector := observability.NewCollector(deps.DB, logger, observability.Gauge{
		Name:  "agrosurvey_active_survey_sessions",
		Help:  "survey sessions held in memory",
		Value: func() float64 { return float64(deps.Survey.ActiveSessions()) },
	})
	r.Use(collector.Middleware)

	authHandler := auth.NewHandler(deps.Auth, auth.WithSecureCookie(cfg.SecureCookies))
	surveyHandler := survey.NewHandler(deps.Survey)
	dashboardHandler := analytics.NewHandler(deps.Analytics)

	authLimiter := RateLimitMiddleware(NewIPRateLimiter(cfg.AuthRateLimitPerMin, time.Minute))
	submitLimiter := RateLimitMiddleware(NewIPRateLimiter(cfg.SubmitRateLimitPerMin, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/metrics", collector.MetricsHandler)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(CSRFMiddleware(cfg.CSRFEnforced))

		api.Get("/survey", surveyHandler.Definition)
		api.Get("/locations", surveyHandler.Locations)
		api.Get("/locations/{comarca}/municipios", surveyHandler.Municipios)

		api.With(submitLimiter).Post("/sessions", surveyHandler.Start)
		api.Get("/sessions/{id}", surveyHandler.Get)
		api.Put("/sessions/{id}/location", surveyHandler.SetLocation)
		api.Put("/sessions/{id}/answers/{questionID}", surveyHandler.Answer)
		api.With(submitLimiter).Post("/sessions/{id}/submit", surveyHandler.Submit)

		api.Get("/dashboard", dashboardHandler.Dashboard)

		api.With(authLimiter).Post("/auth/login", authHandler.Login)
		api.Post("/auth/logout", authHandler.Logout)

		api.Group(func(secure chi.Router) {
			secure.Use(authHandler.RequireAuth)
			secure.Get("/auth/me", authHandler.Me)
			secure.Get("/admin/responses", dashboardHandler.Responses)
		})
	})

	return r
}
