package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type RouterConfig struct {
	Scheduling    SchedulingService
	Onboarding    OnboardingService
	Authorizer    Authorizer
	Verifier      TokenVerifier
	ClientID      string
	OnboardingURL string
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints stay outside authentication.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Verifier, cfg.ClientID))

		r.Get("/queries/scheduling/availabilities", listAvailabilitiesHandler(cfg.Scheduling, cfg.Authorizer))

		r.With(RequireAnyRole(bookingRoles...)).
			Post("/commands/scheduling/appointments", createAppointmentHandler(cfg.Scheduling, cfg.Authorizer))

		if cfg.Onboarding != nil {
			r.With(RequireAnyRole("clinic_admin")).
				Post("/commands/onboarding/invitations", createInvitationHandler(cfg.Onboarding, cfg.OnboardingURL))
			r.Post("/commands/onboarding/invitations/accept", acceptInvitationHandler(cfg.Onboarding))
		}
	})

	return r
}
