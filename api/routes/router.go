package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/epiguard-backend/api/controllers"
	"github.com/angelmondragon/epiguard-backend/api/middleware"
	"github.com/angelmondragon/epiguard-backend/internal/auth"
	"github.com/angelmondragon/epiguard-backend/internal/collaborators"
	"github.com/angelmondragon/epiguard-backend/internal/equipment"
	"github.com/angelmondragon/epiguard-backend/internal/issuance"
	"github.com/angelmondragon/epiguard-backend/internal/notifications"
	"github.com/angelmondragon/epiguard-backend/internal/risks"
	"github.com/angelmondragon/epiguard-backend/internal/sectors"
	"github.com/angelmondragon/epiguard-backend/internal/users"
	"github.com/angelmondragon/epiguard-backend/pkg/auth/session"
	"github.com/angelmondragon/epiguard-backend/pkg/config"
	"github.com/angelmondragon/epiguard-backend/pkg/enums"
	"github.com/angelmondragon/epiguard-backend/pkg/logger"
	"github.com/angelmondragon/epiguard-backend/pkg/redis"
)

// SecurityLog is the security event store seen by the HTTP layer.
type SecurityLog interface {
	controllers.SecurityEventLister
	middleware.SecurityRecorder
}

// Dependencies collects everything the HTTP surface is wired to. Nil services
// answer with an internal error instead of panicking.
type Dependencies struct {
	DB       controllers.Pinger
	Redis    *redis.Client
	Sessions session.AccessSessionChecker
	Accounts middleware.AccountChecker
	Metrics  http.Handler
	Location *time.Location

	Auth          auth.Service
	Register      auth.RegisterService
	Provision     auth.ProvisionService
	Users         users.Service
	Issuance      issuance.Service
	Equipment     equipment.Service
	Collaborators collaborators.Service
	Sectors       sectors.Service
	Risks         risks.Service
	Notifications notifications.Service
	Live          controllers.LiveSubscriber
	Security      SecurityLog
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	metricsHandler := deps.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	).Audited(enums.SecurityLoginFailed)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	// A typed nil *redis.Client must not reach the middleware as a non-nil interface.
	var (
		limiterStore     middleware.RateLimiterStore
		idempotencyStore redis.IdempotencyStore
		readiness        = map[string]controllers.Pinger{"postgres": deps.DB}
	)
	if deps.Redis != nil {
		limiterStore = deps.Redis
		readiness["redis"] = deps.Redis
		if !cfg.FeatureFlags.IdempotencyOff {
			idempotencyStore = deps.Redis
		}
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	r.Handle("/metrics", metricsHandler)

	privileged := middleware.RequireRole(logg, deps.Security, enums.MemberRoleAdmin, enums.MemberRoleManager)
	adminOnly := middleware.RequireRole(logg, deps.Security, enums.MemberRoleAdmin)
	authenticated := middleware.Auth(cfg.JWT, deps.Sessions, deps.Accounts, deps.Security, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.Idempotency(idempotencyStore, logg))
			r.With(middleware.AuthRateLimit(loginPolicy, limiterStore, deps.Security, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(registerPolicy, limiterStore, nil, logg)).Post("/register", controllers.AuthRegister(deps.Register, deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, cfg.JWT, logg))
			r.Post("/logout", controllers.AuthLogout(deps.Auth, cfg.JWT, logg))
			r.With(authenticated).Get("/me", controllers.AuthMe(deps.Auth, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.Idempotency(idempotencyStore, logg))

			r.Get("/live", controllers.LiveStream(deps.Live, cfg.Live.HeartbeatInterval, logg))

			r.Route("/issuances", func(r chi.Router) {
				r.Get("/", controllers.ListIssuances(deps.Issuance, loc, logg))
				r.Post("/", controllers.CreateIssuance(deps.Issuance, logg))
				r.Get("/report", controllers.IssuanceReport(deps.Issuance, loc, logg))
				r.Get("/{issuanceId}", controllers.GetIssuance(deps.Issuance, logg))
				r.Post("/{issuanceId}/return", controllers.ReturnIssuance(deps.Issuance, logg))
				r.With(privileged).Delete("/{issuanceId}", controllers.DeleteIssuance(deps.Issuance, logg))
			})

			r.Route("/equipment", func(r chi.Router) {
				r.Get("/", controllers.ListEquipment(deps.Equipment, logg))
				r.Post("/suggest", controllers.SuggestEquipment(deps.Equipment, logg))
				r.Get("/{equipmentId}", controllers.GetEquipment(deps.Equipment, logg))
				r.Get("/{equipmentId}/forecast", controllers.EquipmentForecast(deps.Issuance, logg))
				r.Group(func(r chi.Router) {
					r.Use(privileged)
					r.Post("/", controllers.CreateEquipment(deps.Equipment, logg))
					r.Patch("/{equipmentId}", controllers.UpdateEquipment(deps.Equipment, logg))
					r.Delete("/{equipmentId}", controllers.DeleteEquipment(deps.Equipment, logg))
				})
			})

			r.Route("/collaborators", func(r chi.Router) {
				r.Get("/", controllers.ListCollaborators(deps.Collaborators, logg))
				r.Get("/{collaboratorId}", controllers.GetCollaborator(deps.Collaborators, logg))
				r.Group(func(r chi.Router) {
					r.Use(privileged)
					r.Post("/", controllers.CreateCollaborator(deps.Collaborators, logg))
					r.Patch("/{collaboratorId}", controllers.UpdateCollaborator(deps.Collaborators, logg))
					r.Delete("/{collaboratorId}", controllers.DeleteCollaborator(deps.Collaborators, logg))
				})
			})

			r.Route("/sectors", func(r chi.Router) {
				r.Get("/", controllers.ListSectors(deps.Sectors, logg))
				r.Get("/{sectorId}", controllers.GetSector(deps.Sectors, logg))
				r.Group(func(r chi.Router) {
					r.Use(privileged)
					r.Post("/", controllers.CreateSector(deps.Sectors, logg))
					r.Patch("/{sectorId}", controllers.UpdateSector(deps.Sectors, logg))
					r.Delete("/{sectorId}", controllers.DeleteSector(deps.Sectors, logg))
				})
			})

			r.Route("/risks", func(r chi.Router) {
				r.Get("/", controllers.ListRisks(deps.Risks, logg))
				r.Get("/{riskId}", controllers.GetRisk(deps.Risks, logg))
				r.Group(func(r chi.Router) {
					r.Use(privileged)
					r.Post("/", controllers.CreateRisk(deps.Risks, logg))
					r.Patch("/{riskId}", controllers.UpdateRisk(deps.Risks, logg))
					r.Delete("/{riskId}", controllers.DeleteRisk(deps.Risks, logg))
				})
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(deps.Notifications, logg))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(deps.Notifications, logg))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(deps.Notifications, logg))
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(adminOnly)
				r.Get("/", controllers.ListUsers(deps.Users, logg))
				r.Post("/", controllers.ProvisionUser(deps.Provision, logg))
				r.Patch("/{userId}", controllers.UpdateUserAccess(deps.Users, logg))
				r.Post("/{userId}/logout", controllers.TerminateUserSessions(deps.Users, logg))
			})

			r.With(adminOnly).Get("/security/logs", controllers.ListSecurityEvents(deps.Security, loc, logg))
		})
	})

	return r
}
