package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/crm-service/internal/api/http/handlers"
	"github.com/spec-kit/crm-service/internal/auth"
	"github.com/spec-kit/crm-service/internal/domain"
	"github.com/spec-kit/crm-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Leads          *handlers.LeadsHandler
	Clients        *handlers.ClientsHandler
	AuthMiddleware fiber.Handler
	LoginLimiter   *IPRateLimiter
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1")

	authGroup := api.Group("/auth")
	login := []fiber.Handler{cfg.Auth.Login}
	if cfg.LoginLimiter != nil {
		login = append([]fiber.Handler{cfg.LoginLimiter.Handler()}, login...)
	}
	authGroup.Post("/login", login...)
	authGroup.Get("/me", cfg.AuthMiddleware, cfg.Auth.Me)
	authGroup.Post("/password/change", cfg.AuthMiddleware, cfg.Auth.ChangePassword)

	leads := api.Group("/leads", cfg.AuthMiddleware)
	leads.Post("/", auth.RequirePermission(domain.PermissionLeadsCreate), cfg.Leads.CreateLead)
	leads.Get("/", auth.RequirePermission(domain.PermissionLeadsRead), cfg.Leads.ListLeads)
	leads.Get("/:id", auth.RequirePermission(domain.PermissionLeadsRead), cfg.Leads.GetLead)
	leads.Patch("/:id", auth.RequirePermission(domain.PermissionLeadsUpdate), cfg.Leads.UpdateLead)
	leads.Delete("/:id", auth.RequirePermission(domain.PermissionLeadsDelete), cfg.Leads.DeleteLead)
	leads.Patch("/:id/status", auth.RequirePermission(domain.PermissionLeadsUpdate, domain.PermissionLeadsQualify), cfg.Leads.ChangeStatus)
	leads.Get("/:id/history", auth.RequirePermission(domain.PermissionLeadsRead), cfg.Leads.History)

	clients := api.Group("/clients", cfg.AuthMiddleware)
	clients.Get("/", auth.RequirePermission(domain.PermissionClientsRead), cfg.Clients.ListClients)
	clients.Get("/:id", auth.RequirePermission(domain.PermissionClientsRead), cfg.Clients.GetClient)
	clients.Post("/:id/temporary-password", auth.RequirePrivileged(), cfg.Clients.RevealTemporaryPassword)
}
