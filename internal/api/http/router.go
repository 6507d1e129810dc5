package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/etu-nz/bmm-service/internal/api/http/handlers"
	"github.com/etu-nz/bmm-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Members        *handlers.MembersHandler
	Venues         *handlers.VenuesHandler
	Assignments    *handlers.AssignmentsHandler
	Notifications  *handlers.NotificationsHandler
	Progress       *handlers.ProgressHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	admin := app.Group("", cfg.AuthMiddleware.Handle)

	admin.Get("/venues", cfg.Venues.ListVenues)

	admin.Get("/members", cfg.Members.ListMembers)
	admin.Get("/members/:id", cfg.Members.GetMember)
	admin.Get("/members/:id/history", cfg.Members.GetHistory)
	admin.Post("/members/:id/stage", cfg.Members.AdvanceStage)
	admin.Post("/members/:id/send", cfg.Members.SendNotification)

	admin.Post("/assignments/manual", cfg.Assignments.ManualAssign)
	admin.Post("/assignments/bulk", cfg.Assignments.BulkAssign)
	admin.Post("/assignments/auto", cfg.Assignments.AutoAssign)

	admin.Post("/notifications/bulk", cfg.Notifications.BulkNotify)

	admin.Get("/sync/progress/:job_id", cfg.Progress.GetProgress)
	admin.Post("/sync/progress/:job_id/cancel", cfg.Progress.CancelJob)
}
