package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/barber-queue/internal/api/http/handlers"
	"github.com/spec-kit/barber-queue/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Appointments   *handlers.AppointmentsHandler
	Queue          *handlers.QueueHandler
	Services       *handlers.ServicesHandler
	Barbers        *handlers.BarbersHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/barbers/login", cfg.Barbers.Login)

	api := app.Group("/api")

	// Customer-facing: no authentication, tickets are claimed by key/device.
	api.Post("/shops/:slug/tickets", cfg.Tickets.CreateWalkIn)
	api.Post("/shops/:slug/appointments", cfg.Appointments.Create)
	api.Get("/shops/:slug/queue", cfg.Queue.GetBoard)
	api.Get("/shops/:slug/services", cfg.Services.ListServices)
	api.Get("/tickets/:id", cfg.Tickets.GetTicket)
	api.Post("/tickets/:id/cancel", cfg.Tickets.Cancel)
	api.Post("/appointments/:id/checkin", cfg.Appointments.CheckIn)
	api.Post("/appointments/:id/reschedule", cfg.Appointments.Reschedule)

	// Staff-facing.
	staff := api.Group("", cfg.AuthMiddleware.Handle)
	staff.Post("/tickets/:id/transition", cfg.Tickets.Transition)
	staff.Post("/barbers/me/password", cfg.Barbers.ChangePassword)
	staff.Post("/barbers/:id/availability", cfg.Barbers.SetAvailability)
}
