package routes

import (
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/handlers"
	"github.com/fleetwatch/fleetwatch/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	deviceHandler *handlers.DeviceHandler,
	alertHandler *handlers.AlertHandler,
	workflowHandler *handlers.WorkflowHandler,
	systemHandler *handlers.SystemHandler,
	eventsHandler *handlers.EventsHandler,
) {
	// ─── Public ──────────────────────────────────────────────────────────
	app.Get("/api/health", systemHandler.Health)

	// ─── Auth ────────────────────────────────────────────────────────────
	app.Post("/api/auth/login", authHandler.Login)
	app.Post("/api/auth/refresh", authHandler.Refresh)

	// ─── Protected routes ────────────────────────────────────────────────
	api := app.Group("/api", middleware.JWTProtected(cfg.JWTSecret))

	// Auth (protected)
	api.Get("/auth/me", authHandler.Me)

	// Dashboard
	api.Get("/dashboard/overview", systemHandler.DashboardOverview)

	// Devices
	api.Get("/devices", deviceHandler.ListDevices)
	api.Post("/devices", deviceHandler.CreateDevice)
	api.Get("/devices/:id", deviceHandler.GetDevice)
	api.Put("/devices/:id", deviceHandler.UpdateDevice)
	api.Delete("/devices/:id", deviceHandler.DeleteDevice)
	api.Post("/devices/:id/test", deviceHandler.TestConnection)
	api.Get("/devices/:id/correlations", alertHandler.DeviceCorrelations)

	// Alerts
	api.Get("/alerts", alertHandler.ListAlerts)
	api.Get("/alerts/:id", alertHandler.GetAlert)
	api.Post("/alerts/:id/acknowledge", alertHandler.AcknowledgeAlert)
	api.Post("/alerts/:id/resolve", alertHandler.ResolveAlert)

	// Workflows
	api.Get("/workflows", workflowHandler.ListDefinitions)
	api.Post("/workflows/start", workflowHandler.StartWorkflow)
	api.Get("/workflows/executions", workflowHandler.History)
	api.Get("/workflows/executions/:id", workflowHandler.GetExecution)

	// Event feed (WebSocket)
	api.Use("/events/ws", eventsHandler.UpgradeCheck())
	api.Get("/events/ws", eventsHandler.Stream())
}
