package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/alerting"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/crypto"
	"github.com/fleetwatch/fleetwatch/internal/database"
	"github.com/fleetwatch/fleetwatch/internal/events"
	"github.com/fleetwatch/fleetwatch/internal/handlers"
	"github.com/fleetwatch/fleetwatch/internal/notify"
	"github.com/fleetwatch/fleetwatch/internal/routes"
	"github.com/fleetwatch/fleetwatch/internal/services"
	"github.com/fleetwatch/fleetwatch/internal/workflow"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	// JSON structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting Fleetwatch", "version", handlers.Version)

	// ─── Config ──────────────────────────────────────────────────────────
	cfg := config.Load()

	// ─── Database ────────────────────────────────────────────────────────
	db, err := database.Connect(cfg)
	if err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("Database migration failed", "error", err)
		os.Exit(1)
	}

	// ─── Encryption ─────────────────────────────────────────────────────
	var encryptor *crypto.Encryptor
	if cfg.CredentialKey != "" {
		encryptor, err = crypto.NewEncryptor(cfg.CredentialKey)
		if err != nil {
			slog.Error("Failed to create encryptor", "error", err)
			os.Exit(1)
		}
		slog.Info("Device credential encryption initialized")
	} else {
		slog.Warn("CREDENTIAL_ENCRYPTION_KEY not set, credentials will not be encrypted")
		// Dummy encryptor with a default key for development
		encryptor, _ = crypto.NewEncryptor("0000000000000000000000000000000000000000000000000000000000000000")
	}

	// ─── Event Hub ──────────────────────────────────────────────────────
	hub := events.NewHub()

	// ─── Notification Dispatch ──────────────────────────────────────────
	var dispatcher notify.Dispatcher
	if cfg.WebhookURL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.WebhookURL, cfg.NotifyTimeout)
		slog.Info("Webhook notification dispatch enabled")
	} else {
		dispatcher = notify.LogDispatcher{}
		slog.Warn("NOTIFY_WEBHOOK_URL not set, notifications will only be logged")
	}

	// ─── SSH transport ──────────────────────────────────────────────────
	sshPool := services.NewSSHPool()
	runner := services.NewSSHRunner(sshPool, encryptor)

	// ─── Alert Lifecycle ────────────────────────────────────────────────
	alertManager := alerting.NewManager(db, hub, dispatcher)

	// ─── Health Assessor ────────────────────────────────────────────────
	collector := services.NewSSHCollector(runner)
	assessor := services.NewAssessor(db, collector, alertManager, cfg)
	assessor.Start()

	// ─── Escalation Scheduler ───────────────────────────────────────────
	escalator := alerting.NewEscalator(db, alertManager, hub, dispatcher, cfg)
	escalator.Start()

	// ─── Alert Archiver ─────────────────────────────────────────────────
	archiver := services.NewArchiver(alertManager, cfg)
	archiver.Start()

	// ─── Workflow Orchestrator ──────────────────────────────────────────
	definitions, err := workflow.LoadDefinitions(cfg.WorkflowFile)
	if err != nil {
		slog.Error("Failed to load workflow definitions", "error", err)
		os.Exit(1)
	}
	orchestrator := workflow.NewOrchestrator(db, definitions, runner, hub, cfg.StepTimeout)
	slog.Info("Workflow definitions loaded", "count", len(definitions))

	// ─── Handlers ───────────────────────────────────────────────────────
	authHandler := handlers.NewAuthHandler(cfg)
	deviceHandler := handlers.NewDeviceHandler(db, encryptor)
	alertHandler := handlers.NewAlertHandler(alertManager)
	workflowHandler := handlers.NewWorkflowHandler(orchestrator)
	systemHandler := handlers.NewSystemHandler(db)
	eventsHandler := handlers.NewEventsHandler(hub)

	// ─── Fiber App ──────────────────────────────────────────────────────
	app := fiber.New(fiber.Config{
		AppName:      "fleetwatch v" + handlers.Version,
		ServerHeader: "fleetwatch",
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal server error"
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": message,
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
	}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: false,
	}))

	// Security headers
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		return c.Next()
	})

	// Request logger
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if c.Path() == "/api/health" {
			return err
		}
		slog.Info("request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)
		return err
	})

	// ─── Routes ─────────────────────────────────────────────────────────
	routes.Setup(app, cfg, authHandler, deviceHandler, alertHandler,
		workflowHandler, systemHandler, eventsHandler)

	// ─── Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down Fleetwatch...")

		assessor.Stop()
		escalator.Stop()
		archiver.Stop()
		sshPool.CloseAll()

		if err := app.Shutdown(); err != nil {
			slog.Error("Fiber shutdown error", "error", err)
		}

		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	// ─── Start ──────────────────────────────────────────────────────────
	listenAddr := ":" + cfg.Port
	slog.Info("Fleetwatch listening", "addr", listenAddr)

	if err := app.Listen(listenAddr); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
