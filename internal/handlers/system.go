package handlers

import (
	"time"

	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

var startTime = time.Now()
var Version = "1.0.0"

type SystemHandler struct {
	db *gorm.DB
}

func NewSystemHandler(db *gorm.DB) *SystemHandler {
	return &SystemHandler{db: db}
}

func (h *SystemHandler) Health(c *fiber.Ctx) error {
	dbStatus := "ok"
	statusCode := fiber.StatusOK

	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		statusCode = fiber.StatusServiceUnavailable
	} else if err := sqlDB.Ping(); err != nil {
		dbStatus = "unreachable: " + err.Error()
		statusCode = fiber.StatusServiceUnavailable
	}

	overall := "ok"
	if statusCode != fiber.StatusOK {
		overall = "degraded"
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":  overall,
		"service": "fleetwatch",
		"version": Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"uptime":  time.Since(startTime).String(),
		"db":      dbStatus,
	})
}

// DashboardOverview returns fleet-wide counts for the landing dashboard.
func (h *SystemHandler) DashboardOverview(c *fiber.Ctx) error {
	var totalDevices, onlineDevices, offlineDevices int64
	h.db.Model(&models.Device{}).Count(&totalDevices)
	h.db.Model(&models.Device{}).Where("status = ?", models.DeviceStatusOnline).Count(&onlineDevices)
	h.db.Model(&models.Device{}).Where("status = ?", models.DeviceStatusOffline).Count(&offlineDevices)

	var activeAlerts, criticalAlerts, acknowledgedAlerts int64
	h.db.Model(&models.Alert{}).Where("resolved_at IS NULL").Count(&activeAlerts)
	h.db.Model(&models.Alert{}).Where("resolved_at IS NULL AND severity = ?", models.SeverityCritical).Count(&criticalAlerts)
	h.db.Model(&models.Alert{}).Where("resolved_at IS NULL AND acknowledged_at IS NOT NULL").Count(&acknowledgedAlerts)

	var runningWorkflows, failedWorkflows int64
	h.db.Model(&models.WorkflowExecution{}).Where("status = ?", models.ExecutionStatusRunning).Count(&runningWorkflows)
	h.db.Model(&models.WorkflowExecution{}).
		Where("status = ? AND started_at > ?", models.ExecutionStatusFailed, time.Now().Add(-24*time.Hour)).
		Count(&failedWorkflows)

	return c.JSON(fiber.Map{
		"devices": fiber.Map{
			"total":   totalDevices,
			"online":  onlineDevices,
			"offline": offlineDevices,
		},
		"alerts": fiber.Map{
			"active":       activeAlerts,
			"critical":     criticalAlerts,
			"acknowledged": acknowledgedAlerts,
		},
		"workflows": fiber.Map{
			"running":    runningWorkflows,
			"failed_24h": failedWorkflows,
		},
	})
}
