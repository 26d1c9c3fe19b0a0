package handlers

import (
	"errors"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/alerting"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AlertHandler struct {
	alerts *alerting.Manager
}

func NewAlertHandler(alerts *alerting.Manager) *AlertHandler {
	return &AlertHandler{alerts: alerts}
}

// ListAlerts returns alerts, optionally filtered by status, severity, source
// or device.
func (h *AlertHandler) ListAlerts(c *fiber.Ctx) error {
	filter := alerting.ListFilter{
		Status:   c.Query("status", ""),
		Severity: c.Query("severity", ""),
		Source:   c.Query("source", ""),
		Limit:    c.QueryInt("limit", 200),
	}
	if deviceID := c.Query("device_id", ""); deviceID != "" {
		id, err := uuid.Parse(deviceID)
		if err != nil {
			return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid device ID")
		}
		filter.DeviceID = id
	}

	alerts, err := h.alerts.List(filter)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to list alerts")
	}
	return c.JSON(fiber.Map{"alerts": alerts})
}

func (h *AlertHandler) GetAlert(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid alert ID")
	}

	alert, err := h.alerts.Get(id)
	if err != nil {
		if errors.Is(err, alerting.ErrNotFound) {
			return errorJSON(c, fiber.StatusNotFound, CodeNotFound, "Alert not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to load alert")
	}
	return c.JSON(alert)
}

func (h *AlertHandler) AcknowledgeAlert(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid alert ID")
	}

	by, _ := c.Locals("username").(string)
	alert, err := h.alerts.Acknowledge(id, by)
	if err != nil {
		if errors.Is(err, alerting.ErrNotFound) {
			return errorJSON(c, fiber.StatusNotFound, CodeNotFound, "Alert not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to acknowledge alert")
	}
	return c.JSON(fiber.Map{
		"message": "Alert acknowledged",
		"alert":   alert,
	})
}

func (h *AlertHandler) ResolveAlert(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid alert ID")
	}

	by, _ := c.Locals("username").(string)
	alert, err := h.alerts.Resolve(id, by, false)
	if err != nil {
		if errors.Is(err, alerting.ErrNotFound) {
			return errorJSON(c, fiber.StatusNotFound, CodeNotFound, "Alert not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to resolve alert")
	}
	return c.JSON(fiber.Map{
		"message": "Alert resolved",
		"alert":   alert,
	})
}

// DeviceCorrelations groups a device's unresolved alerts by type within a
// trailing window (minutes, default 60).
func (h *AlertHandler) DeviceCorrelations(c *fiber.Ctx) error {
	deviceID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid device ID")
	}
	windowMinutes := c.QueryInt("window", 60)

	groups, err := h.alerts.Correlate(deviceID, time.Duration(windowMinutes)*time.Minute)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to correlate alerts")
	}
	return c.JSON(fiber.Map{"groups": groups})
}
