package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/workflow"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type WorkflowHandler struct {
	orchestrator *workflow.Orchestrator
}

func NewWorkflowHandler(orchestrator *workflow.Orchestrator) *WorkflowHandler {
	return &WorkflowHandler{orchestrator: orchestrator}
}

func (h *WorkflowHandler) ListDefinitions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"workflows": h.orchestrator.Definitions()})
}

// StartWorkflow kicks off a workflow against a device. Fire-and-forget: the
// response carries the execution id, the caller polls GetExecution for the
// outcome. An optional timeout (seconds) bounds the whole execution.
func (h *WorkflowHandler) StartWorkflow(c *fiber.Ctx) error {
	var req struct {
		Workflow       string            `json:"workflow"`
		DeviceID       string            `json:"device_id"`
		Params         map[string]string `json:"params"`
		TimeoutSeconds int               `json:"timeout_seconds"`
	}
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid request body")
	}
	if req.Workflow == "" || req.DeviceID == "" {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Workflow and device_id are required")
	}

	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid device ID")
	}

	// The execution outlives this request; only an explicit caller deadline
	// bounds it.
	ctx := context.Background()
	if req.TimeoutSeconds > 0 {
		deadline := time.Now().Add(time.Duration(req.TimeoutSeconds) * time.Second)
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		time.AfterFunc(time.Until(deadline)+time.Second, cancel)
	}

	execID, err := h.orchestrator.Start(ctx, req.Workflow, deviceID, req.Params)
	if err != nil {
		switch {
		case errors.Is(err, workflow.ErrUnknownWorkflow):
			return errorJSON(c, fiber.StatusBadRequest, CodeConfigurationError, err.Error())
		case errors.Is(err, workflow.ErrDeviceNotFound):
			return errorJSON(c, fiber.StatusNotFound, CodeNotFound, "Device not found")
		default:
			return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to start workflow")
		}
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"execution_id": execID,
		"status":       "running",
	})
}

func (h *WorkflowHandler) GetExecution(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, CodeInvalidRequest, "Invalid execution ID")
	}

	exec, err := h.orchestrator.Status(id)
	if err != nil {
		if errors.Is(err, workflow.ErrExecutionNotFound) {
			return errorJSON(c, fiber.StatusNotFound, CodeNotFound, "Execution not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to load execution")
	}
	return c.JSON(exec)
}

func (h *WorkflowHandler) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	execs, err := h.orchestrator.History(limit)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, CodeInternal, "Failed to load history")
	}
	return c.JSON(fiber.Map{"executions": execs})
}
