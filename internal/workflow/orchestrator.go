package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/events"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Runner executes a shell command against a target device. The SSH pool
// implements it in production; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, device *models.Device, command string) (string, error)
}

// Orchestrator executes statically defined workflows against devices, one
// step at a time, and persists a WorkflowExecution audit record. Multiple
// executions may run concurrently; it holds no device-level lock, so action
// safety under interleaving is each action's own responsibility.
type Orchestrator struct {
	db          *gorm.DB
	defs        map[string]Definition
	runner      Runner
	hub         *events.Hub
	stepTimeout time.Duration
	httpClient  *http.Client
	Now         func() time.Time
}

func NewOrchestrator(db *gorm.DB, defs map[string]Definition, runner Runner, hub *events.Hub, stepTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		db:          db,
		defs:        defs,
		runner:      runner,
		hub:         hub,
		stepTimeout: stepTimeout,
		httpClient:  &http.Client{Timeout: stepTimeout},
		Now:         time.Now,
	}
}

// Definitions returns the static catalog.
func (o *Orchestrator) Definitions() []Definition {
	defs := make([]Definition, 0, len(o.defs))
	for _, d := range o.defs {
		defs = append(defs, d)
	}
	return defs
}

// Start validates the workflow name and target device, creates a running
// execution record, and runs the steps in a background goroutine. The
// caller polls Status to observe the outcome. A deadline on ctx bounds the
// whole execution.
func (o *Orchestrator) Start(ctx context.Context, name string, deviceID uuid.UUID, params map[string]string) (uuid.UUID, error) {
	def, ok := o.defs[name]
	if !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name)
	}

	var device models.Device
	if err := o.db.First(&device, "id = ?", deviceID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return uuid.Nil, ErrDeviceNotFound
		}
		return uuid.Nil, err
	}

	exec := models.WorkflowExecution{
		WorkflowName: def.Name,
		DeviceID:     device.ID,
		Status:       models.ExecutionStatusRunning,
		Steps:        datatypes.JSON("[]"),
		StartedAt:    o.Now(),
	}
	if err := o.db.Create(&exec).Error; err != nil {
		return uuid.Nil, err
	}

	slog.Info("Workflow started",
		"execution_id", exec.ID, "workflow", def.Name, "device", device.Hostname)
	o.hub.Publish(events.WorkflowStarted, exec)

	go o.run(ctx, def, device, exec.ID, params)

	return exec.ID, nil
}

func (o *Orchestrator) run(ctx context.Context, def Definition, device models.Device, execID uuid.UUID, params map[string]string) {
	var results []models.StepResult

	for _, step := range def.Steps {
		if err := ctx.Err(); err != nil {
			o.finish(execID, results, models.ExecutionStatusFailed, step.Name,
				fmt.Sprintf("workflow deadline exceeded before step %q", step.Name))
			return
		}

		start := o.Now()
		output, err := o.execStep(ctx, &device, step, params)

		result := models.StepResult{
			Name:       step.Name,
			Status:     models.StepStatusSuccess,
			DurationMs: time.Since(start).Milliseconds(),
			Output:     output,
			Timestamp:  start,
		}
		if err != nil {
			result.Status = models.StepStatusFailed
			result.Error = err.Error()
		}
		results = append(results, result)
		o.saveSteps(execID, results)

		if err != nil {
			if step.Required {
				slog.Error("Workflow step failed, aborting",
					"execution_id", execID, "step", step.Name, "error", err)
				o.finish(execID, results, models.ExecutionStatusFailed, step.Name, err.Error())
				return
			}
			slog.Warn("Optional workflow step failed, continuing",
				"execution_id", execID, "step", step.Name, "error", err)
		}
	}

	o.finish(execID, results, models.ExecutionStatusCompleted, "", "")
}

func (o *Orchestrator) execStep(ctx context.Context, device *models.Device, step Step, params map[string]string) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	arg := os.Expand(step.Arg, func(key string) string { return params[key] })

	switch step.Action {
	case ActionCommand:
		return o.runner.Run(stepCtx, device, arg)
	case ActionServiceRestart:
		return o.runner.Run(stepCtx, device, "systemctl restart "+arg)
	case ActionReboot:
		return o.runner.Run(stepCtx, device, "reboot")
	case ActionDelay:
		d, err := time.ParseDuration(arg)
		if err != nil {
			return "", fmt.Errorf("invalid delay %q: %w", arg, err)
		}
		select {
		case <-time.After(d):
			return "waited " + d.String(), nil
		case <-stepCtx.Done():
			return "", stepCtx.Err()
		}
	case ActionHTTPCheck:
		req, err := http.NewRequestWithContext(stepCtx, http.MethodGet, arg, nil)
		if err != nil {
			return "", err
		}
		resp, err := o.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return "", fmt.Errorf("http check %s: status %d", arg, resp.StatusCode)
		}
		return fmt.Sprintf("status %d", resp.StatusCode), nil
	default:
		// Unreachable: definitions are validated at load time.
		return "", fmt.Errorf("unknown action %q", step.Action)
	}
}

func (o *Orchestrator) saveSteps(execID uuid.UUID, results []models.StepResult) {
	b, err := json.Marshal(results)
	if err != nil {
		return
	}
	o.db.Model(&models.WorkflowExecution{}).Where("id = ?", execID).
		Update("steps", datatypes.JSON(b))
}

func (o *Orchestrator) finish(execID uuid.UUID, results []models.StepResult, status, failedStep, errMsg string) {
	now := o.Now()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": now,
	}
	if b, err := json.Marshal(results); err == nil {
		updates["steps"] = datatypes.JSON(b)
	}
	if failedStep != "" {
		updates["failed_step"] = failedStep
	}
	if errMsg != "" {
		updates["error"] = errMsg
	}

	if err := o.db.Model(&models.WorkflowExecution{}).Where("id = ?", execID).
		Updates(updates).Error; err != nil {
		slog.Error("Failed to finalize workflow execution", "execution_id", execID, "error", err)
		return
	}

	var exec models.WorkflowExecution
	if err := o.db.First(&exec, "id = ?", execID).Error; err == nil {
		if status == models.ExecutionStatusCompleted {
			slog.Info("Workflow completed", "execution_id", execID, "workflow", exec.WorkflowName)
			o.hub.Publish(events.WorkflowCompleted, exec)
		} else {
			slog.Warn("Workflow failed",
				"execution_id", execID, "workflow", exec.WorkflowName, "failed_step", failedStep)
			o.hub.Publish(events.WorkflowFailed, exec)
		}
	}
}

// Status returns the execution record for polling.
func (o *Orchestrator) Status(id uuid.UUID) (*models.WorkflowExecution, error) {
	var exec models.WorkflowExecution
	if err := o.db.First(&exec, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrExecutionNotFound
		}
		return nil, err
	}
	return &exec, nil
}

// History returns the most recent executions across all devices, newest
// first.
func (o *Orchestrator) History(limit int) ([]models.WorkflowExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	var execs []models.WorkflowExecution
	if err := o.db.Order("started_at DESC").Limit(limit).Find(&execs).Error; err != nil {
		return nil, err
	}
	return execs, nil
}
