package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ExecutionStatusRunning   = "running"
	ExecutionStatusCompleted = "completed"
	ExecutionStatusFailed    = "failed"
)

const (
	StepStatusSuccess = "success"
	StepStatusFailed  = "failed"
	StepStatusSkipped = "skipped"
)

// StepResult is serialized into WorkflowExecution.Steps.
type StepResult struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"` // success, failed, skipped
	DurationMs int64     `json:"duration_ms"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// WorkflowExecution is the audit record of one workflow run against a device.
// Immutable once status is terminal.
type WorkflowExecution struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	WorkflowName string         `gorm:"not null;index" json:"workflow_name"`
	DeviceID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"device_id"`
	Status       string         `gorm:"not null;default:'running'" json:"status"` // running, completed, failed
	Steps        datatypes.JSON `json:"steps"`
	FailedStep   string         `json:"failed_step,omitempty"`
	Error        string         `gorm:"type:text" json:"error,omitempty"`
	StartedAt    time.Time      `gorm:"not null;index" json:"started_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
}

func (e *WorkflowExecution) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
