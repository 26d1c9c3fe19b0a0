package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AlertTypePerformance  = "performance"
	AlertTypeSecurity     = "security"
	AlertTypeAvailability = "availability"
	AlertTypeHealth       = "health"
	AlertTypeCompliance   = "compliance"
	AlertTypeUpdate       = "update"
	AlertTypeCustom       = "custom"
)

const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// Alert is one detected problem on a device. At most one unresolved alert
// exists per (device_id, type, title); a recurrence after resolution is a
// new row with a new id.
type Alert struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	DeviceID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"device_id"`
	Type              string         `gorm:"not null;index" json:"type"` // performance, security, availability, health, compliance, update, custom
	Severity          string         `gorm:"not null" json:"severity"`   // critical, high, medium, low, info
	Title             string         `gorm:"not null" json:"title"`
	Message           string         `gorm:"type:text" json:"message"`
	Source            string         `gorm:"not null;index" json:"source"` // subsystem that raised the alert
	EscalationTier    int            `gorm:"default:0" json:"escalation_tier"`
	LastEscalatedAt   *time.Time     `json:"last_escalated_at"`
	AcknowledgedAt    *time.Time     `json:"acknowledged_at"`
	AcknowledgedBy    string         `json:"acknowledged_by"`
	ResolvedAt        *time.Time     `gorm:"index" json:"resolved_at"`
	ResolvedBy        string         `json:"resolved_by"`
	AutoResolve       bool           `json:"auto_resolve"` // eligible for reconciliation auto-resolve
	AutoResolved      bool           `gorm:"default:false" json:"auto_resolved"`
	NotificationsSent datatypes.JSON `json:"notifications_sent"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (a *Alert) Resolved() bool {
	return a.ResolvedAt != nil
}

func (a *Alert) Acknowledged() bool {
	return a.AcknowledgedAt != nil
}

// NotificationRecord is one entry in an alert's notifications_sent column.
type NotificationRecord struct {
	Tier     int       `json:"tier"`
	Channels []string  `json:"channels"`
	SentAt   time.Time `json:"sent_at"`
	Error    string    `json:"error,omitempty"`
}

// SeverityRank orders severities for correlation (higher is worse).
func SeverityRank(severity string) int {
	switch severity {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}
