package alerting

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/events"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/notify"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Manager owns the alert lifecycle: deduplicated creation, acknowledgment,
// resolution, reconciliation against current issues, correlation, and
// archival of old resolved alerts.
type Manager struct {
	db         *gorm.DB
	hub        *events.Hub
	dispatcher notify.Dispatcher
	Now        func() time.Time
}

func NewManager(db *gorm.DB, hub *events.Hub, dispatcher notify.Dispatcher) *Manager {
	return &Manager{
		db:         db,
		hub:        hub,
		dispatcher: dispatcher,
		Now:        time.Now,
	}
}

// Create inserts a new active alert unless an unresolved alert with the same
// (device, type, title) already exists, in which case its id is returned and
// nothing is written. Safe to call once per detected issue on every
// assessment cycle. autoResolve marks the alert eligible for ResolveCleared
// reconciliation; pass false for alerts that must be closed by a human.
func (m *Manager) Create(deviceID uuid.UUID, alertType, severity, title, message, source string, autoResolve bool) (uuid.UUID, error) {
	var alert models.Alert
	created := false

	err := m.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("device_id = ? AND type = ? AND title = ? AND resolved_at IS NULL",
			deviceID, alertType, title).First(&alert).Error
		if err == nil {
			return nil // continuation of an existing condition
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}

		alert = models.Alert{
			DeviceID:          deviceID,
			Type:              alertType,
			Severity:          severity,
			Title:             title,
			Message:           message,
			Source:            source,
			AutoResolve:       autoResolve,
			NotificationsSent: datatypes.JSON("[]"),
			CreatedAt:         m.Now(),
		}
		if err := tx.Create(&alert).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		// A concurrent creator can win the race between the dedup read and
		// the insert; the partial unique index fails the loser's insert, and
		// the winner's row is the one to return.
		var existing models.Alert
		if ferr := m.db.Where("device_id = ? AND type = ? AND title = ? AND resolved_at IS NULL",
			deviceID, alertType, title).First(&existing).Error; ferr == nil {
			return existing.ID, nil
		}
		return uuid.Nil, err
	}

	if created {
		slog.Info("Alert created",
			"alert_id", alert.ID, "device_id", deviceID,
			"type", alertType, "severity", severity, "title", title)
		m.hub.Publish(events.AlertCreated, alert)

		if models.SeverityRank(severity) >= models.SeverityRank(models.SeverityHigh) {
			m.notifyInitial(&alert)
		}
	}

	return alert.ID, nil
}

// notifyInitial sends the creation-time notification for severity >= high.
// Delivery failure is recorded on the alert and otherwise ignored.
func (m *Manager) notifyInitial(alert *models.Alert) {
	if m.dispatcher == nil {
		return
	}

	req := notify.Request{
		AlertID:  alert.ID,
		DeviceID: alert.DeviceID,
		Severity: alert.Severity,
		Title:    alert.Title,
		Message:  alert.Message,
		Tier:     0,
		Channels: []string{"chat"},
	}

	record := models.NotificationRecord{Tier: 0, Channels: req.Channels, SentAt: m.Now()}
	if err := m.dispatcher.Dispatch(context.Background(), req); err != nil {
		slog.Error("Alert notification failed", "alert_id", alert.ID, "error", err)
		record.Error = err.Error()
	}
	m.appendNotificationRecord(alert.ID, record)
}

// appendNotificationRecord compare-and-swaps the notifications_sent column so
// a concurrent append (creation notification vs escalation sweep) is never
// lost; the loser re-reads and retries.
func (m *Manager) appendNotificationRecord(alertID uuid.UUID, record models.NotificationRecord) {
	for attempt := 0; attempt < 3; attempt++ {
		var alert models.Alert
		if err := m.db.First(&alert, "id = ?", alertID).Error; err != nil {
			return
		}

		var records []models.NotificationRecord
		if len(alert.NotificationsSent) > 0 {
			_ = json.Unmarshal(alert.NotificationsSent, &records)
		}
		records = append(records, record)

		b, err := json.Marshal(records)
		if err != nil {
			return
		}
		res := m.db.Model(&models.Alert{}).
			Where("id = ? AND notifications_sent = ?", alertID, alert.NotificationsSent).
			Update("notifications_sent", datatypes.JSON(b))
		if res.Error == nil && res.RowsAffected > 0 {
			return
		}
	}
	slog.Warn("Notification record dropped after contention", "alert_id", alertID, "tier", record.Tier)
}

// Get returns a single alert by id.
func (m *Manager) Get(id uuid.UUID) (*models.Alert, error) {
	var alert models.Alert
	if err := m.db.First(&alert, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	DeviceID uuid.UUID
	Status   string // active, resolved
	Severity string
	Source   string
	Limit    int
}

func (m *Manager) List(f ListFilter) ([]models.Alert, error) {
	query := m.db.Order("created_at DESC")

	if f.DeviceID != uuid.Nil {
		query = query.Where("device_id = ?", f.DeviceID)
	}
	switch f.Status {
	case "active":
		query = query.Where("resolved_at IS NULL")
	case "resolved":
		query = query.Where("resolved_at IS NOT NULL")
	}
	if f.Severity != "" {
		query = query.Where("severity = ?", f.Severity)
	}
	if f.Source != "" {
		query = query.Where("source = ?", f.Source)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}

	var alerts []models.Alert
	if err := query.Limit(limit).Find(&alerts).Error; err != nil {
		return nil, err
	}
	return alerts, nil
}

// Acknowledge marks an alert as acknowledged. Acknowledging a resolved or
// already-acknowledged alert is a no-op, not an error. The guarded
// column-scoped update never touches concurrently advancing escalation state.
func (m *Manager) Acknowledge(id uuid.UUID, by string) (*models.Alert, error) {
	var alert models.Alert
	if err := m.db.First(&alert, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if alert.Resolved() || alert.Acknowledged() {
		return &alert, nil
	}

	now := m.Now()
	res := m.db.Model(&models.Alert{}).
		Where("id = ? AND resolved_at IS NULL AND acknowledged_at IS NULL", id).
		Updates(map[string]interface{}{
			"acknowledged_at": now,
			"acknowledged_by": by,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to a concurrent resolve or acknowledge.
		return m.Get(id)
	}
	alert.AcknowledgedAt = &now
	alert.AcknowledgedBy = by

	slog.Info("Alert acknowledged", "alert_id", id, "by", by)
	m.hub.Publish(events.AlertAcknowledged, alert)
	return &alert, nil
}

// Resolve marks an alert resolved. Terminal and idempotent: resolving an
// already-resolved alert changes nothing. The guarded column-scoped update is
// the optimistic check preserving first-resolution wins under concurrency.
func (m *Manager) Resolve(id uuid.UUID, by string, autoResolved bool) (*models.Alert, error) {
	var alert models.Alert
	if err := m.db.First(&alert, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if alert.Resolved() {
		return &alert, nil
	}

	now := m.Now()
	res := m.db.Model(&models.Alert{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]interface{}{
			"resolved_at":   now,
			"resolved_by":   by,
			"auto_resolved": autoResolved,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// A concurrent resolver got there first; its fields stand.
		return m.Get(id)
	}
	alert.ResolvedAt = &now
	alert.ResolvedBy = by
	alert.AutoResolved = autoResolved

	slog.Info("Alert resolved", "alert_id", id, "by", by, "auto", autoResolved)
	m.hub.Publish(events.AlertResolved, alert)
	return &alert, nil
}

// ResolveCleared auto-resolves every eligible unresolved alert raised by
// source on this device whose title no longer appears in currentIssues. Runs
// right after the cycle's Create calls so a transient condition self-heals
// without manual acknowledgment. Alerts created with autoResolve=false are
// never touched.
func (m *Manager) ResolveCleared(deviceID uuid.UUID, currentIssues []string, source string) (int, error) {
	present := make(map[string]bool, len(currentIssues))
	for _, issue := range currentIssues {
		present[issue] = true
	}

	var open []models.Alert
	if err := m.db.Where("device_id = ? AND source = ? AND resolved_at IS NULL",
		deviceID, source).Find(&open).Error; err != nil {
		return 0, err
	}

	cleared := 0
	for _, alert := range open {
		if !alert.AutoResolve || present[alert.Title] {
			continue
		}
		if _, err := m.Resolve(alert.ID, "system", true); err != nil {
			return cleared, err
		}
		cleared++
	}
	return cleared, nil
}

// CorrelationGroup is a cluster of unresolved alerts of one type on one
// device within the correlation window. Only groups with more than one
// member are reported; the underlying alerts are not merged or mutated.
type CorrelationGroup struct {
	Type        string      `json:"type"`
	Count       int         `json:"count"`
	MaxSeverity string      `json:"max_severity"`
	AlertIDs    []uuid.UUID `json:"alert_ids"`
}

func (m *Manager) Correlate(deviceID uuid.UUID, window time.Duration) ([]CorrelationGroup, error) {
	cutoff := m.Now().Add(-window)

	var open []models.Alert
	if err := m.db.Where("device_id = ? AND resolved_at IS NULL AND created_at >= ?",
		deviceID, cutoff).Order("created_at ASC").Find(&open).Error; err != nil {
		return nil, err
	}

	byType := make(map[string]*CorrelationGroup)
	var order []string
	for _, alert := range open {
		group, ok := byType[alert.Type]
		if !ok {
			group = &CorrelationGroup{Type: alert.Type, MaxSeverity: alert.Severity}
			byType[alert.Type] = group
			order = append(order, alert.Type)
		}
		group.Count++
		group.AlertIDs = append(group.AlertIDs, alert.ID)
		if models.SeverityRank(alert.Severity) > models.SeverityRank(group.MaxSeverity) {
			group.MaxSeverity = alert.Severity
		}
	}

	var groups []CorrelationGroup
	for _, typ := range order {
		if byType[typ].Count > 1 {
			groups = append(groups, *byType[typ])
		}
	}
	return groups, nil
}

// Archive hard-deletes resolved alerts whose resolution is at least daysOld
// days in the past. Never touches unresolved alerts.
func (m *Manager) Archive(daysOld int) (int64, error) {
	cutoff := m.Now().AddDate(0, 0, -daysOld)

	res := m.db.Where("resolved_at IS NOT NULL AND resolved_at <= ?", cutoff).
		Delete(&models.Alert{})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		slog.Info("Alerts archived", "deleted", res.RowsAffected, "days_old", daysOld)
	}
	return res.RowsAffected, nil
}
