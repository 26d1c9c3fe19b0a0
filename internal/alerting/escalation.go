package alerting

import (
	"context"
	"log/slog"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/events"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/notify"
	"gorm.io/gorm"
)

// Escalator periodically promotes unresolved, unacknowledged alerts through
// the configured tier ladder. An alert advances at most one tier per sweep,
// and stops escalating once the final tier is reached.
type Escalator struct {
	db         *gorm.DB
	manager    *Manager
	hub        *events.Hub
	dispatcher notify.Dispatcher
	cfg        *config.Config
	Now        func() time.Time
	stop       chan struct{}
}

func NewEscalator(db *gorm.DB, manager *Manager, hub *events.Hub, dispatcher notify.Dispatcher, cfg *config.Config) *Escalator {
	return &Escalator{
		db:         db,
		manager:    manager,
		hub:        hub,
		dispatcher: dispatcher,
		cfg:        cfg,
		Now:        time.Now,
		stop:       make(chan struct{}),
	}
}

func (e *Escalator) Start() {
	go e.loop()
	slog.Info("Escalation scheduler started", "interval", e.cfg.EscalationInterval, "tiers", len(e.cfg.EscalationTiers))
}

func (e *Escalator) Stop() {
	close(e.stop)
	slog.Info("Escalation scheduler stopped")
}

func (e *Escalator) loop() {
	ticker := time.NewTicker(e.cfg.EscalationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Sweep()
		case <-e.stop:
			return
		}
	}
}

// Sweep runs one escalation pass over all escalation candidates.
func (e *Escalator) Sweep() {
	var open []models.Alert
	err := e.db.Where("resolved_at IS NULL AND acknowledged_at IS NULL AND escalation_tier < ?",
		len(e.cfg.EscalationTiers)).Find(&open).Error
	if err != nil {
		slog.Error("Escalation sweep query failed", "error", err)
		return
	}

	now := e.Now()
	for _, alert := range open {
		e.sweepOne(alert, now)
	}
}

func (e *Escalator) sweepOne(alert models.Alert, now time.Time) {
	since := alert.CreatedAt
	if alert.LastEscalatedAt != nil {
		since = *alert.LastEscalatedAt
	}

	timeout := e.cfg.EscalationTiers[alert.EscalationTier].Timeout
	if now.Sub(since) < timeout {
		return
	}

	// Critical alerts escalate around the clock; everything else waits for
	// the business-hours window.
	if alert.Severity != models.SeverityCritical && !e.inBusinessHours(now) {
		return
	}

	tier := e.cfg.EscalationTiers[alert.EscalationTier]
	prevTier := alert.EscalationTier
	alert.EscalationTier++
	alert.LastEscalatedAt = &now

	// Tier advancement is recorded before dispatch: escalation tracks time
	// since the last tier, not delivery success. The guard re-checks the
	// lifecycle state so an ack, resolve, or competing sweep landing after
	// the scan query wins and this advance is skipped.
	res := e.db.Model(&models.Alert{}).
		Where("id = ? AND resolved_at IS NULL AND acknowledged_at IS NULL AND escalation_tier = ?",
			alert.ID, prevTier).
		Updates(map[string]interface{}{
			"escalation_tier":   alert.EscalationTier,
			"last_escalated_at": now,
		})
	if res.Error != nil {
		slog.Error("Failed to record escalation", "alert_id", alert.ID, "error", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		return
	}

	slog.Warn("Alert escalated",
		"alert_id", alert.ID, "device_id", alert.DeviceID,
		"tier", alert.EscalationTier, "tier_name", tier.Name)
	e.hub.Publish(events.AlertEscalated, alert)

	record := models.NotificationRecord{
		Tier:     alert.EscalationTier,
		Channels: tier.Channels,
		SentAt:   now,
	}
	req := notify.Request{
		AlertID:  alert.ID,
		DeviceID: alert.DeviceID,
		Severity: alert.Severity,
		Title:    alert.Title,
		Message:  alert.Message,
		Tier:     alert.EscalationTier,
		TierName: tier.Name,
		Channels: tier.Channels,
	}
	if err := e.dispatcher.Dispatch(context.Background(), req); err != nil {
		slog.Error("Escalation notification failed", "alert_id", alert.ID, "tier", alert.EscalationTier, "error", err)
		record.Error = err.Error()
	}
	e.manager.appendNotificationRecord(alert.ID, record)
}

func (e *Escalator) inBusinessHours(now time.Time) bool {
	if e.cfg.BusinessDaysOnly {
		switch now.Weekday() {
		case time.Saturday, time.Sunday:
			return false
		}
	}
	hour := now.Hour()
	return hour >= e.cfg.BusinessHoursStart && hour < e.cfg.BusinessHoursEnd
}
