package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/alerting"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/health"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"gorm.io/gorm"
)

// AlertSource tags every alert raised by the assessment sweep, so that
// reconciliation only touches this subsystem's own alerts.
const AlertSource = "health-monitor"

// Assessor runs the periodic health-assessment sweep: probe each device with
// bounded parallelism, score it, persist the device status, raise alerts for
// present issues and auto-resolve alerts for cleared ones.
type Assessor struct {
	db         *gorm.DB
	collector  Collector
	alerts     *alerting.Manager
	cfg        *config.Config
	thresholds health.Thresholds
	stop       chan struct{}
}

func NewAssessor(db *gorm.DB, collector Collector, alerts *alerting.Manager, cfg *config.Config) *Assessor {
	return &Assessor{
		db:        db,
		collector: collector,
		alerts:    alerts,
		cfg:       cfg,
		thresholds: health.Thresholds{
			Healthy: cfg.HealthyThreshold,
			Warning: cfg.WarningThreshold,
		},
		stop: make(chan struct{}),
	}
}

func (a *Assessor) Start() {
	go a.loop()
	slog.Info("Health assessor started", "interval", a.cfg.AssessInterval, "workers", a.cfg.AssessWorkers)
}

func (a *Assessor) Stop() {
	close(a.stop)
	slog.Info("Health assessor stopped")
}

func (a *Assessor) loop() {
	// Run an initial sweep on startup
	a.Sweep()

	ticker := time.NewTicker(a.cfg.AssessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.Sweep()
		case <-a.stop:
			return
		}
	}
}

// Sweep assesses the whole fleet once. Devices are independent: a slow or
// unreachable device consumes one worker slot for at most the probe timeout
// and never stalls the rest.
func (a *Assessor) Sweep() {
	var devices []models.Device
	if err := a.db.Find(&devices).Error; err != nil {
		slog.Error("Assessment sweep query failed", "error", err)
		return
	}

	workers := a.cfg.AssessWorkers
	if workers <= 0 {
		workers = 8
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i := range devices {
		device := devices[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			a.AssessDevice(&device)
		}()
	}
	wg.Wait()
}

// AssessDevice runs one device's assessment cycle. Create runs for issues
// present this cycle before ResolveCleared runs for absent ones, so a
// reappearing issue is never incorrectly auto-resolved.
func (a *Assessor) AssessDevice(device *models.Device) {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ProbeTimeout)
	defer cancel()

	breakdown, err := a.collector.Collect(ctx, device)
	if err != nil {
		slog.Debug("Device unreachable", "device", device.Hostname, "error", err)
		a.db.Model(device).Updates(map[string]interface{}{
			"status":       models.DeviceStatusOffline,
			"health_score": 0,
		})
		a.raiseIssues(device, []string{IssueUnreachable})
		return
	}

	total, status := health.Score(breakdown, a.thresholds)

	now := time.Now()
	a.db.Model(device).Updates(map[string]interface{}{
		"status":       health.DeviceStatus(status),
		"health_score": total,
		"last_seen_at": now,
	})
	slog.Debug("Device assessed",
		"device", device.Hostname, "score", total, "status", status, "issues", len(breakdown.Issues))

	a.raiseIssues(device, breakdown.Issues)
}

func (a *Assessor) raiseIssues(device *models.Device, issues []string) {
	for _, issue := range issues {
		alertType, severity := classifyIssue(issue)
		_, err := a.alerts.Create(device.ID, alertType, severity, issue,
			issue+" on "+device.Hostname, AlertSource, true)
		if err != nil {
			slog.Error("Failed to create alert", "device", device.Hostname, "issue", issue, "error", err)
		}
	}

	if _, err := a.alerts.ResolveCleared(device.ID, issues, AlertSource); err != nil {
		slog.Error("Alert reconciliation failed", "device", device.Hostname, "error", err)
	}
}

// classifyIssue maps a stable issue title to an alert type and severity.
func classifyIssue(issue string) (string, string) {
	switch issue {
	case IssueCPUHigh, IssueMemoryHigh:
		return models.AlertTypePerformance, models.SeverityHigh
	case IssueDiskLow:
		return models.AlertTypePerformance, models.SeverityHigh
	case IssueSecurityUpdates:
		return models.AlertTypeUpdate, models.SeverityMedium
	case IssueFirewallInactive:
		return models.AlertTypeSecurity, models.SeverityHigh
	case IssueRebootRequired:
		return models.AlertTypeCompliance, models.SeverityLow
	case IssueUnreachable:
		return models.AlertTypeAvailability, models.SeverityCritical
	default:
		return models.AlertTypeHealth, models.SeverityMedium
	}
}
