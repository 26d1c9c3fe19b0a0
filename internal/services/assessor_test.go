package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/alerting"
	"github.com/fleetwatch/fleetwatch/internal/config"
	"github.com/fleetwatch/fleetwatch/internal/database"
	"github.com/fleetwatch/fleetwatch/internal/events"
	"github.com/fleetwatch/fleetwatch/internal/health"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeCollector returns a fixed breakdown, or an error when unreachable.
type fakeCollector struct {
	breakdown   health.ScoreBreakdown
	unreachable bool
}

func (c *fakeCollector) Collect(ctx context.Context, device *models.Device) (health.ScoreBreakdown, error) {
	if c.unreachable {
		return health.ScoreBreakdown{}, errors.New("dial tcp: connection refused")
	}
	return c.breakdown, nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestAssessor(t *testing.T, collector Collector) (*Assessor, *gorm.DB, *alerting.Manager) {
	t.Helper()
	db := openTestDB(t)
	manager := alerting.NewManager(db, events.NewHub(), nil)
	cfg := &config.Config{
		HealthyThreshold: 90,
		WarningThreshold: 70,
		ProbeTimeout:     5 * time.Second,
		AssessWorkers:    4,
	}
	return NewAssessor(db, collector, manager, cfg), db, manager
}

func seedDevice(t *testing.T, db *gorm.DB) *models.Device {
	t.Helper()
	device := models.Device{
		Hostname: "web-01",
		Address:  "10.0.0.10",
		Port:     22,
		Username: "root",
		AuthType: "key",
		Status:   models.DeviceStatusUnknown,
	}
	if err := db.Create(&device).Error; err != nil {
		t.Fatalf("seed device: %v", err)
	}
	return &device
}

func activeAlerts(t *testing.T, m *alerting.Manager, device *models.Device) []models.Alert {
	t.Helper()
	alerts, err := m.List(alerting.ListFilter{DeviceID: device.ID, Status: "active"})
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	return alerts
}

func TestAssessHealthyDevice(t *testing.T) {
	collector := &fakeCollector{breakdown: health.ScoreBreakdown{
		Availability: 25, Performance: 25, Security: 25, Compliance: 25,
	}}
	a, db, m := newTestAssessor(t, collector)
	device := seedDevice(t, db)

	a.AssessDevice(device)

	var got models.Device
	db.First(&got, "id = ?", device.ID)
	if got.Status != models.DeviceStatusOnline || got.HealthScore != 100 {
		t.Fatalf("device = status %s score %d, want online/100", got.Status, got.HealthScore)
	}
	if got.LastSeenAt == nil {
		t.Fatal("last_seen_at not set on a reachable device")
	}
	if n := len(activeAlerts(t, m, device)); n != 0 {
		t.Fatalf("active alerts = %d, want 0", n)
	}
}

func TestAssessDegradedDeviceRaisesAlerts(t *testing.T) {
	collector := &fakeCollector{breakdown: health.ScoreBreakdown{
		Availability: 25, Performance: 15, Security: 15, Compliance: 25,
		Issues: []string{IssueCPUHigh, IssueFirewallInactive},
	}}
	a, db, m := newTestAssessor(t, collector)
	device := seedDevice(t, db)

	a.AssessDevice(device)

	var got models.Device
	db.First(&got, "id = ?", device.ID)
	if got.HealthScore != 80 || got.Status != models.DeviceStatusWarning {
		t.Fatalf("device = status %s score %d, want warning/80", got.Status, got.HealthScore)
	}

	alerts := activeAlerts(t, m, device)
	if len(alerts) != 2 {
		t.Fatalf("active alerts = %d, want 2", len(alerts))
	}
	for _, alert := range alerts {
		if alert.Source != AlertSource {
			t.Fatalf("alert source = %q, want %q", alert.Source, AlertSource)
		}
	}
}

func TestAssessStableAcrossCycles(t *testing.T) {
	collector := &fakeCollector{breakdown: health.ScoreBreakdown{
		Availability: 25, Performance: 15, Security: 25, Compliance: 25,
		Issues: []string{IssueCPUHigh},
	}}
	a, db, m := newTestAssessor(t, collector)
	device := seedDevice(t, db)

	for i := 0; i < 3; i++ {
		a.AssessDevice(device)
	}

	// A persisting condition stays one alert, not one per cycle.
	if n := len(activeAlerts(t, m, device)); n != 1 {
		t.Fatalf("active alerts = %d, want 1", n)
	}
}

func TestAssessClearsResolvedIssues(t *testing.T) {
	collector := &fakeCollector{breakdown: health.ScoreBreakdown{
		Availability: 25, Performance: 15, Security: 25, Compliance: 25,
		Issues: []string{IssueCPUHigh},
	}}
	a, db, m := newTestAssessor(t, collector)
	device := seedDevice(t, db)

	a.AssessDevice(device)
	if n := len(activeAlerts(t, m, device)); n != 1 {
		t.Fatalf("active alerts = %d, want 1", n)
	}

	collector.breakdown = health.ScoreBreakdown{
		Availability: 25, Performance: 25, Security: 25, Compliance: 25,
	}
	a.AssessDevice(device)

	if n := len(activeAlerts(t, m, device)); n != 0 {
		t.Fatalf("active alerts after recovery = %d, want 0", n)
	}

	resolved, _ := m.List(alerting.ListFilter{DeviceID: device.ID, Status: "resolved"})
	if len(resolved) != 1 || !resolved[0].AutoResolved {
		t.Fatalf("resolved = %+v, want one auto-resolved alert", resolved)
	}
}

func TestAssessUnreachableDevice(t *testing.T) {
	collector := &fakeCollector{unreachable: true}
	a, db, m := newTestAssessor(t, collector)
	device := seedDevice(t, db)

	a.AssessDevice(device)

	var got models.Device
	db.First(&got, "id = ?", device.ID)
	if got.Status != models.DeviceStatusOffline || got.HealthScore != 0 {
		t.Fatalf("device = status %s score %d, want offline/0", got.Status, got.HealthScore)
	}

	alerts := activeAlerts(t, m, device)
	if len(alerts) != 1 {
		t.Fatalf("active alerts = %d, want 1", len(alerts))
	}
	if alerts[0].Title != IssueUnreachable || alerts[0].Severity != models.SeverityCritical {
		t.Fatalf("alert = %s/%s, want unreachable/critical", alerts[0].Title, alerts[0].Severity)
	}
}

func TestAssessRecoveryClearsUnreachable(t *testing.T) {
	collector := &fakeCollector{unreachable: true}
	a, db, m := newTestAssessor(t, collector)
	device := seedDevice(t, db)

	a.AssessDevice(device)

	collector.unreachable = false
	collector.breakdown = health.ScoreBreakdown{
		Availability: 25, Performance: 25, Security: 25, Compliance: 25,
	}
	a.AssessDevice(device)

	var got models.Device
	db.First(&got, "id = ?", device.ID)
	if got.Status != models.DeviceStatusOnline {
		t.Fatalf("status = %s, want online after recovery", got.Status)
	}
	if n := len(activeAlerts(t, m, device)); n != 0 {
		t.Fatalf("active alerts = %d, want 0 after recovery", n)
	}
}

func TestSweepCoversFleet(t *testing.T) {
	collector := &fakeCollector{breakdown: health.ScoreBreakdown{
		Availability: 25, Performance: 25, Security: 25, Compliance: 25,
	}}
	a, db, _ := newTestAssessor(t, collector)

	for i := 0; i < 5; i++ {
		device := models.Device{
			Hostname: "node", Address: "10.0.0.1", Port: 22,
			Username: "root", AuthType: "key", Status: models.DeviceStatusUnknown,
		}
		if err := db.Create(&device).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	a.Sweep()

	var online int64
	db.Model(&models.Device{}).Where("status = ?", models.DeviceStatusOnline).Count(&online)
	if online != 5 {
		t.Fatalf("online devices = %d, want 5", online)
	}
}
