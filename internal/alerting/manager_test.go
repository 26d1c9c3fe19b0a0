package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/database"
	"github.com/fleetwatch/fleetwatch/internal/events"
	"github.com/fleetwatch/fleetwatch/internal/models"
	"github.com/fleetwatch/fleetwatch/internal/notify"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	requests []notify.Request
	fail     bool
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, req notify.Request) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if d.fail {
		return context.DeadlineExceeded
	}
	return nil
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.requests)
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

func newTestManager(t *testing.T) (*Manager, *fakeDispatcher) {
	t.Helper()
	dispatcher := &fakeDispatcher{}
	m := NewManager(openTestDB(t), events.NewHub(), dispatcher)
	m.Now = func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) }
	return m, dispatcher
}

func countAlerts(t *testing.T, m *Manager) int64 {
	t.Helper()
	var n int64
	if err := m.db.Model(&models.Alert{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestCreateDedup(t *testing.T) {
	m, _ := newTestManager(t)
	deviceID := uuid.New()

	first, err := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh,
		"CPU usage high", "CPU above 90%", "health-monitor", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for i := 0; i < 4; i++ {
		id, err := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh,
			"CPU usage high", "CPU above 90%", "health-monitor", true)
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if id != first {
			t.Fatalf("create %d returned %s, want %s", i, id, first)
		}
	}

	if n := countAlerts(t, m); n != 1 {
		t.Fatalf("alert count = %d, want 1", n)
	}
}

func TestCreateDistinctKeys(t *testing.T) {
	m, _ := newTestManager(t)
	deviceID := uuid.New()

	a, _ := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)
	b, _ := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "Memory usage high", "", "health-monitor", true)
	c, _ := m.Create(uuid.New(), models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)

	if a == b || a == c || b == c {
		t.Fatalf("expected three distinct alerts, got %s %s %s", a, b, c)
	}
	if n := countAlerts(t, m); n != 3 {
		t.Fatalf("alert count = %d, want 3", n)
	}
}

func TestResolveThenRecreate(t *testing.T) {
	m, _ := newTestManager(t)
	deviceID := uuid.New()

	first, _ := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)
	if _, err := m.Resolve(first, "operator", false); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	second, err := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if second == first {
		t.Fatal("recurrence after resolution must be a new alert")
	}
	if n := countAlerts(t, m); n != 2 {
		t.Fatalf("alert count = %d, want 2", n)
	}
}

func TestAcknowledge(t *testing.T) {
	m, _ := newTestManager(t)
	id, _ := m.Create(uuid.New(), models.AlertTypeSecurity, models.SeverityHigh, "Firewall inactive", "", "health-monitor", true)

	alert, err := m.Acknowledge(id, "operator")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if alert.AcknowledgedAt == nil || alert.AcknowledgedBy != "operator" {
		t.Fatalf("acknowledgment not recorded: %+v", alert)
	}
}

func TestAcknowledgeResolvedIsNoop(t *testing.T) {
	m, _ := newTestManager(t)
	id, _ := m.Create(uuid.New(), models.AlertTypeSecurity, models.SeverityHigh, "Firewall inactive", "", "health-monitor", true)
	if _, err := m.Resolve(id, "operator", false); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	alert, err := m.Acknowledge(id, "late-operator")
	if err != nil {
		t.Fatalf("acknowledge resolved alert should be a no-op, got %v", err)
	}
	if alert.AcknowledgedAt != nil {
		t.Fatal("resolved alert must not gain an acknowledgment")
	}
}

func TestAcknowledgeNotFound(t *testing.T) {
	m, _ := newTestManager(t)
	if _, err := m.Acknowledge(uuid.New(), "operator"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveIdempotent(t *testing.T) {
	m, _ := newTestManager(t)
	id, _ := m.Create(uuid.New(), models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)

	t1 := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	m.Now = func() time.Time { return t1 }
	if _, err := m.Resolve(id, "operator", false); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	m.Now = func() time.Time { return t1.Add(time.Hour) }
	alert, err := m.Resolve(id, "someone-else", true)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !alert.ResolvedAt.Equal(t1) {
		t.Fatalf("resolved_at changed on second resolve: %v", alert.ResolvedAt)
	}
	if alert.ResolvedBy != "operator" || alert.AutoResolved {
		t.Fatalf("resolution fields changed on second resolve: %+v", alert)
	}
}

func TestResolveCleared(t *testing.T) {
	m, _ := newTestManager(t)
	deviceID := uuid.New()

	id, _ := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)

	// Issue still present: nothing resolves.
	cleared, err := m.ResolveCleared(deviceID, []string{"CPU usage high"}, "health-monitor")
	if err != nil {
		t.Fatalf("resolve cleared: %v", err)
	}
	if cleared != 0 {
		t.Fatalf("cleared = %d, want 0", cleared)
	}

	// Issue gone: auto-resolve.
	cleared, err = m.ResolveCleared(deviceID, nil, "health-monitor")
	if err != nil {
		t.Fatalf("resolve cleared: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("cleared = %d, want 1", cleared)
	}

	alert, _ := m.Get(id)
	if !alert.Resolved() || !alert.AutoResolved {
		t.Fatalf("alert not auto-resolved: %+v", alert)
	}
}

func TestResolveClearedScopedToSource(t *testing.T) {
	m, _ := newTestManager(t)
	deviceID := uuid.New()

	mine, _ := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)
	other, _ := m.Create(deviceID, models.AlertTypeCustom, models.SeverityMedium, "Backup overdue", "", "backup-monitor", true)

	if _, err := m.ResolveCleared(deviceID, nil, "health-monitor"); err != nil {
		t.Fatalf("resolve cleared: %v", err)
	}

	a, _ := m.Get(mine)
	if !a.Resolved() {
		t.Fatal("health-monitor alert should be resolved")
	}
	b, _ := m.Get(other)
	if b.Resolved() {
		t.Fatal("other source's alert must not be touched")
	}
}

func TestCorrelate(t *testing.T) {
	m, _ := newTestManager(t)
	deviceID := uuid.New()

	m.Create(deviceID, models.AlertTypePerformance, models.SeverityMedium, "CPU usage high", "", "health-monitor", true)
	m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "Memory usage high", "", "health-monitor", true)
	m.Create(deviceID, models.AlertTypePerformance, models.SeverityLow, "Disk space low", "", "health-monitor", true)
	m.Create(deviceID, models.AlertTypeSecurity, models.SeverityCritical, "Firewall inactive", "", "health-monitor", true)

	groups, err := m.Correlate(deviceID, time.Hour)
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1 (singletons excluded)", len(groups))
	}
	g := groups[0]
	if g.Type != models.AlertTypePerformance || g.Count != 3 {
		t.Fatalf("group = %+v", g)
	}
	if g.MaxSeverity != models.SeverityHigh {
		t.Fatalf("max severity = %s, want high", g.MaxSeverity)
	}
}

func TestCorrelateWindowExcludesOldAlerts(t *testing.T) {
	m, _ := newTestManager(t)
	deviceID := uuid.New()
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	m.Now = func() time.Time { return now.Add(-2 * time.Hour) }
	m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)

	m.Now = func() time.Time { return now }
	m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "Memory usage high", "", "health-monitor", true)
	m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "Disk space low", "", "health-monitor", true)

	groups, err := m.Correlate(deviceID, time.Hour)
	if err != nil {
		t.Fatalf("correlate: %v", err)
	}
	if len(groups) != 1 || groups[0].Count != 2 {
		t.Fatalf("groups = %+v, want one group of 2", groups)
	}
}

func TestArchiveBoundary(t *testing.T) {
	m, _ := newTestManager(t)
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	deviceID := uuid.New()

	old, _ := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)
	m.Now = func() time.Time { return now.AddDate(0, 0, -30) }
	m.Resolve(old, "operator", false)

	recent, _ := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "Memory usage high", "", "health-monitor", true)
	m.Now = func() time.Time { return now.AddDate(0, 0, -29) }
	m.Resolve(recent, "operator", false)

	unresolved, _ := m.Create(deviceID, models.AlertTypeSecurity, models.SeverityHigh, "Firewall inactive", "", "health-monitor", true)

	m.Now = func() time.Time { return now }
	deleted, err := m.Archive(30)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	if _, err := m.Get(old); err != ErrNotFound {
		t.Fatal("alert resolved exactly 30 days ago should be archived")
	}
	if _, err := m.Get(recent); err != nil {
		t.Fatal("alert resolved 29 days ago must be retained")
	}
	if _, err := m.Get(unresolved); err != nil {
		t.Fatal("unresolved alert must never be archived")
	}
}

func TestCreateNotifiesHighSeverity(t *testing.T) {
	m, d := newTestManager(t)
	deviceID := uuid.New()

	m.Create(deviceID, models.AlertTypeHealth, models.SeverityLow, "Reboot required", "", "health-monitor", true)
	if d.count() != 0 {
		t.Fatalf("low severity must not notify on creation, got %d dispatches", d.count())
	}

	m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)
	if d.count() != 1 {
		t.Fatalf("dispatches = %d, want 1", d.count())
	}

	// Dedup hit: no second notification for the persisting condition.
	m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)
	if d.count() != 1 {
		t.Fatalf("dedup hit must not re-notify, got %d", d.count())
	}
}

func TestResolveClearedSkipsIneligible(t *testing.T) {
	m, _ := newTestManager(t)
	deviceID := uuid.New()

	manual, _ := m.Create(deviceID, models.AlertTypeSecurity, models.SeverityHigh, "Firewall inactive", "", "health-monitor", false)
	auto, _ := m.Create(deviceID, models.AlertTypePerformance, models.SeverityHigh, "CPU usage high", "", "health-monitor", true)

	cleared, err := m.ResolveCleared(deviceID, nil, "health-monitor")
	if err != nil {
		t.Fatalf("resolve cleared: %v", err)
	}
	if cleared != 1 {
		t.Fatalf("cleared = %d, want 1", cleared)
	}

	a, _ := m.Get(manual)
	if a.Resolved() {
		t.Fatal("autoResolve=false alert must not be reconciled away")
	}
	b, _ := m.Get(auto)
	if !b.Resolved() || !b.AutoResolved {
		t.Fatalf("eligible alert not auto-resolved: %+v", b)
	}
}

func TestDedupIndexRejectsDuplicateActive(t *testing.T) {
	m, _ := newTestManager(t)
	deviceID := uuid.New()

	row := func() models.Alert {
		return models.Alert{
			DeviceID:          deviceID,
			Type:              models.AlertTypePerformance,
			Severity:          models.SeverityHigh,
			Title:             "CPU usage high",
			Source:            "health-monitor",
			NotificationsSent: datatypes.JSON("[]"),
			CreatedAt:         m.Now(),
		}
	}

	first := row()
	if err := m.db.Create(&first).Error; err != nil {
		t.Fatalf("first insert: %v", err)
	}

	// A writer that skipped the dedup read still cannot violate the
	// one-active-alert invariant.
	dup := row()
	if err := m.db.Create(&dup).Error; err == nil {
		t.Fatal("duplicate active alert insert must fail on the unique index")
	}

	// Once resolved, the key is free for a recurrence.
	if _, err := m.Resolve(first.ID, "operator", false); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	recurrence := row()
	if err := m.db.Create(&recurrence).Error; err != nil {
		t.Fatalf("insert after resolution: %v", err)
	}
}
