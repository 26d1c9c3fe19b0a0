package services

import (
	"log/slog"
	"time"

	"github.com/fleetwatch/fleetwatch/internal/alerting"
	"github.com/fleetwatch/fleetwatch/internal/config"
)

// Archiver periodically hard-deletes resolved alerts past the retention
// window.
type Archiver struct {
	alerts *alerting.Manager
	cfg    *config.Config
	stop   chan struct{}
}

func NewArchiver(alerts *alerting.Manager, cfg *config.Config) *Archiver {
	return &Archiver{
		alerts: alerts,
		cfg:    cfg,
		stop:   make(chan struct{}),
	}
}

func (a *Archiver) Start() {
	go a.loop()
	slog.Info("Alert archiver started", "interval", a.cfg.ArchiveInterval, "retention_days", a.cfg.AlertRetentionDays)
}

func (a *Archiver) Stop() {
	close(a.stop)
	slog.Info("Alert archiver stopped")
}

func (a *Archiver) loop() {
	ticker := time.NewTicker(a.cfg.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := a.alerts.Archive(a.cfg.AlertRetentionDays); err != nil {
				slog.Error("Alert archival failed", "error", err)
			}
		case <-a.stop:
			return
		}
	}
}
