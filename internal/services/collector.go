package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fleetwatch/fleetwatch/internal/health"
	"github.com/fleetwatch/fleetwatch/internal/models"
)

// Collector produces one ScoreBreakdown per device per assessment cycle.
type Collector interface {
	Collect(ctx context.Context, device *models.Device) (health.ScoreBreakdown, error)
}

// Issue titles are the alert dedup keys, so they must be stable across
// cycles.
const (
	IssueCPUHigh          = "CPU usage high"
	IssueMemoryHigh       = "Memory usage high"
	IssueDiskLow          = "Disk space low"
	IssueSecurityUpdates  = "Security updates pending"
	IssueFirewallInactive = "Firewall inactive"
	IssueRebootRequired   = "Reboot required"
	IssueUnreachable      = "Device unreachable"
)

// SSHCollector probes a device over SSH and derives the four sub-scores.
type SSHCollector struct {
	runner *SSHRunner
}

func NewSSHCollector(runner *SSHRunner) *SSHCollector {
	return &SSHCollector{runner: runner}
}

func (c *SSHCollector) Collect(ctx context.Context, device *models.Device) (health.ScoreBreakdown, error) {
	b := health.ScoreBreakdown{DeviceID: device.ID}

	// A failed first probe means the device is unreachable for this cycle.
	cpuOut, err := c.runner.Run(ctx, device, `top -bn1 | head -3 | grep 'Cpu' | awk '{print $2}'`)
	if err != nil {
		return b, fmt.Errorf("probe failed: %w", err)
	}
	b.Availability = 25

	perf := 25
	if cpu, ok := parseFloat(cpuOut); ok {
		switch {
		case cpu > 90:
			perf -= 10
			b.Issues = append(b.Issues, IssueCPUHigh)
		case cpu > 75:
			perf -= 5
		}
	}

	if out, err := c.runner.Run(ctx, device, `free -m | awk 'NR==2{print $2" "$3}'`); err == nil {
		parts := strings.Fields(strings.TrimSpace(out))
		if len(parts) >= 2 {
			total, _ := strconv.ParseFloat(parts[0], 64)
			used, _ := strconv.ParseFloat(parts[1], 64)
			if total > 0 {
				switch pct := used / total * 100; {
				case pct > 90:
					perf -= 10
					b.Issues = append(b.Issues, IssueMemoryHigh)
				case pct > 80:
					perf -= 5
				}
			}
		}
	}
	b.Performance = health.Clamp(perf)

	sec := 25
	if out, err := c.runner.Run(ctx, device, `apt-get -s upgrade 2>/dev/null | grep -c -i security; true`); err == nil {
		if n, ok := parseInt(out); ok && n > 0 {
			sec -= 10
			b.Issues = append(b.Issues, IssueSecurityUpdates)
		}
	}
	if out, err := c.runner.Run(ctx, device, `ufw status 2>/dev/null | head -1`); err == nil {
		if strings.Contains(out, "inactive") {
			sec -= 10
			b.Issues = append(b.Issues, IssueFirewallInactive)
		}
	}
	b.Security = health.Clamp(sec)

	comp := 25
	if out, err := c.runner.Run(ctx, device, `df -P / | awk 'NR==2{print $5}'`); err == nil {
		pctStr := strings.TrimSuffix(strings.TrimSpace(out), "%")
		if pct, ok := parseFloat(pctStr); ok {
			switch {
			case pct > 90:
				comp -= 15
				b.Issues = append(b.Issues, IssueDiskLow)
			case pct > 80:
				comp -= 5
			}
		}
	}
	if out, err := c.runner.Run(ctx, device, `test -f /var/run/reboot-required && echo yes || echo no`); err == nil {
		if strings.TrimSpace(out) == "yes" {
			comp -= 10
			b.Issues = append(b.Issues, IssueRebootRequired)
		}
	}
	b.Compliance = health.Clamp(comp)

	return b, nil
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v, err == nil
}

func parseInt(s string) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	return v, err == nil
}
