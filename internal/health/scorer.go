package health

import "github.com/google/uuid"

type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusOffline  Status = "offline"
)

// ScoreBreakdown is one assessment cycle's snapshot for a device. Sub-scores
// are clamped to [0,25] by the collector; the scorer trusts them as-is.
// Never persisted.
type ScoreBreakdown struct {
	DeviceID     uuid.UUID
	Availability int
	Performance  int
	Security     int
	Compliance   int
	Issues       []string
}

// Thresholds are the status cut points: total >= Healthy is healthy,
// total >= Warning is warning, anything below is critical.
type Thresholds struct {
	Healthy int
	Warning int
}

// DefaultThresholds uses the 90/70 cut points.
func DefaultThresholds() Thresholds {
	return Thresholds{Healthy: 90, Warning: 70}
}

// Score aggregates the four sub-scores into a 0-100 total and a status tier.
// Availability of 0 means the device is unreachable: status is offline and
// the remaining sub-scores are not consulted.
func Score(b ScoreBreakdown, t Thresholds) (int, Status) {
	if b.Availability == 0 {
		return 0, StatusOffline
	}

	total := b.Availability + b.Performance + b.Security + b.Compliance

	switch {
	case total >= t.Healthy:
		return total, StatusHealthy
	case total >= t.Warning:
		return total, StatusWarning
	default:
		return total, StatusCritical
	}
}

// DeviceStatus maps a health status to the device status stored on the row.
func DeviceStatus(s Status) string {
	switch s {
	case StatusHealthy:
		return "online"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Clamp bounds a sub-score to [0,25]. Collectors use it before handing a
// breakdown to the scorer.
func Clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 25 {
		return 25
	}
	return v
}
