package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EscalationTier is one rung of the escalation ladder. Timeout is how long an
// alert may sit unacknowledged at the previous tier before advancing here.
type EscalationTier struct {
	Name     string
	Timeout  time.Duration
	Channels []string
}

type Config struct {
	// Server
	Port string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Auth (single user)
	AdminUsername    string
	AdminPassword    string // plaintext in env, hashed on startup
	AdminDisplayName string
	AdminRole        string
	JWTSecret        string

	// Device credential encryption
	CredentialKey string // 32-byte hex for AES-256-GCM

	// Health assessment
	AssessInterval time.Duration
	ProbeTimeout   time.Duration
	AssessWorkers  int

	// Health score cut points (healthy >= HealthyThreshold, warning >= WarningThreshold)
	HealthyThreshold int
	WarningThreshold int

	// Escalation
	EscalationInterval time.Duration
	EscalationTiers    []EscalationTier
	BusinessHoursStart int // hour of day, local time
	BusinessHoursEnd   int
	BusinessDaysOnly   bool

	// Alert archival
	AlertRetentionDays int
	ArchiveInterval    time.Duration

	// Workflows
	WorkflowFile    string // optional JSON file with extra definitions
	StepTimeout     time.Duration
	WorkflowHistory int

	// Notifications
	WebhookURL    string
	NotifyTimeout time.Duration
}

func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8098"),
		DBHost:             getEnv("DB_HOST", "localhost"),
		DBPort:             getEnv("DB_PORT", "5432"),
		DBUser:             getEnv("DB_USER", "postgres"),
		DBPassword:         getEnv("DB_PASSWORD", ""),
		DBName:             getEnv("DB_NAME", "fleetwatch_db"),
		DBSSLMode:          getEnv("DB_SSLMODE", "disable"),
		AdminUsername:      getEnv("ADMIN_USERNAME", "admin"),
		AdminPassword:      getEnv("ADMIN_PASSWORD", ""),
		AdminDisplayName:   getEnv("ADMIN_DISPLAY_NAME", "Admin"),
		AdminRole:          getEnv("ADMIN_ROLE", "admin"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		CredentialKey:      getEnv("CREDENTIAL_ENCRYPTION_KEY", ""),
		AssessInterval:     getDurationSecs("ASSESS_INTERVAL", 60),
		ProbeTimeout:       getDurationSecs("PROBE_TIMEOUT", 15),
		AssessWorkers:      getInt("ASSESS_WORKERS", 8),
		HealthyThreshold:   getInt("HEALTHY_THRESHOLD", 90),
		WarningThreshold:   getInt("WARNING_THRESHOLD", 70),
		EscalationInterval: getDurationSecs("ESCALATION_INTERVAL", 300),
		EscalationTiers:    loadEscalationTiers(),
		BusinessHoursStart: getInt("BUSINESS_HOURS_START", 9),
		BusinessHoursEnd:   getInt("BUSINESS_HOURS_END", 18),
		BusinessDaysOnly:   getBool("BUSINESS_DAYS_ONLY", true),
		AlertRetentionDays: getInt("ALERT_RETENTION_DAYS", 30),
		ArchiveInterval:    getDurationSecs("ARCHIVE_INTERVAL", 86400),
		WorkflowFile:       getEnv("WORKFLOW_FILE", ""),
		StepTimeout:        getDurationSecs("STEP_TIMEOUT", 120),
		WorkflowHistory:    getInt("WORKFLOW_HISTORY_LIMIT", 50),
		WebhookURL:         getEnv("NOTIFY_WEBHOOK_URL", ""),
		NotifyTimeout:      getDurationSecs("NOTIFY_TIMEOUT", 10),
	}
}

// loadEscalationTiers builds the ladder from ESCALATION_TIER_TIMEOUTS (comma
// separated minutes, one per tier) over the default channel routing.
func loadEscalationTiers() []EscalationTier {
	tiers := []EscalationTier{
		{Name: "team-channel", Timeout: 15 * time.Minute, Channels: []string{"chat"}},
		{Name: "on-call", Timeout: 30 * time.Minute, Channels: []string{"chat", "pager"}},
		{Name: "manager", Timeout: 60 * time.Minute, Channels: []string{"chat", "pager", "email"}},
	}

	raw := os.Getenv("ESCALATION_TIER_TIMEOUTS")
	if raw == "" {
		return tiers
	}
	for i, part := range strings.Split(raw, ",") {
		if i >= len(tiers) {
			break
		}
		if mins, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && mins > 0 {
			tiers[i].Timeout = time.Duration(mins) * time.Minute
		}
	}
	return tiers
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getDurationSecs(key string, fallbackSecs int) time.Duration {
	return time.Duration(getInt(key, fallbackSecs)) * time.Second
}
