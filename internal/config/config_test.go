package config

import (
	"testing"
	"time"
)

func TestDefaultEscalationTiers(t *testing.T) {
	tiers := loadEscalationTiers()
	if len(tiers) != 3 {
		t.Fatalf("tiers = %d, want 3", len(tiers))
	}
	if tiers[0].Name != "team-channel" || tiers[0].Timeout != 15*time.Minute {
		t.Fatalf("tier 0 = %+v", tiers[0])
	}
	if tiers[2].Name != "manager" || len(tiers[2].Channels) != 3 {
		t.Fatalf("tier 2 = %+v", tiers[2])
	}
}

func TestEscalationTierTimeoutOverride(t *testing.T) {
	t.Setenv("ESCALATION_TIER_TIMEOUTS", "5, 10, 20")

	tiers := loadEscalationTiers()
	want := []time.Duration{5 * time.Minute, 10 * time.Minute, 20 * time.Minute}
	for i, d := range want {
		if tiers[i].Timeout != d {
			t.Fatalf("tier %d timeout = %v, want %v", i, tiers[i].Timeout, d)
		}
	}
}

func TestEscalationTierOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("ESCALATION_TIER_TIMEOUTS", "bogus,-3,45,99,99")

	tiers := loadEscalationTiers()
	if tiers[0].Timeout != 15*time.Minute {
		t.Fatalf("tier 0 timeout = %v, want default kept", tiers[0].Timeout)
	}
	if tiers[1].Timeout != 30*time.Minute {
		t.Fatalf("tier 1 timeout = %v, want default kept", tiers[1].Timeout)
	}
	if tiers[2].Timeout != 45*time.Minute {
		t.Fatalf("tier 2 timeout = %v, want 45m", tiers[2].Timeout)
	}
}
