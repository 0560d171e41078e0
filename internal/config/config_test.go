package config

import "testing"

func TestPricingFallsBackToDefault(t *testing.T) {
	cfg := defaultConfig()
	cfg.Costs["claude-opus-4-5"] = ModelPricing{InputPerMtok: 15, OutputPerMtok: 75}

	got := cfg.Pricing("claude-opus-4-5")
	if got.InputPerMtok != 15 || got.OutputPerMtok != 75 {
		t.Errorf("Pricing(exact match) = %+v, want {15 75}", got)
	}

	got = cfg.Pricing("unknown-model")
	want := cfg.Costs["default"]
	if got != want {
		t.Errorf("Pricing(unknown) = %+v, want default %+v", got, want)
	}
}

func TestPricingNoDefaultKey(t *testing.T) {
	cfg := &Config{Costs: map[string]ModelPricing{}}
	got := cfg.Pricing("unknown-model")
	if got != defaultPricing {
		t.Errorf("Pricing with empty table = %+v, want hardcoded default %+v", got, defaultPricing)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault returned error: %v", err)
	}
	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
}

func TestDiffDetectsConflictWindowChange(t *testing.T) {
	old := defaultConfig()
	updated := defaultConfig()
	updated.Conflict.WindowMinutes = 15

	changes := Diff(old, updated)
	if len(changes) != 1 {
		t.Fatalf("Diff returned %d changes, want 1: %v", len(changes), changes)
	}
}

func TestRetentionCleanupInterval(t *testing.T) {
	cfg := defaultConfig()
	cfg.Retention.CleanupIntervalHours = 0
	if got := cfg.RetentionCleanupInterval().Hours(); got != 1 {
		t.Errorf("RetentionCleanupInterval with 0 hours = %v, want 1h fallback", got)
	}

	cfg.Retention.CleanupIntervalHours = 6
	if got := cfg.RetentionCleanupInterval().Hours(); got != 6 {
		t.Errorf("RetentionCleanupInterval = %v, want 6h", got)
	}
}
