package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

const minimalConfig = `
mode: DRY_RUN
account: AB1234
universe: [RELIANCE, TCS]
`

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Exchange != "NSE" {
		t.Errorf("Expected default exchange NSE, got %s", cfg.Exchange)
	}
	if cfg.Indicator.Period != 14 {
		t.Errorf("Expected default period 14, got %d", cfg.Indicator.Period)
	}
	if cfg.Entry.Threshold != 30 {
		t.Errorf("Expected default entry threshold 30, got %f", cfg.Entry.Threshold)
	}
	if cfg.Exit.Threshold != 50 {
		t.Errorf("Expected default exit threshold 50, got %f", cfg.Exit.Threshold)
	}
	if cfg.Exit.RealtimeOverride {
		t.Error("Expected realtime override off by default")
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Expected default max attempts 3, got %d", cfg.Retry.MaxAttempts)
	}
	if cfg.Breaker.FailureThreshold != 5 {
		t.Errorf("Expected default failure threshold 5, got %d", cfg.Breaker.FailureThreshold)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Expected default storage memory, got %s", cfg.Storage.Driver)
	}
	if cfg.Scheduler.EODReset != "23:45" {
		t.Errorf("Expected default EOD reset 23:45, got %s", cfg.Scheduler.EODReset)
	}
}

func TestLoadConfigInvalidMode(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
mode: PAPER
account: AB1234
universe: [RELIANCE]
`))
	if err == nil || !strings.Contains(err.Error(), "invalid mode") {
		t.Errorf("Expected invalid mode error, got %v", err)
	}
}

func TestLoadConfigEmptyUniverse(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
mode: LIVE
account: AB1234
universe: []
`))
	if err == nil || !strings.Contains(err.Error(), "universe") {
		t.Errorf("Expected universe error, got %v", err)
	}
}

func TestLoadConfigPostgresNeedsDSN(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
mode: LIVE
account: AB1234
universe: [RELIANCE]
storage:
  driver: postgres
`))
	if err == nil || !strings.Contains(err.Error(), "storage.dsn") {
		t.Errorf("Expected DSN error, got %v", err)
	}
}

func TestLoadConfigThresholdBounds(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
mode: DRY_RUN
account: AB1234
universe: [RELIANCE]
entry:
  threshold: 130
`))
	if err == nil || !strings.Contains(err.Error(), "entry.threshold") {
		t.Errorf("Expected threshold bound error, got %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
mode: LIVE
account: AB1234
universe: [RELIANCE]
exit:
  threshold: 60
  realtime_override: true
reentry:
  enabled: true
  max_count: 2
  drop_pct: 3.5
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exit.Threshold != 60 || !cfg.Exit.RealtimeOverride {
		t.Errorf("Exit overrides not applied: %+v", cfg.Exit)
	}
	if !cfg.Reentry.Enabled || cfg.Reentry.MaxCount != 2 || cfg.Reentry.DropPct != 3.5 {
		t.Errorf("Reentry overrides not applied: %+v", cfg.Reentry)
	}
}
