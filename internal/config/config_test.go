package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Scheduler.TickInterval() != 30*time.Second {
		t.Fatalf("unexpected default tick: %s", cfg.Scheduler.TickInterval())
	}
	if cfg.Fetcher.MaxAttempts != 3 {
		t.Fatalf("unexpected default attempts: %d", cfg.Fetcher.MaxAttempts)
	}
	if cfg.Validation.MinConfidence != 0.6 {
		t.Fatalf("unexpected default threshold: %v", cfg.Validation.MinConfidence)
	}
	if len(cfg.Fetcher.Identities) == 0 {
		t.Fatal("expected default identities")
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	raw := `
database:
  dsn: postgres://file-dsn
scheduler:
  tickSeconds: 10
  runOnStart: true
validation:
  minConfidence: 0.75
  penalties:
    negative_amount: 0.5
sources:
  - domain: treasury
    publisher: National Treasury
    intervalHours: 6
    jitterMinutes: 15
    targets:
      - name: budget
        url: https://treasury.example.gov/budget
        recordType: budget_line
        strategies: [table, path]
        table:
          rowSelector: "table tr.line"
          fields:
            category: td.cat
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(configPathEnv, path)
	t.Setenv(databaseDSNEnv, "postgres://env-dsn")

	cfg := Load()

	if cfg.Database.DSN != "postgres://env-dsn" {
		t.Fatalf("env must override file, got %s", cfg.Database.DSN)
	}
	if cfg.Scheduler.TickSeconds != 10 || !cfg.Scheduler.RunOnStart {
		t.Fatalf("file scheduler settings lost: %+v", cfg.Scheduler)
	}
	if cfg.Validation.MinConfidence != 0.75 {
		t.Fatalf("file threshold lost: %v", cfg.Validation.MinConfidence)
	}
	if cfg.Validation.Penalties["negative_amount"] != 0.5 {
		t.Fatalf("penalty override lost: %v", cfg.Validation.Penalties)
	}

	if len(cfg.Sources) != 1 {
		t.Fatalf("expected 1 source, got %d", len(cfg.Sources))
	}
	src := cfg.Sources[0]
	if src.Interval() != 6*time.Hour {
		t.Fatalf("unexpected interval: %s", src.Interval())
	}
	if len(src.Targets) != 1 || src.Targets[0].Table.Fields["category"] != "td.cat" {
		t.Fatalf("target spec lost: %+v", src.Targets)
	}
	if got := src.Targets[0].Strategies; len(got) != 2 || got[0] != "table" {
		t.Fatalf("strategy order lost: %v", got)
	}

	// untouched sections keep their defaults
	if cfg.Fetcher.BackoffBaseSeconds != 2 {
		t.Fatalf("fetcher defaults lost: %+v", cfg.Fetcher)
	}
}

func TestIntervalFloor(t *testing.T) {
	t.Parallel()

	src := SourceConfig{Domain: "x"}
	if src.Interval() != time.Hour {
		t.Fatalf("zero interval must floor to 1h, got %s", src.Interval())
	}
}
