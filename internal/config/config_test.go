package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"ATTENDANT_THRESHOLD", "ATTENDANT_COOLDOWN", "ATTENDANT_STORE", "ATTENDANT_PROCESS_EVERY", "DATABASE_URL", "POSTGRES_HOST"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Recognition.Threshold != 0.6 {
		t.Errorf("expected default threshold 0.6, got %f", cfg.Recognition.Threshold)
	}
	if cfg.Recognition.Cooldown != 10*time.Second {
		t.Errorf("expected default cooldown 10s, got %s", cfg.Recognition.Cooldown)
	}
	if cfg.Recognition.ProcessEvery != 2 {
		t.Errorf("expected default process-every 2, got %d", cfg.Recognition.ProcessEvery)
	}
	if cfg.Store.Backend != BackendCSV {
		t.Errorf("expected csv backend, got %q", cfg.Store.Backend)
	}
	if cfg.Store.DatabaseURL != "postgres://localhost:5432/attendant" {
		t.Errorf("unexpected default database URL %q", cfg.Store.DatabaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("ATTENDANT_THRESHOLD", "0.45")
	t.Setenv("ATTENDANT_COOLDOWN", "30s")
	t.Setenv("ATTENDANT_STORE", "sqlite")

	cfg := Load()

	if cfg.Recognition.Threshold != 0.45 {
		t.Errorf("expected threshold 0.45, got %f", cfg.Recognition.Threshold)
	}
	if cfg.Recognition.Cooldown != 30*time.Second {
		t.Errorf("expected cooldown 30s, got %s", cfg.Recognition.Cooldown)
	}
	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("expected sqlite backend, got %q", cfg.Store.Backend)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ATTENDANT_THRESHOLD", "-1")
	t.Setenv("ATTENDANT_COOLDOWN", "soon")
	t.Setenv("ATTENDANT_PROCESS_EVERY", "abc")

	cfg := Load()

	if cfg.Recognition.Threshold != 0.6 {
		t.Errorf("expected fallback threshold 0.6, got %f", cfg.Recognition.Threshold)
	}
	if cfg.Recognition.Cooldown != 10*time.Second {
		t.Errorf("expected fallback cooldown 10s, got %s", cfg.Recognition.Cooldown)
	}
	if cfg.Recognition.ProcessEvery != 2 {
		t.Errorf("expected fallback process-every 2, got %d", cfg.Recognition.ProcessEvery)
	}
}

func TestLoad_PostgresFromParts(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "att")
	t.Setenv("POSTGRES_PORT", "")

	cfg := Load()

	if cfg.Store.DatabaseURL != "postgres://u:p@db:5432/att" {
		t.Errorf("unexpected database URL %q", cfg.Store.DatabaseURL)
	}
}

func TestApplyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attendant.yaml")
	content := `
gallery:
  dir: /srv/faces
recognition:
  threshold: 0.5
  cooldown: 1m
store:
  backend: postgres
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Load()
	if err := cfg.ApplyFile(path, true); err != nil {
		t.Fatalf("ApplyFile failed: %v", err)
	}

	if cfg.Gallery.Dir != "/srv/faces" {
		t.Errorf("expected gallery dir from file, got %q", cfg.Gallery.Dir)
	}
	if cfg.Recognition.Threshold != 0.5 {
		t.Errorf("expected threshold 0.5, got %f", cfg.Recognition.Threshold)
	}
	if cfg.Recognition.Cooldown != time.Minute {
		t.Errorf("expected cooldown 1m, got %s", cfg.Recognition.Cooldown)
	}
	if cfg.Store.Backend != BackendPostgres {
		t.Errorf("expected postgres backend, got %q", cfg.Store.Backend)
	}
	// Untouched keys keep their defaults
	if cfg.Recognition.Scale != 0.25 {
		t.Errorf("expected scale to keep default 0.25, got %f", cfg.Recognition.Scale)
	}
}

func TestApplyFile_Missing(t *testing.T) {
	cfg := Load()
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	if err := cfg.ApplyFile(missing, false); err != nil {
		t.Errorf("optional missing file should be ignored, got %v", err)
	}
	if err := cfg.ApplyFile(missing, true); err == nil {
		t.Error("required missing file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"Unknown backend", func(c *Config) { c.Store.Backend = "mongo" }},
		{"Zero threshold", func(c *Config) { c.Recognition.Threshold = 0 }},
		{"Negative cooldown", func(c *Config) { c.Recognition.Cooldown = -time.Second }},
		{"Scale above one", func(c *Config) { c.Recognition.Scale = 1.5 }},
		{"Zero process-every", func(c *Config) { c.Recognition.ProcessEvery = 0 }},
		{"Negative retries", func(c *Config) { c.Recognition.CaptureRetries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			cfg.Store.Backend = BackendCSV
			cfg.Recognition = RecognitionConfig{Threshold: 0.6, Cooldown: time.Second, Scale: 0.5, ProcessEvery: 1}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
