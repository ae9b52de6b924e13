package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
store:
  backend: sqlite
  sqlite:
    path: /tmp/plans.db
    busyTimeout: 2s
policy:
  maxReplicas: 20
telemetry:
  logging:
    level: debug
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Store.Backend != BackendSQLite {
		t.Errorf("backend = %q, want sqlite", cfg.Store.Backend)
	}
	if cfg.Store.SQLite.BusyTimeout != 2*time.Second {
		t.Errorf("busyTimeout = %v, want 2s", cfg.Store.SQLite.BusyTimeout)
	}
	if cfg.Policy.MaxReplicas != 20 {
		t.Errorf("maxReplicas = %d, want 20", cfg.Policy.MaxReplicas)
	}
	if cfg.Policy.MaxProductionSteps != 3 {
		t.Errorf("maxProductionSteps = %d, want default 3", cfg.Policy.MaxProductionSteps)
	}
	if !cfg.Policy.Enabled {
		t.Error("policy should stay enabled by default")
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Telemetry.Logging.Level)
	}
	if cfg.Telemetry.ServiceName != "opsplan" {
		t.Errorf("service name = %q, want default", cfg.Telemetry.ServiceName)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown backend", "store:\n  backend: redis\n", "Backend"},
		{"unknown key", "store:\n  backnd: sqlite\n", "backnd"},
		{"sqlite without path", "store:\n  backend: sqlite\n  sqlite:\n    path: \"\"\n", "store.sqlite.path"},
		{"dynamodb without table", "store:\n  backend: dynamodb\n  dynamodb:\n    plansTable: \"\"\n", "plansTable"},
		{"dynamodb audit without table", "store:\n  backend: dynamodb\n  dynamodb:\n    auditTable: \"\"\n", "auditTable"},
		{"negative buffer", "audit:\n  bufferSize: -1\n", "BufferSize"},
		{"bad endpoint", "store:\n  dynamodb:\n    endpoint: \"not a url\"\n", "Endpoint"},
		{"bad log level", "telemetry:\n  logging:\n    level: loud\n", "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if cfg.Store.Backend != BackendSQLite || cfg.Store.SQLite.Path != "opsplan.db" {
		t.Errorf("store = %+v, want sqlite at opsplan.db", cfg.Store)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsplan.yaml")
	if err := os.WriteFile(path, []byte("audit:\n  file: /tmp/audit.jsonl\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Audit.File != "/tmp/audit.jsonl" {
		t.Errorf("audit file = %q", cfg.Audit.File)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("log level = %q, want LOG_LEVEL override", cfg.Telemetry.Logging.Level)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsplan.yaml")
	if err := os.WriteFile(path, []byte("prompts:\n  path: prompts.yaml\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvConfigPath, path)
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Prompts.Path != "prompts.yaml" {
		t.Errorf("prompts path = %q", cfg.Prompts.Path)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
