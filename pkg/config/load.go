package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/opsplan/pkg/telemetry"
)

// Environment variables read by Load.
const (
	EnvConfigPath = "OPSPLAN_CONFIG"
	EnvLogLevel   = "LOG_LEVEL"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when no file is given: a SQLite
// store in the working directory, built-in guardrails and audit to the log
// and the store.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendSQLite,
			SQLite: SQLiteConfig{
				Path: "opsplan.db",
			},
			DynamoDB: DynamoDBConfig{
				PlansTable: "opsplan-plans",
				AuditTable: "opsplan-audit",
				Region:     "us-east-1",
			},
		},
		Policy: PolicyConfig{
			Enabled:            true,
			MaxReplicas:        50,
			MaxProductionSteps: 3,
		},
		Audit: AuditConfig{
			Log:        true,
			Store:      true,
			BufferSize: 1000,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. An empty path falls back to $OPSPLAN_CONFIG, and then to the
// defaults alone. LOG_LEVEL overrides the configured log level.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if level := os.Getenv(EnvLogLevel); level != "" {
		cfg.Telemetry.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode rejects unknown keys so typos do not silently fall back to defaults.
func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks struct constraints, backend requirements and the
// telemetry sub-tree.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	switch c.Store.Backend {
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("invalid config: store.sqlite.path is required for the sqlite backend")
		}
	case BackendDynamoDB:
		if c.Store.DynamoDB.PlansTable == "" {
			return fmt.Errorf("invalid config: store.dynamodb.plansTable is required for the dynamodb backend")
		}
	}

	if c.Audit.Store && c.Store.Backend == BackendDynamoDB && c.Store.DynamoDB.AuditTable == "" {
		return fmt.Errorf("invalid config: store.dynamodb.auditTable is required when audit.store is set")
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}
	return nil
}
