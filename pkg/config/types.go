package config

import (
	"time"

	"github.com/openfroyo/opsplan/pkg/telemetry"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendDynamoDB = "dynamodb"
)

// Config is the opsplan application configuration.
type Config struct {
	// Store selects and configures the plan repository.
	Store StoreConfig `yaml:"store"`

	// Prompts configures the instruction-template registry.
	Prompts PromptsConfig `yaml:"prompts"`

	// Policy configures the guardrail engine.
	Policy PolicyConfig `yaml:"policy"`

	// Audit configures audit sinks.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// StoreConfig selects the repository backend.
type StoreConfig struct {
	Backend  string         `yaml:"backend" validate:"required,oneof=memory sqlite dynamodb"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	Path            string        `yaml:"path"`
	MaxOpenConns    int           `yaml:"maxOpenConns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"maxIdleConns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime" validate:"gte=0"`
	BusyTimeout     time.Duration `yaml:"busyTimeout" validate:"gte=0"`
}

// DynamoDBConfig configures the DynamoDB backend.
type DynamoDBConfig struct {
	PlansTable string `yaml:"plansTable"`
	AuditTable string `yaml:"auditTable"`
	Region     string `yaml:"region"`
	Profile    string `yaml:"profile"`
	Endpoint   string `yaml:"endpoint" validate:"omitempty,url"`
}

// PromptsConfig points at the prompt registry file. An empty path means no
// template annotation.
type PromptsConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// PolicyConfig configures guardrail evaluation.
type PolicyConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Paths              []string `yaml:"paths"`
	Watch              bool     `yaml:"watch"`
	DisableBuiltins    bool     `yaml:"disableBuiltins"`
	MaxReplicas        int      `yaml:"maxReplicas" validate:"gte=0"`
	MaxProductionSteps int      `yaml:"maxProductionSteps" validate:"gte=0"`
}

// AuditConfig selects the audit sinks. Sinks are combined.
type AuditConfig struct {
	// Log writes events to the application log.
	Log bool `yaml:"log"`

	// Store appends events to the store's audit table.
	Store bool `yaml:"store"`

	// File appends events as JSON lines to a file.
	File string `yaml:"file"`

	// Async delivers to the store and file sinks from a background goroutine.
	Async bool `yaml:"async"`

	// BufferSize bounds the async queue.
	BufferSize int `yaml:"bufferSize" validate:"gte=0"`
}
