package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/opsplan/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// memoryPath is the SQLite path for a private in-memory database.
const memoryPath = ":memory:"

// SQLiteStore implements Store using SQLite.
// Plans are stored as JSON documents alongside indexed columns used for filtering.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	// Every connection to :memory: opens a separate database.
	if cfg.Path == memoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		s.cfg.Path, s.cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

// Get retrieves a plan by ID
func (s *SQLiteStore) Get(ctx context.Context, id string) (*engine.OperationPlan, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM plans WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, engine.NewNotFoundError(id)
	}
	if err != nil {
		return nil, unavailable("get plan", err).WithPlan(id)
	}

	return decodePlan(body)
}

// Create inserts a new plan record
func (s *SQLiteStore) Create(ctx context.Context, plan *engine.OperationPlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}

	body, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	query := `
		INSERT INTO plans (id, version, status, action, namespace, kind, name, risk_level, idempotency_key, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	now := formatTime(time.Now())
	result, err := s.db.ExecContext(ctx, query,
		plan.ID,
		plan.Version,
		plan.Status,
		plan.Action,
		plan.Resource.Namespace,
		plan.Resource.Kind,
		plan.Resource.Name,
		plan.Risk.Level,
		plan.Audit.IdempotencyKey,
		string(body),
		formatTime(plan.Audit.Timestamps.CreatedAt),
		now,
	)
	if err != nil {
		return unavailable("create plan", err).WithPlan(plan.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return unavailable("get affected rows", err).WithPlan(plan.ID)
	}
	if rows == 0 {
		return duplicateError(plan.ID)
	}

	return nil
}

// Replace overwrites a plan if its stored status still equals expected.
func (s *SQLiteStore) Replace(ctx context.Context, plan *engine.OperationPlan, expected engine.Status) error {
	if err := validatePlan(plan); err != nil {
		return err
	}

	body, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	query := `
		UPDATE plans
		SET status = ?, risk_level = ?, idempotency_key = ?, body = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		plan.Status,
		plan.Risk.Level,
		plan.Audit.IdempotencyKey,
		string(body),
		formatTime(time.Now()),
		plan.ID,
		expected,
	)
	if err != nil {
		return unavailable("replace plan", err).WithPlan(plan.ID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return unavailable("get affected rows", err).WithPlan(plan.ID)
	}
	if rows > 0 {
		return nil
	}

	// Nothing matched: either the plan is gone or its status moved on.
	var actual engine.Status
	err = s.db.QueryRowContext(ctx, `SELECT status FROM plans WHERE id = ?`, plan.ID).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.NewNotFoundError(plan.ID)
	}
	if err != nil {
		return unavailable("read plan status", err).WithPlan(plan.ID)
	}
	return conflictError(plan.ID, expected, actual)
}

// List lists plans with optional filters and pagination, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]*engine.OperationPlan, error) {
	query := `
		SELECT body
		FROM plans
		WHERE (? = '' OR status = ?)
		  AND (? = '' OR action = ?)
		  AND (? = '' OR namespace = ?)
		ORDER BY created_at DESC, id ASC
		LIMIT ? OFFSET ?
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, query,
		filter.Status, filter.Status,
		filter.Action, filter.Action,
		filter.Namespace, filter.Namespace,
		limit, offset,
	)
	if err != nil {
		return nil, unavailable("list plans", err)
	}
	defer rows.Close()

	plans := []*engine.OperationPlan{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, unavailable("scan plan", err)
		}
		plan, err := decodePlan(body)
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate plans", err)
	}

	return plans, nil
}

// AppendAuditEvent appends an event to the audit table
func (s *SQLiteStore) AppendAuditEvent(ctx context.Context, event engine.AuditEvent) error {
	var details *string
	if len(event.Details) > 0 {
		data, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to encode audit details: %w", err)
		}
		d := string(data)
		details = &d
	}

	query := `
		INSERT INTO audit_events (id, type, plan_id, actor, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.PlanID,
		event.Actor,
		details,
		formatTime(event.Timestamp),
	)
	if err != nil {
		return unavailable("append audit event", err).WithPlan(event.PlanID)
	}

	return nil
}

// ListAuditEvents lists audit events in append order
func (s *SQLiteStore) ListAuditEvents(ctx context.Context, filter AuditFilter) ([]engine.AuditEvent, error) {
	query := `
		SELECT id, type, plan_id, actor, details, timestamp
		FROM audit_events
		WHERE (? = '' OR plan_id = ?)
		  AND (? = '' OR type = ?)
		ORDER BY seq ASC
		LIMIT ? OFFSET ?
	`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, query,
		filter.PlanID, filter.PlanID,
		filter.Type, filter.Type,
		limit, offset,
	)
	if err != nil {
		return nil, unavailable("list audit events", err)
	}
	defer rows.Close()

	events := []engine.AuditEvent{}
	for rows.Next() {
		var (
			event     engine.AuditEvent
			details   sql.NullString
			timestamp string
		)
		if err := rows.Scan(&event.ID, &event.Type, &event.PlanID, &event.Actor, &details, &timestamp); err != nil {
			return nil, unavailable("scan audit event", err)
		}

		if event.Timestamp, err = time.Parse(timeLayout, timestamp); err != nil {
			return nil, fmt.Errorf("failed to parse audit timestamp %q: %w", timestamp, err)
		}
		if details.Valid {
			if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate audit events", err)
	}

	return events, nil
}

func decodePlan(body string) (*engine.OperationPlan, error) {
	var plan engine.OperationPlan
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	return &plan, nil
}
