package stores

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/openfroyo/opsplan/pkg/engine"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Fatal("expected health check to fail before init")
	}

	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"plans", "audit_events"} {
		var count int
		err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Running migrations again is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

func TestSQLiteStoreRepository(t *testing.T) {
	testRepository(t, setupTestStore(t))
}

func TestSQLiteStoreListing(t *testing.T) {
	testListing(t, setupTestStore(t))
}

func TestSQLiteStoreAudit(t *testing.T) {
	testAuditStore(t, setupTestStore(t))
}

func TestSQLiteStoreIndexedColumns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	plan := newTestPlan("plan-cols", 0)
	if err := store.Create(ctx, plan); err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}

	next := plan.Clone()
	next.Status = engine.StatusExecuted
	if err := store.Replace(ctx, next, engine.StatusPending); err != nil {
		t.Fatalf("failed to replace plan: %v", err)
	}

	var status, level, key string
	err := store.db.QueryRowContext(ctx,
		`SELECT status, risk_level, idempotency_key FROM plans WHERE id = ?`, plan.ID).
		Scan(&status, &level, &key)
	if err != nil {
		t.Fatalf("failed to read columns: %v", err)
	}
	if status != "executed" || level != "high" || key != "opk_test" {
		t.Errorf("unexpected columns: status=%s level=%s key=%s", status, level, key)
	}
}

func TestSQLiteStoreFileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opsplan.db")
	ctx := context.Background()

	open := func() *SQLiteStore {
		store, err := NewSQLiteStore(Config{Path: path})
		if err != nil {
			t.Fatalf("failed to create store: %v", err)
		}
		if err := store.Init(ctx); err != nil {
			t.Fatalf("failed to initialize store: %v", err)
		}
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to migrate store: %v", err)
		}
		return store
	}

	first := open()
	if err := first.Create(ctx, newTestPlan("persisted", 0)); err != nil {
		t.Fatalf("failed to create plan: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	second := open()
	defer second.Close()

	got, err := second.Get(ctx, "persisted")
	if err != nil {
		t.Fatalf("plan did not survive reopen: %v", err)
	}
	if got.Intent != "scale api to 6 replicas" {
		t.Errorf("unexpected intent: %s", got.Intent)
	}
}
