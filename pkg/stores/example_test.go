package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	store, err := stores.NewSQLiteStore(stores.Config{
		Path: ":memory:", // Use in-memory database for example
	})
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_Replace demonstrates the status compare-and-swap.
func ExampleSQLiteStore_Replace() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	plan := &engine.OperationPlan{
		ID:      "plan-001",
		Version: engine.DefaultPlanVersion,
		Status:  engine.StatusPending,
		Action:  engine.ActionRestart,
		Resource: engine.ResourceRef{
			Kind:      "Deployment",
			Namespace: "staging",
			Name:      "web",
		},
		Audit: engine.Audit{Timestamps: engine.Timestamps{CreatedAt: time.Now()}},
	}
	if err := store.Create(ctx, plan); err != nil {
		log.Fatal(err)
	}

	executed := plan.Clone()
	executed.Status = engine.StatusExecuted

	// The first swap wins; a second writer still expecting pending loses.
	fmt.Println(store.Replace(ctx, executed, engine.StatusPending) == nil)
	fmt.Println(engine.IsConflict(store.Replace(ctx, executed, engine.StatusPending)))
	// Output:
	// true
	// true
}

// ExampleMemoryStore_List demonstrates filtered listing.
func ExampleMemoryStore_List() {
	store := stores.NewMemoryStore()
	ctx := context.Background()

	for i, ns := range []string{"production", "staging", "production"} {
		_ = store.Create(ctx, &engine.OperationPlan{
			ID:       fmt.Sprintf("plan-%d", i),
			Status:   engine.StatusPending,
			Action:   engine.ActionScale,
			Resource: engine.ResourceRef{Namespace: ns},
			Audit: engine.Audit{Timestamps: engine.Timestamps{
				CreatedAt: time.Date(2026, 1, 1, i, 0, 0, 0, time.UTC),
			}},
		})
	}

	plans, _ := store.List(ctx, stores.ListFilter{Namespace: "production"})
	for _, p := range plans {
		fmt.Println(p.ID)
	}
	// Output:
	// plan-2
	// plan-0
}
