package stores

import (
	"context"
	"sort"
	"sync"

	"github.com/openfroyo/opsplan/pkg/engine"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	plans  map[string]*engine.OperationPlan
	events []engine.AuditEvent
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans: make(map[string]*engine.OperationPlan),
	}
}

// Init implements Store.
func (s *MemoryStore) Init(context.Context) error { return nil }

// Migrate implements Store.
func (s *MemoryStore) Migrate(context.Context) error { return nil }

// HealthCheck implements Store.
func (s *MemoryStore) HealthCheck(context.Context) error { return nil }

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// Get returns a copy of the stored plan.
func (s *MemoryStore) Get(_ context.Context, id string) (*engine.OperationPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, engine.NewNotFoundError(id)
	}
	return p.Clone(), nil
}

// Create stores a copy of a new plan.
func (s *MemoryStore) Create(_ context.Context, plan *engine.OperationPlan) error {
	if err := validatePlan(plan); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[plan.ID]; exists {
		return duplicateError(plan.ID)
	}
	s.plans[plan.ID] = plan.Clone()
	return nil
}

// Replace swaps the stored plan for a copy of plan if the stored status equals expected.
func (s *MemoryStore) Replace(_ context.Context, plan *engine.OperationPlan, expected engine.Status) error {
	if err := validatePlan(plan); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.plans[plan.ID]
	if !ok {
		return engine.NewNotFoundError(plan.ID)
	}
	if current.Status != expected {
		return conflictError(plan.ID, expected, current.Status)
	}
	s.plans[plan.ID] = plan.Clone()
	return nil
}

// List returns copies of matching plans, newest first.
func (s *MemoryStore) List(_ context.Context, filter ListFilter) ([]*engine.OperationPlan, error) {
	s.mu.RLock()
	matched := make([]*engine.OperationPlan, 0, len(s.plans))
	for _, p := range s.plans {
		if filter.Matches(p) {
			matched = append(matched, p.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := matched[i].Audit.Timestamps.CreatedAt, matched[j].Audit.Timestamps.CreatedAt
		if ti.Equal(tj) {
			return matched[i].ID < matched[j].ID
		}
		return ti.After(tj)
	})

	start, end := page(len(matched), filter.Offset, filter.Limit)
	return matched[start:end], nil
}

// AppendAuditEvent implements AuditStore.
func (s *MemoryStore) AppendAuditEvent(_ context.Context, event engine.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, cloneEvent(event))
	return nil
}

// ListAuditEvents returns matching events in append order.
func (s *MemoryStore) ListAuditEvents(_ context.Context, filter AuditFilter) ([]engine.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]engine.AuditEvent, 0, len(s.events))
	for _, e := range s.events {
		if filter.Matches(e) {
			matched = append(matched, cloneEvent(e))
		}
	}

	start, end := page(len(matched), filter.Offset, filter.Limit)
	return matched[start:end], nil
}

func cloneEvent(e engine.AuditEvent) engine.AuditEvent {
	if e.Details != nil {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	return e
}
