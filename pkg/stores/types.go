package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/opsplan/pkg/engine"
)

// ListFilter narrows plan listings. Zero values match everything.
type ListFilter struct {
	Status    engine.Status
	Action    engine.Action
	Namespace string
	Limit     int
	Offset    int
}

// Matches reports whether the plan passes the filter's predicates.
func (f ListFilter) Matches(p *engine.OperationPlan) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Action != "" && p.Action != f.Action {
		return false
	}
	if f.Namespace != "" && p.Resource.Namespace != f.Namespace {
		return false
	}
	return true
}

// AuditFilter narrows audit event listings. Zero values match everything.
type AuditFilter struct {
	PlanID string
	Type   engine.AuditEventType
	Limit  int
	Offset int
}

// Matches reports whether the event passes the filter's predicates.
func (f AuditFilter) Matches(e engine.AuditEvent) bool {
	if f.PlanID != "" && e.PlanID != f.PlanID {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	return true
}

// Repository is the keyed store of operation plans.
//
// Errors are classified with the engine error kinds: Get and Replace return
// a not_found error for unknown ids, Create returns a conflict error for a
// duplicate id, Replace returns a conflict error when the stored status no
// longer equals expected, and backend failures are unavailable errors.
type Repository interface {
	Get(ctx context.Context, id string) (*engine.OperationPlan, error)
	Create(ctx context.Context, plan *engine.OperationPlan) error
	Replace(ctx context.Context, plan *engine.OperationPlan, expected engine.Status) error
	// List returns plans newest first.
	List(ctx context.Context, filter ListFilter) ([]*engine.OperationPlan, error)
}

// AuditStore persists audit events in append order.
type AuditStore interface {
	AppendAuditEvent(ctx context.Context, event engine.AuditEvent) error
	ListAuditEvents(ctx context.Context, filter AuditFilter) ([]engine.AuditEvent, error)
}

// Store is a Repository with an audit table and a managed lifecycle.
type Store interface {
	Repository
	AuditStore

	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// conflictError reports a lost compare-and-swap.
func conflictError(id string, expected, actual engine.Status) *engine.Error {
	return engine.NewConflictError(
		fmt.Sprintf("plan status is %s, expected %s", actual, expected), nil).
		WithPlan(id).
		WithDetail("expected", string(expected)).
		WithDetail("actual", string(actual))
}

// duplicateError reports an id that is already taken.
func duplicateError(id string) *engine.Error {
	return engine.NewConflictError("plan already exists", nil).
		WithPlan(id).
		WithCode(engine.ErrCodeAlreadyExists)
}

// unavailable wraps a backend failure.
func unavailable(op string, err error) *engine.Error {
	return engine.NewUnavailableError(fmt.Sprintf("failed to %s", op), err)
}

// validatePlan rejects plans that cannot be stored.
func validatePlan(plan *engine.OperationPlan) error {
	if plan == nil {
		return engine.NewValidationError("plan is required", "plan", "non-nil", "nil")
	}
	if plan.ID == "" {
		return engine.NewValidationError("plan id is required", "id", "non-empty", "")
	}
	if err := plan.Status.Validate(); err != nil {
		return engine.NewValidationError(err.Error(), "status", "known status", string(plan.Status)).WithPlan(plan.ID)
	}
	return nil
}

// page applies offset and limit to a slice length, returning bounds.
func page(n, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}
	return offset, end
}

// timeLayout is a fixed-width UTC layout so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
