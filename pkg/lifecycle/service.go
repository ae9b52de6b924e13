// Package lifecycle implements the operation plan state machine: drafting a
// plan with its risk assessment, executing it under optimistic concurrency
// and idempotency guards, and dismissing it.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/stores"
	"github.com/openfroyo/opsplan/pkg/telemetry"
)

// Annotator raises a computed risk according to the source prompt's tier.
type Annotator interface {
	Annotate(ctx context.Context, risk engine.Risk, promptID string) engine.Risk
}

// Guardrails produces advisory findings for a drafted plan.
type Guardrails interface {
	Check(ctx context.Context, plan *engine.OperationPlan) ([]engine.GuardrailFinding, error)
}

// Service runs lifecycle transitions against a Repository.
type Service struct {
	repo       stores.Repository
	annotator  Annotator
	guardrails Guardrails
	recorder   engine.AuditRecorder
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	tracer     *telemetry.Tracer
	clock      engine.Clock
	newID      func() string
	validate   *validator.Validate
	locks      *planLocks
}

// Option configures a Service.
type Option func(*Service)

// WithAnnotator sets the prompt-tier annotator applied after evaluation.
func WithAnnotator(a Annotator) Option {
	return func(s *Service) { s.annotator = a }
}

// WithGuardrails sets the advisory policy hook run on drafts.
func WithGuardrails(g Guardrails) Option {
	return func(s *Service) { s.guardrails = g }
}

// WithRecorder sets the audit recorder.
func WithRecorder(r engine.AuditRecorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(s *Service) { s.logger = l.NewComponentLogger("lifecycle") }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock sets the time source for timestamps.
func WithClock(c engine.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator sets the plan id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a lifecycle service over repo.
func NewService(repo stores.Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}

	s := &Service{
		repo:     repo,
		recorder: nopRecorder{},
		logger:   telemetry.NopLogger(),
		tracer:   telemetry.NopTracer(),
		clock:    engine.SystemClock,
		newID:    uuid.NewString,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		locks:    newPlanLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get returns the stored plan.
func (s *Service) Get(ctx context.Context, id string) (*engine.OperationPlan, error) {
	plan, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.classify(err, "get plan")
	}
	return plan, nil
}

// List returns stored plans, newest first.
func (s *Service) List(ctx context.Context, filter stores.ListFilter) ([]*engine.OperationPlan, error) {
	plans, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, s.classify(err, "list plans")
	}
	return plans, nil
}

// classify keeps engine errors as they are and wraps anything else as unavailable.
func (s *Service) classify(err error, op string) *engine.Error {
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		engErr = engine.NewUnavailableError(fmt.Sprintf("failed to %s", op), err).WithCode(engine.ErrCodeStore)
	}
	s.metrics.RecordError(string(engErr.Kind), engErr.Code)
	return engErr
}

// record emits an audit event stamped with the service clock.
func (s *Service) record(ctx context.Context, typ engine.AuditEventType, planID, actor string, details map[string]any) {
	s.recorder.Record(ctx, engine.AuditEvent{
		Type:      typ,
		PlanID:    planID,
		Actor:     actor,
		Timestamp: s.clock.Now().UTC(),
		Details:   details,
	})
}

// end closes a span with the operation's outcome.
func end(span trace.Span, err error) {
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.RecordSuccess(span)
	}
	span.End()
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, engine.AuditEvent) {}
