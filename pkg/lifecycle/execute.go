package lifecycle

import (
	"context"
	"fmt"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/telemetry"
)

// ExecuteInput carries the tokens a caller presents to execute a plan.
type ExecuteInput struct {
	PlanID          string `json:"planId"`
	Actor           string `json:"actor"`
	ResourceVersion string `json:"resourceVersion"`
	IdempotencyKey  string `json:"idempotencyKey"`
}

// Execute transitions a pending plan to executed.
//
// The checks run in this order, and each failure emits
// plan.execution.failure before returning a validation error:
// the plan carries a resourceVersion, the supplied one equals it, the plan
// carries an idempotency key, and the supplied one equals it.
//
// Re-executing an executed plan with its idempotency key returns the stored
// record and emits nothing. Calls for the same plan are serialized before
// the plan is read, so of several concurrent calls exactly one emits an
// attempt and succeeds while the others replay its record. The status write
// is also a compare-and-swap against the status that was read, which covers
// writers outside this Service.
func (s *Service) Execute(ctx context.Context, in ExecuteInput) (result *engine.OperationPlan, err error) {
	ctx, span := s.tracer.StartPlanSpan(ctx, "execute", in.PlanID)
	span.SetAttributes(telemetry.AttrActor.String(in.Actor))
	timer := telemetry.NewTimer()
	outcome := telemetry.OutcomeError
	defer func() {
		s.metrics.ObserveOperation("execute", timer.Duration())
		s.metrics.RecordExecution(outcome)
		span.SetAttributes(telemetry.AttrOutcome.String(outcome))
		end(span, err)
	}()

	logger := s.logger.WithPlanID(in.PlanID).WithActor(in.Actor)

	unlock := s.locks.lock(in.PlanID)
	defer unlock()

	plan, err := s.repo.Get(ctx, in.PlanID)
	if err != nil {
		if engine.IsNotFound(err) {
			outcome = telemetry.OutcomeNotFound
		}
		return nil, s.classify(err, "get plan")
	}

	if isReplay(plan, in) {
		outcome = telemetry.OutcomeReplay
		logger.Debug().Msg("plan already executed with this idempotency key")
		return plan, nil
	}

	if verr := checkTokens(plan, in); verr != nil {
		outcome = telemetry.OutcomeValidation
		s.recordFailure(ctx, plan, in, verr)
		logger.Warn().Str("field", verr.Field).Str("code", verr.Code).Msg("execute rejected")
		return nil, s.classify(verr, "")
	}

	if !plan.Status.CanTransition(engine.StatusExecuted) {
		outcome = telemetry.OutcomeConflict
		cerr := statusConflict(plan.ID, plan.Status)
		s.recordFailure(ctx, plan, in, cerr)
		return nil, s.classify(cerr, "")
	}

	s.record(ctx, engine.EventPlanExecutionAttempt, plan.ID, in.Actor, map[string]any{
		"fromStatus":     string(plan.Status),
		"idempotencyKey": in.IdempotencyKey,
	})

	next := plan.Clone()
	now := s.clock.Now().UTC()
	next.Status = engine.StatusExecuted
	next.Audit.ConfirmedBy = in.Actor
	next.Audit.ExecutedBy = in.Actor
	if next.Audit.Timestamps.ConfirmedAt == nil {
		confirmed := now
		next.Audit.Timestamps.ConfirmedAt = &confirmed
	}
	executed := now
	next.Audit.Timestamps.ExecutedAt = &executed

	if err := s.repo.Replace(ctx, next, plan.Status); err != nil {
		if engine.IsConflict(err) {
			// Another execute won the swap. If it executed the same request,
			// its record is ours too.
			if winner, gerr := s.repo.Get(ctx, plan.ID); gerr == nil && isReplay(winner, in) {
				outcome = telemetry.OutcomeReplay
				logger.Debug().Msg("concurrent execute won with the same idempotency key")
				return winner, nil
			}
			outcome = telemetry.OutcomeConflict
		}
		classified := s.classify(err, "replace plan")
		s.recordFailure(ctx, plan, in, classified)
		return nil, classified
	}

	s.record(ctx, engine.EventPlanExecutionSuccess, next.ID, in.Actor, map[string]any{
		"fromStatus":     string(plan.Status),
		"toStatus":       string(next.Status),
		"idempotencyKey": in.IdempotencyKey,
	})

	outcome = telemetry.OutcomeSuccess
	logger.Info().
		Str("risk_level", string(next.Risk.Level)).
		Msg("plan executed")

	return next, nil
}

// Dismiss records that a reviewer declined the plan. The plan's status is
// left unchanged. An unknown id is not an error and records nothing.
func (s *Service) Dismiss(ctx context.Context, planID, actor string) (err error) {
	ctx, span := s.tracer.StartPlanSpan(ctx, "dismiss", planID)
	timer := telemetry.NewTimer()
	defer func() {
		s.metrics.ObserveOperation("dismiss", timer.Duration())
		end(span, err)
	}()

	plan, err := s.repo.Get(ctx, planID)
	if err != nil {
		if engine.IsNotFound(err) {
			return nil
		}
		return s.classify(err, "get plan")
	}

	s.record(ctx, engine.EventPlanDismissed, plan.ID, actor, map[string]any{
		"status": string(plan.Status),
	})
	s.metrics.RecordDismissal()

	s.logger.WithPlanID(plan.ID).WithActor(actor).Info().Msg("plan dismissed")
	return nil
}

// isReplay reports whether plan was already executed by the request in.
func isReplay(plan *engine.OperationPlan, in ExecuteInput) bool {
	return plan.Status == engine.StatusExecuted &&
		in.IdempotencyKey != "" &&
		plan.Audit.IdempotencyKey == in.IdempotencyKey
}

// checkTokens applies the resourceVersion and idempotency key guards in order.
func checkTokens(plan *engine.OperationPlan, in ExecuteInput) *engine.Error {
	captured := plan.Resource.ResourceVersion
	switch {
	case captured == "":
		return engine.NewValidationError("plan has no captured resourceVersion; re-draft against live state",
			"resource.resourceVersion", "non-empty", "").
			WithPlan(plan.ID).WithCode(engine.ErrCodeMissingResourceVersion)
	case in.ResourceVersion != captured:
		return engine.NewValidationError("resourceVersion does not match the version captured at draft time",
			"resourceVersion", captured, in.ResourceVersion).
			WithPlan(plan.ID).WithCode(engine.ErrCodeResourceVersion)
	}

	stored := plan.Audit.IdempotencyKey
	switch {
	case stored == "":
		return engine.NewValidationError("plan has no idempotency key",
			"audit.idempotencyKey", "non-empty", "").
			WithPlan(plan.ID).WithCode(engine.ErrCodeMissingIdempotencyKey)
	case in.IdempotencyKey != stored:
		return engine.NewValidationError("idempotencyKey does not match the plan",
			"idempotencyKey", stored, in.IdempotencyKey).
			WithPlan(plan.ID).WithCode(engine.ErrCodeIdempotencyKey)
	}
	return nil
}

func statusConflict(planID string, status engine.Status) *engine.Error {
	return engine.NewConflictError(
		fmt.Sprintf("plan in status %s cannot be executed", status), nil).
		WithPlan(planID).
		WithCode(engine.ErrCodeStatusConflict).
		WithDetail("status", string(status))
}

// recordFailure emits plan.execution.failure describing err.
func (s *Service) recordFailure(ctx context.Context, plan *engine.OperationPlan, in ExecuteInput, err *engine.Error) {
	details := map[string]any{
		"kind":   string(err.Kind),
		"code":   err.Code,
		"reason": err.Message,
		"status": string(plan.Status),
	}
	if err.Field != "" {
		details["field"] = err.Field
		details["expected"] = err.Expected
		details["received"] = err.Received
	}
	s.record(ctx, engine.EventPlanExecutionFailure, plan.ID, in.Actor, details)
}
