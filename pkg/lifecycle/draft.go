package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/risk"
	"github.com/openfroyo/opsplan/pkg/telemetry"
)

// DraftInput is the payload for Draft. Resource.ResourceVersion is optional
// at this point, but a plan without one can never be executed.
type DraftInput struct {
	Action         engine.Action       `json:"action" validate:"required,oneof=create update delete scale restart"`
	Intent         string              `json:"intent"`
	AIRationale    string              `json:"aiRationale"`
	RequestedBy    string              `json:"requestedBy"`
	Resource       engine.ResourceRef  `json:"resource"`
	Diff           engine.DiffSnapshot `json:"diff"`
	Steps          []engine.Step       `json:"steps"`
	IdempotencyKey string              `json:"idempotencyKey,omitempty"`
	SourcePromptID string              `json:"sourcePromptId,omitempty"`
	Version        string              `json:"version,omitempty"`
}

// Draft evaluates and annotates risk for the input, stores a pending plan,
// and emits plan.generated.
func (s *Service) Draft(ctx context.Context, in DraftInput) (plan *engine.OperationPlan, err error) {
	ctx, span := s.tracer.StartPlanSpan(ctx, "draft", "")
	timer := telemetry.NewTimer()
	defer func() {
		s.metrics.ObserveOperation("draft", timer.Duration())
		end(span, err)
	}()

	if err := s.validateDraft(in); err != nil {
		s.metrics.RecordError(string(err.Kind), err.Code)
		return nil, err
	}

	now := s.clock.Now().UTC()
	diff := in.Diff
	if diff.PatchFormat == "" {
		diff.PatchFormat = engine.PatchFormatJSONPatch
	}

	key := in.IdempotencyKey
	if key == "" {
		key = engine.DeriveIdempotencyKey(in.Resource, in.Action, diff)
	}

	version := in.Version
	if version == "" {
		version = engine.DefaultPlanVersion
	}

	steps := in.Steps
	if steps == nil {
		steps = []engine.Step{}
	}

	assessed := risk.Evaluate(in.Action, in.Resource.Namespace, in.Resource.Kind, diff, steps)
	if s.annotator != nil {
		assessed = s.annotator.Annotate(ctx, assessed, in.SourcePromptID)
	}

	draft := &engine.OperationPlan{
		ID:          s.newID(),
		Version:     version,
		Status:      engine.StatusPending,
		Action:      in.Action,
		Intent:      in.Intent,
		AIRationale: in.AIRationale,
		Resource:    in.Resource,
		Diff:        diff,
		Steps:       steps,
		Risk:        assessed,
		Audit: engine.Audit{
			RequestedBy:    in.RequestedBy,
			IdempotencyKey: key,
			SourcePromptID: in.SourcePromptID,
			Timestamps:     engine.Timestamps{CreatedAt: now},
		},
	}
	// Detach from caller-owned slices.
	plan = draft.Clone()

	span.SetAttributes(
		telemetry.AttrPlanID.String(plan.ID),
		telemetry.AttrPlanAction.String(string(plan.Action)),
		telemetry.AttrRiskLevel.String(string(plan.Risk.Level)),
		telemetry.AttrResourceKind.String(plan.Resource.Kind),
		telemetry.AttrResourceNS.String(plan.Resource.Namespace),
	)

	logger := s.logger.WithPlanID(plan.ID)

	if s.guardrails != nil {
		findings, gerr := s.guardrails.Check(ctx, plan)
		if gerr != nil {
			logger.WithError(gerr).Warn().Msg("guardrail evaluation failed")
		}
		plan.Guardrails = findings
		for _, f := range findings {
			s.metrics.RecordGuardrailFinding(f.Policy, f.Severity)
		}
	}

	if err := s.repo.Create(ctx, plan); err != nil {
		return nil, s.classify(err, "store plan")
	}

	details := map[string]any{
		"action":         string(plan.Action),
		"resource":       resourceLabel(plan.Resource),
		"riskLevel":      string(plan.Risk.Level),
		"factors":        append([]string(nil), plan.Risk.Factors...),
		"idempotencyKey": key,
	}
	if plan.Risk.Score != nil {
		details["riskScore"] = *plan.Risk.Score
	}
	if plan.Audit.SourcePromptID != "" {
		details["sourcePromptId"] = plan.Audit.SourcePromptID
	}
	if len(plan.Guardrails) > 0 {
		details["guardrailFindings"] = len(plan.Guardrails)
	}
	s.record(ctx, engine.EventPlanGenerated, plan.ID, plan.Audit.RequestedBy, details)

	s.metrics.RecordDraft(string(plan.Action), string(plan.Risk.Level), plan.Risk.Score)

	logger.Info().
		Str("action", string(plan.Action)).
		Str("risk_level", string(plan.Risk.Level)).
		Strs("factors", plan.Risk.Factors).
		Int("guardrail_findings", len(plan.Guardrails)).
		Msg("plan drafted")

	return plan, nil
}

// validateDraft checks the enumerated fields of the input envelope.
func (s *Service) validateDraft(in DraftInput) *engine.Error {
	if err := s.validate.Struct(in); err != nil {
		return validationError(err, "")
	}
	if f := in.Diff.PatchFormat; f != "" && f != engine.PatchFormatJSONPatch && f != engine.PatchFormatStrategicMerge {
		return engine.NewValidationError("unknown patch format", "diff.patchFormat",
			"rfc6902|strategic-merge", string(f)).WithCode(engine.ErrCodeInvalidInput)
	}

	checks := []patchSet{
		{"diff.patch", in.Diff.Patch},
		{"diff.rollbackPatch", in.Diff.RollbackPatch},
	}
	for i, step := range in.Steps {
		checks = append(checks,
			patchSet{fmt.Sprintf("steps[%d].patch", i), step.Patch},
			patchSet{fmt.Sprintf("steps[%d].rollbackPatch", i), step.RollbackPatch},
		)
	}

	for _, c := range checks {
		for i, op := range c.ops {
			prefix := fmt.Sprintf("%s[%d]", c.prefix, i)
			if err := s.validate.Struct(op); err != nil {
				return validationError(err, prefix)
			}
			if _, err := engine.SplitPointer(op.Path); err != nil {
				return engine.NewValidationError(err.Error(), prefix+".path", "RFC6901 pointer", op.Path).
					WithCode(engine.ErrCodeInvalidInput)
			}
		}
	}
	return nil
}

type patchSet struct {
	prefix string
	ops    []engine.PatchOp
}

// validationError converts the first validator failure into an engine error.
func validationError(err error, prefix string) *engine.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return engine.NewValidationError(err.Error(), prefix, "", "").WithCode(engine.ErrCodeInvalidInput)
	}

	fe := verrs[0]
	field := lowerFirst(fe.Field())
	if prefix != "" {
		field = prefix + "." + field
	}

	expected := fe.Tag()
	if fe.Param() != "" {
		expected = fe.Tag() + "=" + fe.Param()
	}

	return engine.NewValidationError(
		fmt.Sprintf("invalid %s", field),
		field,
		expected,
		fmt.Sprintf("%v", fe.Value()),
	).WithCode(engine.ErrCodeInvalidInput)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func resourceLabel(r engine.ResourceRef) string {
	if r.Namespace == "" {
		return r.Kind + "/" + r.Name
	}
	return r.Kind + "/" + r.Namespace + "/" + r.Name
}
