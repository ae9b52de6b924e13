package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/openfroyo/opsplan/pkg/engine"
)

// Preview is a plan's patch applied to its before snapshot, and the
// rollback patch applied to the result.
type Preview struct {
	PlanID   string          `json:"planId"`
	Before   json.RawMessage `json:"before"`
	After    json.RawMessage `json:"after"`
	Rollback json.RawMessage `json:"rollback,omitempty"`
}

// Preview renders what the plan would do to its before snapshot. It never
// touches the live resource.
func (s *Service) Preview(ctx context.Context, id string) (*Preview, error) {
	plan, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, s.classify(err, "get plan")
	}

	if plan.Diff.PatchFormat == engine.PatchFormatStrategicMerge {
		return nil, s.classify(engine.NewValidationError("strategic-merge patches cannot be previewed",
			"diff.patchFormat", string(engine.PatchFormatJSONPatch), string(plan.Diff.PatchFormat)).
			WithPlan(plan.ID), "")
	}
	if len(plan.Diff.Before) == 0 || string(plan.Diff.Before) == "null" {
		return nil, s.classify(engine.NewValidationError("plan has no before snapshot",
			"diff.before", "JSON document", "null").WithPlan(plan.ID), "")
	}

	after, err := applyOps(plan.Diff.Before, plan.Diff.Patch)
	if err != nil {
		return nil, s.classify(engine.NewValidationError(err.Error(),
			"diff.patch", "applicable RFC6902 patch", "").WithPlan(plan.ID), "")
	}

	out := &Preview{
		PlanID: plan.ID,
		Before: plan.Diff.Before,
		After:  after,
	}
	if len(plan.Diff.RollbackPatch) > 0 {
		rollback, err := applyOps(after, plan.Diff.RollbackPatch)
		if err != nil {
			return nil, s.classify(engine.NewValidationError(err.Error(),
				"diff.rollbackPatch", "applicable RFC6902 patch", "").WithPlan(plan.ID), "")
		}
		out.Rollback = rollback
	}
	return out, nil
}

func applyOps(doc json.RawMessage, ops []engine.PatchOp) (json.RawMessage, error) {
	if len(ops) == 0 {
		return append(json.RawMessage(nil), doc...), nil
	}
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, fmt.Errorf("encode patch: %w", err)
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	out, err := patch.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}
	return out, nil
}
