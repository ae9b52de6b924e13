package risk

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/opsplan/pkg/engine"
)

func replicaDiff(replicas int) engine.DiffSnapshot {
	return engine.DiffSnapshot{
		Patch:       []engine.PatchOp{{Op: engine.PatchOpReplace, Path: "/spec/replicas", Value: replicas}},
		PatchFormat: engine.PatchFormatJSONPatch,
	}
}

func oneStep() []engine.Step {
	return []engine.Step{{ID: "step-1", Action: "scale", Description: "Scale deployment"}}
}

func TestEvaluateScaleInProduction(t *testing.T) {
	r := Evaluate(engine.ActionScale, "production", "Deployment", replicaDiff(6), oneStep())

	require.NotNil(t, r.Score)
	assert.InDelta(t, 0.73, *r.Score, 1e-9)
	assert.Equal(t, engine.RiskHigh, r.Level)
	assert.Equal(t, engine.SLOImpactHigh, r.SLOBudgetImpact)
	assert.Subset(t, r.Factors, []string{FactorProductionNamespace, FactorReplicaChange})
	assert.NotContains(t, r.Factors, FactorRollbackAvailable)
	assert.Equal(t, []string{PostConditionBurnRate, PostConditionAutoscale}, r.PostConditions)
	assert.Contains(t, r.Rationale, "production scope")
	assert.Contains(t, r.Rationale, "Replica count changes")
}

func TestEvaluateScaleInStagingWithRollback(t *testing.T) {
	diff := replicaDiff(6)
	diff.RollbackPatch = []engine.PatchOp{{Op: engine.PatchOpReplace, Path: "/spec/replicas", Value: 3}}

	r := Evaluate(engine.ActionScale, "staging", "Deployment", diff, oneStep())

	require.NotNil(t, r.Score)
	assert.InDelta(t, 0.48, *r.Score, 1e-9)
	assert.Equal(t, engine.RiskMedium, r.Level)
	assert.Equal(t, engine.SLOImpactMedium, r.SLOBudgetImpact)
	assert.Subset(t, r.Factors, []string{FactorSandboxScope, FactorRollbackAvailable, FactorReplicaChange})
	assert.NotContains(t, r.PostConditions, PostConditionBurnRate)
	assert.Contains(t, r.Rationale, "rollback patch is available")
}

func TestEvaluateHighThresholdIsInclusive(t *testing.T) {
	r := Evaluate(engine.ActionDelete, "dev", "Job", engine.DiffSnapshot{}, oneStep())

	require.NotNil(t, r.Score)
	assert.Equal(t, 0.70, *r.Score)
	assert.Equal(t, engine.RiskHigh, r.Level)
	assert.Equal(t, []string{FactorSandboxScope, FactorEphemeralKind}, r.Factors)
}

func TestEvaluateFactors(t *testing.T) {
	tests := []struct {
		name      string
		action    engine.Action
		namespace string
		kind      string
		diff      engine.DiffSnapshot
		steps     int
		want      []string
		score     float64
	}{
		{
			name:      "image rollout",
			action:    engine.ActionUpdate,
			namespace: "payments",
			kind:      "Deployment",
			diff: engine.DiffSnapshot{Patch: []engine.PatchOp{{
				Op: engine.PatchOpReplace, Path: "/spec/template/spec/containers/0/image", Value: "api:1.4.2",
			}}},
			want:  []string{FactorProductionNamespace, FactorImageRollout},
			score: 0.82,
		},
		{
			name:      "container change without tag is not a rollout",
			action:    engine.ActionUpdate,
			namespace: "sandbox",
			kind:      "Deployment",
			diff: engine.DiffSnapshot{Patch: []engine.PatchOp{{
				Op: engine.PatchOpReplace, Path: "/spec/template/spec/containers/0/image", Value: "api",
			}}},
			want:  []string{FactorSandboxScope},
			score: 0.50,
		},
		{
			name:      "non-string container value",
			action:    engine.ActionCreate,
			namespace: "development",
			kind:      "Deployment",
			diff: engine.DiffSnapshot{Patch: []engine.PatchOp{{
				Op: engine.PatchOpAdd, Path: "/spec/template/spec/containers/-", Value: map[string]any{"image": "a:b"},
			}}},
			want:  []string{FactorSandboxScope},
			score: 0.35,
		},
		{
			name:      "multi step cronjob restart",
			action:    engine.ActionRestart,
			namespace: "staging",
			kind:      "cronjob",
			steps:     4,
			want:      []string{FactorSandboxScope, FactorEphemeralKind, FactorMultiStepPlan},
			score:     0.20,
		},
		{
			name:      "exactly three steps is not multi step",
			action:    engine.ActionRestart,
			namespace: "prod",
			kind:      "Deployment",
			steps:     3,
			want:      []string{FactorProductionNamespace},
			score:     0.40,
		},
		{
			name:      "everything at once clamps to one",
			action:    engine.ActionDelete,
			namespace: "production",
			kind:      "StatefulSet",
			diff: engine.DiffSnapshot{Patch: []engine.PatchOp{
				{Op: engine.PatchOpReplace, Path: "/spec/replicas", Value: 0},
				{Op: engine.PatchOpReplace, Path: "/spec/template/spec/containers/0/image", Value: "db:15"},
			}},
			steps: 5,
			want:  []string{FactorProductionNamespace, FactorReplicaChange, FactorImageRollout, FactorMultiStepPlan},
			score: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := make([]engine.Step, tt.steps)
			r := Evaluate(tt.action, tt.namespace, tt.kind, tt.diff, steps)

			assert.Equal(t, tt.want, r.Factors)
			require.NotNil(t, r.Score)
			assert.InDelta(t, tt.score, *r.Score, 1e-9)
			assert.Equal(t, LevelForScore(*r.Score), r.Level)
		})
	}
}

func TestEvaluateIsPureAndBounded(t *testing.T) {
	diffs := []engine.DiffSnapshot{
		{},
		replicaDiff(2),
		{Patch: []engine.PatchOp{{Op: engine.PatchOpReplace, Path: "/spec/containers/0/image", Value: "x:1"}},
			RollbackPatch: []engine.PatchOp{{Op: engine.PatchOpReplace, Path: "/spec/containers/0/image", Value: "x:0"}}},
	}

	for _, action := range append(engine.Actions, engine.Action("unknown")) {
		for _, ns := range []string{"production", "dev", ""} {
			for _, kind := range []string{"Job", "Deployment"} {
				for i, diff := range diffs {
					name := fmt.Sprintf("%s/%s/%s/%d", action, ns, kind, i)
					first := Evaluate(action, ns, kind, diff, nil)
					second := Evaluate(action, ns, kind, diff, nil)

					assert.Equal(t, first, second, name)
					require.NotNil(t, first.Score, name)
					assert.GreaterOrEqual(t, *first.Score, 0.0, name)
					assert.LessOrEqual(t, *first.Score, 1.0, name)
					assert.Equal(t, LevelForScore(*first.Score), first.Level, name)
					assert.Equal(t, engine.ImpactForLevel(first.Level), first.SLOBudgetImpact, name)
				}
			}
		}
	}
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, engine.RiskLow, LevelForScore(0.44))
	assert.Equal(t, engine.RiskMedium, LevelForScore(0.45))
	assert.Equal(t, engine.RiskMedium, LevelForScore(0.69))
	assert.Equal(t, engine.RiskHigh, LevelForScore(0.70))
}

func TestIsSandboxNamespace(t *testing.T) {
	assert.True(t, IsSandboxNamespace("Staging"))
	assert.True(t, IsSandboxNamespace("dev"))
	assert.False(t, IsSandboxNamespace("default"))
	assert.False(t, IsSandboxNamespace(""))
}
