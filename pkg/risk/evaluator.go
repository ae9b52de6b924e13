package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/openfroyo/opsplan/pkg/engine"
)

// Factor tags attached by Evaluate.
const (
	FactorProductionNamespace = "production_namespace"
	FactorSandboxScope        = "sandbox_scope"
	FactorEphemeralKind       = "ephemeral_kind"
	FactorReplicaChange       = "replica_change"
	FactorImageRollout        = "image_rollout"
	FactorMultiStepPlan       = "multi_step_plan"
	FactorRollbackAvailable   = "rollback_available"
)

// Level thresholds. Scores are compared after rounding to two decimals.
const (
	HighThreshold   = 0.70
	MediumThreshold = 0.45
)

// multiStepLimit is the step count above which a plan is considered multi-step.
const multiStepLimit = 3

// Post-conditions attached by Evaluate.
const (
	PostConditionBurnRate  = "Monitor SLO burn rate for 30 minutes after execution"
	PostConditionReadiness = "Verify pods reach Ready with the new image"
	PostConditionAutoscale = "Confirm the HPA/autoscaler baseline matches the new replica count"
)

var baselines = map[engine.Action]float64{
	engine.ActionCreate:  0.45,
	engine.ActionUpdate:  0.60,
	engine.ActionDelete:  0.85,
	engine.ActionScale:   0.55,
	engine.ActionRestart: 0.30,
}

var actionSentences = map[engine.Action]string{
	engine.ActionCreate:  "Creating a new resource adds surface area but does not touch existing workloads.",
	engine.ActionUpdate:  "Updating a live resource changes running configuration.",
	engine.ActionDelete:  "Deleting a resource is destructive and may not be recoverable.",
	engine.ActionScale:   "Scaling changes the capacity of a running workload.",
	engine.ActionRestart: "Restarting a workload briefly disrupts it while pods cycle.",
}

var sandboxNamespaces = map[string]struct{}{
	"staging":     {},
	"dev":         {},
	"development": {},
	"sandbox":     {},
}

var ephemeralKinds = []string{"Job", "CronJob"}

// Evaluate scores a proposed change from its action, target namespace and
// kind, diff content, and step list. It has no side effects and always
// returns a fully populated Risk.
func Evaluate(action engine.Action, namespace, kind string, diff engine.DiffSnapshot, steps []engine.Step) engine.Risk {
	score, ok := baselines[action]
	if !ok {
		score = baselines[engine.ActionUpdate]
	}

	var factors []string
	add := func(factor string, delta float64) {
		factors = append(factors, factor)
		score += delta
	}

	sandbox := IsSandboxNamespace(namespace)
	if sandbox {
		add(FactorSandboxScope, -0.10)
	} else {
		add(FactorProductionNamespace, 0.10)
	}

	if isEphemeralKind(kind) {
		add(FactorEphemeralKind, -0.05)
	}

	if touchesReplicas(diff.Patch) {
		add(FactorReplicaChange, 0.08)
	}

	if rollsOutImage(diff.Patch) {
		add(FactorImageRollout, 0.12)
	}

	if len(steps) > multiStepLimit {
		add(FactorMultiStepPlan, 0.05)
	}

	hasRollback := len(diff.RollbackPatch) > 0
	if hasRollback {
		add(FactorRollbackAvailable, -0.05)
	}

	score = round2(clamp(score))
	level := LevelForScore(score)

	r := engine.Risk{
		Level:           level,
		Score:           &score,
		Factors:         factors,
		SLOBudgetImpact: engine.ImpactForLevel(level),
	}
	r.Rationale = rationale(action, namespace, sandbox, hasRollback, r)
	r.PostConditions = postConditions(r)

	return r
}

// LevelForScore maps a score to its level.
func LevelForScore(score float64) engine.RiskLevel {
	switch {
	case score >= HighThreshold:
		return engine.RiskHigh
	case score >= MediumThreshold:
		return engine.RiskMedium
	default:
		return engine.RiskLow
	}
}

// IsSandboxNamespace reports whether the namespace belongs to the sandbox set.
// Every other namespace, including the empty one, is treated as production.
func IsSandboxNamespace(namespace string) bool {
	_, ok := sandboxNamespaces[strings.ToLower(strings.TrimSpace(namespace))]
	return ok
}

func isEphemeralKind(kind string) bool {
	for _, k := range ephemeralKinds {
		if strings.EqualFold(kind, k) {
			return true
		}
	}
	return false
}

func touchesReplicas(ops []engine.PatchOp) bool {
	for _, op := range ops {
		if strings.Contains(op.Path, "/spec/replicas") {
			return true
		}
	}
	return false
}

func rollsOutImage(ops []engine.PatchOp) bool {
	for _, op := range ops {
		if !strings.Contains(op.Path, "/containers") {
			continue
		}
		if s, ok := op.Value.(string); ok && strings.Contains(s, ":") {
			return true
		}
	}
	return false
}

func rationale(action engine.Action, namespace string, sandbox, hasRollback bool, r engine.Risk) string {
	sentences := make([]string, 0, 5)

	if s, ok := actionSentences[action]; ok {
		sentences = append(sentences, s)
	} else {
		sentences = append(sentences, fmt.Sprintf("Action %q is unclassified and scored as an update.", action))
	}

	if sandbox {
		sentences = append(sentences, fmt.Sprintf("Namespace %q is a sandbox scope with reduced blast radius.", namespace))
	} else {
		sentences = append(sentences, fmt.Sprintf("Namespace %q is treated as production scope.", namespace))
	}

	if hasRollback {
		sentences = append(sentences, "A rollback patch is available.")
	}
	if r.HasFactor(FactorImageRollout) {
		sentences = append(sentences, "Container image rollout detected; new images can change runtime behavior.")
	}
	if r.HasFactor(FactorReplicaChange) {
		sentences = append(sentences, "Replica count changes alter serving capacity.")
	}

	return strings.Join(sentences, " ")
}

func postConditions(r engine.Risk) []string {
	checks := []string{}
	if r.Level == engine.RiskHigh {
		checks = append(checks, PostConditionBurnRate)
	}
	if r.HasFactor(FactorImageRollout) {
		checks = append(checks, PostConditionReadiness)
	}
	if r.HasFactor(FactorReplicaChange) {
		checks = append(checks, PostConditionAutoscale)
	}
	return checks
}

func clamp(score float64) float64 {
	return math.Max(0, math.Min(1, score))
}

// round2 removes floating-point drift so threshold comparisons are exact.
func round2(score float64) float64 {
	return math.Round(score*100) / 100
}
