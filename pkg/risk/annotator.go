package risk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/prompts"
)

// PostConditionHumanApproval is required for plans authored from high-tier templates.
const PostConditionHumanApproval = "Record explicit human approval before execution"

// PromptRegistry resolves instruction-template metadata.
// Metadata returns nil, nil for unknown ids.
type PromptRegistry interface {
	Metadata(ctx context.Context, id string) (*prompts.Metadata, error)
}

// tierPolicy is the minimum risk implied by a template tier.
type tierPolicy struct {
	scoreFloor float64
	minImpact  engine.SLOImpact
	sentence   string
}

var tierPolicies = map[engine.RiskLevel]tierPolicy{
	engine.RiskLow: {
		scoreFloor: 0.35,
		minImpact:  engine.SLOImpactLow,
		sentence:   "Source prompt %q is classified low risk.",
	},
	engine.RiskMedium: {
		scoreFloor: 0.55,
		minImpact:  engine.SLOImpactMedium,
		sentence:   "Source prompt %q is classified medium risk; review the proposed change carefully.",
	},
	engine.RiskHigh: {
		scoreFloor: 0.75,
		minImpact:  engine.SLOImpactHigh,
		sentence:   "Source prompt %q is classified high risk and requires explicit human approval.",
	},
}

// PromptFactor returns the factor tag for a template tier.
func PromptFactor(tier engine.RiskLevel) string {
	return fmt.Sprintf("prompt_%s_risk", tier)
}

// Annotator escalates an evaluated risk using the provenance of the
// instruction template that produced the change. It only ever raises risk.
type Annotator struct {
	registry PromptRegistry
	logger   zerolog.Logger
}

// NewAnnotator creates an annotator. A nil registry disables annotation.
func NewAnnotator(registry PromptRegistry, logger zerolog.Logger) *Annotator {
	return &Annotator{
		registry: registry,
		logger:   logger.With().Str("component", "risk-annotator").Logger(),
	}
}

// Annotate returns risk elevated to the tier of promptID's template.
// When the id is empty or cannot be resolved the input is returned unchanged.
// The input is never mutated.
func (a *Annotator) Annotate(ctx context.Context, risk engine.Risk, promptID string) engine.Risk {
	if a == nil || a.registry == nil || promptID == "" {
		return risk
	}

	meta, err := a.registry.Metadata(ctx, promptID)
	if err != nil {
		a.logger.Debug().Err(err).Str("prompt_id", promptID).Msg("Prompt lookup failed, risk left unchanged")
		return risk
	}
	if meta == nil {
		a.logger.Debug().Str("prompt_id", promptID).Msg("Unknown prompt, risk left unchanged")
		return risk
	}

	policy, ok := tierPolicies[meta.RiskTier]
	if !ok {
		a.logger.Debug().
			Str("prompt_id", promptID).
			Str("tier", string(meta.RiskTier)).
			Msg("Unknown prompt tier, risk left unchanged")
		return risk
	}

	return elevate(risk, meta.RiskTier, promptID, policy)
}

// ElevateToTier applies a template tier to risk without consulting a registry.
func ElevateToTier(risk engine.Risk, tier engine.RiskLevel, promptID string) engine.Risk {
	policy, ok := tierPolicies[tier]
	if !ok {
		return risk
	}
	return elevate(risk, tier, promptID, policy)
}

// elevate applies policy for tier to a copy of risk.
func elevate(risk engine.Risk, tier engine.RiskLevel, promptID string, policy tierPolicy) engine.Risk {
	out := risk.Clone()

	factor := PromptFactor(tier)
	if !out.HasFactor(factor) {
		out.Factors = append(out.Factors, factor)
	}

	out.Level = out.Level.Max(tier)

	score := policy.scoreFloor
	if out.Score != nil && *out.Score > score {
		score = *out.Score
	}
	out.Score = &score

	out.SLOBudgetImpact = out.SLOBudgetImpact.Max(policy.minImpact)

	if tier == engine.RiskHigh && !contains(out.PostConditions, PostConditionHumanApproval) {
		out.PostConditions = append(out.PostConditions, PostConditionHumanApproval)
	}

	sentence := fmt.Sprintf(policy.sentence, promptID)
	if out.Rationale == "" {
		out.Rationale = sentence
	} else {
		out.Rationale = out.Rationale + " " + sentence
	}

	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
