package policy

import (
	"time"

	"github.com/openfroyo/opsplan/pkg/engine"
)

// Severity represents the severity level of a guardrail finding.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that a reviewer should look at.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that should make a reviewer hesitate.
	SeverityError Severity = "error"

	// SeverityCritical is for findings that almost certainly need rework.
	SeverityCritical Severity = "critical"
)

// Policy represents a guardrail rule with its Rego code.
//
// A policy's module must define a set rule named deny whose members are
// either strings or objects with a message and an optional severity.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name" yaml:"name"`

	// Description provides a human-readable description.
	Description string `json:"description" yaml:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego" yaml:"rego"`

	// Severity is the default severity for findings.
	Severity Severity `json:"severity" yaml:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// CreatedAt is when the policy was created.
	CreatedAt time.Time `json:"created_at" yaml:"createdAt"`

	// UpdatedAt is when the policy was last updated.
	UpdatedAt time.Time `json:"updated_at" yaml:"updatedAt"`
}

// Input is the document exposed to Rego as input.
type Input struct {
	// Plan is the drafted plan in its JSON read-model shape.
	Plan map[string]any `json:"plan"`

	// Context describes where the plan would run.
	Context InputContext `json:"context"`

	// Limits carries tunable thresholds referenced by policies.
	Limits Limits `json:"limits"`
}

// InputContext provides evaluation context to policies.
type InputContext struct {
	// Production is true unless the namespace is a sandbox namespace.
	Production bool `json:"production"`

	// Destructive is true when the plan's action removes the resource.
	Destructive bool `json:"destructive"`

	// Operation is the lifecycle operation being evaluated.
	Operation string `json:"operation"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// Limits are thresholds shared by the built-in policies.
type Limits struct {
	// MaxReplicas is the replica target above which a scale is flagged.
	MaxReplicas int `json:"maxReplicas"`

	// MaxProductionSteps is the step count above which a production plan is flagged.
	MaxProductionSteps int `json:"maxProductionSteps"`
}

// DefaultLimits returns the thresholds used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxReplicas:        50,
		MaxProductionSteps: 3,
	}
}

// Result is the outcome of evaluating every enabled policy against a plan.
type Result struct {
	// Findings are the advisory findings, ordered by policy then message.
	Findings []engine.GuardrailFinding `json:"findings"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the evaluation finished.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// PolicyBundle represents a collection of related policies.
type PolicyBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name" yaml:"name"`

	// Version is the bundle version.
	Version string `json:"version" yaml:"version"`

	// Description provides a human-readable description.
	Description string `json:"description" yaml:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies" yaml:"policies"`
}
