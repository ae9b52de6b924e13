package engine

import (
	"encoding/json"
	"time"
)

// DefaultPlanVersion is the schema version stamped on plans that do not carry one.
const DefaultPlanVersion = "v1"

// OperationPlan is a reviewable, auditable unit of proposed infrastructure change.
type OperationPlan struct {
	// ID is the unique identifier for this plan. It is never reused.
	ID string `json:"id"`

	// Version is the plan schema version.
	Version string `json:"version"`

	// Status is the current lifecycle status.
	Status Status `json:"status"`

	// Action is the kind of change the plan performs.
	Action Action `json:"action"`

	// Intent is the human-readable goal of the change.
	Intent string `json:"intent"`

	// AIRationale is the explanation supplied by the authoring assistant, if any.
	AIRationale string `json:"aiRationale"`

	// Resource identifies the target of the change.
	Resource ResourceRef `json:"resource"`

	// Diff is the proposed patch and its context.
	Diff DiffSnapshot `json:"diff"`

	// Steps is the ordered, descriptive step list.
	Steps []Step `json:"steps"`

	// Risk is the scored risk assessment.
	Risk Risk `json:"risk"`

	// Audit carries actors, tokens and timestamps.
	Audit Audit `json:"audit"`

	// Guardrails are advisory policy findings recorded at draft time.
	Guardrails []GuardrailFinding `json:"guardrails,omitempty"`
}

// ResourceRef identifies the resource a plan targets.
type ResourceRef struct {
	Kind      string `json:"kind"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	UID       string `json:"uid,omitempty"`

	// ResourceVersion is the concurrency token captured at draft time.
	// Execution must present the same value.
	ResourceVersion string `json:"resourceVersion,omitempty"`

	Cluster string `json:"cluster,omitempty"`
	Href    string `json:"href"`
}

// PatchFormat names the encoding of a patch document.
type PatchFormat string

const (
	// PatchFormatJSONPatch is an RFC6902 JSON Patch.
	PatchFormatJSONPatch PatchFormat = "rfc6902"

	// PatchFormatStrategicMerge is a strategic-merge patch.
	PatchFormatStrategicMerge PatchFormat = "strategic-merge"
)

// DiffSnapshot captures the proposed change against a prior snapshot.
type DiffSnapshot struct {
	// Before is the resource snapshot the patch was computed against. May be null.
	Before json.RawMessage `json:"before"`

	// Patch is the ordered list of operations to apply.
	Patch []PatchOp `json:"patch"`

	// RollbackPatch reverts Patch when applied to the resulting document.
	RollbackPatch []PatchOp `json:"rollbackPatch,omitempty"`

	PatchFormat PatchFormat `json:"patchFormat"`
}

// PatchOp is a single RFC6902 operation.
type PatchOp struct {
	Op    PatchOpType `json:"op" validate:"required,oneof=add remove replace"`
	Path  string      `json:"path" validate:"required"`
	Value any         `json:"value,omitempty"`
}

// PatchOpType is an RFC6902 operation name.
type PatchOpType string

const (
	PatchOpAdd     PatchOpType = "add"
	PatchOpRemove  PatchOpType = "remove"
	PatchOpReplace PatchOpType = "replace"
)

// Step is a descriptive unit of a plan. Steps are not tracked individually;
// the plan transitions as a whole.
type Step struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	Description   string    `json:"description"`
	Patch         []PatchOp `json:"patch,omitempty"`
	RollbackPatch []PatchOp `json:"rollbackPatch,omitempty"`
}

// Risk is the scored assessment attached to a plan.
type Risk struct {
	Level     RiskLevel `json:"level"`
	Rationale string    `json:"rationale"`

	// Score is in [0,1]. Nil means the plan was never scored.
	Score *float64 `json:"score"`

	// Factors is an ordered set of heuristic tags.
	Factors []string `json:"factors"`

	SLOBudgetImpact SLOImpact `json:"sloBudgetImpact,omitempty"`

	// PostConditions are checks to run after execution.
	PostConditions []string `json:"postConditions"`
}

// HasFactor reports whether the factor tag is present.
func (r Risk) HasFactor(factor string) bool {
	for _, f := range r.Factors {
		if f == factor {
			return true
		}
	}
	return false
}

// Audit records who did what to a plan, and when.
type Audit struct {
	RequestedBy    string     `json:"requestedBy"`
	ConfirmedBy    string     `json:"confirmedBy,omitempty"`
	ExecutedBy     string     `json:"executedBy"`
	IdempotencyKey string     `json:"idempotencyKey,omitempty"`
	SourcePromptID string     `json:"sourcePromptId,omitempty"`
	Timestamps     Timestamps `json:"timestamps"`
}

// Timestamps are the lifecycle instants of a plan.
type Timestamps struct {
	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt"`
	ExecutedAt  *time.Time `json:"executedAt"`
	FailedAt    *time.Time `json:"failedAt"`
	RevertedAt  *time.Time `json:"revertedAt"`
}

// GuardrailFinding is an advisory policy result recorded on a plan.
type GuardrailFinding struct {
	Policy   string `json:"policy"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// AuditEventType names a lifecycle audit event.
type AuditEventType string

const (
	EventPlanGenerated        AuditEventType = "plan.generated"
	EventPlanExecutionAttempt AuditEventType = "plan.execution.attempt"
	EventPlanExecutionSuccess AuditEventType = "plan.execution.success"
	EventPlanExecutionFailure AuditEventType = "plan.execution.failure"
	EventPlanDismissed        AuditEventType = "plan.dismissed"
)

// AuditEvent is an append-only record of a lifecycle transition.
type AuditEvent struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Type is the event type.
	Type AuditEventType `json:"type"`

	// PlanID is the plan the event refers to.
	PlanID string `json:"planId"`

	// Actor is the identity that caused the event.
	Actor string `json:"actor,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Details contains event-specific data.
	Details map[string]any `json:"details,omitempty"`
}

// Clone returns a deep copy of the plan. Mutating the copy never affects the original.
func (p *OperationPlan) Clone() *OperationPlan {
	if p == nil {
		return nil
	}
	c := *p
	c.Resource = p.Resource
	c.Diff = p.Diff.clone()
	if p.Steps != nil {
		c.Steps = make([]Step, len(p.Steps))
		for i, s := range p.Steps {
			c.Steps[i] = s
			c.Steps[i].Patch = clonePatch(s.Patch)
			c.Steps[i].RollbackPatch = clonePatch(s.RollbackPatch)
		}
	}
	c.Risk = p.Risk.Clone()
	c.Audit.Timestamps = p.Audit.Timestamps.clone()
	if p.Guardrails != nil {
		c.Guardrails = append([]GuardrailFinding(nil), p.Guardrails...)
	}
	return &c
}

// Clone returns a deep copy of the risk.
func (r Risk) Clone() Risk {
	c := r
	if r.Score != nil {
		s := *r.Score
		c.Score = &s
	}
	if r.Factors != nil {
		c.Factors = append([]string(nil), r.Factors...)
	}
	if r.PostConditions != nil {
		c.PostConditions = append([]string(nil), r.PostConditions...)
	}
	return c
}

func (d DiffSnapshot) clone() DiffSnapshot {
	c := d
	if d.Before != nil {
		c.Before = append(json.RawMessage(nil), d.Before...)
	}
	c.Patch = clonePatch(d.Patch)
	c.RollbackPatch = clonePatch(d.RollbackPatch)
	return c
}

func (t Timestamps) clone() Timestamps {
	return Timestamps{
		CreatedAt:   t.CreatedAt,
		ConfirmedAt: cloneTime(t.ConfirmedAt),
		ExecutedAt:  cloneTime(t.ExecutedAt),
		FailedAt:    cloneTime(t.FailedAt),
		RevertedAt:  cloneTime(t.RevertedAt),
	}
}

// clonePatch copies the op slice. Values are treated as immutable JSON values.
func clonePatch(ops []PatchOp) []PatchOp {
	if ops == nil {
		return nil
	}
	return append([]PatchOp(nil), ops...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
