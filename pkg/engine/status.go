package engine

import (
	"encoding/json"
	"fmt"
)

// Status represents the lifecycle status of an operation plan.
type Status string

const (
	// StatusPending indicates the plan was drafted and awaits execution.
	StatusPending Status = "pending"

	// StatusConfirmed indicates a reviewer confirmed the plan.
	StatusConfirmed Status = "confirmed"

	// StatusExecuted indicates the plan was executed.
	StatusExecuted Status = "executed"

	// StatusFailed indicates execution failed.
	StatusFailed Status = "failed"

	// StatusReverted indicates an executed plan was rolled back.
	StatusReverted Status = "reverted"
)

// transitions lists the allowed target statuses for each status.
// Only pending->executed is driven by an operation today; the remaining
// edges are representable so stores and read models accept them.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusExecuted, StatusFailed},
	StatusConfirmed: {StatusExecuted, StatusFailed},
	StatusExecuted:  {StatusReverted},
	StatusFailed:    nil,
	StatusReverted:  nil,
}

// CanTransition reports whether moving from s to next is a legal transition.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// Validate checks if the status is valid.
func (s Status) Validate() error {
	switch s {
	case StatusPending, StatusConfirmed, StatusExecuted, StatusFailed, StatusReverted:
		return nil
	default:
		return fmt.Errorf("invalid plan status: %s", s)
	}
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = Status(str)
	return s.Validate()
}

// Action represents the kind of change a plan performs.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionScale   Action = "scale"
	ActionRestart Action = "restart"
)

// Actions lists every supported action in declaration order.
var Actions = []Action{ActionCreate, ActionUpdate, ActionDelete, ActionScale, ActionRestart}

// IsDestructive returns true if the action removes a resource.
func (a Action) IsDestructive() bool {
	return a == ActionDelete
}

// Validate checks if the action is valid.
func (a Action) Validate() error {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionScale, ActionRestart:
		return nil
	default:
		return fmt.Errorf("invalid action: %s", a)
	}
}

// RiskLevel is the coarse risk classification of a plan.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank orders levels low < medium < high. Unknown levels rank below low.
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// Max returns the higher of two levels.
func (l RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.Rank() > l.Rank() {
		return other
	}
	return l
}

// Validate checks if the risk level is valid.
func (l RiskLevel) Validate() error {
	if l.Rank() == 0 {
		return fmt.Errorf("invalid risk level: %s", l)
	}
	return nil
}

// SLOImpact estimates how much error budget a change may consume.
type SLOImpact string

const (
	SLOImpactNone   SLOImpact = "none"
	SLOImpactLow    SLOImpact = "low"
	SLOImpactMedium SLOImpact = "medium"
	SLOImpactHigh   SLOImpact = "high"
)

// Rank orders impacts none < low < medium < high. Empty ranks as none.
func (i SLOImpact) Rank() int {
	switch i {
	case SLOImpactLow:
		return 1
	case SLOImpactMedium:
		return 2
	case SLOImpactHigh:
		return 3
	default:
		return 0
	}
}

// Max returns the higher of two impacts.
func (i SLOImpact) Max(other SLOImpact) SLOImpact {
	if other.Rank() > i.Rank() {
		return other
	}
	if i == "" {
		return other
	}
	return i
}

// ImpactForLevel maps a risk level to the SLO budget impact it implies.
func ImpactForLevel(l RiskLevel) SLOImpact {
	switch l {
	case RiskHigh:
		return SLOImpactHigh
	case RiskMedium:
		return SLOImpactMedium
	default:
		return SLOImpactLow
	}
}
