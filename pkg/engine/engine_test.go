package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusPending, StatusExecuted, true},
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusExecuted, true},
		{StatusPending, StatusFailed, true},
		{StatusConfirmed, StatusFailed, true},
		{StatusExecuted, StatusReverted, true},
		{StatusExecuted, StatusPending, false},
		{StatusExecuted, StatusExecuted, false},
		{StatusFailed, StatusExecuted, false},
		{StatusReverted, StatusExecuted, false},
		{StatusPending, StatusReverted, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.allowed {
				t.Errorf("CanTransition() = %v, want %v", got, tt.allowed)
			}
		})
	}

	if !StatusFailed.IsTerminal() || !StatusReverted.IsTerminal() {
		t.Error("failed and reverted must be terminal")
	}
	if StatusPending.IsTerminal() {
		t.Error("pending must not be terminal")
	}
}

func TestStatusUnmarshalRejectsUnknown(t *testing.T) {
	var s Status
	if err := json.Unmarshal([]byte(`"dismissed"`), &s); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if err := json.Unmarshal([]byte(`"executed"`), &s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != StatusExecuted {
		t.Errorf("expected executed, got %s", s)
	}
}

func TestRiskLevelOrdering(t *testing.T) {
	if RiskLow.Max(RiskHigh) != RiskHigh {
		t.Error("max(low, high) must be high")
	}
	if RiskHigh.Max(RiskMedium) != RiskHigh {
		t.Error("max(high, medium) must be high")
	}
	if SLOImpactNone.Max(SLOImpactLow) != SLOImpactLow {
		t.Error("max(none, low) must be low")
	}
	if SLOImpact("").Max(SLOImpactNone) != SLOImpactNone {
		t.Error("empty impact must adopt the other value")
	}
	if RiskLevel("extreme").Validate() == nil {
		t.Error("unknown level must fail validation")
	}
}

func TestActionIsDestructive(t *testing.T) {
	for _, a := range Actions {
		if got, want := a.IsDestructive(), a == ActionDelete; got != want {
			t.Errorf("%s.IsDestructive() = %v, want %v", a, got, want)
		}
	}
}

func TestErrorClassification(t *testing.T) {
	base := NewValidationError("resourceVersion mismatch", "resourceVersion", "41", "42").
		WithCode(ErrCodeResourceVersion).
		WithPlan("plan-1")
	wrapped := fmt.Errorf("execute: %w", base)

	if !IsValidation(wrapped) {
		t.Fatal("expected wrapped error to be classified as validation")
	}
	if IsNotFound(wrapped) || IsConflict(wrapped) {
		t.Fatal("unexpected classification")
	}
	if !errors.Is(wrapped, &Error{Kind: ErrorKindValidation}) {
		t.Error("errors.Is should match on kind alone")
	}
	if errors.Is(wrapped, &Error{Kind: ErrorKindValidation, Code: ErrCodeIdempotencyKey}) {
		t.Error("errors.Is should not match a different code")
	}

	msg := base.Error()
	for _, want := range []string{"validation", "plan-1", `"41"`, `"42"`, "resourceVersion"} {
		if !contains(msg, want) {
			t.Errorf("error message %q missing %q", msg, want)
		}
	}

	cause := errors.New("disk full")
	unavailable := NewUnavailableError("failed to persist plan", cause)
	if !errors.Is(unavailable, cause) {
		t.Error("unavailable error should unwrap to its cause")
	}
	if KindOf(cause) != "" {
		t.Error("plain errors have no kind")
	}
}

func TestPointerEscaping(t *testing.T) {
	tests := []struct {
		tokens []string
		path   string
	}{
		{[]string{"spec", "replicas"}, "/spec/replicas"},
		{[]string{"metadata", "annotations", "app.kubernetes.io/name"}, "/metadata/annotations/app.kubernetes.io~1name"},
		{[]string{"a~b"}, "/a~0b"},
		{[]string{"~1"}, "/~01"},
		{[]string{""}, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := JoinPointer(tt.tokens...); got != tt.path {
				t.Errorf("JoinPointer() = %q, want %q", got, tt.path)
			}
			got, err := SplitPointer(tt.path)
			if err != nil {
				t.Fatalf("SplitPointer() error: %v", err)
			}
			if len(got) != len(tt.tokens) {
				t.Fatalf("SplitPointer() = %v, want %v", got, tt.tokens)
			}
			for i := range got {
				if got[i] != tt.tokens[i] {
					t.Errorf("token %d = %q, want %q", i, got[i], tt.tokens[i])
				}
			}
		})
	}

	if tokens, err := SplitPointer(""); err != nil || tokens != nil {
		t.Errorf("empty pointer should yield no tokens, got %v, %v", tokens, err)
	}
	for _, bad := range []string{"spec/replicas", "/a~2b", "/trailing~"} {
		if _, err := SplitPointer(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestDeriveIdempotencyKeyIsDeterministic(t *testing.T) {
	resource := ResourceRef{Kind: "Deployment", Namespace: "production", Name: "api", ResourceVersion: "41"}
	diff := DiffSnapshot{
		Before:      json.RawMessage(`{"spec": {"replicas": 3}}`),
		Patch:       []PatchOp{{Op: PatchOpReplace, Path: "/spec/replicas", Value: 6}},
		PatchFormat: PatchFormatJSONPatch,
	}

	k1 := DeriveIdempotencyKey(resource, ActionScale, diff)
	k2 := DeriveIdempotencyKey(resource, ActionScale, diff)
	if k1 != k2 {
		t.Fatalf("keys differ: %s vs %s", k1, k2)
	}
	if len(k1) != len("opk_")+32 {
		t.Errorf("unexpected key length: %s", k1)
	}

	// Whitespace in the snapshot and a refreshed resourceVersion do not change the key.
	refreshed := resource
	refreshed.ResourceVersion = "42"
	reformatted := diff
	reformatted.Before = json.RawMessage(`{"spec":{"replicas":3}}`)
	if got := DeriveIdempotencyKey(refreshed, ActionScale, reformatted); got != k1 {
		t.Errorf("expected identical key, got %s vs %s", got, k1)
	}

	changed := diff
	changed.Patch = []PatchOp{{Op: PatchOpReplace, Path: "/spec/replicas", Value: 7}}
	if DeriveIdempotencyKey(resource, ActionScale, changed) == k1 {
		t.Error("different diff must produce a different key")
	}
	if DeriveIdempotencyKey(resource, ActionUpdate, diff) == k1 {
		t.Error("different action must produce a different key")
	}
}

func TestCloneIsDeep(t *testing.T) {
	score := 0.5
	now := time.Now()
	p := &OperationPlan{
		ID:     "p1",
		Status: StatusPending,
		Diff: DiffSnapshot{
			Before: json.RawMessage(`{}`),
			Patch:  []PatchOp{{Op: PatchOpAdd, Path: "/a", Value: "b"}},
		},
		Steps: []Step{{ID: "s1", Patch: []PatchOp{{Op: PatchOpRemove, Path: "/a"}}}},
		Risk:  Risk{Score: &score, Factors: []string{"x"}, PostConditions: []string{"y"}},
		Audit: Audit{Timestamps: Timestamps{CreatedAt: now, ConfirmedAt: &now}},
	}

	c := p.Clone()
	*c.Risk.Score = 0.9
	c.Risk.Factors[0] = "changed"
	c.Diff.Patch[0].Path = "/changed"
	c.Steps[0].Patch[0].Path = "/changed"
	*c.Audit.Timestamps.ConfirmedAt = now.Add(time.Hour)
	c.Status = StatusExecuted

	if *p.Risk.Score != 0.5 || p.Risk.Factors[0] != "x" {
		t.Error("risk was shared with the clone")
	}
	if p.Diff.Patch[0].Path != "/a" || p.Steps[0].Patch[0].Path != "/a" {
		t.Error("patch was shared with the clone")
	}
	if !p.Audit.Timestamps.ConfirmedAt.Equal(now) {
		t.Error("timestamps were shared with the clone")
	}
	if p.Status != StatusPending {
		t.Error("status was shared with the clone")
	}
}

func contains(s, substr string) bool {
	return len(substr) == 0 || (len(s) >= len(substr) && indexOf(s, substr) >= 0)
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
