package engine

import (
	"context"
	"time"
)

// AuditRecorder records lifecycle audit events.
// Record never fails from the caller's point of view: implementations
// swallow sink errors so that auditing cannot break a transition.
type AuditRecorder interface {
	Record(ctx context.Context, event AuditEvent)
}

// Clock supplies the current time. Tests inject a fixed clock.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock returns wall-clock UTC time.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
