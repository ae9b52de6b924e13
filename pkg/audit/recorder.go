// Package audit fans lifecycle audit events out to pluggable sinks.
//
// The Recorder implements engine.AuditRecorder. A sink that fails or panics
// is logged and counted, and the remaining sinks still receive the event;
// nothing is ever returned to the caller.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/telemetry"
)

// Sink is a destination for audit events.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write delivers one event.
	Write(ctx context.Context, event engine.AuditEvent) error

	// Close releases the sink's resources.
	Close() error
}

// Recorder delivers each event to every configured sink in order.
type Recorder struct {
	sinks   []Sink
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

var _ engine.AuditRecorder = (*Recorder)(nil)

// NewRecorder creates a recorder over the given sinks. metrics may be nil.
func NewRecorder(logger zerolog.Logger, metrics *telemetry.Metrics, sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:   sinks,
		logger:  logger.With().Str("component", "audit").Logger(),
		metrics: metrics,
	}
}

// Record assigns an id and timestamp when missing and writes the event to all sinks.
func (r *Recorder) Record(ctx context.Context, event engine.AuditEvent) {
	if r == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	r.metrics.RecordAuditEvent(string(event.Type))

	for _, sink := range r.sinks {
		if err := r.write(ctx, sink, event); err != nil {
			r.metrics.RecordAuditSinkFailure(sink.Name())
			r.logger.Warn().
				Err(err).
				Str("sink", sink.Name()).
				Str("event_id", event.ID).
				Str("event_type", string(event.Type)).
				Str("plan_id", event.PlanID).
				Msg("audit sink write failed")
		}
	}
}

// write isolates one sink so that a panic is reported as an error.
func (r *Recorder) write(ctx context.Context, sink Sink, event engine.AuditEvent) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("sink panicked: %v", rec)
		}
	}()
	return sink.Write(ctx, event)
}

// Close closes every sink and returns the joined errors.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
