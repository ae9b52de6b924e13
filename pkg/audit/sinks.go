package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/opsplan/pkg/engine"
	"github.com/openfroyo/opsplan/pkg/stores"
)

// MemorySink keeps events in process, in write order.
type MemorySink struct {
	mu     sync.RWMutex
	events []engine.AuditEvent
}

// NewMemorySink creates an empty memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Name implements Sink.
func (s *MemorySink) Name() string { return "memory" }

// Write implements Sink.
func (s *MemorySink) Write(_ context.Context, event engine.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Close implements Sink.
func (s *MemorySink) Close() error { return nil }

// Events returns a copy of all recorded events.
func (s *MemorySink) Events() []engine.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]engine.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Types returns the event types recorded for planID, in order.
func (s *MemorySink) Types(planID string) []engine.AuditEventType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []engine.AuditEventType
	for _, e := range s.events {
		if e.PlanID == planID {
			out = append(out, e.Type)
		}
	}
	return out
}

// Reset drops all recorded events.
func (s *MemorySink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// LogSink writes events as structured log lines.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit-log").Logger()}
}

// Name implements Sink.
func (s *LogSink) Name() string { return "log" }

// Write implements Sink. Failure events are logged at warn level.
func (s *LogSink) Write(_ context.Context, event engine.AuditEvent) error {
	ev := s.logger.Info()
	if event.Type == engine.EventPlanExecutionFailure {
		ev = s.logger.Warn()
	}
	ev.Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("plan_id", event.PlanID).
		Str("actor", event.Actor).
		Time("event_time", event.Timestamp).
		Interface("details", event.Details).
		Msg("audit event")
	return nil
}

// Close implements Sink.
func (s *LogSink) Close() error { return nil }

// StoreSink persists events to an audit store.
type StoreSink struct {
	store stores.AuditStore
}

// NewStoreSink creates a sink backed by store.
func NewStoreSink(store stores.AuditStore) *StoreSink {
	return &StoreSink{store: store}
}

// Name implements Sink.
func (s *StoreSink) Name() string { return "store" }

// Write implements Sink.
func (s *StoreSink) Write(ctx context.Context, event engine.AuditEvent) error {
	return s.store.AppendAuditEvent(ctx, event)
}

// Close implements Sink. The store is owned by the caller.
func (s *StoreSink) Close() error { return nil }

// FileSink appends events as JSON lines to a file.
type FileSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	enc  *json.Encoder
}

// NewFileSink opens path for appending, creating it if needed.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	return &FileSink{path: path, file: f, enc: json.NewEncoder(f)}, nil
}

// Name implements Sink.
func (s *FileSink) Name() string { return "file" }

// Write implements Sink.
func (s *FileSink) Write(_ context.Context, event engine.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return fmt.Errorf("audit file %s is closed", s.path)
	}
	return s.enc.Encode(event)
}

// Close implements Sink.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
