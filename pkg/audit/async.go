package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openfroyo/opsplan/pkg/engine"
)

// DefaultBufferSize is the default capacity of an AsyncSink queue.
const DefaultBufferSize = 1000

var (
	// ErrBufferFull is returned when an AsyncSink queue has no room.
	ErrBufferFull = errors.New("audit buffer full, event dropped")

	// ErrSinkClosed is returned by writes after Shutdown.
	ErrSinkClosed = errors.New("audit sink is shut down")
)

type queuedEvent struct {
	ctx   context.Context
	event engine.AuditEvent
}

// AsyncSink decouples a slow sink from the caller. Events are delivered to
// the wrapped sink by a single goroutine in the order they were written.
type AsyncSink struct {
	next   Sink
	buffer chan queuedEvent
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncSink wraps next with a buffered queue of bufferSize events.
func NewAsyncSink(next Sink, bufferSize int, logger zerolog.Logger) *AsyncSink {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	s := &AsyncSink{
		next:   next,
		buffer: make(chan queuedEvent, bufferSize),
		logger: logger.With().Str("component", "audit-async").Str("sink", next.Name()).Logger(),
	}
	s.wg.Add(1)
	go s.deliver()
	return s
}

// Name implements Sink.
func (s *AsyncSink) Name() string { return "async-" + s.next.Name() }

// Write enqueues the event without blocking.
func (s *AsyncSink) Write(ctx context.Context, event engine.AuditEvent) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	select {
	case s.buffer <- queuedEvent{ctx: context.WithoutCancel(ctx), event: event}:
		return nil
	default:
		return ErrBufferFull
	}
}

func (s *AsyncSink) deliver() {
	defer s.wg.Done()
	for q := range s.buffer {
		if err := s.next.Write(q.ctx, q.event); err != nil {
			s.logger.Warn().
				Err(err).
				Str("event_id", q.event.ID).
				Str("plan_id", q.event.PlanID).
				Msg("async audit delivery failed")
		}
	}
}

// Shutdown stops accepting events and waits for the queue to drain.
func (s *AsyncSink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.buffer)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit sink shutdown: %w", ctx.Err())
	}
}

// Close drains the queue and closes the wrapped sink.
func (s *AsyncSink) Close() error {
	if err := s.Shutdown(context.Background()); err != nil {
		return err
	}
	return s.next.Close()
}
