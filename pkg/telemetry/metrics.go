package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Execution outcomes recorded by RecordExecution.
const (
	OutcomeSuccess    = "success"
	OutcomeReplay     = "replay"
	OutcomeValidation = "validation_failure"
	OutcomeConflict   = "conflict"
	OutcomeNotFound   = "not_found"
	OutcomeError      = "error"
)

// Metrics provides Prometheus metrics for the plan lifecycle.
// All recorders are safe to call on a nil or disabled Metrics.
type Metrics struct {
	config MetricsConfig

	// Lifecycle metrics
	plansDrafted      *prometheus.CounterVec
	riskScore         *prometheus.HistogramVec
	executions        *prometheus.CounterVec
	dismissals        prometheus.Counter
	operationDuration *prometheus.HistogramVec
	guardrailFindings *prometheus.CounterVec

	// Audit metrics
	auditEvents       *prometheus.CounterVec
	auditSinkFailures *prometheus.CounterVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		plansDrafted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_drafted_total",
				Help:      "Total number of operation plans drafted",
			},
			[]string{"action", "level"},
		),
		riskScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_risk_score",
				Help:      "Risk score of drafted plans",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"action"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_executions_total",
				Help:      "Total number of execute calls by outcome",
			},
			[]string{"outcome"},
		),
		dismissals: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_dismissals_total",
				Help:      "Total number of plans dismissed",
			},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lifecycle_operation_duration_seconds",
				Help:      "Duration of lifecycle operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),
		guardrailFindings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "guardrail_findings_total",
				Help:      "Total number of advisory guardrail findings on drafted plans",
			},
			[]string{"policy", "severity"},
		),
		auditEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_events_total",
				Help:      "Total number of audit events recorded",
			},
			[]string{"type"},
		),
		auditSinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_sink_failures_total",
				Help:      "Total number of audit sink write failures",
			},
			[]string{"sink"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of lifecycle errors by kind and code",
			},
			[]string{"kind", "code"},
		),
	}

	registry.MustRegister(
		m.plansDrafted,
		m.riskScore,
		m.executions,
		m.dismissals,
		m.operationDuration,
		m.guardrailFindings,
		m.auditEvents,
		m.auditSinkFailures,
		m.errorsByKind,
	)

	return m, nil
}

// Registry returns the private registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordDraft records a drafted plan and its score.
func (m *Metrics) RecordDraft(action, level string, score *float64) {
	if m == nil || m.plansDrafted == nil {
		return
	}
	m.plansDrafted.WithLabelValues(action, level).Inc()
	if score != nil {
		m.riskScore.WithLabelValues(action).Observe(*score)
	}
}

// RecordExecution records the outcome of an execute call.
func (m *Metrics) RecordExecution(outcome string) {
	if m == nil || m.executions == nil {
		return
	}
	m.executions.WithLabelValues(outcome).Inc()
}

// RecordDismissal records a dismissed plan.
func (m *Metrics) RecordDismissal() {
	if m == nil || m.dismissals == nil {
		return
	}
	m.dismissals.Inc()
}

// ObserveOperation records the duration of a lifecycle operation.
func (m *Metrics) ObserveOperation(operation string, duration time.Duration) {
	if m == nil || m.operationDuration == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordGuardrailFinding records an advisory policy finding.
func (m *Metrics) RecordGuardrailFinding(policy, severity string) {
	if m == nil || m.guardrailFindings == nil {
		return
	}
	m.guardrailFindings.WithLabelValues(policy, severity).Inc()
}

// RecordAuditEvent records an audit event handed to the recorder.
func (m *Metrics) RecordAuditEvent(eventType string) {
	if m == nil || m.auditEvents == nil {
		return
	}
	m.auditEvents.WithLabelValues(eventType).Inc()
}

// RecordAuditSinkFailure records a swallowed audit sink failure.
func (m *Metrics) RecordAuditSinkFailure(sink string) {
	if m == nil || m.auditSinkFailures == nil {
		return
	}
	m.auditSinkFailures.WithLabelValues(sink).Inc()
}

// RecordError records an error by kind and code.
func (m *Metrics) RecordError(kind, code string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind, code).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context) error {
	if m == nil || !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
