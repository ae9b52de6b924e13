package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "development", mutate: func(c *Config) { *c = *DevelopmentConfig() }},
		{name: "missing service", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: "service name"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
		{
			name: "bad exporter",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: "invalid trace exporter",
		},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "otlp"
			},
			wantErr: "requires an endpoint",
		},
		{name: "sampling rate", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: "sampling rate"},
		{name: "metrics address", mutate: func(c *Config) { c.Metrics.ListenAddress = "" }, wantErr: "listen address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.NewComponentLogger("lifecycle").
		WithPlanID("plan-1").
		WithResource("Deployment", "prod", "web").
		Debug().Msg("drafted")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v: %s", err, buf.String())
	}

	want := map[string]string{
		"level":     "debug",
		"component": "lifecycle",
		"plan_id":   "plan-1",
		"kind":      "Deployment",
		"namespace": "prod",
		"name":      "web",
		"message":   "drafted",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("field %s = %v, want %s", k, entry[k], v)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info written at warn level: %s", buf.String())
	}

	logger.Warn().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn not written: %s", buf.String())
	}
}

func TestFromContextFallsBackToNop(t *testing.T) {
	logger := FromContext(context.Background())
	if logger == nil {
		t.Fatal("FromContext() returned nil")
	}
	// Must not panic.
	logger.WithPlanID("x").Info().Msg("discarded")
}

func TestParseLevel(t *testing.T) {
	if got := ParseLevel("nonsense"); got.String() != "info" {
		t.Errorf("ParseLevel(nonsense) = %s, want info", got)
	}
	if got := ParseLevel("error"); got.String() != "error" {
		t.Errorf("ParseLevel(error) = %s, want error", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordDraft("scale", "low", nil)
	m.RecordExecution(OutcomeSuccess)
	m.RecordDismissal()
	m.ObserveOperation("execute", time.Second)
	m.RecordGuardrailFinding("p", "warning")
	m.RecordAuditEvent("plan.generated")
	m.RecordAuditSinkFailure("log")
	m.RecordError("conflict", "STATUS_CONFLICT")

	disabled, err := NewMetrics(MetricsConfig{})
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	disabled.RecordExecution(OutcomeSuccess)
	if disabled.Registry() != nil {
		t.Error("disabled metrics should have no registry")
	}
	if err := disabled.Serve(context.Background()); err != nil {
		t.Errorf("Serve() on disabled metrics = %v", err)
	}
}

func TestMetricsRecorders(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}

	score := 0.73
	m.RecordDraft("delete", "high", &score)
	m.RecordExecution(OutcomeSuccess)
	m.RecordExecution(OutcomeSuccess)
	m.RecordExecution(OutcomeConflict)
	m.RecordAuditEvent("plan.generated")
	m.RecordAuditSinkFailure("store")
	m.RecordDismissal()

	if got := testutil.ToFloat64(m.plansDrafted.WithLabelValues("delete", "high")); got != 1 {
		t.Errorf("plans drafted = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.executions.WithLabelValues(OutcomeSuccess)); got != 2 {
		t.Errorf("successful executions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.executions.WithLabelValues(OutcomeConflict)); got != 1 {
		t.Errorf("conflicting executions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.auditSinkFailures.WithLabelValues("store")); got != 1 {
		t.Errorf("sink failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.dismissals); got != 1 {
		t.Errorf("dismissals = %v, want 1", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	m.RecordExecution(OutcomeReplay)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `opsplan_plan_executions_total{outcome="replay"} 1`) {
		t.Errorf("metrics body missing execution counter:\n%s", rec.Body.String())
	}
}

func TestStartOperationWithoutTelemetry(t *testing.T) {
	ic := StartOperation(context.Background(), "draft")
	if ic.Ctx == nil || ic.Logger == nil || ic.Timer == nil {
		t.Fatal("StartOperation() returned incomplete context")
	}
	if ic.Span != nil {
		t.Error("span should be nil without telemetry")
	}
	ic.End(nil)
}

func TestStartOperationWithTelemetry(t *testing.T) {
	tel := Nop()
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	tel.Metrics = m

	ctx := tel.WithContext(context.Background())
	if FromTelemetryContext(ctx) != tel {
		t.Fatal("telemetry not stored in context")
	}

	ic := StartOperation(ctx, "execute", AttrPlanID.String("p1"))
	if ic.Span == nil {
		t.Fatal("expected a span")
	}
	ic.End(nil)

	if n := testutil.CollectAndCount(m.operationDuration); n != 1 {
		t.Errorf("operation duration series = %d, want 1", n)
	}
}

func TestNopTracer(t *testing.T) {
	tracer, err := NewTracer(TracingConfig{}, "opsplan", "test", "dev")
	if err != nil {
		t.Fatalf("NewTracer() error = %v", err)
	}
	ctx, span := tracer.StartPlanSpan(context.Background(), "execute", "p1")
	RecordError(span, context.Canceled)
	span.End()

	if TraceID(ctx) != "" {
		t.Error("no-op tracer should not produce a valid trace id")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
