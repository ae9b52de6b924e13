// Package telemetry provides observability instrumentation for opsplan.
//
// It integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind one Config.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("lifecycle")
//	logger.WithPlanID(plan.ID).Info().Msg("plan drafted")
//	logger.WithError(err).Error().Msg("execute failed")
//
// # Tracing
//
// Each lifecycle operation runs inside a span:
//
//	ctx, span := tel.Tracer.StartPlanSpan(ctx, "execute", planID)
//	defer span.End()
//
// Supported exporters: "otlp" (OTLP/gRPC), "stdout", "none".
//
// # Metrics
//
// Metrics live on a private registry and every recorder is nil-safe, so a
// disabled Metrics can be passed around freely. Key series:
//
//   - opsplan_plans_drafted_total{action,level}
//   - opsplan_plan_risk_score{action}
//   - opsplan_plan_executions_total{outcome}
//   - opsplan_plan_dismissals_total
//   - opsplan_lifecycle_operation_duration_seconds{operation}
//   - opsplan_guardrail_findings_total{policy,severity}
//   - opsplan_audit_events_total{type}
//   - opsplan_audit_sink_failures_total{sink}
//   - opsplan_errors_total{kind,code}
//
// Metrics.Serve exposes them over HTTP until its context is cancelled.
package telemetry
