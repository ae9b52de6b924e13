package telemetry_test

import (
	"context"
	"fmt"
	"os"

	"github.com/openfroyo/opsplan/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Logging.Level = "disabled"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	telemetry.FromContext(ctx).Info().Msg("application started")

	fmt.Println(tel.Metrics.Registry() != nil)
	// Output: true
}

// Example_structuredLogging demonstrates plan-scoped JSON logging.
func Example_structuredLogging() {
	logger := telemetry.NewLoggerWithWriter(telemetry.LoggingConfig{
		Level:  "info",
		Format: "json",
	}, os.Stdout)

	logger.NewComponentLogger("lifecycle").
		WithPlanID("plan-1").
		WithActor("alice").
		Info().Msg("plan executed")
}

// Example_instrumentedOperation demonstrates the InstrumentedContext helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = "disabled"
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	ic := telemetry.StartOperation(ctx, "plan.draft",
		telemetry.AttrPlanAction.String("scale"),
	)
	ic.Logger.Debug().Msg("drafting")
	ic.End(nil)

	fmt.Println("operation instrumented")
	// Output: operation instrumented
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()
	cfg.ServiceVersion = "1.2.3"
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"

	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("Production configuration validated")
	// Output: Production configuration validated
}
