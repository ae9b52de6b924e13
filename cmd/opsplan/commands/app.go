package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/opsplan/pkg/audit"
	"github.com/openfroyo/opsplan/pkg/config"
	"github.com/openfroyo/opsplan/pkg/lifecycle"
	"github.com/openfroyo/opsplan/pkg/policy"
	"github.com/openfroyo/opsplan/pkg/prompts"
	"github.com/openfroyo/opsplan/pkg/risk"
	"github.com/openfroyo/opsplan/pkg/stores"
	"github.com/openfroyo/opsplan/pkg/telemetry"
)

// shutdownTimeout bounds flushing audit sinks and exporters on exit.
const shutdownTimeout = 10 * time.Second

// app holds the components wired from the configuration.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	store     stores.Store
	registry  prompts.Registry
	annotator *risk.Annotator
	policies  *policy.Engine
	recorder  *audit.Recorder
	service   *lifecycle.Service
}

// loadConfig reads the configuration named by the global flags.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	return config.Load(opts.configPath)
}

// openApp wires every component. Callers must call close.
func openApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a = &app{cfg: cfg, telemetry: tel}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	logger := tel.Logger.Zerolog()

	if a.store, err = openStore(ctx, cfg.Store); err != nil {
		return nil, err
	}

	if a.registry, err = openRegistry(ctx, cfg.Prompts, tel.Logger); err != nil {
		return nil, err
	}
	a.annotator = risk.NewAnnotator(a.registry, logger)

	if cfg.Policy.Enabled {
		if a.policies, err = openPolicies(ctx, cfg.Policy, tel.Logger); err != nil {
			return nil, err
		}
	}

	sinks, err := openSinks(cfg.Audit, a.store, tel.Logger)
	if err != nil {
		return nil, err
	}
	a.recorder = audit.NewRecorder(logger, tel.Metrics, sinks...)

	svcOpts := []lifecycle.Option{
		lifecycle.WithAnnotator(a.annotator),
		lifecycle.WithRecorder(a.recorder),
		lifecycle.WithLogger(tel.Logger),
		lifecycle.WithMetrics(tel.Metrics),
		lifecycle.WithTracer(tel.Tracer),
	}
	if a.policies != nil {
		svcOpts = append(svcOpts, lifecycle.WithGuardrails(a.policies))
	}
	if a.service, err = lifecycle.NewService(a.store, svcOpts...); err != nil {
		return nil, err
	}

	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (stores.Store, error) {
	var store stores.Store
	switch cfg.Backend {
	case config.BackendMemory:
		store = stores.NewMemoryStore()
	case config.BackendSQLite:
		s, err := stores.NewSQLiteStore(stores.Config{
			Path:            cfg.SQLite.Path,
			MaxOpenConns:    cfg.SQLite.MaxOpenConns,
			MaxIdleConns:    cfg.SQLite.MaxIdleConns,
			ConnMaxLifetime: cfg.SQLite.ConnMaxLifetime,
			BusyTimeout:     cfg.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		store = s
	case config.BackendDynamoDB:
		s, err := stores.NewDynamoDBStore(ctx, stores.DynamoDBConfig{
			PlansTable: cfg.DynamoDB.PlansTable,
			AuditTable: cfg.DynamoDB.AuditTable,
			Region:     cfg.DynamoDB.Region,
			Profile:    cfg.DynamoDB.Profile,
			Endpoint:   cfg.DynamoDB.Endpoint,
		})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}

	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", cfg.Backend, err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate %s store: %w", cfg.Backend, err)
	}
	return store, nil
}

func openRegistry(ctx context.Context, cfg config.PromptsConfig, logger *telemetry.Logger) (prompts.Registry, error) {
	if cfg.Path == "" {
		return prompts.NewStaticRegistry()
	}

	reg, err := prompts.NewFileRegistry(cfg.Path, logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if cfg.Watch {
		if err := reg.Watch(ctx); err != nil {
			logger.WithError(err).Warn().Msg("prompt registry hot reload disabled")
		}
	}
	return reg, nil
}

func openPolicies(ctx context.Context, cfg config.PolicyConfig, logger *telemetry.Logger) (*policy.Engine, error) {
	opts := []policy.Option{
		policy.WithLimits(policy.Limits{
			MaxReplicas:        cfg.MaxReplicas,
			MaxProductionSteps: cfg.MaxProductionSteps,
		}),
	}
	if cfg.DisableBuiltins {
		opts = append(opts, policy.WithoutBuiltins())
	}

	eng, err := policy.NewEngine(logger.Zerolog(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}

	if len(cfg.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, cfg.Paths); err != nil {
			return nil, err
		}
		if cfg.Watch {
			if err := eng.Watch(ctx); err != nil {
				logger.WithError(err).Warn().Msg("policy hot reload disabled")
			}
		}
	}
	return eng, nil
}

func openSinks(cfg config.AuditConfig, store stores.AuditStore, logger *telemetry.Logger) ([]audit.Sink, error) {
	var sinks []audit.Sink
	if cfg.Log {
		sinks = append(sinks, audit.NewLogSink(logger.Zerolog()))
	}

	// Store and file sinks do I/O and are the ones worth queueing.
	var durable []audit.Sink
	if cfg.Store {
		durable = append(durable, audit.NewStoreSink(store))
	}
	if cfg.File != "" {
		fs, err := audit.NewFileSink(cfg.File)
		if err != nil {
			return nil, err
		}
		durable = append(durable, fs)
	}

	for _, s := range durable {
		if cfg.Async {
			s = audit.NewAsyncSink(s, cfg.BufferSize, logger.Zerolog())
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// close flushes audit sinks, then releases the store and telemetry.
func (a *app) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.telemetry != nil {
		errs = append(errs, a.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
