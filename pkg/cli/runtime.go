package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/userdirectory/pkg/config"
	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/logger"
	"github.com/nimburion/userdirectory/pkg/observability/metrics"
	"github.com/nimburion/userdirectory/pkg/observability/tracing"
	"github.com/nimburion/userdirectory/pkg/store"
	"github.com/nimburion/userdirectory/pkg/store/instrumented"
	"github.com/nimburion/userdirectory/pkg/version"
)

const metricsNamespace = "userdir"

type environment struct {
	opts  Options
	flags *rootFlags
}

// runtime is everything a storage-backed command needs.
type runtime struct {
	cmd        *cobra.Command
	cfg        *config.Config
	log        logger.Logger
	registry   *metrics.Registry
	collectors *metrics.BackendCollectors
	tracer     *tracing.TracerProvider
	backend    directory.Backend
	service    *directory.Service
}

// start loads configuration and builds an instrumented, disconnected backend
// behind a Service.
func (e *environment) start(cmd *cobra.Command) (*runtime, error) {
	cfg, _, err := e.loadConfig(cmd.Flags())
	if err != nil {
		return nil, err
	}
	return e.startWith(cmd, cfg)
}

func (e *environment) startWith(cmd *cobra.Command, cfg *config.Config) (*runtime, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	operationID := cmd.Name() + "-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	ctx = logger.ContextWithOperationID(ctx, operationID)
	cmd.SetContext(ctx)

	rt := &runtime{cmd: cmd, cfg: cfg, log: log.WithContext(ctx)}

	rt.tracer, err = tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: version.Current(cfg.Service.Name).Version,
		Environment:    cfg.Service.Environment,
		StorageType:    cfg.Storage.Type,
		Endpoint:       cfg.Observability.TracingEndpoint,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracer provider: %w", err)
	}

	raw, err := e.opts.NewBackend(cfg.Storage, rt.log)
	if err != nil {
		return nil, err
	}

	wrapOpts := []instrumented.Option{
		instrumented.WithName(cfg.Storage.Type),
		instrumented.WithContext(ctx),
		instrumented.WithTracer(rt.tracer.Tracer(tracing.InstrumentationName)),
	}
	if cfg.Storage.Table != "" {
		wrapOpts = append(wrapOpts, instrumented.WithTable(cfg.Storage.Table))
	}
	serviceOpts := []directory.Option{directory.WithLogger(rt.log)}
	if cfg.Observability.MetricsEnabled {
		rt.registry = metrics.NewRegistry()
		rt.collectors = metrics.NewBackendCollectors(metricsNamespace)
		rt.registry.MustRegister(rt.collectors.Collectors()...)
		wrapOpts = append(wrapOpts, instrumented.WithCollectors(rt.collectors))
		serviceOpts = append(serviceOpts, directory.WithRejectionHook(rt.collectors.RecordRejection))
	}

	rt.backend = instrumented.Wrap(raw, wrapOpts...)
	rt.service = directory.NewService(rt.backend, serviceOpts...)
	return rt, nil
}

// connect initializes the service against the configured descriptor,
// retrying as configured by storage.connect_retries.
func (rt *runtime) connect() error {
	err := store.ConnectWithRetry(rt.cmd.Context(), rt.cfg.Storage, rt.backend, rt.log, func() bool {
		return rt.service.Initialize(rt.cfg.Storage.URL)
	})
	if err != nil {
		return fmt.Errorf("connect %s storage: %w", rt.cfg.Storage.Type, err)
	}
	return nil
}

// failure turns a sentinel result into an error carrying the backend's last error.
func (rt *runtime) failure(action string) error {
	if msg := rt.backend.GetLastError(); msg != "" {
		return fmt.Errorf("%s: %s", action, msg)
	}
	return fmt.Errorf("%s: %w", action, errNotReady)
}

var errNotReady = errors.New("user directory not ready")

// close disconnects the backend and flushes telemetry.
func (rt *runtime) close(printMetrics bool) {
	rt.backend.Disconnect()
	if err := rt.tracer.Shutdown(context.Background()); err != nil {
		rt.log.Warn("tracer shutdown failed", "error", err)
	}
	if printMetrics && rt.registry != nil {
		if err := rt.registry.WriteText(rt.cmd.ErrOrStderr()); err != nil {
			rt.log.Warn("write metrics failed", "error", err)
		}
	}
	if zl, ok := rt.log.(interface{ Sync() error }); ok {
		_ = zl.Sync()
	}
}
