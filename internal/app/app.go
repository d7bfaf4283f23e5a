package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/setupgrid/internal/config"
	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/hcl"
	"github.com/vk/setupgrid/internal/registry"
	"github.com/vk/setupgrid/internal/setup"
	"github.com/vk/setupgrid/internal/versionstore"
	"github.com/vk/setupgrid/internal/yamlmodel"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx    context.Context
	outW   io.Writer
	logger *slog.Logger
	config *Config

	registry *registry.Registry
	modules  []registry.Module
	loader   config.Loader

	metricsRegistry *prometheus.Registry
	metrics         *setup.Metrics

	httpServer *http.Server

	// openStore defaults to versionstore.Open.
	openStore func(ctx context.Context, cfg versionstore.Config) (versionstore.Repository, error)
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App with its own logger, registry and metrics registry. With
// no modules, CoreModules(outW) is used.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	reg := registry.New()
	if len(modules) == 0 {
		modules = CoreModules(outW)
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules), "handlers", reg.Names())

	if err := reg.ValidateRegistry(ctx); err != nil {
		// A handler input that cannot be bound is a programmer error.
		panic(err)
	}
	logger.Debug("Registry validation passed.")

	loader := config.NewMultiLoader().
		Handle(hcl.NewLoader(), hcl.Extension).
		Handle(yamlmodel.NewLoader(), yamlmodel.Extensions...)

	metricsRegistry := prometheus.NewRegistry()

	return &App{
		ctx:             ctx,
		outW:            outW,
		logger:          logger,
		config:          cfg,
		registry:        reg,
		modules:         modules,
		loader:          loader,
		metricsRegistry: metricsRegistry,
		metrics:         setup.NewMetrics(metricsRegistry),
		openStore:       versionstore.Open,
	}
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// MetricsRegistry returns the registry served on /metrics.
func (a *App) MetricsRegistry() *prometheus.Registry {
	return a.metricsRegistry
}

// Logger returns the application's logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Close releases every module holding connections.
func (a *App) Close() error {
	var errs []error
	for _, mod := range a.modules {
		if c, ok := mod.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close module %T: %w", mod, err))
			}
		}
	}
	if err := a.closeHealthCheckServer(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) withLogger(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}
