package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/setup"
	"github.com/vk/setupgrid/internal/versionstore"
)

// Run loads the model and drives every item through Init, Install and
// Settle. The report is returned whenever the run got as far as creating the
// setup center, even when the error is not nil.
func (a *App) Run(ctx context.Context) (*setup.Report, error) {
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("App.Run method started.")

	a.healthCheckServer()

	_, items, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}

	repo, err := a.openStore(ctx, a.config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open version store: %w", err)
	}
	defer func() {
		if err := versionstore.Close(repo); err != nil {
			logger.Error("Failed to close version store.", "error", err)
		}
	}()
	logger.Debug("Version store opened.", "backend", a.config.Store.Backend)

	center, err := setup.New(setup.Config{
		Versions:            repo,
		Factory:             a.registry.Factory(ctx, nil),
		RevertOrderingNames: a.config.RevertOrderingNames,
		Metrics:             a.metrics,
	})
	if err != nil {
		return nil, err
	}
	center.OnDriverEvent(logDriverEvent)

	logger.Info("🚀 Starting setup run...", "items", len(items))
	report, runErr := center.Run(ctx, items)

	switch {
	case report.Cancelled != nil:
		logger.Warn("🛑 Setup run cancelled.", "state", report.State.String(), "error", report.Cancelled)
	case report.OK():
		logger.Info("🏁 Setup run finished.", "committed", len(report.Committed), "skipped", len(report.Skipped))
	default:
		logger.Error("💥 Setup run finished with errors.", "state", report.State.String(), "failed", len(report.FailedItems()))
	}
	logger.Debug("App.Run method finished.")

	if runErr != nil {
		var regErr *setup.RegistrationError
		if errors.As(runErr, &regErr) {
			return report, runErr
		}
		return report, fmt.Errorf("setup run failed: %w", runErr)
	}
	return report, nil
}

func logDriverEvent(ctx context.Context, ev setup.DriverEvent) {
	logger := ctxlog.FromContext(ctx)
	switch ev.Step {
	case driver.StepNone:
		logger.Debug("Driver created.",
			"item", ev.Driver.FullName(),
			"handlers", ev.Driver.HandlerCount(),
			"stored_version", ev.Driver.ExternalVersion().String())
	case driver.StepDone:
		logger.Debug("Driver settled.", "item", ev.Driver.FullName(), "failed", ev.Driver.Failed())
	default:
		logger.Debug("Executing step.", "item", ev.Driver.FullName(), "step", ev.Step.String())
	}
}
