package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/setupgrid/internal/config"
	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/item"
	"github.com/vk/setupgrid/internal/sorter"
)

// Load reads every model path, checks the declared handlers against the
// registry and translates the declarations into items.
func (a *App) Load(ctx context.Context) (*config.Model, []*item.Item, error) {
	ctx = a.withLogger(ctx)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading model...", "paths", a.config.ModelPaths)
	if len(a.config.ModelPaths) == 0 {
		return nil, nil, errors.New("no model paths configured")
	}

	model, err := a.loader.Load(ctx, a.config.ModelPaths...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load model: %w", err)
	}
	if len(model.Items) == 0 {
		return nil, nil, fmt.Errorf("no items found in %v", a.config.ModelPaths)
	}
	if err := a.registry.ValidateModel(ctx, model); err != nil {
		return nil, nil, fmt.Errorf("invalid handler declarations: %w", err)
	}
	items, err := model.BuildItems()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid items: %w", err)
	}
	logger.Info("Model loaded successfully.", "items_found", len(items))
	return model, items, nil
}

// Plan loads the model and sorts it without touching the version store or
// running any handler.
func (a *App) Plan(ctx context.Context) (*sorter.Result, error) {
	_, items, err := a.Load(ctx)
	if err != nil {
		return nil, err
	}
	res := sorter.Sort(items, sorter.Options{RevertOrderingNames: a.config.RevertOrderingNames})
	for _, d := range res.Diagnostics.DroppedOptional {
		a.logger.Info("Optional reference dropped.", "item", d.Item, "field", d.Field, "reference", d.Name)
	}
	if err := res.Diagnostics.Err(); err != nil {
		return res, fmt.Errorf("model cannot be ordered: %w", err)
	}
	return res, nil
}
