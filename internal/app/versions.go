package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/setupgrid/internal/semver"
	"github.com/vk/setupgrid/internal/versionstore"
)

// withStore opens the configured version store for the duration of fn.
func (a *App) withStore(ctx context.Context, fn func(repo versionstore.Repository) error) (err error) {
	repo, err := a.openStore(ctx, a.config.Store)
	if err != nil {
		return fmt.Errorf("failed to open version store: %w", err)
	}
	defer func() {
		if cerr := versionstore.Close(repo); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(repo)
}

// Versions lists every stored version.
func (a *App) Versions(ctx context.Context) ([]versionstore.Record, error) {
	ctx = a.withLogger(ctx)
	var records []versionstore.Record
	err := a.withStore(ctx, func(repo versionstore.Repository) error {
		lister, ok := repo.(versionstore.Lister)
		if !ok {
			return errors.New("the configured version store cannot list its content")
		}
		var err error
		records, err = lister.List(ctx)
		return err
	})
	return records, err
}

// GetVersion returns the stored version of one item. The zero Version means
// nothing is stored.
func (a *App) GetVersion(ctx context.Context, itemType, fullName string) (semver.Version, error) {
	ctx = a.withLogger(ctx)
	var v semver.Version
	err := a.withStore(ctx, func(repo versionstore.Repository) error {
		var err error
		v, err = repo.GetVersion(ctx, itemType, fullName)
		return err
	})
	return v, err
}

// SetVersion overwrites the stored version of one item.
func (a *App) SetVersion(ctx context.Context, itemType, fullName, version string) error {
	ctx = a.withLogger(ctx)
	v, err := semver.ParseVersion(version)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", version, err)
	}
	return a.withStore(ctx, func(repo versionstore.Repository) error {
		if err := repo.SetVersion(ctx, itemType, fullName, v); err != nil {
			return err
		}
		a.logger.Info("Version stored.", "type", itemType, "item", fullName, "version", v.String())
		return nil
	})
}
