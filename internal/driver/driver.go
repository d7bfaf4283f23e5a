// Package driver implements the per-item lifecycle state machine.
//
// A Driver walks its item through Init, InitContent, Install, InstallContent,
// Settle and SettleContent, in that order and exactly once each, calling the
// item's Behavior around the attached Handlers at every step. Install and
// InstallContent are skipped when the version stored for the item already
// equals its declared version.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/semver"
	"github.com/vk/setupgrid/internal/sorter"
)

var (
	// ErrStepOrder is returned when a step is executed out of sequence.
	ErrStepOrder = errors.New("step out of order")
	// ErrDriverFailed is returned when a step is requested after a failure.
	ErrDriverFailed = errors.New("driver already failed")
	// ErrDriverDone is returned when a handler is attached after StepDone.
	ErrDriverDone = errors.New("driver is done")
	// ErrBlocked marks a driver that never ran because a predecessor failed.
	ErrBlocked = errors.New("blocked by failed predecessor")
)

// StepError describes a failed step.
type StepError struct {
	Item    string
	Step    Step
	Before  bool
	Handler string
	Err     error
}

func (e *StepError) Error() string {
	var where string
	switch {
	case e.Handler != "":
		where = "handler " + e.Handler
	case e.Before:
		where = "before handlers"
	default:
		where = "after handlers"
	}
	return fmt.Sprintf("item %q: step %s failed (%s): %v", e.Item, e.Step, where, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// BuildInfo is what a Factory receives to create a Driver.
type BuildInfo struct {
	Item            *sorter.SortedItem
	ExternalVersion semver.Version
}

// Driver is the stateful wrapper of one sorted item.
type Driver struct {
	item     *sorter.SortedItem
	external semver.Version
	behavior Behavior
	handlers []Handler

	step           Step
	err            error
	versionSkipped bool
}

// New creates a driver positioned at StepNone.
func New(info BuildInfo, behavior Behavior) *Driver {
	if behavior == nil {
		behavior = NopBehavior{}
	}
	return &Driver{
		item:     info.Item,
		external: info.ExternalVersion,
		behavior: behavior,
	}
}

func (d *Driver) Item() *sorter.SortedItem { return d.item }

func (d *Driver) FullName() string { return d.item.FullName }

// ExternalVersion is the version found in the repository, zero if none.
func (d *Driver) ExternalVersion() semver.Version { return d.external }

// Step is the last step the driver executed or attempted.
func (d *Driver) Step() Step { return d.step }

// Failed reports whether any step of the driver failed.
func (d *Driver) Failed() bool { return d.err != nil }

// Err returns the failure of the driver, if any.
func (d *Driver) Err() error { return d.err }

// VersionSkipped reports whether Install was skipped because the stored
// version already matched.
func (d *Driver) VersionSkipped() bool { return d.versionSkipped }

// NeedsInstall reports whether Install work will run for this driver.
func (d *Driver) NeedsInstall() bool {
	return !semver.Equal(d.external, d.item.Item.Version)
}

// HandlerCount returns the number of attached handlers.
func (d *Driver) HandlerCount() int { return len(d.handlers) }

// AddHandler attaches h. Handlers run in attachment order and only see
// steps that start after they were attached.
func (d *Driver) AddHandler(h Handler) error {
	if h == nil {
		return errors.New("nil handler")
	}
	if d.step == StepDone {
		return fmt.Errorf("item %q: %w", d.FullName(), ErrDriverDone)
	}
	d.handlers = append(d.handlers, h)
	return nil
}

// Fail marks the driver failed without running anything.
func (d *Driver) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Execute runs step. It must be the step after the current one.
func (d *Driver) Execute(ctx context.Context, step Step) error {
	if d.err != nil {
		return fmt.Errorf("item %q: %w", d.FullName(), ErrDriverFailed)
	}
	if step != d.step.Next() || d.step == StepDone {
		return fmt.Errorf("item %q: %w: %s after %s", d.FullName(), ErrStepOrder, step, d.step)
	}
	logger := ctxlog.FromContext(ctx).With("item", d.FullName(), "step", step.String())

	if step == StepDone {
		d.step = StepDone
		return nil
	}
	d.step = step

	if step.IsContent() && !d.item.IsContainer() {
		logger.Debug("Content step passed through.")
		return nil
	}
	if step.IsInstall() && !d.NeedsInstall() {
		d.versionSkipped = true
		logger.Debug("Install skipped, stored version is current.", "version", d.external.String())
		return nil
	}

	if err := d.call(ctx, step, true, "", func() error {
		return d.behavior.Execute(ctx, d, step, true)
	}); err != nil {
		return err
	}
	handlers := append([]Handler(nil), d.handlers...)
	for i, h := range handlers {
		if err := d.call(ctx, step, false, handlerName(h, i), func() error {
			return h.Handle(ctx, d, step)
		}); err != nil {
			return err
		}
	}
	if err := d.call(ctx, step, false, "", func() error {
		return d.behavior.Execute(ctx, d, step, false)
	}); err != nil {
		return err
	}
	logger.Debug("Step completed.", "handlers", len(handlers))
	return nil
}

// call runs fn, converting a panic into an error, and records a failure.
func (d *Driver) call(ctx context.Context, step Step, before bool, handler string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			stepErr := &StepError{Item: d.FullName(), Step: step, Before: before, Handler: handler, Err: err}
			ctxlog.FromContext(ctx).Warn("Step failed.",
				"item", d.FullName(), "step", step.String(), "before", before, "handler", handler, "error", err)
			d.err = stepErr
			err = stepErr
		}
	}()
	return fn()
}
