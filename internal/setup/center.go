// Package setup contains the setup center: the orchestrator that sorts a
// batch of items, creates one driver per item and waves every phase across
// the whole sorted sequence.
//
// A run is Register, RunInit, RunInstall and RunSettle, in that order. A
// failing item never stops the run: it is recorded, its dependents are
// blocked, and every independent item keeps going so that one pass reports
// all problems. Versions are committed to the repository at the end of
// RunInstall for every item whose install ran and succeeded.
package setup

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/item"
	"github.com/vk/setupgrid/internal/sorter"
	"github.com/vk/setupgrid/internal/versionstore"
)

// ErrInvalidState is returned when an operation is called out of order.
var ErrInvalidState = errors.New("invalid setup center state")

// DriverEvent is raised just before a driver executes a step, and with
// StepNone when the driver is created.
type DriverEvent struct {
	Step   driver.Step
	Driver *driver.Driver
}

// Observer receives driver events synchronously. Observers may attach
// handlers to the driver of the event.
type Observer func(ctx context.Context, ev DriverEvent)

// Config holds the collaborators of a Center.
type Config struct {
	Versions versionstore.Repository
	// Factory defaults to driver.DefaultFactory.
	Factory             driver.Factory
	RevertOrderingNames bool
	Metrics             *Metrics
}

// RegistrationError is returned by Register when the batch cannot be driven.
type RegistrationError struct {
	Diagnostics *sorter.Diagnostics
	Err         error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("registration failed: %v", e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Failure is one failed item.
type Failure struct {
	Item string
	Step driver.Step
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s at %s: %v", f.Item, f.Step, f.Err)
}

// Center orchestrates one setup run. It is not safe for concurrent use.
type Center struct {
	cfg       Config
	state     State
	observers []Observer

	sorted  *sorter.Result
	drivers []*driver.Driver
	byItem  map[*sorter.SortedItem]*driver.Driver

	failures  []Failure
	committed []string
	regErr    error
	runErr    error
}

// New creates a Center. Versions is required.
func New(cfg Config) (*Center, error) {
	if cfg.Versions == nil {
		return nil, errors.New("setup: a version repository is required")
	}
	if cfg.Factory == nil {
		cfg.Factory = driver.DefaultFactory{}
	}
	return &Center{cfg: cfg, byItem: make(map[*sorter.SortedItem]*driver.Driver)}, nil
}

// OnDriverEvent adds an observer. Observers run in the order they were added.
func (c *Center) OnDriverEvent(o Observer) {
	c.observers = append(c.observers, o)
}

func (c *Center) State() State { return c.state }

// Sorted returns the sort result of the registered batch.
func (c *Center) Sorted() *sorter.Result { return c.sorted }

// Drivers returns the drivers in item order.
func (c *Center) Drivers() []*driver.Driver { return c.drivers }

// Driver returns the driver of the named item.
func (c *Center) Driver(fullName string) *driver.Driver {
	for _, d := range c.drivers {
		if d.FullName() == fullName {
			return d
		}
	}
	return nil
}

// Register sorts items and creates their drivers in sorted order. When the
// sort is incomplete no driver is created and the center moves to
// StateRegistrationError for good.
func (c *Center) Register(ctx context.Context, items []*item.Item) error {
	if c.state != StateNone {
		return fmt.Errorf("%w: register in state %s", ErrInvalidState, c.state)
	}
	logger := ctxlog.FromContext(ctx)

	c.sorted = sorter.Sort(items, sorter.Options{RevertOrderingNames: c.cfg.RevertOrderingNames})
	diags := &c.sorted.Diagnostics
	c.cfg.Metrics.sorted(diags.FatalCount())
	if !diags.IsComplete {
		c.state = StateRegistrationError
		c.regErr = diags.Err()
		logger.Error("Item batch cannot be sorted.", "fatal", diags.FatalCount(), "cycle", diags.Cycle)
		return &RegistrationError{Diagnostics: diags, Err: c.regErr}
	}
	for _, u := range diags.DroppedOptional {
		logger.Debug("Optional reference dropped.", "item", u.Item, "field", u.Field, "name", u.Name)
	}

	for _, s := range c.sorted.Items() {
		if err := ctx.Err(); err != nil {
			return c.failRegistration(err)
		}
		external, err := c.cfg.Versions.GetVersion(ctx, s.Item.ItemType(), s.FullName)
		if err != nil {
			return c.failRegistration(fmt.Errorf("get version of %q: %w", s.FullName, err))
		}
		d, err := c.cfg.Factory.CreateDriver(s.Item.Kind, driver.BuildInfo{Item: s, ExternalVersion: external})
		if err == nil && d == nil {
			err = errors.New("factory returned no driver")
		}
		if err != nil {
			return c.failRegistration(fmt.Errorf("create driver of %q: %w", s.FullName, err))
		}
		c.drivers = append(c.drivers, d)
		c.byItem[s] = d
		c.emit(ctx, driver.StepNone, d)
	}

	c.state = StateRegistered
	logger.Info("📋 Items registered.", "items", len(c.drivers), "nodes", len(c.sorted.Sorted))
	return nil
}

func (c *Center) failRegistration(err error) error {
	c.state = StateRegistrationError
	c.drivers = nil
	c.byItem = make(map[*sorter.SortedItem]*driver.Driver)
	c.regErr = err
	return &RegistrationError{Diagnostics: &c.sorted.Diagnostics, Err: err}
}

// emit notifies observers. A panicking observer fails the driver.
func (c *Center) emit(ctx context.Context, step driver.Step, d *driver.Driver) {
	ev := DriverEvent{Step: step, Driver: d}
	for _, o := range c.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					err := fmt.Errorf("driver event observer panicked: %v", r)
					d.Fail(err)
					c.fail(ctx, d, step, err)
				}
			}()
			o(ctx, ev)
		}()
	}
}

func (c *Center) fail(ctx context.Context, d *driver.Driver, step driver.Step, err error) {
	c.failures = append(c.failures, Failure{Item: d.FullName(), Step: step, Err: err})
	ctxlog.FromContext(ctx).Warn("Item failed.", "item", d.FullName(), "step", step.String(), "error", err)
}

// Run registers items and runs every phase. It always returns a report;
// the error is the report's error.
func (c *Center) Run(ctx context.Context, items []*item.Item) (*Report, error) {
	if err := c.Register(ctx, items); err != nil {
		return c.Report(), err
	}
	for _, phase := range []func(context.Context) error{c.RunInit, c.RunInstall, c.RunSettle} {
		if err := phase(ctx); err != nil && errors.Is(err, ErrInvalidState) {
			return c.Report(), err
		}
	}
	r := c.Report()
	return r, r.Err()
}
