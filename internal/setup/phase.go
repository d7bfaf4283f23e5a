package setup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/setupgrid/internal/ctxlog"
	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/sorter"
)

type phase struct {
	name    string
	step    driver.Step
	from    []State
	success State
	failure State
}

var (
	phaseInit = phase{
		name:    "init",
		step:    driver.StepInit,
		from:    []State{StateRegistered},
		success: StateInitialized,
		failure: StateInitializationError,
	}
	phaseInstall = phase{
		name:    "install",
		step:    driver.StepInstall,
		from:    []State{StateInitialized, StateInitializationError},
		success: StateInstalled,
		failure: StateInstallationError,
	}
	phaseSettle = phase{
		name:    "settle",
		step:    driver.StepSettle,
		from:    []State{StateInstalled, StateInstallationError},
		success: StateSettled,
		failure: StateSettlementError,
	}
)

// RunInit runs Init and InitContent across the sorted sequence.
func (c *Center) RunInit(ctx context.Context) error {
	return c.runPhase(ctx, phaseInit)
}

// RunInstall runs Install and InstallContent across the sorted sequence,
// then commits the declared version of every item that installed
// successfully.
func (c *Center) RunInstall(ctx context.Context) error {
	return c.runPhase(ctx, phaseInstall)
}

// RunSettle runs Settle and SettleContent across the sorted sequence and
// completes every driver that did not fail.
func (c *Center) RunSettle(ctx context.Context) error {
	return c.runPhase(ctx, phaseSettle)
}

func (c *Center) runPhase(ctx context.Context, p phase) error {
	allowed := false
	for _, s := range p.from {
		allowed = allowed || c.state == s
	}
	if !allowed {
		return fmt.Errorf("%w: %s in state %s", ErrInvalidState, p.name, c.state)
	}

	logger := ctxlog.FromContext(ctx).With("phase", p.name)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Info("🚀 Phase starting.", "nodes", len(c.sorted.Sorted))
	start := time.Now()
	defer c.cfg.Metrics.phase(p.name, start)

	failuresBefore := len(c.failures)
	ok := c.wave(ctx, p.step)

	switch p.step {
	case driver.StepInstall:
		ok = c.commitVersions(ctx) && ok
	case driver.StepSettle:
		ok = c.complete(ctx) && ok
	}

	if ok {
		c.state = p.success
		logger.Info("🏁 Phase finished.", "state", c.state.String(), "duration", time.Since(start))
		return nil
	}
	c.state = p.failure
	logger.Warn("Phase finished with failures.", "state", c.state.String(), "new_failures", len(c.failures)-failuresBefore)
	if c.runErr != nil {
		return c.runErr
	}
	return fmt.Errorf("%s: %w", p.name, c.failureErr(failuresBefore))
}

// wave walks the sorted sequence once. A container head runs the main step,
// a container item runs the content step, and any other item runs both
// back to back. The driver passes a leaf's content step through.
func (c *Center) wave(ctx context.Context, main driver.Step) bool {
	ok := true
	for _, s := range c.sorted.Sorted {
		owner := s
		if s.IsHead {
			owner = s.Tail
		}
		d := c.byItem[owner]
		if d == nil {
			continue
		}

		var steps []driver.Step
		switch {
		case s.IsHead:
			steps = []driver.Step{main}
		case s.IsContainer():
			steps = []driver.Step{main.Content()}
		default:
			steps = []driver.Step{main, main.Content()}
		}

		for _, step := range steps {
			if err := ctx.Err(); err != nil {
				c.cancel(ctx, err)
				return false
			}
			if !c.execute(ctx, s, d, step) {
				ok = false
				break
			}
		}
	}
	return ok
}

// execute runs one step of d on behalf of node s.
func (c *Center) execute(ctx context.Context, s *sorter.SortedItem, d *driver.Driver, step driver.Step) bool {
	if d.Failed() {
		c.cfg.Metrics.step(step.String(), resultSkipped)
		return false
	}
	for _, p := range s.Predecessors {
		pd := c.driverOf(p)
		if pd == nil || pd == d || !pd.Failed() {
			continue
		}
		err := fmt.Errorf("%w %q", driver.ErrBlocked, pd.FullName())
		d.Fail(err)
		c.fail(ctx, d, step, err)
		c.cfg.Metrics.step(step.String(), resultBlocked)
		return false
	}

	c.emit(ctx, step, d)
	if d.Failed() {
		return false
	}
	if err := d.Execute(ctx, step); err != nil {
		d.Fail(err)
		c.fail(ctx, d, step, err)
		c.cfg.Metrics.step(step.String(), resultFailed)
		return false
	}
	if d.VersionSkipped() && step.IsInstall() {
		c.cfg.Metrics.step(step.String(), resultSkipped)
	} else {
		c.cfg.Metrics.step(step.String(), resultOK)
	}
	return true
}

func (c *Center) driverOf(s *sorter.SortedItem) *driver.Driver {
	if s.IsHead {
		s = s.Tail
	}
	return c.byItem[s]
}

func (c *Center) cancel(ctx context.Context, err error) {
	if c.runErr == nil {
		c.runErr = err
		ctxlog.FromContext(ctx).Warn("Run cancelled, remaining drivers are not called.", "error", err)
	}
}

// commitVersions stores the declared version of every item whose install
// ran to completion.
func (c *Center) commitVersions(ctx context.Context) bool {
	ok := true
	for _, d := range c.drivers {
		if err := ctx.Err(); err != nil {
			c.cancel(ctx, err)
			return false
		}
		if d.Failed() || d.Step() != driver.StepInstallContent || d.VersionSkipped() {
			continue
		}
		it := d.Item().Item
		if it.Version.IsZero() {
			continue
		}
		if err := c.cfg.Versions.SetVersion(ctx, it.ItemType(), it.FullName, it.Version); err != nil {
			err = fmt.Errorf("commit version %s: %w", it.Version, err)
			d.Fail(err)
			c.fail(ctx, d, driver.StepInstallContent, err)
			ok = false
			continue
		}
		c.committed = append(c.committed, it.FullName)
		c.cfg.Metrics.committed()
		ctxlog.FromContext(ctx).Debug("Version committed.", "item", it.FullName, "version", it.Version.String())
	}
	return ok
}

// complete moves every settled driver to StepDone.
func (c *Center) complete(ctx context.Context) bool {
	ok := true
	for _, d := range c.drivers {
		if d.Failed() || d.Step() != driver.StepSettleContent {
			ok = ok && !d.Failed()
			continue
		}
		if err := ctx.Err(); err != nil {
			c.cancel(ctx, err)
			return false
		}
		c.emit(ctx, driver.StepDone, d)
		if d.Failed() {
			ok = false
			continue
		}
		if err := d.Execute(ctx, driver.StepDone); err != nil {
			d.Fail(err)
			c.fail(ctx, d, driver.StepDone, err)
			ok = false
		}
	}
	return ok
}

func (c *Center) failureErr(from int) error {
	var errs []error
	for _, f := range c.failures[from:] {
		errs = append(errs, f)
	}
	if len(errs) == 0 {
		return errors.New("items failed in an earlier phase")
	}
	return errors.Join(errs...)
}
