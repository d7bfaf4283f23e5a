package setup

import (
	"errors"

	"github.com/vk/setupgrid/internal/driver"
	"github.com/vk/setupgrid/internal/sorter"
)

// Report is the complete outcome of a run.
type Report struct {
	State State
	// Sort is nil before Register.
	Sort  *sorter.Diagnostics
	Order []string
	// Registration is why Register failed, if it did.
	Registration error

	Failures []Failure
	// Committed lists items whose version was written, in item order.
	Committed []string
	// Skipped lists items whose install was skipped by version.
	Skipped []string
	// Cancelled is the context error that stopped the run, if any.
	Cancelled error
}

// OK reports whether the run reached StateSettled without failures.
func (r *Report) OK() bool {
	return r.State == StateSettled && len(r.Failures) == 0 && r.Cancelled == nil
}

// Err joins every problem of the run into one error.
func (r *Report) Err() error {
	var errs []error
	if r.Registration != nil {
		errs = append(errs, r.Registration)
	}
	for _, f := range r.Failures {
		errs = append(errs, f)
	}
	if r.Cancelled != nil {
		errs = append(errs, r.Cancelled)
	}
	return errors.Join(errs...)
}

// FailedItems returns the names of failed items, blocked ones included.
func (r *Report) FailedItems() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range r.Failures {
		if !seen[f.Item] {
			seen[f.Item] = true
			out = append(out, f.Item)
		}
	}
	return out
}

// Blocked reports whether f was caused by a failed predecessor.
func (f Failure) Blocked() bool {
	return errors.Is(f.Err, driver.ErrBlocked)
}

// Report snapshots the current outcome.
func (c *Center) Report() *Report {
	r := &Report{
		State:        c.state,
		Failures:     append([]Failure(nil), c.failures...),
		Committed:    append([]string(nil), c.committed...),
		Registration: c.regErr,
		Cancelled:    c.runErr,
	}
	if c.sorted != nil {
		r.Sort = &c.sorted.Diagnostics
		r.Order = c.sorted.Names()
	}
	for _, d := range c.drivers {
		if d.VersionSkipped() {
			r.Skipped = append(r.Skipped, d.FullName())
		}
	}
	return r
}
