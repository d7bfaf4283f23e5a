package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/vk/setupgrid/internal/setup"
	"github.com/vk/setupgrid/internal/sorter"
)

var (
	okColor      = color.New(color.FgGreen)
	skipColor    = color.New(color.FgCyan)
	failColor    = color.New(color.FgRed)
	blockedColor = color.New(color.FgYellow)
)

// WriteSummary prints a human readable outcome of a run: one line per item
// in execution order, then the totals.
func WriteSummary(w io.Writer, r *setup.Report) {
	if r == nil {
		return
	}
	if r.Registration != nil {
		_, _ = failColor.Fprintf(w, "registration failed: %v\n", r.Registration)
		return
	}

	failures := map[string]setup.Failure{}
	for _, f := range r.Failures {
		if _, seen := failures[f.Item]; !seen {
			failures[f.Item] = f
		}
	}
	committed := toSet(r.Committed)
	skipped := toSet(r.Skipped)

	for _, name := range r.Order {
		if strings.HasSuffix(name, sorter.HeadSuffix) {
			continue
		}
		switch f, failed := failures[name]; {
		case failed && f.Blocked():
			_, _ = blockedColor.Fprintf(w, "  blocked    %s\n", name)
		case failed:
			_, _ = failColor.Fprintf(w, "  failed     %s at %s: %v\n", name, f.Step, f.Err)
		case skipped[name]:
			_, _ = skipColor.Fprintf(w, "  up-to-date %s\n", name)
		case committed[name]:
			_, _ = okColor.Fprintf(w, "  installed  %s\n", name)
		default:
			_, _ = fmt.Fprintf(w, "  done       %s\n", name)
		}
	}

	_, _ = fmt.Fprintf(w, "state: %s, committed: %d, up-to-date: %d, failed: %d\n",
		r.State, len(r.Committed), len(r.Skipped), len(r.FailedItems()))
	if r.Cancelled != nil {
		_, _ = failColor.Fprintf(w, "cancelled: %v\n", r.Cancelled)
	}
}

// WritePlan prints the execution order of a sorted model and its
// diagnostics.
func WritePlan(w io.Writer, res *sorter.Result) {
	for _, s := range res.Sorted {
		_, _ = fmt.Fprintf(w, "%3d  %s\n", s.Rank, s.Name())
	}
	for _, d := range res.Diagnostics.DroppedOptional {
		_, _ = skipColor.Fprintf(w, "dropped optional: %s\n", d)
	}
	if err := res.Diagnostics.Err(); err != nil {
		_, _ = failColor.Fprintf(w, "%v\n", err)
	}
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
