package sorter

import (
	"errors"
	"fmt"
	"strings"
)

// Unresolved records a reference that matched no item.
type Unresolved struct {
	Item  string
	Field string
	Name  string
}

func (u Unresolved) String() string {
	return fmt.Sprintf("item %q: %s reference %q does not resolve", u.Item, u.Field, u.Name)
}

// Diagnostics collects everything the sorter found wrong with a batch.
type Diagnostics struct {
	// Fatal.
	Unresolved []Unresolved
	Duplicates []string
	Invalid    []string
	// Cycle is the first cycle found: a path of node names whose first and
	// last entries are the same node. Container heads are named "<name>.Head".
	Cycle  []string
	Cycles [][]string

	// Informational.
	DroppedOptional []Unresolved

	IsComplete bool
}

// FatalCount returns the number of fatal diagnostics.
func (d *Diagnostics) FatalCount() int {
	return len(d.Unresolved) + len(d.Duplicates) + len(d.Invalid) + len(d.Cycles)
}

// Err returns every fatal diagnostic joined into one error, or nil.
func (d *Diagnostics) Err() error {
	var errs []error
	for _, name := range d.Duplicates {
		errs = append(errs, fmt.Errorf("duplicate full name %q", name))
	}
	for _, msg := range d.Invalid {
		errs = append(errs, errors.New(msg))
	}
	for _, u := range d.Unresolved {
		errs = append(errs, errors.New(u.String()))
	}
	for _, c := range d.Cycles {
		errs = append(errs, fmt.Errorf("dependency cycle: %s", strings.Join(c, " -> ")))
	}
	return errors.Join(errs...)
}
