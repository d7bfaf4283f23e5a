// Package item defines the dependent item model: the named unit of work that
// is ordered by the sorter and driven through the setup phases.
package item

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/setupgrid/internal/semver"
)

// PreviousName is an identity an item carried up to and including Version.
type PreviousName struct {
	FullName string
	Version  semver.Version
}

// Item is one declared unit of work.
//
// Items are built fresh for every registration batch and must not be
// modified after they are handed to the sorter.
type Item struct {
	FullName string
	Kind     Kind
	// Type keys the item in the version repository. Empty means Kind.String().
	Type string

	Container      *Ref
	Generalization *Ref
	Requires       []Ref
	RequiredBy     []Ref
	Groups         []Ref
	// Children is only meaningful for container and group kinds.
	Children []Ref

	Version       semver.Version
	PreviousNames []PreviousName

	// Payload is opaque build information for the driver factory.
	Payload any
}

// ItemType returns the repository key type of the item.
func (it *Item) ItemType() string {
	if it.Type != "" {
		return it.Type
	}
	return it.Kind.String()
}

// Normalize sorts PreviousNames by ascending version.
func (it *Item) Normalize() {
	sort.SliceStable(it.PreviousNames, func(i, j int) bool {
		return semver.Less(it.PreviousNames[i].Version, it.PreviousNames[j].Version)
	})
}

// Validate checks the item in isolation. Cross-item rules (resolution,
// kinds of referenced items, cycles) are checked by the sorter.
func (it *Item) Validate() error {
	var errs []error
	if it.FullName == "" {
		return errors.New("item has an empty full name")
	}
	if !it.Kind.Valid() {
		errs = append(errs, fmt.Errorf("unknown kind %s", it.Kind))
	}
	if len(it.Children) > 0 && !it.Kind.IsContainer() && !it.Kind.IsGroup() {
		errs = append(errs, fmt.Errorf("kind %s cannot declare children", it.Kind))
	}
	check := func(field string, r Ref) {
		switch {
		case r.Name == "":
			errs = append(errs, fmt.Errorf("%s reference has an empty name", field))
		case r.Name == it.FullName:
			errs = append(errs, fmt.Errorf("%s references the item itself", field))
		}
	}
	if it.Container != nil {
		check("container", *it.Container)
	}
	if it.Generalization != nil {
		check("generalization", *it.Generalization)
	}
	for _, r := range it.Requires {
		check("requires", r)
	}
	for _, r := range it.RequiredBy {
		check("required_by", r)
	}
	for _, r := range it.Groups {
		check("groups", r)
	}
	for _, r := range it.Children {
		check("children", r)
	}
	for _, p := range it.PreviousNames {
		switch {
		case p.FullName == "":
			errs = append(errs, errors.New("previous name is empty"))
		case p.FullName == it.FullName:
			errs = append(errs, fmt.Errorf("previous name %q equals the current name", p.FullName))
		case p.Version.IsZero():
			errs = append(errs, fmt.Errorf("previous name %q has no version", p.FullName))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("item %q: %w", it.FullName, errors.Join(errs...))
}

// Provider supplies the items of one registration batch.
type Provider interface {
	Items(ctx context.Context) ([]*Item, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) ([]*Item, error)

func (f ProviderFunc) Items(ctx context.Context) ([]*Item, error) {
	return f(ctx)
}

// StaticProvider returns a fixed set of items.
type StaticProvider []*Item

func (p StaticProvider) Items(context.Context) ([]*Item, error) {
	return p, nil
}
