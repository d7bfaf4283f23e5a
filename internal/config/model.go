package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/setupgrid/internal/item"
	"github.com/vk/setupgrid/internal/semver"
	"github.com/zclconf/go-cty/cty"
)

// Model is the unified, format-agnostic representation of a declared batch.
type Model struct {
	Items []*ItemDecl
}

// ItemDecl is the format-agnostic representation of one declared item. All
// references are kept in their textual form ("?Name", "Name@1.2") until
// Model.Items parses them.
type ItemDecl struct {
	FullName string
	Kind     string
	Type     string
	Version  string

	Container      string
	Generalization string
	Requires       []string
	RequiredBy     []string
	Groups         []string
	Children       []string

	PreviousNames []PreviousNameDecl
	Handlers      []*HandlerDecl

	// Source is the file the declaration was read from.
	Source string
}

// PreviousNameDecl is a former identity of an item.
type PreviousNameDecl struct {
	FullName string
	Version  string
}

// HandlerDecl names a registered handler and carries its evaluated arguments.
type HandlerDecl struct {
	Name      string
	Arguments map[string]cty.Value
}

// Loader is the interface for a format-specific configuration loader.
type Loader interface {
	// Load reads every declaration found under paths and translates it
	// into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Model, error)
}

// Merge appends the declarations of other to m.
func (m *Model) Merge(other *Model) {
	if other == nil {
		return
	}
	m.Items = append(m.Items, other.Items...)
}

// BuildItems translates the declarations into items. Every declaration error is
// reported, not just the first one. The declaration becomes the item's
// payload so that driver factories can reach its handlers.
func (m *Model) BuildItems() ([]*item.Item, error) {
	var (
		items []*item.Item
		errs  []error
	)
	for _, d := range m.Items {
		it, err := d.Item()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, it)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return items, nil
}

// Provider exposes the model as an item.Provider.
func (m *Model) Provider() item.Provider {
	return item.ProviderFunc(func(context.Context) ([]*item.Item, error) {
		return m.BuildItems()
	})
}

// Item translates a single declaration.
func (d *ItemDecl) Item() (*item.Item, error) {
	var errs []error
	wrap := func(field string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", field, err))
	}

	kind, err := item.ParseKind(d.Kind)
	if err != nil {
		wrap("kind", err)
	}
	version, err := semver.ParseOptional(d.Version)
	if err != nil {
		wrap("version", err)
	}
	it := &item.Item{
		FullName: d.FullName,
		Kind:     kind,
		Type:     d.Type,
		Version:  version,
		Payload:  d,
	}

	optionalRef := func(field, s string) *item.Ref {
		if s == "" {
			return nil
		}
		r, err := item.ParseRef(s)
		if err != nil {
			wrap(field, err)
			return nil
		}
		return &r
	}
	it.Container = optionalRef("container", d.Container)
	it.Generalization = optionalRef("generalization", d.Generalization)

	refs := func(field string, list []string) []item.Ref {
		out, err := item.ParseRefs(list)
		if err != nil {
			wrap(field, err)
		}
		return out
	}
	it.Requires = refs("requires", d.Requires)
	it.RequiredBy = refs("required_by", d.RequiredBy)
	it.Groups = refs("groups", d.Groups)
	it.Children = refs("children", d.Children)

	for _, p := range d.PreviousNames {
		v, err := semver.ParseOptional(p.Version)
		if err != nil {
			wrap("previous_name "+p.FullName, err)
			continue
		}
		it.PreviousNames = append(it.PreviousNames, item.PreviousName{FullName: p.FullName, Version: v})
	}

	if len(errs) > 0 {
		where := d.FullName
		if d.Source != "" {
			where = fmt.Sprintf("%s (%s)", d.FullName, d.Source)
		}
		return nil, fmt.Errorf("item %q: %w", where, errors.Join(errs...))
	}
	it.Normalize()
	return it, nil
}
