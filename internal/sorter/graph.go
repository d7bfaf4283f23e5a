package sorter

import (
	"fmt"
	"sort"

	"github.com/vk/setupgrid/internal/item"
	"github.com/vk/setupgrid/internal/semver"
)

// entry is one accepted item and its resolved references.
type entry struct {
	item *item.Item
	head *node // containers only
	tail *node

	container      *entry
	generalization *entry
	requires       []*entry
	requiredBy     []*entry
	groups         []*entry
	children       []*entry
	members        []*entry
}

// start is the first node of the entry: its head for containers.
func (e *entry) start() *node {
	if e.head != nil {
		return e.head
	}
	return e.tail
}

type node struct {
	entry *entry
	head  bool

	preds    map[*node]bool
	predList []*node
	back     map[*node]bool

	rank   int
	ranked bool

	sorted *SortedItem
}

func (n *node) name() string {
	if n.head {
		return n.entry.item.FullName + HeadSuffix
	}
	return n.entry.item.FullName
}

func (n *node) addPred(p *node) {
	if p == nil || p == n {
		return
	}
	n.preds[p] = true
}

type previous struct {
	entry   *entry
	version semver.Version
}

type graph struct {
	entries []*entry
	nodes   []*node
	byName  map[string]*entry
	prev    map[string][]previous
	diags   Diagnostics
}

func newGraph(items []*item.Item) *graph {
	g := &graph{
		byName: make(map[string]*entry),
		prev:   make(map[string][]previous),
	}
	for _, it := range items {
		if it == nil {
			continue
		}
		if err := it.Validate(); err != nil {
			g.diags.Invalid = append(g.diags.Invalid, err.Error())
			if it.FullName == "" {
				continue
			}
		}
		if _, dup := g.byName[it.FullName]; dup {
			g.diags.Duplicates = append(g.diags.Duplicates, it.FullName)
			continue
		}
		e := &entry{item: it}
		g.byName[it.FullName] = e
		g.entries = append(g.entries, e)
	}
	sort.Slice(g.entries, func(i, j int) bool {
		return g.entries[i].item.FullName < g.entries[j].item.FullName
	})

	for _, e := range g.entries {
		for _, p := range e.item.PreviousNames {
			if p.FullName == "" || p.FullName == e.item.FullName || p.Version.IsZero() {
				continue
			}
			g.prev[p.FullName] = append(g.prev[p.FullName], previous{entry: e, version: p.Version})
		}
		if e.item.Kind.IsContainer() {
			e.head = &node{entry: e, head: true, preds: map[*node]bool{}, back: map[*node]bool{}}
			g.nodes = append(g.nodes, e.head)
		}
		e.tail = &node{entry: e, preds: map[*node]bool{}, back: map[*node]bool{}}
		g.nodes = append(g.nodes, e.tail)
	}
	return g
}

// lookup resolves a reference by exact name, then through previous names.
// Among previous-name candidates the lowest qualifying version wins.
func (g *graph) lookup(r item.Ref) *entry {
	if e, ok := g.byName[r.Name]; ok {
		return e
	}
	var best *previous
	for i := range g.prev[r.Name] {
		cand := &g.prev[r.Name][i]
		if !r.Version.IsZero() && semver.Compare(r.Version, cand.version) > 0 {
			continue
		}
		if best == nil {
			best = cand
			continue
		}
		c := semver.Compare(cand.version, best.version)
		if c < 0 || (c == 0 && cand.entry.item.FullName < best.entry.item.FullName) {
			best = cand
		}
	}
	if best == nil {
		return nil
	}
	return best.entry
}

// resolveRef resolves r on behalf of owner and records failures.
func (g *graph) resolveRef(owner *entry, field string, r item.Ref, optional bool) *entry {
	if r.Name == "" {
		return nil
	}
	target := g.lookup(r)
	if target == nil {
		u := Unresolved{Item: owner.item.FullName, Field: field, Name: r.Name}
		if r.Optional || optional {
			g.diags.DroppedOptional = append(g.diags.DroppedOptional, u)
		} else {
			g.diags.Unresolved = append(g.diags.Unresolved, u)
		}
		return nil
	}
	if target == owner {
		return nil
	}
	return target
}

func (g *graph) invalid(format string, args ...any) {
	g.diags.Invalid = append(g.diags.Invalid, fmt.Sprintf(format, args...))
}

func appendUnique(list []*entry, e *entry) []*entry {
	for _, x := range list {
		if x == e {
			return list
		}
	}
	return append(list, e)
}

// resolve turns every reference into an entry and checks referenced kinds.
func (g *graph) resolve() {
	for _, e := range g.entries {
		it := e.item
		if it.Container != nil {
			if c := g.resolveRef(e, "container", *it.Container, false); c != nil {
				if c.item.Kind.IsContainer() {
					e.container = c
				} else {
					g.invalid("item %q: container %q has kind %s", it.FullName, c.item.FullName, c.item.Kind)
				}
			}
		}
		if it.Generalization != nil {
			e.generalization = g.resolveRef(e, "generalization", *it.Generalization, false)
		}
		for _, r := range it.Requires {
			if t := g.resolveRef(e, "requires", r, false); t != nil {
				e.requires = appendUnique(e.requires, t)
			}
		}
		for _, r := range it.RequiredBy {
			if t := g.resolveRef(e, "required_by", r, true); t != nil {
				e.requiredBy = appendUnique(e.requiredBy, t)
			}
		}
		for _, r := range it.Groups {
			grp := g.resolveRef(e, "groups", r, false)
			if grp == nil {
				continue
			}
			if !grp.item.Kind.IsGroup() {
				g.invalid("item %q: group %q has kind %s", it.FullName, grp.item.FullName, grp.item.Kind)
				continue
			}
			e.groups = appendUnique(e.groups, grp)
			grp.members = appendUnique(grp.members, e)
		}
	}

	for _, e := range g.entries {
		kind := e.item.Kind
		if !kind.IsContainer() && !kind.IsGroup() {
			continue
		}
		for _, r := range e.item.Children {
			ch := g.resolveRef(e, "children", r, false)
			if ch == nil {
				continue
			}
			if !kind.IsContainer() {
				e.members = appendUnique(e.members, ch)
				ch.groups = appendUnique(ch.groups, e)
				continue
			}
			switch ch.container {
			case nil:
				ch.container = e
			case e:
			default:
				g.invalid("item %q: child %q already belongs to container %q", e.item.FullName, ch.item.FullName, ch.container.item.FullName)
			}
		}
	}

	for _, e := range g.entries {
		if e.container != nil {
			e.container.children = appendUnique(e.container.children, e)
		}
	}
	for _, e := range g.entries {
		byName := func(list []*entry) {
			sort.Slice(list, func(i, j int) bool { return list[i].item.FullName < list[j].item.FullName })
		}
		byName(e.children)
		byName(e.members)
		byName(e.groups)
	}
}

// isAncestor reports whether anc contains e, directly or transitively.
func isAncestor(anc, e *entry) bool {
	seen := map[*entry]bool{}
	for c := e.container; c != nil && !seen[c]; c = c.container {
		if c == anc {
			return true
		}
		seen[c] = true
	}
	return false
}

// after makes dep come after target.
func after(dep, target *entry) {
	switch {
	case isAncestor(target, dep):
		// A child requiring its own container only needs the container's head.
		dep.start().addPred(target.head)
	case isAncestor(dep, target):
		dep.tail.addPred(target.tail)
	default:
		dep.start().addPred(target.tail)
	}
}

// link builds the predecessor sets of every node.
func (g *graph) link() {
	for _, e := range g.entries {
		if e.head != nil {
			e.tail.addPred(e.head)
		}
		if c := e.container; c != nil {
			e.start().addPred(c.head)
			c.tail.addPred(e.tail)
		}
		if e.generalization != nil {
			after(e, e.generalization)
		}
		for _, t := range e.requires {
			after(e, t)
		}
		for _, t := range e.requiredBy {
			after(t, e)
		}
		for _, m := range e.members {
			e.tail.addPred(m.tail)
		}
	}
	for _, n := range g.nodes {
		n.predList = make([]*node, 0, len(n.preds))
		for p := range n.preds {
			n.predList = append(n.predList, p)
		}
		sort.Slice(n.predList, func(i, j int) bool { return n.predList[i].name() < n.predList[j].name() })
	}
}
