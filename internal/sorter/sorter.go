// Package sorter orders a batch of dependent items.
//
// Sort is a pure function: it resolves references by name (falling back to
// previous names guarded by version), builds the predecessor graph including
// the synthetic head node of every container, detects cycles, computes a
// rank for every node and returns the nodes in ascending rank order with a
// configurable name tie-break.
package sorter

import (
	"sort"

	"github.com/vk/setupgrid/internal/item"
)

// HeadSuffix is appended to a container name to name its head node.
const HeadSuffix = ".Head"

// Options controls tie-breaking.
type Options struct {
	// RevertOrderingNames orders equal-rank nodes by descending full name.
	// Running a model with both settings reveals missing dependencies hidden
	// by name order.
	RevertOrderingNames bool
}

// SortedItem is one node of the ordered sequence.
//
// Every item produces one SortedItem; containers produce a second one, the
// head, which precedes all their children. Resolved references always point
// at the non-head SortedItem of the target.
type SortedItem struct {
	Item     *item.Item
	FullName string
	IsHead   bool
	Index    int
	Rank     int

	// Head is set on a container's item node, Tail on its head node.
	Head *SortedItem
	Tail *SortedItem

	Container      *SortedItem
	Generalization *SortedItem
	Requires       []*SortedItem
	RequiredBy     []*SortedItem
	Groups         []*SortedItem
	Children       []*SortedItem

	// Predecessors are the nodes that must come before this one.
	Predecessors []*SortedItem
}

// Name returns the node name: the full name, with HeadSuffix for heads.
func (s *SortedItem) Name() string {
	if s.IsHead {
		return s.FullName + HeadSuffix
	}
	return s.FullName
}

// IsContainer reports whether the underlying item owns a head node.
func (s *SortedItem) IsContainer() bool {
	return s.Item.Kind.IsContainer()
}

// Result is the output of Sort.
type Result struct {
	Sorted      []*SortedItem
	Diagnostics Diagnostics
}

// Items returns the non-head nodes in order.
func (r *Result) Items() []*SortedItem {
	out := make([]*SortedItem, 0, len(r.Sorted))
	for _, s := range r.Sorted {
		if !s.IsHead {
			out = append(out, s)
		}
	}
	return out
}

// Names returns the node names in order.
func (r *Result) Names() []string {
	out := make([]string, len(r.Sorted))
	for i, s := range r.Sorted {
		out[i] = s.Name()
	}
	return out
}

// Find returns the non-head node of the item with the given full name.
func (r *Result) Find(fullName string) *SortedItem {
	for _, s := range r.Sorted {
		if !s.IsHead && s.FullName == fullName {
			return s
		}
	}
	return nil
}

// Sort orders items. It never fails: problems are reported through
// Result.Diagnostics, and when IsComplete is false the returned order is
// partial and only suitable for diagnostic output.
func Sort(items []*item.Item, opts Options) *Result {
	g := newGraph(items)
	g.resolve()
	g.link()
	g.detectCycles()
	g.computeRanks()

	res := &Result{Diagnostics: g.diags}
	res.Sorted = g.order(opts)
	res.Diagnostics.IsComplete = res.Diagnostics.FatalCount() == 0
	return res
}

// order sorts the nodes and materialises SortedItems.
func (g *graph) order(opts Options) []*SortedItem {
	nodes := make([]*node, len(g.nodes))
	copy(nodes, g.nodes)
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		an, bn := a.entry.item.FullName, b.entry.item.FullName
		if an != bn {
			if opts.RevertOrderingNames {
				return an > bn
			}
			return an < bn
		}
		return a.head && !b.head
	})

	out := make([]*SortedItem, len(nodes))
	for i, n := range nodes {
		n.sorted = &SortedItem{
			Item:     n.entry.item,
			FullName: n.entry.item.FullName,
			IsHead:   n.head,
			Index:    i,
			Rank:     n.rank,
		}
		out[i] = n.sorted
	}

	for _, n := range nodes {
		s := n.sorted
		e := n.entry
		for p := range n.preds {
			if n.back[p] {
				continue
			}
			s.Predecessors = append(s.Predecessors, p.sorted)
		}
		sort.Slice(s.Predecessors, func(i, j int) bool { return s.Predecessors[i].Index < s.Predecessors[j].Index })

		if n.head {
			s.Tail = e.tail.sorted
			continue
		}
		if e.head != nil {
			s.Head = e.head.sorted
		}
		if e.container != nil {
			s.Container = e.container.tail.sorted
		}
		if e.generalization != nil {
			s.Generalization = e.generalization.tail.sorted
		}
		s.Requires = tails(e.requires)
		s.RequiredBy = tails(e.requiredBy)
		s.Groups = tails(e.groups)
		s.Children = tails(e.children)
	}
	return out
}

func tails(entries []*entry) []*SortedItem {
	if len(entries) == 0 {
		return nil
	}
	out := make([]*SortedItem, len(entries))
	for i, e := range entries {
		out[i] = e.tail.sorted
	}
	return out
}
