package item

import (
	"fmt"
	"strings"
)

// Kind classifies an item for containment and grouping.
type Kind int

const (
	KindItem Kind = iota
	KindContainer
	KindGroup
	KindGroupContainer
)

var kindNames = map[Kind]string{
	KindItem:           "item",
	KindContainer:      "container",
	KindGroup:          "group",
	KindGroupContainer: "group_container",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsContainer reports whether items of this kind may own children.
func (k Kind) IsContainer() bool {
	return k == KindContainer || k == KindGroupContainer
}

// IsGroup reports whether items of this kind may be used as group memberships.
func (k Kind) IsGroup() bool {
	return k == KindGroup || k == KindGroupContainer
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind converts a kind name as written in model files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "item":
		return KindItem, nil
	case "container":
		return KindContainer, nil
	case "group":
		return KindGroup, nil
	case "group_container", "groupcontainer":
		return KindGroupContainer, nil
	}
	return KindItem, fmt.Errorf("unknown item kind %q", s)
}
