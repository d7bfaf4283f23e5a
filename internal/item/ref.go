package item

import (
	"fmt"
	"strings"

	"github.com/vk/setupgrid/internal/semver"
)

// Ref names another item. An optional reference that does not resolve is
// dropped instead of failing the sort.
//
// Version is only consulted when Name resolves through a previous name of the
// target: the reference then matches when Version is not newer than the
// version recorded for that previous name.
type Ref struct {
	Name     string
	Optional bool
	Version  semver.Version
}

// ParseRef parses the textual reference form used in model files:
//
//	Name          required reference
//	?Name         optional reference
//	Name@1.2.0    reference with a version guard
func ParseRef(s string) (Ref, error) {
	var r Ref
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "?") {
		r.Optional = true
		s = strings.TrimSpace(s[1:])
	}
	if name, raw, ok := strings.Cut(s, "@"); ok {
		v, err := semver.ParseVersion(strings.TrimSpace(raw))
		if err != nil {
			return Ref{}, fmt.Errorf("reference %q: %w", s, err)
		}
		r.Version = v
		s = strings.TrimSpace(name)
	}
	if s == "" {
		return Ref{}, fmt.Errorf("reference has an empty name")
	}
	r.Name = s
	return r, nil
}

// MustParseRef is ParseRef for literals; it panics on error.
func MustParseRef(s string) Ref {
	r, err := ParseRef(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseRefs parses every entry of list.
func ParseRefs(list []string) ([]Ref, error) {
	if len(list) == 0 {
		return nil, nil
	}
	refs := make([]Ref, 0, len(list))
	for _, s := range list {
		r, err := ParseRef(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, nil
}

func (r Ref) String() string {
	var b strings.Builder
	if r.Optional {
		b.WriteByte('?')
	}
	b.WriteString(r.Name)
	if !r.Version.IsZero() {
		b.WriteByte('@')
		b.WriteString(r.Version.String())
	}
	return b.String()
}
