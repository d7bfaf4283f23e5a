// Package semver wraps github.com/Masterminds/semver/v3 with the small value
// type used for item versions. The zero Version means "no version".
package semver

import (
	"encoding/json"
	"fmt"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a semantic version.
type Version struct {
	v *mm.Version
}

func ParseVersion(raw string) (Version, error) {
	v, err := mm.NewVersion(raw)
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// ParseOptional parses raw, returning the zero Version for an empty string.
func ParseOptional(raw string) (Version, error) {
	if raw == "" {
		return Version{}, nil
	}
	return ParseVersion(raw)
}

// IsZero reports whether v carries no version.
func (v Version) IsZero() bool {
	return v.v == nil
}

func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
//
// The zero Version sorts before every other version.
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// Equal reports whether both versions are set and equal.
func Equal(a, b Version) bool {
	if a.v == nil || b.v == nil {
		return false
	}
	return a.v.Equal(b.v)
}

// Less reports whether a sorts before b.
func Less(a, b Version) bool {
	return Compare(a, b) < 0
}

func (v Version) MarshalJSON() ([]byte, error) {
	if v.v == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v.v.String())
}

func (v *Version) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Version{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("semver: %w", err)
	}
	parsed, err := ParseOptional(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
