// Package version implements the semver algebra used across the registry:
// concrete versions and the constraint language manifests and lock files
// express them against (exact, caret, tilde, >=, <=, range, any).
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"

	"fastskill/internal/regerr"
)

// Version is a parsed, comparable semantic version.
type Version struct {
	v *semver.Version
}

// Parse parses s as a semantic version.
func Parse(s string) (*Version, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, regerr.New(regerr.KindVersionParse, "version.Parse", fmt.Errorf("%q: %w", s, err))
	}
	return &Version{v: v}, nil
}

func (v *Version) String() string { return v.v.String() }

// Compare returns -1, 0, or 1 comparing v to other, per standard semver
// precedence rules.
func (v *Version) Compare(other *Version) int { return v.v.Compare(other.v) }

// Kind tags a VersionConstraint variant.
type Kind string

const (
	KindExact        Kind = "exact"
	KindCaret        Kind = "caret"
	KindTilde        Kind = "tilde"
	KindGreaterEqual Kind = "gte"
	KindLessEqual    Kind = "lte"
	KindRange        Kind = "range"
	KindAny          Kind = "any"
)

// Constraint is a tagged-variant version constraint: exact, caret, tilde,
// >=, <=, a min/max range, or any. Constraints are tested for satisfaction
// against a concrete Version via Matches.
type Constraint struct {
	Kind Kind
	Raw  string // original constraint text, e.g. "^1.2.3"

	// Min/Max are populated for KindRange; Min alone for KindGreaterEqual,
	// Max alone for KindLessEqual; both hold the version for KindExact.
	// KindCaret, KindTilde, and KindAny leave both nil.
	Min *Version
	Max *Version

	underlying *semver.Constraints
}

// ParseConstraint parses a constraint string into its tagged variant.
// Recognized forms: "*" (any), "x.y.z" (exact), "^x.y.z" (caret), "~x.y.z"
// (tilde), ">=x.y.z", "<=x.y.z", and "x.y.z..a.b.c" (inclusive range).
func ParseConstraint(s string) (*Constraint, error) {
	raw := strings.TrimSpace(s)
	switch {
	case raw == "" || raw == "*":
		return &Constraint{Kind: KindAny, Raw: raw}, nil

	case strings.HasPrefix(raw, "^"):
		return newDelegatedConstraint(KindCaret, raw)

	case strings.HasPrefix(raw, "~"):
		return newDelegatedConstraint(KindTilde, raw)

	case strings.HasPrefix(raw, ">="):
		v, err := Parse(strings.TrimSpace(raw[2:]))
		if err != nil {
			return nil, err
		}
		c, err := newDelegatedConstraint(KindGreaterEqual, raw)
		if err != nil {
			return nil, err
		}
		c.Min = v
		return c, nil

	case strings.HasPrefix(raw, "<="):
		v, err := Parse(strings.TrimSpace(raw[2:]))
		if err != nil {
			return nil, err
		}
		c, err := newDelegatedConstraint(KindLessEqual, raw)
		if err != nil {
			return nil, err
		}
		c.Max = v
		return c, nil

	case strings.Contains(raw, ".."):
		parts := strings.SplitN(raw, "..", 2)
		if len(parts) != 2 {
			return nil, regerr.New(regerr.KindVersionParse, "version.ParseConstraint",
				fmt.Errorf("invalid range constraint %q", raw))
		}
		min, err := Parse(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, err
		}
		max, err := Parse(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, err
		}
		return &Constraint{Kind: KindRange, Raw: raw, Min: min, Max: max}, nil

	default:
		v, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		return &Constraint{Kind: KindExact, Raw: raw, Min: v, Max: v}, nil
	}
}

// newDelegatedConstraint builds a caret/tilde/gte/lte constraint backed by
// Masterminds/semver's own constraint matcher, which already implements
// npm-style caret semantics including zero-major narrowing (^0.0.0 matches
// only 0.0.0, never 0.0.1) — the boundary behavior this registry's test
// suite requires and the original Rust implementation got wrong.
func newDelegatedConstraint(kind Kind, raw string) (*Constraint, error) {
	cons, err := semver.NewConstraint(raw)
	if err != nil {
		return nil, regerr.New(regerr.KindVersionParse, "version.ParseConstraint",
			fmt.Errorf("%q: %w", raw, err))
	}
	return &Constraint{Kind: kind, Raw: raw, underlying: cons}, nil
}

// Matches reports whether v satisfies the constraint.
func (c *Constraint) Matches(v *Version) bool {
	switch c.Kind {
	case KindAny:
		return true
	case KindExact:
		return v.Compare(c.Min) == 0
	case KindGreaterEqual:
		return v.Compare(c.Min) >= 0
	case KindLessEqual:
		return v.Compare(c.Max) <= 0
	case KindRange:
		return v.Compare(c.Min) >= 0 && v.Compare(c.Max) <= 0
	case KindCaret, KindTilde:
		return c.underlying.Check(v.v)
	default:
		return false
	}
}

// String returns the original constraint text.
func (c *Constraint) String() string { return c.Raw }
