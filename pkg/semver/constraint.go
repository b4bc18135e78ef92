// Package semver filters candidate endpoints by protocol version using Masterminds/semver.
package semver

import (
	"fmt"
	"regexp"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:constraint"

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly checks if a constraint is a bare major version (e.g. "3").
func IsMajorOnly(s string) bool {
	return majorOnlyRegex.MatchString(s)
}

// Constraint is a parsed protocol constraint. The zero value accepts every version.
type Constraint struct {
	raw string
	c   *masterminds.Constraints
}

// ParseConstraint parses s. An empty string gives the accept-all constraint; a bare major
// "3" means "3.x".
func ParseConstraint(s string) (*Constraint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return &Constraint{}, nil
	}
	expr := s
	if IsMajorOnly(s) {
		expr = s + ".x"
	}
	c, err := masterminds.NewConstraint(expr)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid constraint %q: %w", logPrefix, s, err)
	}
	return &Constraint{raw: s, c: c}, nil
}

// Empty reports whether the constraint accepts every version.
func (c *Constraint) Empty() bool { return c == nil || c.c == nil }

func (c *Constraint) String() string {
	if c == nil {
		return ""
	}
	return c.raw
}

// Allows reports whether version satisfies the constraint. With a non-empty constraint an
// empty or unparsable version is rejected; with an empty one everything is allowed.
func (c *Constraint) Allows(version string) bool {
	if c.Empty() {
		return true
	}
	version = strings.TrimSpace(version)
	if version == "" {
		return false
	}
	v, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	return c.c.Check(v)
}

// SatisfiesRange is Allows on a freshly parsed constraint; an invalid constraint matches
// nothing.
func SatisfiesRange(version, constraint string) bool {
	c, err := ParseConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Allows(version)
}
