// Package atom implements parsing and resolution of package query
// strings ("atoms").
//
// An atom identifies a package and an optional version or slug
// constraint. The supported forms are:
//
//	plct                       bare name, latest version
//	toolchain/plct             category-qualified name
//	name:plct                  explicit name form
//	slug:plct-20231026         globally unique slug
//	plct(>=1.0.0,<2.0.0)       version constraint expression
//	plct:1.2.0                 shorthand constraint suffix
//
// Constraint expressions are comma-separated; all parts must hold.
package atom

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver"
)

// Kind discriminates the parsed atom forms.
type Kind string

// Atom kinds.
const (
	KindName Kind = "name"
	KindExpr Kind = "expr"
	KindSlug Kind = "slug"
)

var (
	exprRE = regexp.MustCompile(`^([^:(]+)\((.+)\)$`)
	nameRE = regexp.MustCompile(`^[^:()]+$`)
)

// Atom is a parsed query string.
type Atom struct {
	// Input is the string the atom was parsed from.
	Input    string
	Kind     Kind
	Category string
	Name     string
	Slug     string
	// Constraints is nil for "latest".
	Constraints ConstraintSet
	// exact is non-nil when the constraint pins one exact version; an
	// exact prerelease pin bypasses the prerelease filter.
	exact *semver.Version
}

// ConstraintSet is the conjunction of an expression atom's comparators.
type ConstraintSet []constraint

// Check reports whether v satisfies every comparator.
func (cs ConstraintSet) Check(v *semver.Version) bool {
	for _, c := range cs {
		if !c.check(v) {
			return false
		}
	}
	return true
}

// constraint is one comparator of an expression atom. Matching is plain
// semver precedence per comparator; whether prerelease versions are
// candidates at all is the resolver's decision, not the constraint's.
type constraint struct {
	op  string
	ver *semver.Version
}

func (c constraint) check(v *semver.Version) bool {
	d := v.Compare(c.ver)
	switch c.op {
	case "", "=":
		return d == 0
	case "!=":
		return d != 0
	case ">":
		return d > 0
	case ">=":
		return d >= 0
	case "<":
		return d < 0
	case "<=":
		return d <= 0
	}
	return false
}

// Parse parses a query string into an Atom.
func Parse(s string) (*Atom, error) {
	switch {
	case strings.HasPrefix(s, "slug:"):
		slug := s[len("slug:"):]
		if slug == "" {
			return nil, fmt.Errorf("atom: invalid atom %q: empty slug", s)
		}
		return &Atom{Input: s, Kind: KindSlug, Slug: slug}, nil
	case strings.HasPrefix(s, "name:"):
		a := &Atom{Input: s, Kind: KindName}
		a.Category, a.Name = splitCategory(s[len("name:"):])
		if a.Name == "" {
			return nil, fmt.Errorf("atom: invalid atom %q: empty name", s)
		}
		return a, nil
	}
	if m := exprRE.FindStringSubmatch(s); m != nil {
		return newExprAtom(s, m[1], m[2])
	}
	if name, expr, ok := strings.Cut(s, ":"); ok {
		return newExprAtom(s, name, expr)
	}
	if nameRE.MatchString(s) {
		a := &Atom{Input: s, Kind: KindName}
		a.Category, a.Name = splitCategory(s)
		if a.Name == "" {
			return nil, fmt.Errorf("atom: invalid atom %q: empty name", s)
		}
		return a, nil
	}
	return nil, fmt.Errorf("atom: invalid atom %q", s)
}

func newExprAtom(input, name, expr string) (*Atom, error) {
	a := &Atom{Input: input, Kind: KindExpr}
	a.Category, a.Name = splitCategory(name)
	if a.Name == "" {
		return nil, fmt.Errorf("atom: invalid atom %q: empty name", input)
	}
	parts := strings.Split(expr, ",")
	cs := make(ConstraintSet, 0, len(parts))
	for _, p := range parts {
		c, err := parseConstraint(p)
		if err != nil {
			return nil, fmt.Errorf("atom: invalid version constraint in %q: %w", input, err)
		}
		cs = append(cs, c)
	}
	a.Constraints = cs
	if len(cs) == 1 && (cs[0].op == "" || cs[0].op == "=") {
		a.exact = cs[0].ver
	}
	return a, nil
}

// comparator operators, longest first so ">=" is not read as ">".
var constraintOps = []string{">=", "<=", "==", "!=", ">", "<", "="}

// parseConstraint parses one comparator. A bare version means equality;
// the python-style "==" spelling is accepted alongside "=".
func parseConstraint(s string) (constraint, error) {
	s = strings.TrimSpace(s)
	var op string
	for _, o := range constraintOps {
		if strings.HasPrefix(s, o) {
			op = o
			s = strings.TrimSpace(s[len(o):])
			break
		}
	}
	if op == "==" {
		op = "="
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return constraint{}, err
	}
	return constraint{op: op, ver: v}, nil
}

func splitCategory(name string) (category, bare string) {
	if c, n, ok := strings.Cut(name, "/"); ok {
		return c, n
	}
	return "", name
}
