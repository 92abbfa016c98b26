package atom

import (
	"context"
	"fmt"
	"strings"

	"github.com/quay/zlog"

	"github.com/sdkforge/sdkforge"
)

// Resolver resolves atoms against a repository snapshot.
//
// The zero value is ready to use and excludes prerelease versions, the
// repository default.
type Resolver struct {
	// IncludePrereleases admits prerelease versions into candidate sets.
	// An exact prerelease pin is admitted regardless.
	IncludePrereleases bool
}

// Resolve resolves the atom to the single best package version: the
// maximum by semantic-version precedence among the candidates surviving
// the constraint and prerelease filters. Build metadata is ignored for
// comparison.
func (r *Resolver) Resolve(ctx context.Context, snap *sdkforge.Snapshot, a *Atom) (*sdkforge.PackageVersion, error) {
	const op = `atom: resolve`
	vs, err := r.candidates(ctx, snap, a)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, &sdkforge.Error{
			Op:      op,
			Kind:    sdkforge.ErrPackageNotFound,
			Message: fmt.Sprintf("no package version matches %q", a.Input),
		}
	}
	v := vs[0]
	zlog.Debug(ctx).
		Str("atom", a.Input).
		Str("package", v.Category+"/"+v.Name).
		Str("version", v.Version).
		Msg("atom resolved")
	return v, nil
}

// ResolveAll returns every matching package version, best first.
func (r *Resolver) ResolveAll(ctx context.Context, snap *sdkforge.Snapshot, a *Atom) ([]*sdkforge.PackageVersion, error) {
	const op = `atom: resolve`
	vs, err := r.candidates(ctx, snap, a)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, &sdkforge.Error{
			Op:      op,
			Kind:    sdkforge.ErrPackageNotFound,
			Message: fmt.Sprintf("no package version matches %q", a.Input),
		}
	}
	return vs, nil
}

// candidates returns matching versions in descending semver order.
func (r *Resolver) candidates(ctx context.Context, snap *sdkforge.Snapshot, a *Atom) ([]*sdkforge.PackageVersion, error) {
	const op = `atom: resolve`
	if a.Kind == KindSlug {
		v := snap.BySlug(a.Slug)
		if v == nil {
			return nil, &sdkforge.Error{
				Op:      op,
				Kind:    sdkforge.ErrPackageNotFound,
				Message: fmt.Sprintf("no package version has slug %q", a.Slug),
			}
		}
		if v.IsPrerelease() && !r.IncludePrereleases {
			return nil, &sdkforge.Error{
				Op:      op,
				Kind:    sdkforge.ErrPackageNotFound,
				Message: fmt.Sprintf("slug %q names prerelease version %s, which is excluded by configuration", a.Slug, v.Version),
			}
		}
		return []*sdkforge.PackageVersion{v}, nil
	}

	var pkg *sdkforge.Package
	if a.Category != "" {
		pkg = snap.Package(a.Category, a.Name)
		if pkg == nil {
			return nil, &sdkforge.Error{
				Op:      op,
				Kind:    sdkforge.ErrPackageNotFound,
				Message: fmt.Sprintf("no package named %s/%s", a.Category, a.Name),
			}
		}
	} else {
		switch ps := snap.PackagesByName(a.Name); len(ps) {
		case 0:
			return nil, &sdkforge.Error{
				Op:      op,
				Kind:    sdkforge.ErrPackageNotFound,
				Message: fmt.Sprintf("no package named %q in any category", a.Name),
			}
		case 1:
			pkg = ps[0]
		default:
			// Fail closed rather than guess a category priority.
			keys := make([]string, len(ps))
			for i, p := range ps {
				keys[i] = p.Category + "/" + p.Name
			}
			return nil, &sdkforge.Error{
				Op:      op,
				Kind:    sdkforge.ErrAmbiguousAtom,
				Message: fmt.Sprintf("%q matches multiple packages: %s; qualify with a category", a.Name, strings.Join(keys, ", ")),
			}
		}
	}

	var out []*sdkforge.PackageVersion
	for _, v := range pkg.Versions() {
		if a.Constraints != nil && !a.Constraints.Check(v.Semver) {
			continue
		}
		if v.IsPrerelease() && !r.prereleaseOK(a, v) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Resolver) prereleaseOK(a *Atom, v *sdkforge.PackageVersion) bool {
	if r.IncludePrereleases {
		return true
	}
	return a.exact != nil && a.exact.Prerelease() != "" && a.exact.Equal(v.Semver)
}
