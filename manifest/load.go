// Package manifest loads a metadata repository directory tree into an
// immutable, validated [sdkforge.Snapshot].
//
// The tree is assumed to be already materialized on disk by an external
// sync step; loading performs no network I/O. Individual package
// manifests are parsed concurrently, since entries are independent until
// the final cross-reference pass; that pass (and therefore snapshot
// construction) only runs once every entry has parsed cleanly. A load
// either yields a fully validated snapshot or an error — callers never
// observe a partial one.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/quay/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/sdkforge/sdkforge"
)

// Well-known names inside a repository tree.
const (
	configFile   = "config.toml"
	messagesFile = "messages.toml"
	manifestsDir = "manifests"
	profilesDir  = "profiles"
)

// Load reads the repository rooted at root and returns a validated
// snapshot of it.
func Load(ctx context.Context, root string) (*sdkforge.Snapshot, error) {
	ctx = zlog.ContextWithValues(ctx, "component", "manifest/Load", "root", root)
	cfg, err := loadConfig(filepath.Join(root, configFile))
	if err != nil {
		return nil, err
	}
	messages, err := loadMessages(filepath.Join(root, messagesFile))
	if err != nil {
		return nil, err
	}
	profiles, err := loadProfiles(filepath.Join(root, profilesDir))
	if err != nil {
		return nil, err
	}
	versions, err := loadVersions(ctx, filepath.Join(root, manifestsDir))
	if err != nil {
		return nil, err
	}
	snap, err := sdkforge.NewSnapshot(cfg, versions, profiles, messages)
	if err != nil {
		return nil, err
	}
	zlog.Info(ctx).
		Stringer("snapshot", snap.ID()).
		Int("packages", len(snap.Packages())).
		Int("profiles", len(snap.Arches())).
		Msg("repository loaded")
	return snap, nil
}

func loadConfig(path string) (sdkforge.RepoConfig, error) {
	var decl repoConfigDecl
	if err := decodeFile(path, &decl); err != nil {
		return sdkforge.RepoConfig{}, err
	}
	cfg, err := decl.config()
	if err != nil {
		return sdkforge.RepoConfig{}, &sdkforge.Error{
			Op:      `manifest: load`,
			Kind:    sdkforge.ErrSchemaViolation,
			Message: path,
			Inner:   err,
		}
	}
	return cfg, nil
}

func loadMessages(path string) (sdkforge.MessageStore, error) {
	var decl messagesDecl
	switch err := decodeFile(path, &decl); {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		return sdkforge.MessageStore{}, nil
	default:
		return nil, err
	}
	return sdkforge.MessageStore(decl), nil
}

func loadProfiles(dir string) ([]*sdkforge.Profile, error) {
	des, err := os.ReadDir(dir)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		return nil, nil
	default:
		return nil, fmt.Errorf("manifest: reading %s: %w", dir, err)
	}
	var out []*sdkforge.Profile
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".toml") {
			continue
		}
		path := filepath.Join(dir, name)
		var decl profileDecl
		if err := decodeFile(path, &decl); err != nil {
			return nil, err
		}
		p, err := decl.profile(strings.TrimSuffix(name, ".toml"))
		if err != nil {
			return nil, &sdkforge.Error{
				Op:      `manifest: load`,
				Kind:    sdkforge.ErrSchemaViolation,
				Message: path,
				Inner:   err,
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// manifestRef is one package manifest file discovered on disk.
type manifestRef struct {
	path     string
	category string
	name     string
	version  string
}

func loadVersions(ctx context.Context, dir string) ([]*sdkforge.PackageVersion, error) {
	refs, err := discover(dir)
	if err != nil {
		return nil, err
	}
	zlog.Debug(ctx).Int("manifests", len(refs)).Msg("parsing package manifests")

	versions := make([]*sdkforge.PackageVersion, len(refs))
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, ref := range refs {
		i, ref := i, ref
		eg.Go(func() error {
			var decl packageDecl
			if err := decodeFile(ref.path, &decl); err != nil {
				return err
			}
			v, err := decl.version(ref.category, ref.name, ref.version)
			if err != nil {
				return &sdkforge.Error{
					Op:      `manifest: load`,
					Kind:    sdkforge.ErrSchemaViolation,
					Message: ref.path,
					Inner:   err,
				}
			}
			versions[i] = v
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return versions, nil
}

// discover walks manifests/<category>/<name>/<version>.toml. Results are
// sorted so everything downstream is deterministic. Version filenames
// must start with a digit; anything else in a package directory is
// ignored, letting repositories keep README-type files alongside.
func discover(dir string) ([]manifestRef, error) {
	var refs []manifestRef
	cats, err := os.ReadDir(dir)
	switch {
	case err == nil:
	case os.IsNotExist(err):
		return nil, nil
	default:
		return nil, fmt.Errorf("manifest: reading %s: %w", dir, err)
	}
	for _, cat := range cats {
		if !cat.IsDir() {
			continue
		}
		catDir := filepath.Join(dir, cat.Name())
		pkgs, err := os.ReadDir(catDir)
		if err != nil {
			return nil, fmt.Errorf("manifest: reading %s: %w", catDir, err)
		}
		for _, pkg := range pkgs {
			if !pkg.IsDir() {
				continue
			}
			pkgDir := filepath.Join(catDir, pkg.Name())
			files, err := os.ReadDir(pkgDir)
			if err != nil {
				return nil, fmt.Errorf("manifest: reading %s: %w", pkgDir, err)
			}
			for _, f := range files {
				name := f.Name()
				if f.IsDir() || !strings.HasSuffix(name, ".toml") {
					continue
				}
				ver := strings.TrimSuffix(name, ".toml")
				if ver == "" || ver[0] < '0' || ver[0] > '9' {
					continue
				}
				refs = append(refs, manifestRef{
					path:     filepath.Join(pkgDir, name),
					category: cat.Name(),
					name:     pkg.Name(),
					version:  ver,
				})
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].path < refs[j].path })
	return refs, nil
}

// decodeFile reads and TOML-decodes one file, wrapping decode failures as
// manifest parse errors.
func decodeFile(path string, into any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("manifest: %w", err)
	}
	if err := toml.Unmarshal(b, into); err != nil {
		return &sdkforge.Error{
			Op:      `manifest: load`,
			Kind:    sdkforge.ErrManifestParse,
			Message: path,
			Inner:   err,
		}
	}
	return nil
}
