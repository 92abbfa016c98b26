package sdkforge

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/quay/zlog"
)

// RepoInfo is the repository's own metadata from the global config.
type RepoInfo struct {
	DocURI string `json:"doc_uri,omitempty"`
}

// TelemetryEndpoint is a telemetry upload declaration from the global
// config. It is parsed and retained for the (out-of-core) telemetry
// layer; nothing in this module contacts it.
type TelemetryEndpoint struct {
	ID    string `json:"id"`
	Scope string `json:"scope"`
	URL   string `json:"url"`
}

// RepoConfig is the repository-level slice of a snapshot: the mirror
// table, repo metadata and telemetry endpoint declarations.
type RepoConfig struct {
	Mirrors   []Mirror
	Repo      RepoInfo
	Telemetry []TelemetryEndpoint
}

// Snapshot is an immutable, fully-validated in-memory view of a metadata
// repository. It owns every entity reachable from it for its lifetime and
// is superseded, never mutated, by the next load.
type Snapshot struct {
	id       uuid.UUID
	cfg      RepoConfig
	mirrors  map[string]*Mirror
	messages MessageStore
	packages []*Package
	byName   map[string][]*Package
	byKey    map[string]*Package
	bySlug   map[string]*PackageVersion
	profiles map[string]*Profile
}

// NewSnapshot builds and validates a snapshot from parsed repository data.
//
// All cross-reference checks run here: category/name syntax, kind tag /
// sub-record consistency, distfile reference integrity, checksum
// well-formedness and global slug uniqueness. Any failure aborts the
// construction; a partially usable snapshot is never returned.
func NewSnapshot(cfg RepoConfig, versions []*PackageVersion, profiles []*Profile, messages MessageStore) (*Snapshot, error) {
	const op = `sdkforge: snapshot`
	s := &Snapshot{
		id:       uuid.New(),
		cfg:      cfg,
		mirrors:  make(map[string]*Mirror, len(cfg.Mirrors)),
		messages: messages,
		byName:   make(map[string][]*Package),
		byKey:    make(map[string]*Package),
		bySlug:   make(map[string]*PackageVersion),
		profiles: make(map[string]*Profile, len(profiles)),
	}
	if s.messages == nil {
		s.messages = MessageStore{}
	}
	for i := range cfg.Mirrors {
		m := &cfg.Mirrors[i]
		if _, ok := s.mirrors[m.ID]; ok {
			return nil, &Error{
				Op:      op,
				Kind:    ErrSchemaViolation,
				Message: fmt.Sprintf("duplicate mirror id %q", m.ID),
			}
		}
		s.mirrors[m.ID] = m
	}
	for _, p := range profiles {
		if _, ok := s.profiles[p.Arch]; ok {
			return nil, &Error{
				Op:      op,
				Kind:    ErrSchemaViolation,
				Message: fmt.Sprintf("duplicate profile definition for arch %q", p.Arch),
			}
		}
		seen := make(map[string]struct{}, len(p.Variants))
		for i := range p.Variants {
			n := p.Variants[i].Name
			if _, ok := seen[n]; ok {
				return nil, &Error{
					Op:      op,
					Kind:    ErrSchemaViolation,
					Message: fmt.Sprintf("arch %q: duplicate profile variant %q", p.Arch, n),
				}
			}
			seen[n] = struct{}{}
		}
		s.profiles[p.Arch] = p
	}
	for _, v := range versions {
		if err := validateVersion(v); err != nil {
			return nil, err
		}
		key := v.Category + "/" + v.Name
		pkg, ok := s.byKey[key]
		if !ok {
			pkg = &Package{
				Category: v.Category,
				Name:     v.Name,
				ByVer:    make(map[string]*PackageVersion),
			}
			s.byKey[key] = pkg
			s.byName[v.Name] = append(s.byName[v.Name], pkg)
			s.packages = append(s.packages, pkg)
		}
		if _, ok := pkg.ByVer[v.Version]; ok {
			return nil, &Error{
				Op:      op,
				Kind:    ErrSchemaViolation,
				Message: fmt.Sprintf("duplicate manifest for %s %s", key, v.Version),
			}
		}
		pkg.ByVer[v.Version] = v
		if v.Slug != "" {
			if prev, ok := s.bySlug[v.Slug]; ok {
				return nil, &Error{
					Op:   op,
					Kind: ErrSchemaViolation,
					Message: fmt.Sprintf("duplicate slug %q: %s/%s %s and %s %s",
						v.Slug, prev.Category, prev.Name, prev.Version, key, v.Version),
				}
			}
			s.bySlug[v.Slug] = v
		}
	}
	sort.Slice(s.packages, func(i, j int) bool {
		if s.packages[i].Category != s.packages[j].Category {
			return s.packages[i].Category < s.packages[j].Category
		}
		return s.packages[i].Name < s.packages[j].Name
	})
	for _, ps := range s.byName {
		sort.Slice(ps, func(i, j int) bool { return ps[i].Category < ps[j].Category })
	}
	return s, nil
}

func validateVersion(v *PackageVersion) error {
	const op = `sdkforge: snapshot`
	id := fmt.Sprintf("%s/%s %s", v.Category, v.Name, v.Version)
	switch {
	case !ValidName(v.Category):
		return &Error{Op: op, Kind: ErrSchemaViolation, Message: fmt.Sprintf("invalid category %q", v.Category)}
	case !ValidName(v.Name):
		return &Error{Op: op, Kind: ErrSchemaViolation, Message: fmt.Sprintf("invalid package name %q", v.Name)}
	case v.Semver == nil:
		return &Error{Op: op, Kind: ErrSchemaViolation, Message: id + ": version not parsed"}
	}
	names := make(map[string]struct{}, len(v.Distfiles))
	for i := range v.Distfiles {
		d := &v.Distfiles[i]
		if d.Name == "" {
			return &Error{Op: op, Kind: ErrSchemaViolation, Message: id + ": distfile with empty name"}
		}
		if _, ok := names[d.Name]; ok {
			return &Error{Op: op, Kind: ErrSchemaViolation, Message: fmt.Sprintf("%s: duplicate distfile %q", id, d.Name)}
		}
		names[d.Name] = struct{}{}
		if d.Size < 0 {
			return &Error{Op: op, Kind: ErrSchemaViolation, Message: fmt.Sprintf("%s: distfile %q: negative size", id, d.Name)}
		}
		if err := d.Checksums.Validate(); err != nil {
			return &Error{Op: op, Kind: ErrSchemaViolation, Message: fmt.Sprintf("%s: distfile %q", id, d.Name), Inner: err}
		}
	}
	// Kind tags and sub-records must agree; presence of the sub-record is
	// what drives behavior downstream.
	sub := map[string]bool{
		KindBinary:        v.Binary != nil,
		KindBlob:          v.Blob != nil,
		KindSource:        v.Source != nil,
		KindToolchain:     v.Toolchain != nil,
		KindEmulator:      v.Emulator != nil,
		KindProvisionable: v.Provisionable != nil,
	}
	for _, k := range v.Kinds {
		present, known := sub[k]
		if !known {
			return &Error{Op: op, Kind: ErrSchemaViolation, Message: fmt.Sprintf("%s: unknown kind %q", id, k)}
		}
		if !present {
			return &Error{Op: op, Kind: ErrSchemaViolation, Message: fmt.Sprintf("%s: kind %q declared but no %q section present", id, k, k)}
		}
	}
	for k, present := range sub {
		if present && !v.HasKind(k) {
			return &Error{Op: op, Kind: ErrSchemaViolation, Message: fmt.Sprintf("%s: %q section present but kind not declared", id, k)}
		}
	}
	// Distfile reference integrity for every kind-specific substructure.
	ref := func(section, name string) error {
		if _, ok := names[name]; !ok {
			return &Error{
				Op:      op,
				Kind:    ErrSchemaViolation,
				Message: fmt.Sprintf("%s: %s references unknown distfile %q", id, section, name),
			}
		}
		return nil
	}
	if v.Binary != nil {
		for _, h := range v.Binary.Hosts {
			for _, n := range h.Distfiles {
				if err := ref("binary host "+h.Host, n); err != nil {
					return err
				}
			}
		}
	}
	if v.Blob != nil {
		for _, n := range v.Blob.Distfiles {
			if err := ref("blob", n); err != nil {
				return err
			}
		}
	}
	if v.Source != nil {
		for _, n := range v.Source.Distfiles {
			if err := ref("source", n); err != nil {
				return err
			}
		}
	}
	if v.Provisionable != nil {
		parts := make([]string, 0, len(v.Provisionable.PartitionMap))
		for part := range v.Provisionable.PartitionMap {
			parts = append(parts, part)
		}
		sort.Strings(parts)
		for _, part := range parts {
			if err := ref("partition "+part, v.Provisionable.PartitionMap[part]); err != nil {
				return err
			}
		}
	}
	return nil
}

// ID is the identity of this particular load; two loads of the same tree
// carry different IDs but identical resolved contents.
func (s *Snapshot) ID() uuid.UUID { return s.id }

// Mirrors returns the mirror table in definition order.
func (s *Snapshot) Mirrors() []Mirror { return s.cfg.Mirrors }

// Mirror returns the mirror with the given id, or nil.
func (s *Snapshot) Mirror(id string) *Mirror { return s.mirrors[id] }

// Repo returns the repository's own metadata.
func (s *Snapshot) Repo() RepoInfo { return s.cfg.Repo }

// TelemetryEndpoints returns the telemetry endpoint declarations.
func (s *Snapshot) TelemetryEndpoints() []TelemetryEndpoint { return s.cfg.Telemetry }

// Messages returns the repository's message templates.
func (s *Snapshot) Messages() MessageStore { return s.messages }

// Packages returns every package, sorted by category then name.
func (s *Snapshot) Packages() []*Package { return s.packages }

// Package returns the package with the given identity, or nil.
func (s *Snapshot) Package(category, name string) *Package {
	return s.byKey[category+"/"+name]
}

// PackagesByName returns the packages with the given name across all
// categories, sorted by category.
func (s *Snapshot) PackagesByName(name string) []*Package { return s.byName[name] }

// BySlug returns the package version with the given slug, or nil.
func (s *Snapshot) BySlug(slug string) *PackageVersion { return s.bySlug[slug] }

// Profile returns the profile definition for the given arch, or nil.
func (s *Snapshot) Profile(arch string) *Profile { return s.profiles[arch] }

// Arches returns all arches with profile definitions, sorted.
func (s *Snapshot) Arches() []string {
	as := make([]string, 0, len(s.profiles))
	for a := range s.profiles {
		as = append(as, a)
	}
	sort.Strings(as)
	return as
}

// DistfileURLs builds the ordered candidate URL list for a distfile:
// explicit URLs first (mirror:// references expanded in place), then the
// implicit well-known mirror location keyed by the distfile name, unless
// the mirror restriction flag is set. Unrecognized URL schemes are
// dropped with a warning.
func (s *Snapshot) DistfileURLs(ctx context.Context, d *Distfile) []string {
	refs := make([]string, 0, len(d.URLs)+1)
	refs = append(refs, d.URLs...)
	if !d.Restricted(RestrictMirror) {
		refs = append(refs, "mirror://"+MirrorIDDist+"/"+d.Name)
	}
	var out []string
	for _, ref := range refs {
		u, err := url.Parse(ref)
		if err != nil {
			zlog.Warn(ctx).
				Str("url", ref).
				Err(err).
				Msg("skipping malformed distfile URL")
			continue
		}
		switch u.Scheme {
		case "http", "https":
			out = append(out, ref)
		case "mirror":
			m := s.mirrors[u.Host]
			if m == nil {
				zlog.Warn(ctx).
					Str("mirror", u.Host).
					Msg("skipping reference to undefined mirror")
				continue
			}
			out = append(out, m.Expand(strings.TrimPrefix(u.Path, "/"))...)
		default:
			zlog.Warn(ctx).
				Str("url", ref).
				Str("scheme", u.Scheme).
				Msg("skipping distfile URL with unrecognized scheme")
		}
	}
	return out
}
