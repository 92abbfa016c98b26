package sdkforge

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Masterminds/semver"
)

// Package kind tags. A PackageVersion carries a set of these; behavior is
// driven by the presence of the matching sub-record, not a type hierarchy.
const (
	KindBinary        = "binary"
	KindBlob          = "blob"
	KindSource        = "source"
	KindToolchain     = "toolchain"
	KindEmulator      = "emulator"
	KindProvisionable = "provisionable"
)

// Kinds returns all known package kind tags.
func Kinds() []string {
	return []string{KindBinary, KindBlob, KindSource, KindToolchain, KindEmulator, KindProvisionable}
}

var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9-]*$`)

// ValidName reports whether s is acceptable as a package category or name:
// a non-empty string of letters, digits and dashes, not starting with an
// underscore or dash.
func ValidName(s string) bool {
	return nameRE.MatchString(s)
}

// Package is a named collection of versions within a category.
//
// The (Category, Name) pair is the package identity. Version insertion
// order is irrelevant; [Package.Versions] sorts on demand.
type Package struct {
	Category string                     `json:"category"`
	Name     string                     `json:"name"`
	ByVer    map[string]*PackageVersion `json:"versions"`
}

// Versions returns all versions, sorted by descending semver precedence.
// Build metadata is ignored for comparison, per semver.
func (p *Package) Versions() []*PackageVersion {
	vs := make([]*PackageVersion, 0, len(p.ByVer))
	for _, v := range p.ByVer {
		vs = append(vs, v)
	}
	sort.Slice(vs, func(i, j int) bool {
		if c := vs[j].Semver.Compare(vs[i].Semver); c != 0 {
			return c < 0
		}
		return vs[i].Version < vs[j].Version
	})
	return vs
}

// Version returns the version with the exact version string, or nil.
func (p *Package) Version(ver string) *PackageVersion {
	return p.ByVer[ver]
}

// PackageVersion is one released version of a package: metadata, the
// distfiles it is distributed as, and the kind-specific sub-records.
type PackageVersion struct {
	Category        string          `json:"category"`
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Semver          *semver.Version `json:"semver"`
	// UpstreamVersion is free-form and kept for display only; it takes no
	// part in version comparison.
	UpstreamVersion string               `json:"upstream_version,omitempty"`
	Slug            string               `json:"slug,omitempty"`
	Desc            string               `json:"desc,omitempty"`
	DocURI          string               `json:"doc_uri,omitempty"`
	Vendor          Vendor               `json:"vendor"`
	ServiceLevel    []ServiceLevelRecord `json:"service_level,omitempty"`
	Kinds           []string             `json:"kinds"`
	Distfiles       []Distfile           `json:"distfiles"`

	Binary        *BinaryInfo        `json:"binary,omitempty"`
	Blob          *BlobInfo          `json:"blob,omitempty"`
	Source        *SourceInfo        `json:"source,omitempty"`
	Toolchain     *ToolchainInfo     `json:"toolchain,omitempty"`
	Emulator      *EmulatorInfo      `json:"emulator,omitempty"`
	Provisionable *ProvisionableInfo `json:"provisionable,omitempty"`
}

// HasKind reports whether the version carries the given kind tag.
func (v *PackageVersion) HasKind(kind string) bool {
	for _, k := range v.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Distfile returns the named distfile descriptor, or nil.
func (v *PackageVersion) Distfile(name string) *Distfile {
	for i := range v.Distfiles {
		if v.Distfiles[i].Name == name {
			return &v.Distfiles[i]
		}
	}
	return nil
}

var prereleaseTagRE = regexp.MustCompile(`^(?:alpha|beta|pre|rc)`)

// IsPrerelease reports whether the version should be hidden from "latest"
// selection by default.
//
// Only "(alpha|beta|pre|rc)*" prerelease fields count: repositories use
// other prerelease fields as plain datestamps that affect sorting order
// only, and those must stay visible.
func (v *PackageVersion) IsPrerelease() bool {
	return IsPrerelease(v.Semver)
}

// IsPrerelease reports whether sv counts as a prerelease version under the
// repository's conventions. See [PackageVersion.IsPrerelease].
func IsPrerelease(sv *semver.Version) bool {
	pre := sv.Prerelease()
	if pre == "" {
		return false
	}
	return prereleaseTagRE.MatchString(pre)
}

// Vendor identifies who produced the artifacts of a package version.
type Vendor struct {
	Name string `json:"name"`
	EULA string `json:"eula,omitempty"`
}

// Service level kinds.
const (
	ServiceLevelKnownIssue = "known_issue"
	ServiceLevelUntested   = "untested"
)

// ServiceLevelRecord is a support statement attached to a package version.
type ServiceLevelRecord struct {
	Level  string            `json:"level"`
	MsgID  string            `json:"msgid,omitempty"`
	Params map[string]string `json:"params,omitempty"`
}

// HasKnownIssues reports whether any service-level record flags a known
// issue.
func (v *PackageVersion) HasKnownIssues() bool {
	for _, r := range v.ServiceLevel {
		if r.Level == ServiceLevelKnownIssue {
			return true
		}
	}
	return false
}

// BinaryInfo binds distfiles (and optional command names) to host tuples
// for binary packages.
type BinaryInfo struct {
	Hosts []BinaryHostBinding `json:"hosts"`
}

// BinaryHostBinding is the per-host slice of a binary package.
type BinaryHostBinding struct {
	Host      string            `json:"host"`
	Distfiles []string          `json:"distfiles"`
	Commands  map[string]string `json:"commands,omitempty"`
}

// ForHost returns the binding for the given host tuple, or nil.
func (b *BinaryInfo) ForHost(host string) *BinaryHostBinding {
	for i := range b.Hosts {
		if b.Hosts[i].Host == host {
			return &b.Hosts[i]
		}
	}
	return nil
}

// BlobInfo lists the distfiles of an opaque blob package.
type BlobInfo struct {
	Distfiles []string `json:"distfiles"`
}

// SourceInfo lists the distfiles of a source package.
type SourceInfo struct {
	Distfiles []string `json:"distfiles"`
}

// ToolchainComponent is one tool shipped inside a toolchain package.
type ToolchainComponent struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ToolchainInfo describes a cross-toolchain package version.
type ToolchainInfo struct {
	Target          string               `json:"target"`
	Flavors         []string             `json:"flavors,omitempty"`
	Components      []ToolchainComponent `json:"components"`
	IncludedSysroot string               `json:"included_sysroot,omitempty"`
}

// TargetArch returns the architecture field of the target tuple.
func (t *ToolchainInfo) TargetArch() string {
	arch, _, _ := strings.Cut(t.Target, "-")
	return arch
}

// HasFlavor reports whether the toolchain carries the given flavor tag.
func (t *ToolchainInfo) HasFlavor(f string) bool {
	for _, x := range t.Flavors {
		if x == f {
			return true
		}
	}
	return false
}

// SatisfiesFlavors reports whether every flavor in req is present on the
// toolchain. Matching is pure subset-checking over free-form strings.
func (t *ToolchainInfo) SatisfiesFlavors(req []string) bool {
	return len(MissingFlavors(t.Flavors, req)) == 0
}

// Component returns the version of the named component, or "".
func (t *ToolchainInfo) Component(name string) string {
	for _, c := range t.Components {
		if c.Name == name {
			return c.Version
		}
	}
	return ""
}

// MissingFlavors returns the members of req absent from have, sorted.
func MissingFlavors(have, req []string) []string {
	var missing []string
	for _, r := range req {
		found := false
		for _, h := range have {
			if h == r {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, r)
		}
	}
	sort.Strings(missing)
	return missing
}

// EmulatorFlavorQEMULinuxUser identifies user-mode CPU emulators; these
// get the dynamic-linker prefix treatment during environment synthesis.
const EmulatorFlavorQEMULinuxUser = "qemu-linux-user"

// EmulatorInfo describes an emulator package version.
type EmulatorInfo struct {
	Flavors  []string          `json:"flavors,omitempty"`
	Programs []EmulatorProgram `json:"programs"`
}

// EmulatorProgram is one emulator binary shipped by an emulator package.
type EmulatorProgram struct {
	// Path is relative to the package's install root.
	Path            string   `json:"path"`
	Flavor          string   `json:"flavor"`
	SupportedArches []string `json:"supported_arches"`
	// BinfmtMisc is a binfmt_misc registration template; the literal
	// "$BIN" is replaced with the absolute program path at synthesis.
	BinfmtMisc string `json:"binfmt_misc,omitempty"`
}

// ProgramsForArch returns the programs supporting the given architecture,
// in declaration order.
func (e *EmulatorInfo) ProgramsForArch(arch string) []EmulatorProgram {
	var out []EmulatorProgram
	for _, p := range e.Programs {
		for _, a := range p.SupportedArches {
			if a == arch {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// SatisfiesFlavors reports whether every flavor in req is present on the
// emulator package.
func (e *EmulatorInfo) SatisfiesFlavors(req []string) bool {
	return len(MissingFlavors(e.Flavors, req)) == 0
}

// Known partition kinds for provisionable packages.
var KnownPartitionKinds = []string{"boot", "disk", "live", "root", "uboot"}

// ProvisionableInfo describes a device-provisionable package version.
type ProvisionableInfo struct {
	// PartitionMap maps partition kinds to distfile names.
	PartitionMap map[string]string `json:"partition_map"`
	Strategy     string            `json:"strategy"`
}
