// Package porcelain implements the machine-readable output protocol:
// one self-describing JSON object per line, each tagged with a versioned
// record type so consumers can skip records they do not understand.
package porcelain

import (
	"encoding/json"
	"io"

	"github.com/sdkforge/sdkforge"
)

// RecordType tags every emitted object.
type RecordType string

// TypePackageListEntry is the record type of [PackageListEntry].
const TypePackageListEntry RecordType = "pkglistentry-v1"

// Remark annotates a package version in a listing.
type Remark string

const (
	// RemarkLatest marks the newest non-prerelease version.
	RemarkLatest Remark = "latest"
	// RemarkPrerelease marks any prerelease version.
	RemarkPrerelease Remark = "prerelease"
	// RemarkLatestPrerelease marks the newest prerelease version.
	RemarkLatestPrerelease Remark = "latest-prerelease"
	// RemarkKnownIssue marks versions whose service level records known
	// problems.
	RemarkKnownIssue Remark = "known-issue"
)

// PackageListEntry is one package with all of its versions, newest first.
type PackageListEntry struct {
	Type     RecordType     `json:"ty"`
	Category string         `json:"category"`
	Name     string         `json:"name"`
	Versions []VersionEntry `json:"vers"`
}

// VersionEntry is one version row of a [PackageListEntry].
type VersionEntry struct {
	Version string   `json:"semver"`
	Kinds   []string `json:"pkg_kinds"`
	Remarks []Remark `json:"remarks"`
}

// Emitter writes porcelain records to a stream. It is not safe for
// concurrent use; porcelain output is inherently ordered.
type Emitter struct {
	enc *json.Encoder
}

// NewEmitter returns an Emitter writing to w.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{enc: json.NewEncoder(w)}
}

// Emit writes one record as a single line.
func (e *Emitter) Emit(rec any) error {
	return e.enc.Encode(rec)
}

// EmitPackageList writes one PackageListEntry per package in the
// snapshot, in the snapshot's canonical package order.
func (e *Emitter) EmitPackageList(snap *sdkforge.Snapshot) error {
	for _, pkg := range snap.Packages() {
		if err := e.Emit(ListEntry(pkg)); err != nil {
			return err
		}
	}
	return nil
}

// ListEntry builds the porcelain record for one package.
func ListEntry(pkg *sdkforge.Package) PackageListEntry {
	entry := PackageListEntry{
		Type:     TypePackageListEntry,
		Category: pkg.Category,
		Name:     pkg.Name,
	}
	seenRelease, seenPrerelease := false, false
	for _, v := range pkg.Versions() {
		ve := VersionEntry{
			Version: v.Version,
			Kinds:   v.Kinds,
			Remarks: []Remark{},
		}
		switch {
		case v.IsPrerelease():
			ve.Remarks = append(ve.Remarks, RemarkPrerelease)
			if !seenPrerelease {
				ve.Remarks = append(ve.Remarks, RemarkLatestPrerelease)
				seenPrerelease = true
			}
		default:
			if !seenRelease {
				ve.Remarks = append(ve.Remarks, RemarkLatest)
				seenRelease = true
			}
		}
		if v.HasKnownIssues() {
			ve.Remarks = append(ve.Remarks, RemarkKnownIssue)
		}
		entry.Versions = append(entry.Versions, ve)
	}
	return entry
}
