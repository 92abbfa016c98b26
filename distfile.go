package sdkforge

// Distfile restriction flags.
const (
	// RestrictMirror excludes the distfile from implicit mirror
	// expansion; only its explicit URLs are candidates.
	RestrictMirror = "mirror"
	// RestrictFetch forbids automated fetching entirely; the artifact
	// must be placed into the cache manually.
	RestrictFetch = "fetch"
)

// Distfile describes a single downloadable artifact belonging to a package
// version. Name doubles as the on-disk cache key.
type Distfile struct {
	Name string   `json:"name"`
	URLs []string `json:"urls,omitempty"`
	// Restrict carries restriction flags; see RestrictMirror and
	// RestrictFetch.
	Restrict  []string  `json:"restrict,omitempty"`
	Size      int64     `json:"size"`
	Checksums Checksums `json:"checksums"`
	// StripComponents is the number of leading path elements dropped
	// during tar extraction. Nil means the default of 1.
	StripComponents *int `json:"strip_components,omitempty"`
	// UnpackPrefixes is an allow-list of archive path prefixes for
	// partial extraction; empty means everything.
	UnpackPrefixes []string `json:"prefixes_to_unpack,omitempty"`
	// Unpack is the unpack-format selector; empty or "auto" means the
	// format is inferred from the filename.
	Unpack string `json:"unpack,omitempty"`
	// FetchInstruction describes how a fetch-restricted artifact is to be
	// obtained by hand.
	FetchInstruction *FetchInstruction `json:"fetch_restriction,omitempty"`
}

// FetchInstruction points at a repository message template explaining how
// to manually obtain a fetch-restricted distfile.
type FetchInstruction struct {
	MsgID  string            `json:"msgid"`
	Params map[string]string `json:"params,omitempty"`
}

// Restricted reports whether the given restriction flag is set.
func (d *Distfile) Restricted(kind string) bool {
	for _, r := range d.Restrict {
		if r == kind {
			return true
		}
	}
	return false
}

// StripDepth returns the effective strip_components value.
func (d *Distfile) StripDepth() int {
	if d.StripComponents == nil {
		return 1
	}
	return *d.StripComponents
}
