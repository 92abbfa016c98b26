package sdkforge

import (
	"errors"
	"strings"
)

// Error is the sdkforge error domain type.
//
// Errors coming from sdkforge components should be able to be inspected as
// ([errors.As]) an *Error at some point in the error chain.
//
// Implementers of sdkforge components should create an Error at the system
// boundary (e.g. when reading a manifest file or talking to a mirror) and
// intermediate layers should not wrap in another Error except to add
// additional [ErrorKind] information. That is to say, use [fmt.Errorf] with a
// "%w" verb in preference to creating a containing Error.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Message string
	Op      string
}

// Assert this implements all the cool features.
var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrSchemaViolation,
		ErrManifestParse,
		ErrPackageNotFound,
		ErrAmbiguousAtom,
		ErrIntegrity,
		ErrFetchRestricted,
		ErrUnsupportedUnpackFormat,
		ErrFlavorMismatch,
		ErrMcpuMappingMissing:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against.
//
// Every failure mode of the manifest/resolve/fetch/synthesize pipeline maps
// onto exactly one kind; no component swallows an error silently.
type ErrorKind string

// Defined error kinds.
var (
	// ErrSchemaViolation covers structural problems in otherwise
	// well-formed repository data: unsupported schema-version tags,
	// invalid category/name syntax, duplicate slugs, dangling distfile
	// references. Always fatal for the whole load attempt.
	ErrSchemaViolation = ErrorKind("schema violation")
	// ErrManifestParse covers files that cannot be decoded at all.
	ErrManifestParse = ErrorKind("manifest parse")
	// ErrPackageNotFound is reported when an atom query has an empty
	// candidate set after all filtering.
	ErrPackageNotFound = ErrorKind("package not found")
	// ErrAmbiguousAtom is reported when a bare package name matches
	// entries in more than one category and no qualifier was given.
	ErrAmbiguousAtom = ErrorKind("ambiguous atom")
	// ErrIntegrity is reported when a fetched artifact does not match its
	// declared size or any declared checksum.
	ErrIntegrity = ErrorKind("integrity")
	// ErrFetchRestricted is reported for distfiles that must be placed
	// into the cache manually; no network access is attempted.
	ErrFetchRestricted = ErrorKind("fetch restricted")
	// ErrUnsupportedUnpackFormat is reported for artifacts whose unpack
	// format is neither declared nor recognizable from the filename.
	ErrUnsupportedUnpackFormat = ErrorKind("unsupported unpack format")
	// ErrFlavorMismatch is reported when a required-flavor set is not a
	// subset of the chosen package's flavor set.
	ErrFlavorMismatch = ErrorKind("flavor mismatch")
	// ErrMcpuMappingMissing is reported when a flavor-specific mcpu
	// remapping (or emulator preset lookup) is required but the table has
	// no entry for the value at hand. Never silently passed through.
	ErrMcpuMappingMissing = ErrorKind("mcpu mapping missing")
)

// Error implements error.
func (e ErrorKind) Error() string {
	return string(e)
}
