// Package unpack extracts distfiles into a destination directory.
//
// The archive format is normally inferred from the distfile name; a
// manifest may pin it explicitly with an unpack selector. Tar archives
// honor component stripping and prefix filtering. Zip archives do not
// honor component stripping; zip-packaged artifacts are expected to be
// flat.
package unpack

import (
	"fmt"
	"strings"

	"github.com/sdkforge/sdkforge"
)

// Format identifies how a distfile's payload is laid out on the wire.
type Format string

// Recognized formats. FormatAuto is only valid as a selector and
// resolves to a concrete format before extraction.
const (
	FormatAuto Format = "auto"
	FormatRaw  Format = "raw"

	FormatTar     Format = "tar"
	FormatTarGzip Format = "tar.gz"
	FormatTarBZ2  Format = "tar.bz2"
	FormatTarLZ4  Format = "tar.lz4"
	FormatTarXZ   Format = "tar.xz"
	FormatTarZstd Format = "tar.zst"

	FormatZip Format = "zip"
	FormatDeb Format = "deb"

	FormatGzip Format = "gz"
	FormatBZ2  Format = "bz2"
	FormatLZ4  Format = "lz4"
	FormatXZ   Format = "xz"
	FormatZstd Format = "zst"
)

// suffixes maps filename suffixes to formats. Longest match wins, so
// "x.tar.gz" resolves to the tarball format, not bare gzip.
var suffixes = []struct {
	ext string
	f   Format
}{
	{".tar.gz", FormatTarGzip},
	{".tgz", FormatTarGzip},
	{".tar.bz2", FormatTarBZ2},
	{".tbz2", FormatTarBZ2},
	{".tar.lz4", FormatTarLZ4},
	{".tar.xz", FormatTarXZ},
	{".txz", FormatTarXZ},
	{".tar.zst", FormatTarZstd},
	{".tar", FormatTar},
	{".zip", FormatZip},
	{".deb", FormatDeb},
	{".gz", FormatGzip},
	{".bz2", FormatBZ2},
	{".lz4", FormatLZ4},
	{".xz", FormatXZ},
	{".zst", FormatZstd},
}

// Detect infers the format from a distfile name. It returns the empty
// string when nothing matches.
func Detect(name string) Format {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s.ext) {
			return s.f
		}
	}
	return ""
}

// Resolve turns a manifest's unpack selector into a concrete format for
// the named distfile. An empty or "auto" selector defers to [Detect].
func Resolve(selector string, name string) (Format, error) {
	const op = `unpack: resolve`
	switch Format(selector) {
	case FormatAuto, Format(""):
		if f := Detect(name); f != "" {
			return f, nil
		}
		return "", &sdkforge.Error{
			Op:      op,
			Kind:    sdkforge.ErrUnsupportedUnpackFormat,
			Message: fmt.Sprintf("cannot infer unpack format for %q", name),
		}
	case FormatRaw,
		FormatTar, FormatTarGzip, FormatTarBZ2, FormatTarLZ4, FormatTarXZ, FormatTarZstd,
		FormatZip, FormatDeb,
		FormatGzip, FormatBZ2, FormatLZ4, FormatXZ, FormatZstd:
		return Format(selector), nil
	}
	return "", &sdkforge.Error{
		Op:      op,
		Kind:    sdkforge.ErrUnsupportedUnpackFormat,
		Message: fmt.Sprintf("unknown unpack selector %q", selector),
	}
}
