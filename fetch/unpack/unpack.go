package unpack

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/quay/zlog"
	"github.com/ulikunitz/xz"

	"github.com/sdkforge/sdkforge"
)

// Unpack extracts the archive at src into dest using the given format.
//
// For tar-family archives (including the payload of a deb), strip leading
// path components are removed from every entry and, when prefixes is
// non-empty, only entries under one of the prefixes are extracted. Other
// formats ignore strip and prefixes.
func Unpack(ctx context.Context, f Format, src, dest string, strip int, prefixes []string) error {
	ctx = zlog.ContextWithValues(ctx, "component", "unpack/Unpack", "format", string(f), "src", src)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	defer in.Close()

	switch f {
	case FormatRaw:
		return writeCopy(filepath.Join(dest, filepath.Base(src)), in, 0o644)
	case FormatTar, FormatTarGzip, FormatTarBZ2, FormatTarLZ4, FormatTarXZ, FormatTarZstd:
		r, closer, err := decompress(f, in)
		if err != nil {
			return err
		}
		defer closer()
		return untar(ctx, r, dest, strip, prefixes)
	case FormatZip:
		return unzip(ctx, in, dest)
	case FormatDeb:
		return undeb(ctx, in, dest, strip, prefixes)
	case FormatGzip, FormatBZ2, FormatLZ4, FormatXZ, FormatZstd:
		r, closer, err := decompress(f, in)
		if err != nil {
			return err
		}
		defer closer()
		name := strings.TrimSuffix(filepath.Base(src), "."+string(f))
		return writeCopy(filepath.Join(dest, name), r, 0o644)
	}
	return &sdkforge.Error{
		Op:      `unpack: Unpack`,
		Kind:    sdkforge.ErrUnsupportedUnpackFormat,
		Message: fmt.Sprintf("unknown unpack format %q", f),
	}
}

// decompress wraps r in the format's decompression layer. The returned
// closer must be called after the stream is drained.
func decompress(f Format, r io.Reader) (io.Reader, func(), error) {
	switch f {
	case FormatTar:
		return r, func() {}, nil
	case FormatTarGzip, FormatGzip:
		z, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("unpack: %w", err)
		}
		return z, func() { z.Close() }, nil
	case FormatTarBZ2, FormatBZ2:
		return bzip2.NewReader(r), func() {}, nil
	case FormatTarLZ4, FormatLZ4:
		return lz4.NewReader(r), func() {}, nil
	case FormatTarXZ, FormatXZ:
		x, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("unpack: %w", err)
		}
		return x, func() {}, nil
	case FormatTarZstd, FormatZstd:
		z, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("unpack: %w", err)
		}
		return z.IOReadCloser(), func() { z.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unpack: no decompressor for format %q", f)
}

func untar(ctx context.Context, r io.Reader, dest string, strip int, prefixes []string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("unpack: reading tar: %w", err)
		}
		name := path.Clean(hdr.Name)
		if name == "." || !keepEntry(name, prefixes) {
			continue
		}
		rel, ok := stripComponents(name, strip)
		if !ok {
			continue
		}
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("unpack: archive entry %q escapes destination", hdr.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0o700); err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
			if err := writeCopy(target, tr, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
		case tar.TypeLink:
			linked, ok := stripComponents(path.Clean(hdr.Linkname), strip)
			if !ok || !filepath.IsLocal(linked) {
				return fmt.Errorf("unpack: hardlink %q escapes destination", hdr.Linkname)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
			if err := os.Link(filepath.Join(dest, filepath.FromSlash(linked)), target); err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
		default:
			zlog.Debug(ctx).
				Str("entry", hdr.Name).
				Uint8("typeflag", hdr.Typeflag).
				Msg("skipping unsupported tar entry type")
		}
	}
}

// keepEntry reports whether an entry's original, unstripped name falls
// under one of the requested prefixes. No prefixes means keep everything.
func keepEntry(name string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		p = strings.TrimSuffix(p, "/")
		if name == p || strings.HasPrefix(name, p+"/") {
			return true
		}
	}
	return false
}

// stripComponents removes the first strip path components from a
// slash-separated name. Entries shallower than the strip depth vanish.
func stripComponents(name string, strip int) (string, bool) {
	if strip <= 0 {
		return name, true
	}
	parts := strings.Split(name, "/")
	if len(parts) <= strip {
		return "", false
	}
	return path.Join(parts[strip:]...), true
}

func unzip(ctx context.Context, f *os.File, dest string) error {
	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	zr, err := zip.NewReader(f, fi.Size())
	if err != nil {
		return fmt.Errorf("unpack: reading zip: %w", err)
	}
	for _, zf := range zr.File {
		name := path.Clean(zf.Name)
		if name == "." {
			continue
		}
		if !filepath.IsLocal(name) {
			return fmt.Errorf("unpack: archive entry %q escapes destination", zf.Name)
		}
		target := filepath.Join(dest, filepath.FromSlash(name))
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("unpack: %w", err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("unpack: %w", err)
		}
		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("unpack: %w", err)
		}
		err = writeCopy(target, rc, zf.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// undeb extracts the data payload of a Debian package. A deb is an ar
// archive holding, among others, a data.tar.* member; only that member's
// contents land in dest.
func undeb(ctx context.Context, f *os.File, dest string, strip int, prefixes []string) error {
	member, r, err := arFind(f, "data.tar")
	if err != nil {
		return err
	}
	format := Detect(member)
	if format == "" {
		format = FormatTar
	}
	dr, closer, err := decompress(format, r)
	if err != nil {
		return err
	}
	defer closer()
	return untar(ctx, dr, dest, strip, prefixes)
}

// arFind scans a Unix ar archive for the first member whose name starts
// with prefix and returns its name and a reader over its bytes.
func arFind(r io.Reader, prefix string) (string, io.Reader, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return "", nil, fmt.Errorf("unpack: reading ar header: %w", err)
	}
	if string(magic[:]) != "!<arch>\n" {
		return "", nil, fmt.Errorf("unpack: not an ar archive")
	}
	var hdr [60]byte
	for {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return "", nil, fmt.Errorf("unpack: no %s member in ar archive", prefix)
			}
			return "", nil, fmt.Errorf("unpack: reading ar member header: %w", err)
		}
		name := strings.TrimRight(string(hdr[0:16]), " /")
		size, err := strconv.ParseInt(strings.TrimSpace(string(hdr[48:58])), 10, 64)
		if err != nil {
			return "", nil, fmt.Errorf("unpack: bad ar member size: %w", err)
		}
		if strings.HasPrefix(name, prefix) {
			return name, io.LimitReader(r, size), nil
		}
		// Member data is padded to an even boundary.
		skip := size + size%2
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return "", nil, fmt.Errorf("unpack: skipping ar member: %w", err)
		}
	}
}

func writeCopy(target string, r io.Reader, mode os.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("unpack: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("unpack: %w", err)
	}
	return nil
}
