// Package integrity implements streaming checksum verification for
// distribution artifacts.
//
// A verification pass reads the input exactly once, feeding every
// algorithm declared in the descriptor; the declared size and every
// declared digest must match for the artifact to be considered usable.
package integrity

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/sdkforge/sdkforge"
)

// Verify streams r once and checks it against the declared size and
// checksum set. A size of -1 skips the size check.
//
// A correct byte stream always passes; any corruption fails with an
// [sdkforge.ErrIntegrity] error naming the first mismatching measurement.
func Verify(r io.Reader, size int64, want sdkforge.Checksums) error {
	const op = `integrity: verify`
	algos := want.Algorithms()
	hs := make([]hash.Hash, len(algos))
	ws := make([]io.Writer, len(algos))
	for i, algo := range algos {
		h, err := sdkforge.NewHash(algo)
		if err != nil {
			return &sdkforge.Error{Op: op, Kind: sdkforge.ErrSchemaViolation, Inner: err}
		}
		hs[i] = h
		ws[i] = h
	}
	n, err := io.Copy(io.MultiWriter(ws...), r)
	if err != nil {
		return fmt.Errorf("integrity: read failed: %w", err)
	}
	if size >= 0 && n != size {
		return &sdkforge.Error{
			Op:      op,
			Kind:    sdkforge.ErrIntegrity,
			Message: fmt.Sprintf("size mismatch: declared %d, got %d", size, n),
		}
	}
	for i, algo := range algos {
		got := hex.EncodeToString(hs[i].Sum(nil))
		if got != want[algo] {
			return &sdkforge.Error{
				Op:      op,
				Kind:    sdkforge.ErrIntegrity,
				Message: fmt.Sprintf("wrong %s checksum: want %s, got %s", algo, want[algo], got),
			}
		}
	}
	return nil
}

// VerifyFile is [Verify] over the file at path.
func VerifyFile(path string, size int64, want sdkforge.Checksums) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("integrity: %w", err)
	}
	defer f.Close()
	return Verify(f, size, want)
}
