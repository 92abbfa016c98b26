package sdkforge

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
)

// Supported checksum algorithm names.
const (
	SHA256 = "sha256"
	SHA512 = "sha512"
)

// Digest is a type representing the hash of some data.
//
// It's used throughout the fetch pipeline to avoid passing around two
// bare strings that have to stay associated.
type Digest struct {
	algo     string
	checksum []byte
}

func (d Digest) Checksum() []byte { return d.checksum }

func (d Digest) Algorithm() string { return d.algo }

// Hash returns a new [hash.Hash] for the digest's algorithm.
func (d Digest) Hash() hash.Hash {
	h, err := NewHash(d.algo)
	if err != nil {
		panic(fmt.Sprintf("programmer error: Digest constructed with bad algorithm %q", d.algo))
	}
	return h
}

func (d Digest) String() string {
	b, _ := d.MarshalText()
	return string(b)
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	el := hex.EncodedLen(len(d.checksum))
	hl := len(d.algo) + 1
	b := make([]byte, hl+el)
	copy(b, d.algo)
	b[len(d.algo)] = ':'
	hex.Encode(b[hl:], d.checksum)
	return b, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(t []byte) error {
	i := bytes.IndexByte(t, ':')
	if i == -1 {
		return fmt.Errorf("invalid digest format")
	}
	d.algo = string(t[:i])
	t = t[i+1:]
	d.checksum = make([]byte, hex.DecodedLen(len(t)))
	if _, err := hex.Decode(d.checksum, t); err != nil {
		return fmt.Errorf("invalid digest format")
	}
	return d.validate()
}

func (d *Digest) validate() error {
	var sz int
	switch d.algo {
	case SHA256:
		sz = sha256.Size
	case SHA512:
		sz = sha512.Size
	default:
		return fmt.Errorf("unsupported checksum algorithm %q", d.algo)
	}
	if len(d.checksum) != sz {
		return fmt.Errorf("bad checksum length: %d", len(d.checksum))
	}
	return nil
}

// NewDigest constructs a Digest from an algorithm name and a raw sum.
func NewDigest(algo string, sum []byte) (Digest, error) {
	d := Digest{
		algo:     algo,
		checksum: sum,
	}
	return d, d.validate()
}

// ParseDigest constructs a Digest from a string like "sha256:deadbeef...".
func ParseDigest(digest string) (Digest, error) {
	d := Digest{}
	return d, d.UnmarshalText([]byte(digest))
}

// NewHash returns a new [hash.Hash] for the named algorithm.
func NewHash(algo string) (hash.Hash, error) {
	switch algo {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	}
	return nil, fmt.Errorf("unsupported checksum algorithm %q", algo)
}

// Checksums is the set of expected digests declared for a distfile, keyed
// by algorithm name. Every present entry must verify for the artifact to
// be considered usable.
type Checksums map[string]string

// Validate reports whether every entry names a supported algorithm and
// carries a well-formed hex digest of the right length.
func (c Checksums) Validate() error {
	for _, algo := range c.Algorithms() {
		if _, err := ParseDigest(algo + ":" + c[algo]); err != nil {
			return err
		}
	}
	return nil
}

// Algorithms returns the declared algorithm names, sorted for
// deterministic iteration.
func (c Checksums) Algorithms() []string {
	as := make([]string, 0, len(c))
	for a := range c {
		as = append(as, a)
	}
	sort.Strings(as)
	return as
}
