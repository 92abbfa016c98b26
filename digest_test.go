package sdkforge

import (
	"crypto/sha256"
	"strings"
	"testing"
)

type digestTestcase struct {
	Name   string
	Digest string
	Err    bool
}

func (tc digestTestcase) Run(t *testing.T) {
	d, err := ParseDigest(tc.Digest)
	if (err != nil) != tc.Err {
		t.Fatalf("got: %v, want error: %v", err, tc.Err)
	}
	if tc.Err {
		return
	}
	if got, want := d.String(), tc.Digest; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
}

func TestParseDigest(t *testing.T) {
	emptySHA256 := "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	tt := []digestTestcase{
		{Name: "SHA256", Digest: emptySHA256},
		{Name: "SHA512", Digest: "sha512:" + strings.Repeat("00", 64)},
		{Name: "NoSeparator", Digest: "sha256", Err: true},
		{Name: "BadAlgo", Digest: "md5:" + strings.Repeat("00", 16), Err: true},
		{Name: "ShortSum", Digest: "sha256:deadbeef", Err: true},
		{Name: "BadHex", Digest: "sha256:" + strings.Repeat("zz", 32), Err: true},
	}
	for _, tc := range tt {
		t.Run(tc.Name, tc.Run)
	}
}

func TestDigestHash(t *testing.T) {
	sum := sha256.Sum256([]byte("hello"))
	d, err := NewDigest(SHA256, sum[:])
	if err != nil {
		t.Fatal(err)
	}
	h := d.Hash()
	h.Write([]byte("hello"))
	if got := h.Sum(nil); string(got) != string(sum[:]) {
		t.Error("hash mismatch")
	}
}

func TestChecksumsValidate(t *testing.T) {
	good := Checksums{
		"sha256": strings.Repeat("00", 32),
		"sha512": strings.Repeat("00", 64),
	}
	if err := good.Validate(); err != nil {
		t.Error(err)
	}
	if got, want := strings.Join(good.Algorithms(), ","), "sha256,sha512"; got != want {
		t.Errorf("got: %q, want: %q", got, want)
	}
	bad := Checksums{"sha256": "deadbeef"}
	if err := bad.Validate(); err == nil {
		t.Error("got: nil, want: checksum length error")
	}
	unknown := Checksums{"crc32": "00000000"}
	if err := unknown.Validate(); err == nil {
		t.Error("got: nil, want: unsupported algorithm error")
	}
}
