package sdkforge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"
)

func testConfig() RepoConfig {
	return RepoConfig{
		Mirrors: []Mirror{
			{ID: "dist", URLs: []string{
				"https://mirror-a.example.org/dist",
				"https://mirror-b.example.org/dist",
			}},
		},
	}
}

func testVersion(t testing.TB, category, name, ver string) *PackageVersion {
	t.Helper()
	df := name + "-" + ver + ".tar.xz"
	return &PackageVersion{
		Category: category,
		Name:     name,
		Version:  ver,
		Semver:   mustVersion(t, ver),
		Kinds:    []string{KindBinary},
		Distfiles: []Distfile{
			{
				Name:      df,
				Size:      1024,
				Checksums: Checksums{SHA256: strings.Repeat("00", 32)},
			},
		},
		Binary: &BinaryInfo{
			Hosts: []BinaryHostBinding{
				{Host: "linux/x86_64", Distfiles: []string{df}},
			},
		},
	}
}

func TestNewSnapshot(t *testing.T) {
	a := testVersion(t, "toolchain", "gnu-upstream", "1.0.0")
	a.Slug = "gnu-upstream-1.0.0"
	b := testVersion(t, "toolchain", "gnu-upstream", "1.2.0")
	c := testVersion(t, "emulator", "qemu-user", "8.2.0")

	snap, err := NewSnapshot(testConfig(), []*PackageVersion{a, b, c}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	for _, p := range snap.Packages() {
		order = append(order, p.Category+"/"+p.Name)
	}
	want := []string{"emulator/qemu-user", "toolchain/gnu-upstream"}
	if !cmp.Equal(want, order) {
		t.Error(cmp.Diff(want, order))
	}

	if got := snap.Package("toolchain", "gnu-upstream"); got == nil || len(got.ByVer) != 2 {
		t.Errorf("got: %+v", got)
	}
	if got := snap.BySlug("gnu-upstream-1.0.0"); got != a {
		t.Errorf("got: %+v, want version 1.0.0", got)
	}
	if got := snap.PackagesByName("qemu-user"); len(got) != 1 {
		t.Errorf("got: %+v", got)
	}
}

type snapshotErrTestcase struct {
	Name     string
	Versions func(t testing.TB) []*PackageVersion
	Contains string
}

func (tc snapshotErrTestcase) Run(t *testing.T) {
	_, err := NewSnapshot(testConfig(), tc.Versions(t), nil, nil)
	if err == nil {
		t.Fatal("got: nil, want: schema violation")
	}
	if !errors.Is(err, ErrSchemaViolation) {
		t.Errorf("got: %v, want kind %q", err, ErrSchemaViolation)
	}
	if !strings.Contains(err.Error(), tc.Contains) {
		t.Errorf("got: %q, want mention of %q", err, tc.Contains)
	}
}

func TestNewSnapshotRejects(t *testing.T) {
	tt := []snapshotErrTestcase{
		{
			Name: "DuplicateSlug",
			Versions: func(t testing.TB) []*PackageVersion {
				a := testVersion(t, "toolchain", "gnu-upstream", "1.0.0")
				a.Slug = "dup"
				b := testVersion(t, "toolchain", "gnu-plct", "1.0.0")
				b.Slug = "dup"
				return []*PackageVersion{a, b}
			},
			Contains: `duplicate slug "dup"`,
		},
		{
			Name: "DuplicateVersion",
			Versions: func(t testing.TB) []*PackageVersion {
				return []*PackageVersion{
					testVersion(t, "toolchain", "gnu-upstream", "1.0.0"),
					testVersion(t, "toolchain", "gnu-upstream", "1.0.0"),
				}
			},
			Contains: "duplicate manifest",
		},
		{
			Name: "BadCategory",
			Versions: func(t testing.TB) []*PackageVersion {
				v := testVersion(t, "tool chain", "gnu-upstream", "1.0.0")
				return []*PackageVersion{v}
			},
			Contains: "invalid category",
		},
		{
			Name: "DanglingDistfileRef",
			Versions: func(t testing.TB) []*PackageVersion {
				v := testVersion(t, "toolchain", "gnu-upstream", "1.0.0")
				v.Binary.Hosts[0].Distfiles = []string{"no-such-file.tar.xz"}
				return []*PackageVersion{v}
			},
			Contains: "references unknown distfile",
		},
		{
			Name: "KindWithoutSection",
			Versions: func(t testing.TB) []*PackageVersion {
				v := testVersion(t, "toolchain", "gnu-upstream", "1.0.0")
				v.Kinds = append(v.Kinds, KindToolchain)
				return []*PackageVersion{v}
			},
			Contains: "no \"toolchain\" section",
		},
		{
			Name: "SectionWithoutKind",
			Versions: func(t testing.TB) []*PackageVersion {
				v := testVersion(t, "toolchain", "gnu-upstream", "1.0.0")
				v.Emulator = &EmulatorInfo{}
				return []*PackageVersion{v}
			},
			Contains: "kind not declared",
		},
		{
			Name: "BadChecksum",
			Versions: func(t testing.TB) []*PackageVersion {
				v := testVersion(t, "toolchain", "gnu-upstream", "1.0.0")
				v.Distfiles[0].Checksums = Checksums{SHA256: "deadbeef"}
				return []*PackageVersion{v}
			},
			Contains: "distfile",
		},
	}
	for _, tc := range tt {
		t.Run(tc.Name, tc.Run)
	}
}

func TestDistfileURLs(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	snap, err := NewSnapshot(testConfig(), nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("ImplicitMirror", func(t *testing.T) {
		d := &Distfile{Name: "sdk-1.0.0.tar.xz"}
		want := []string{
			"https://mirror-a.example.org/dist/sdk-1.0.0.tar.xz",
			"https://mirror-b.example.org/dist/sdk-1.0.0.tar.xz",
		}
		if got := snap.DistfileURLs(ctx, d); !cmp.Equal(want, got) {
			t.Error(cmp.Diff(want, got))
		}
	})
	t.Run("ExplicitFirst", func(t *testing.T) {
		d := &Distfile{
			Name: "sdk-1.0.0.tar.xz",
			URLs: []string{"https://vendor.example.com/dl/sdk-1.0.0.tar.xz"},
		}
		want := []string{
			"https://vendor.example.com/dl/sdk-1.0.0.tar.xz",
			"https://mirror-a.example.org/dist/sdk-1.0.0.tar.xz",
			"https://mirror-b.example.org/dist/sdk-1.0.0.tar.xz",
		}
		if got := snap.DistfileURLs(ctx, d); !cmp.Equal(want, got) {
			t.Error(cmp.Diff(want, got))
		}
	})
	t.Run("RestrictMirror", func(t *testing.T) {
		d := &Distfile{
			Name:     "sdk-1.0.0.tar.xz",
			URLs:     []string{"https://vendor.example.com/dl/sdk-1.0.0.tar.xz"},
			Restrict: []string{RestrictMirror},
		}
		want := []string{"https://vendor.example.com/dl/sdk-1.0.0.tar.xz"}
		if got := snap.DistfileURLs(ctx, d); !cmp.Equal(want, got) {
			t.Error(cmp.Diff(want, got))
		}
	})
	t.Run("UnknownScheme", func(t *testing.T) {
		d := &Distfile{
			Name:     "sdk-1.0.0.tar.xz",
			URLs:     []string{"ftp://old.example.com/sdk.tar.xz", "mirror://nowhere/sdk.tar.xz"},
			Restrict: []string{RestrictMirror},
		}
		if got := snap.DistfileURLs(ctx, d); len(got) != 0 {
			t.Errorf("got: %v, want: none", got)
		}
	})
}
