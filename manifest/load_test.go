package manifest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/quay/zlog"

	"github.com/sdkforge/sdkforge"
)

func TestLoad(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	snap, err := Load(ctx, filepath.Join("testdata", "repo"))
	if err != nil {
		t.Fatal(err)
	}

	var pkgs []string
	for _, p := range snap.Packages() {
		pkgs = append(pkgs, p.Category+"/"+p.Name)
	}
	want := []string{"emulator/qemu-user", "toolchain/gnu-plct"}
	if !cmp.Equal(want, pkgs) {
		t.Error(cmp.Diff(want, pkgs))
	}

	t.Run("Metadata", func(t *testing.T) {
		v := snap.BySlug("gnu-plct-latest")
		if v == nil {
			t.Fatal("slug lookup failed")
		}
		if got, want := v.Version, "1.0.0"; got != want {
			t.Errorf("got: %q, want: %q", got, want)
		}
		if got, want := v.Vendor.Name, "PLCT"; got != want {
			t.Errorf("got: %q, want: %q", got, want)
		}
		// Kind tags are derived from the present sections when the
		// manifest does not declare them.
		wantKinds := []string{sdkforge.KindBinary, sdkforge.KindToolchain}
		if !cmp.Equal(wantKinds, v.Kinds) {
			t.Error(cmp.Diff(wantKinds, v.Kinds))
		}
		df := v.Distfile("gnu-plct-1.0.0.tar.xz")
		if df == nil {
			t.Fatal("distfile lookup failed")
		}
		if got, want := df.StripDepth(), 1; got != want {
			t.Errorf("got: %d, want: %d", got, want)
		}
	})

	t.Run("QuirksAlias", func(t *testing.T) {
		v := snap.Package("toolchain", "gnu-plct").Version("2.0.0-rc1")
		if v == nil {
			t.Fatal("version lookup failed")
		}
		if !v.IsPrerelease() {
			t.Error("want prerelease")
		}
		if !v.HasKnownIssues() {
			t.Error("want known issue from service level record")
		}
		wantFlavors := []string{"rv64-xthead"}
		if !cmp.Equal(wantFlavors, v.Toolchain.Flavors) {
			t.Error(cmp.Diff(wantFlavors, v.Toolchain.Flavors))
		}
	})

	t.Run("Profile", func(t *testing.T) {
		p := snap.Profile("riscv64")
		if p == nil {
			t.Fatal("no riscv64 profile")
		}
		var names []string
		for _, v := range p.Variants {
			names = append(names, v.Name)
		}
		want := []string{"generic", "milkv-duo"}
		if !cmp.Equal(want, names) {
			t.Error(cmp.Diff(want, names))
		}
		if got, want := p.FlavorMCPUs["rv64-xthead"]["c906"], "thead-c906"; got != want {
			t.Errorf("got: %q, want: %q", got, want)
		}
		if _, ok := p.EmulatorPresets["thead-c906"]["qemu-linux-user"]; !ok {
			t.Error("missing emulator preset")
		}
	})

	t.Run("Messages", func(t *testing.T) {
		got := snap.Messages().Render("dist.manual", "en", map[string]string{
			"file":      "sdk.tar.xz",
			"dest_path": "/cache/sdk.tar.xz",
		})
		want := "download sdk.tar.xz from the vendor portal and place it at /cache/sdk.tar.xz"
		if got != want {
			t.Errorf("got: %q, want: %q", got, want)
		}
	})

	t.Run("Config", func(t *testing.T) {
		m := snap.Mirror("dist")
		if m == nil || len(m.URLs) != 2 {
			t.Fatalf("got: %+v", m)
		}
		if len(snap.TelemetryEndpoints()) != 1 {
			t.Errorf("got: %+v", snap.TelemetryEndpoints())
		}
	})
}

// Two loads of the same tree must agree on everything but the snapshot
// identity.
func TestLoadDeterministic(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)
	root := filepath.Join("testdata", "repo")
	a, err := Load(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Load(ctx, root)
	if err != nil {
		t.Fatal(err)
	}
	if a.ID() == b.ID() {
		t.Error("distinct loads share an identity")
	}

	project := func(s *sdkforge.Snapshot) map[string][]sdkforge.Distfile {
		out := make(map[string][]sdkforge.Distfile)
		for _, p := range s.Packages() {
			for _, v := range p.Versions() {
				out[p.Category+"/"+p.Name+"@"+v.Version] = v.Distfiles
			}
		}
		return out
	}
	if got, want := project(b), project(a); !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
	if got, want := b.Arches(), a.Arches(); !cmp.Equal(want, got) {
		t.Error(cmp.Diff(want, got))
	}
}

// writeRepo materializes a throwaway repository tree for failure tests.
func writeRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

const minimalConfig = "sdk-repo = \"v1\"\n"

func TestLoadRejects(t *testing.T) {
	ctx := zlog.Test(context.Background(), t)

	t.Run("MissingConfig", func(t *testing.T) {
		if _, err := Load(ctx, t.TempDir()); err == nil {
			t.Error("got: nil, want: error")
		}
	})
	t.Run("UnsupportedTag", func(t *testing.T) {
		root := writeRepo(t, map[string]string{
			"config.toml": "sdk-repo = \"v2\"\n",
		})
		_, err := Load(ctx, root)
		if !errors.Is(err, sdkforge.ErrSchemaViolation) {
			t.Errorf("got: %v, want kind %q", err, sdkforge.ErrSchemaViolation)
		}
	})
	t.Run("UndecodableManifest", func(t *testing.T) {
		root := writeRepo(t, map[string]string{
			"config.toml": minimalConfig,
			"manifests/toolchain/x/1.0.0.toml": "format = [broken\n",
		})
		_, err := Load(ctx, root)
		if !errors.Is(err, sdkforge.ErrManifestParse) {
			t.Errorf("got: %v, want kind %q", err, sdkforge.ErrManifestParse)
		}
	})
	t.Run("BadManifestFormat", func(t *testing.T) {
		root := writeRepo(t, map[string]string{
			"config.toml": minimalConfig,
			"manifests/toolchain/x/1.0.0.toml": "format = \"v0\"\n",
		})
		_, err := Load(ctx, root)
		if !errors.Is(err, sdkforge.ErrSchemaViolation) {
			t.Errorf("got: %v, want kind %q", err, sdkforge.ErrSchemaViolation)
		}
	})
	t.Run("DanglingDistfileRef", func(t *testing.T) {
		root := writeRepo(t, map[string]string{
			"config.toml": minimalConfig,
			"manifests/toolchain/x/1.0.0.toml": `format = "v1"

[[distfiles]]
name = "x-1.0.0.tar.xz"
size = 1

[distfiles.checksums]
sha256 = "0000000000000000000000000000000000000000000000000000000000000000"

[[binary]]
host = "linux/x86_64"
distfiles = ["missing.tar.xz"]
`,
		})
		_, err := Load(ctx, root)
		if !errors.Is(err, sdkforge.ErrSchemaViolation) {
			t.Errorf("got: %v, want kind %q", err, sdkforge.ErrSchemaViolation)
		}
	})
	t.Run("BadProfile", func(t *testing.T) {
		root := writeRepo(t, map[string]string{
			"config.toml":           minimalConfig,
			"profiles/riscv64.toml": "format = \"v1\"\narch = \"aarch64\"\n",
		})
		_, err := Load(ctx, root)
		if !errors.Is(err, sdkforge.ErrSchemaViolation) {
			t.Errorf("got: %v, want kind %q", err, sdkforge.ErrSchemaViolation)
		}
	})
}
