// Package venv synthesizes virtual cross build environment descriptors
// from a repository snapshot, a profile selection, and resolved packages.
//
// Synthesis is a pure computation over its inputs plus the two install
// roots; it touches neither the network nor the package store, so the
// same request against the same snapshot always yields an identical
// descriptor.
package venv

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quay/zlog"

	"github.com/sdkforge/sdkforge"
)

// Request names everything a synthesis run needs.
type Request struct {
	// Profile is the architecture profile name, e.g. "riscv64".
	Profile string
	// Variant selects a profile variant; empty selects "generic".
	Variant string
	// Toolchain is the resolved toolchain package version. Required.
	Toolchain *sdkforge.PackageVersion
	// Emulator is the resolved emulator package version, or nil when no
	// emulation is wanted.
	Emulator *sdkforge.PackageVersion
	// ToolchainRoot is the toolchain package's install root, used to
	// absolutize the included sysroot.
	ToolchainRoot string
	// EmulatorRoot is the emulator package's install root.
	EmulatorRoot string
}

// Synthesize builds a virtual environment descriptor for the request.
//
// Flavor requirements are fail-closed: a variant or preset whose needed
// flavors the chosen package does not carry aborts synthesis rather than
// degrading silently.
func Synthesize(ctx context.Context, snap *sdkforge.Snapshot, req Request) (*sdkforge.VirtualEnvironment, error) {
	const op = `venv: synthesize`
	variantName := req.Variant
	if variantName == "" {
		variantName = "generic"
	}
	ctx = zlog.ContextWithValues(ctx,
		"component", "venv/Synthesize",
		"profile", req.Profile,
		"variant", variantName,
	)

	if req.Toolchain == nil || req.Toolchain.Toolchain == nil {
		return nil, fmt.Errorf("venv: request needs a toolchain package")
	}
	tc := req.Toolchain.Toolchain

	prof := snap.Profile(req.Profile)
	if prof == nil {
		return nil, fmt.Errorf("venv: unknown profile %q", req.Profile)
	}
	variant := prof.Variant(variantName)
	if variant == nil {
		return nil, fmt.Errorf("venv: profile %q has no variant %q", req.Profile, variantName)
	}

	if missing := sdkforge.MissingFlavors(tc.Flavors, variant.NeedFlavors); len(missing) > 0 {
		return nil, &sdkforge.Error{
			Op:   op,
			Kind: sdkforge.ErrFlavorMismatch,
			Message: fmt.Sprintf("toolchain %s/%s lacks flavors needed by variant %q: %s",
				req.Toolchain.Category, req.Toolchain.Name, variantName,
				strings.Join(missing, ", ")),
		}
	}

	opts := prof.GenericOpts.Overlay(variant.Opts)
	opts, err := remapMCPU(prof, variant, opts)
	if err != nil {
		return nil, err
	}

	ve := &sdkforge.VirtualEnvironment{
		Profile:     req.Profile,
		Variant:     variantName,
		Target:      tc.Target,
		Opts:        opts,
		CommonFlags: renderFlags(opts),
	}
	if tc.IncludedSysroot != "" {
		ve.Sysroot = filepath.Join(req.ToolchainRoot, tc.IncludedSysroot)
	}

	if req.Emulator != nil {
		emu, err := emulatorEnvironment(prof, tc, req, opts, ve.Sysroot)
		if err != nil {
			return nil, err
		}
		ve.Emulator = emu
	}
	zlog.Debug(ctx).
		Str("target", ve.Target).
		Str("flags", ve.CommonFlags).
		Bool("emulated", ve.Emulator != nil).
		Msg("environment synthesized")
	return ve, nil
}

// remapMCPU rewrites the mcpu value through every remap table keyed by a
// flavor the variant needs. Tables apply in flavor name order, and a
// table that applies but has no entry for the current value is an error,
// not a silent passthrough. Flavors the toolchain happens to carry beyond
// the variant's needs do not trigger a remap.
func remapMCPU(prof *sdkforge.Profile, variant *sdkforge.ProfileVariant, opts sdkforge.CompilerOpts) (sdkforge.CompilerOpts, error) {
	if opts.MCPU == "" || len(prof.FlavorMCPUs) == 0 {
		return opts, nil
	}
	var flavors []string
	for _, f := range variant.NeedFlavors {
		if _, ok := prof.FlavorMCPUs[f]; ok {
			flavors = append(flavors, f)
		}
	}
	sort.Strings(flavors)
	for _, f := range flavors {
		mapped, ok := prof.FlavorMCPUs[f][opts.MCPU]
		if !ok {
			return opts, &sdkforge.Error{
				Op:   `venv: mcpu remap`,
				Kind: sdkforge.ErrMcpuMappingMissing,
				Message: fmt.Sprintf("flavor %q has no mcpu mapping for %q on profile %q",
					f, opts.MCPU, prof.Arch),
			}
		}
		opts.MCPU = mapped
	}
	return opts, nil
}

// renderFlags produces the canonical compiler flag string. A set mcpu
// supersedes march.
func renderFlags(opts sdkforge.CompilerOpts) string {
	var parts []string
	switch {
	case opts.MCPU != "":
		parts = append(parts, "-mcpu="+opts.MCPU)
	case opts.MArch != "":
		parts = append(parts, "-march="+opts.MArch)
	}
	if opts.MABI != "" {
		parts = append(parts, "-mabi="+opts.MABI)
	}
	return strings.Join(parts, " ")
}

func emulatorEnvironment(prof *sdkforge.Profile, tc *sdkforge.ToolchainInfo, req Request, opts sdkforge.CompilerOpts, sysroot string) (*sdkforge.EmulatorEnvironment, error) {
	const op = `venv: emulator preset`
	if req.Emulator.Emulator == nil {
		return nil, fmt.Errorf("venv: package %s/%s is not an emulator",
			req.Emulator.Category, req.Emulator.Name)
	}
	info := req.Emulator.Emulator

	key := opts.MCPU
	if key == "" {
		key = "generic"
	}
	preset, ok := prof.EmulatorPresets[key]
	if !ok {
		preset, ok = prof.EmulatorPresets["generic"]
	}
	if !ok {
		return nil, &sdkforge.Error{
			Op:   op,
			Kind: sdkforge.ErrMcpuMappingMissing,
			Message: fmt.Sprintf("profile %q has no emulator preset for mcpu %q and no generic fallback",
				prof.Arch, key),
		}
	}

	arch := tc.TargetArch()
	for _, prog := range info.ProgramsForArch(arch) {
		entry, ok := preset[prog.Flavor]
		if !ok {
			continue
		}
		if missing := sdkforge.MissingFlavors(info.Flavors, entry.NeedFlavors); len(missing) > 0 {
			return nil, &sdkforge.Error{
				Op:   op,
				Kind: sdkforge.ErrFlavorMismatch,
				Message: fmt.Sprintf("emulator %s/%s lacks flavors needed by preset %q: %s",
					req.Emulator.Category, req.Emulator.Name, prog.Flavor,
					strings.Join(missing, ", ")),
			}
		}
		bin := filepath.Join(req.EmulatorRoot, prog.Path)
		env := make(map[string]string, len(entry.Env)+1)
		for k, v := range entry.Env {
			env[k] = v
		}
		if prog.Flavor == sdkforge.EmulatorFlavorQEMULinuxUser && sysroot != "" {
			env["QEMU_LD_PREFIX"] = sysroot
		}
		ee := &sdkforge.EmulatorEnvironment{
			Path: bin,
			Env:  env,
		}
		if prog.BinfmtMisc != "" {
			ee.BinfmtMisc = strings.ReplaceAll(prog.BinfmtMisc, "$BIN", bin)
		}
		return ee, nil
	}
	return nil, fmt.Errorf("venv: emulator %s/%s has no program for architecture %q matching the profile presets",
		req.Emulator.Category, req.Emulator.Name, arch)
}
