package sdkforge

// VirtualEnvironment is the synthesis output: everything the CLI/plugin
// layer needs to materialize a ready-to-use cross build environment.
//
// A descriptor is created fresh per synthesis call and never mutated in
// place; identical inputs yield identical descriptors.
type VirtualEnvironment struct {
	// Profile and Variant record the inputs for diagnostics.
	Profile string `json:"profile"`
	Variant string `json:"variant"`
	// Target is the resolved toolchain target tuple.
	Target string `json:"target"`
	// Opts are the resolved compiler option values, after flavor
	// remapping.
	Opts CompilerOpts `json:"opts"`
	// CommonFlags is the rendered compiler flag string for Opts.
	CommonFlags string `json:"common_flags"`
	// Sysroot is the absolute sysroot path, if the toolchain package
	// declares one; empty otherwise.
	Sysroot string `json:"sysroot,omitempty"`
	// Emulator is present only when an emulator package was requested.
	Emulator *EmulatorEnvironment `json:"emulator,omitempty"`
}

// EmulatorEnvironment is the emulator slice of a VirtualEnvironment.
type EmulatorEnvironment struct {
	// Path is the absolute path of the resolved emulator binary.
	Path string `json:"path"`
	// Env are the environment variables the emulator needs.
	Env map[string]string `json:"env"`
	// BinfmtMisc is the binfmt_misc registration string with "$BIN"
	// already expanded, if the program declares one.
	BinfmtMisc string `json:"binfmt_misc,omitempty"`
}
