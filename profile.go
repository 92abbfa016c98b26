package sdkforge

// CompilerOpts are the generic compiler option defaults of a profile, and
// the per-variant overrides. The zero string means "inherit" in variant
// position and "unset" in generic position.
type CompilerOpts struct {
	MArch string `json:"march,omitempty"`
	MABI  string `json:"mabi,omitempty"`
	MCPU  string `json:"mcpu,omitempty"`
}

// Overlay returns o with any fields set in over replaced.
func (o CompilerOpts) Overlay(over CompilerOpts) CompilerOpts {
	if over.MArch != "" {
		o.MArch = over.MArch
	}
	if over.MABI != "" {
		o.MABI = over.MABI
	}
	if over.MCPU != "" {
		o.MCPU = over.MCPU
	}
	return o
}

// Profile is the per-architecture profile definition: generic compiler
// option defaults, named variants, the flavor-specific mcpu remapping
// table, and emulator presets keyed by resolved mcpu value.
type Profile struct {
	Arch        string           `json:"arch"`
	GenericOpts CompilerOpts     `json:"generic_opts"`
	Variants    []ProfileVariant `json:"profiles"`
	// FlavorMCPUs maps flavor -> generic mcpu name -> flavor-specific
	// mcpu name.
	FlavorMCPUs map[string]map[string]string `json:"flavor_specific_mcpus,omitempty"`
	// EmulatorPresets is keyed by resolved mcpu value, with a "generic"
	// fallback entry.
	EmulatorPresets map[string]EmulatorPreset `json:"emulator_presets,omitempty"`
}

// Variant returns the named variant, or nil.
func (p *Profile) Variant(name string) *ProfileVariant {
	for i := range p.Variants {
		if p.Variants[i].Name == name {
			return &p.Variants[i]
		}
	}
	return nil
}

// ProfileVariant is one board/device flavor of a profile: a required
// toolchain flavor list (all must be present on the chosen toolchain;
// empty means unconditional) and per-field option overrides.
type ProfileVariant struct {
	Name        string       `json:"name"`
	NeedFlavors []string     `json:"need_flavor,omitempty"`
	Opts        CompilerOpts `json:"opts"`
}

// EmulatorPreset is keyed by emulator program flavor.
type EmulatorPreset map[string]EmulatorPresetEntry

// EmulatorPresetEntry carries the environment for one emulator flavor,
// guarded by its own required-flavor list checked against the emulator
// package.
type EmulatorPresetEntry struct {
	NeedFlavors []string          `json:"need_flavor,omitempty"`
	Env         map[string]string `json:"env"`
}
