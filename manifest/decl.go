package manifest

import (
	"fmt"

	"github.com/Masterminds/semver"

	"github.com/sdkforge/sdkforge"
)

// Schema-version tags this loader understands. Anything else is rejected,
// never guessed at.
const (
	repoConfigTag = "v1"
	packageFormat = "v1"
	profileFormat = "v1"
)

// repoConfigDecl is the on-disk shape of config.toml.
type repoConfigDecl struct {
	SDKRepo   string          `toml:"sdk-repo"`
	Repo      repoInfoDecl    `toml:"repo"`
	Mirrors   []mirrorDecl    `toml:"mirrors"`
	Telemetry []telemetryDecl `toml:"telemetry"`
}

type repoInfoDecl struct {
	DocURI string `toml:"doc_uri"`
}

type mirrorDecl struct {
	ID   string   `toml:"id"`
	URLs []string `toml:"urls"`
}

type telemetryDecl struct {
	ID    string `toml:"id"`
	Scope string `toml:"scope"`
	URL   string `toml:"url"`
}

func (d *repoConfigDecl) config() (sdkforge.RepoConfig, error) {
	var cfg sdkforge.RepoConfig
	if d.SDKRepo != repoConfigTag {
		return cfg, fmt.Errorf("unsupported repo config schema version %q", d.SDKRepo)
	}
	cfg.Repo = sdkforge.RepoInfo{DocURI: d.Repo.DocURI}
	for _, m := range d.Mirrors {
		cfg.Mirrors = append(cfg.Mirrors, sdkforge.Mirror{ID: m.ID, URLs: m.URLs})
	}
	for _, t := range d.Telemetry {
		cfg.Telemetry = append(cfg.Telemetry, sdkforge.TelemetryEndpoint{ID: t.ID, Scope: t.Scope, URL: t.URL})
	}
	return cfg, nil
}

// packageDecl is the on-disk shape of a package manifest.
type packageDecl struct {
	Format        string             `toml:"format"`
	Kind          []string           `toml:"kind"`
	Metadata      metadataDecl       `toml:"metadata"`
	Distfiles     []distfileDecl     `toml:"distfiles"`
	Binary        []binaryHostDecl   `toml:"binary"`
	Blob          *distfileListDecl  `toml:"blob"`
	Source        *distfileListDecl  `toml:"source"`
	Toolchain     *toolchainDecl     `toml:"toolchain"`
	Emulator      *emulatorDecl      `toml:"emulator"`
	Provisionable *provisionableDecl `toml:"provisionable"`
}

type metadataDecl struct {
	Slug            string             `toml:"slug"`
	Desc            string             `toml:"desc"`
	DocURI          string             `toml:"doc_uri"`
	UpstreamVersion string             `toml:"upstream_version"`
	Vendor          vendorDecl         `toml:"vendor"`
	ServiceLevel    []serviceLevelDecl `toml:"service_level"`
}

type vendorDecl struct {
	Name string `toml:"name"`
	EULA string `toml:"eula"`
}

type serviceLevelDecl struct {
	Level  string            `toml:"level"`
	MsgID  string            `toml:"msgid"`
	Params map[string]string `toml:"params"`
}

type distfileDecl struct {
	Name             string                `toml:"name"`
	URLs             []string              `toml:"urls"`
	Restrict         []string              `toml:"restrict"`
	Size             int64                 `toml:"size"`
	Checksums        map[string]string     `toml:"checksums"`
	StripComponents  *int                  `toml:"strip_components"`
	PrefixesToUnpack []string              `toml:"prefixes_to_unpack"`
	Unpack           string                `toml:"unpack"`
	FetchRestriction *fetchRestrictionDecl `toml:"fetch_restriction"`
}

type fetchRestrictionDecl struct {
	MsgID  string            `toml:"msgid"`
	Params map[string]string `toml:"params"`
}

type binaryHostDecl struct {
	Host      string            `toml:"host"`
	Distfiles []string          `toml:"distfiles"`
	Commands  map[string]string `toml:"commands"`
}

type distfileListDecl struct {
	Distfiles []string `toml:"distfiles"`
}

type toolchainDecl struct {
	Target          string          `toml:"target"`
	Flavors         []string        `toml:"flavors"`
	Quirks          []string        `toml:"quirks"`
	Components      []componentDecl `toml:"components"`
	IncludedSysroot string          `toml:"included_sysroot"`
}

type componentDecl struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

type emulatorDecl struct {
	Flavors  []string      `toml:"flavors"`
	Quirks   []string      `toml:"quirks"`
	Programs []programDecl `toml:"programs"`
}

type programDecl struct {
	Path            string   `toml:"path"`
	Flavor          string   `toml:"flavor"`
	SupportedArches []string `toml:"supported_arches"`
	BinfmtMisc      string   `toml:"binfmt_misc"`
}

type provisionableDecl struct {
	PartitionMap map[string]string `toml:"partition_map"`
	Strategy     string            `toml:"strategy"`
}

// version converts the decl into the model type. The version string comes
// from the manifest filename.
func (d *packageDecl) version(category, name, ver string) (*sdkforge.PackageVersion, error) {
	if d.Format != packageFormat {
		return nil, fmt.Errorf("unsupported package manifest format %q", d.Format)
	}
	sv, err := semver.NewVersion(ver)
	if err != nil {
		return nil, fmt.Errorf("version %q is not semver: %w", ver, err)
	}
	v := &sdkforge.PackageVersion{
		Category:        category,
		Name:            name,
		Version:         ver,
		Semver:          sv,
		UpstreamVersion: d.Metadata.UpstreamVersion,
		Slug:            d.Metadata.Slug,
		Desc:            d.Metadata.Desc,
		DocURI:          d.Metadata.DocURI,
		Vendor:          sdkforge.Vendor{Name: d.Metadata.Vendor.Name, EULA: d.Metadata.Vendor.EULA},
	}
	for _, r := range d.Metadata.ServiceLevel {
		v.ServiceLevel = append(v.ServiceLevel, sdkforge.ServiceLevelRecord{
			Level:  r.Level,
			MsgID:  r.MsgID,
			Params: r.Params,
		})
	}
	for _, f := range d.Distfiles {
		df := sdkforge.Distfile{
			Name:            f.Name,
			URLs:            f.URLs,
			Restrict:        f.Restrict,
			Size:            f.Size,
			Checksums:       sdkforge.Checksums(f.Checksums),
			StripComponents: f.StripComponents,
			UnpackPrefixes:  f.PrefixesToUnpack,
			Unpack:          f.Unpack,
		}
		if fr := f.FetchRestriction; fr != nil {
			df.FetchInstruction = &sdkforge.FetchInstruction{MsgID: fr.MsgID, Params: fr.Params}
		}
		v.Distfiles = append(v.Distfiles, df)
	}
	if len(d.Binary) > 0 {
		bi := &sdkforge.BinaryInfo{}
		for _, h := range d.Binary {
			bi.Hosts = append(bi.Hosts, sdkforge.BinaryHostBinding{
				Host:      h.Host,
				Distfiles: h.Distfiles,
				Commands:  h.Commands,
			})
		}
		v.Binary = bi
	}
	if d.Blob != nil {
		v.Blob = &sdkforge.BlobInfo{Distfiles: d.Blob.Distfiles}
	}
	if d.Source != nil {
		v.Source = &sdkforge.SourceInfo{Distfiles: d.Source.Distfiles}
	}
	if d.Toolchain != nil {
		ti := &sdkforge.ToolchainInfo{
			Target:          d.Toolchain.Target,
			Flavors:         flavorAlias(d.Toolchain.Flavors, d.Toolchain.Quirks),
			IncludedSysroot: d.Toolchain.IncludedSysroot,
		}
		for _, c := range d.Toolchain.Components {
			ti.Components = append(ti.Components, sdkforge.ToolchainComponent{Name: c.Name, Version: c.Version})
		}
		v.Toolchain = ti
	}
	if d.Emulator != nil {
		ei := &sdkforge.EmulatorInfo{
			Flavors: flavorAlias(d.Emulator.Flavors, d.Emulator.Quirks),
		}
		for _, p := range d.Emulator.Programs {
			ei.Programs = append(ei.Programs, sdkforge.EmulatorProgram{
				Path:            p.Path,
				Flavor:          p.Flavor,
				SupportedArches: p.SupportedArches,
				BinfmtMisc:      p.BinfmtMisc,
			})
		}
		v.Emulator = ei
	}
	if d.Provisionable != nil {
		v.Provisionable = &sdkforge.ProvisionableInfo{
			PartitionMap: d.Provisionable.PartitionMap,
			Strategy:     d.Provisionable.Strategy,
		}
	}
	v.Kinds = d.Kind
	if len(v.Kinds) == 0 {
		v.Kinds = deriveKinds(v)
	}
	return v, nil
}

// flavorAlias honors the legacy "quirks" spelling; "flavors" wins when
// both are present.
func flavorAlias(flavors, quirks []string) []string {
	if len(flavors) > 0 {
		return flavors
	}
	return quirks
}

func deriveKinds(v *sdkforge.PackageVersion) []string {
	var ks []string
	for _, k := range sdkforge.Kinds() {
		switch k {
		case sdkforge.KindBinary:
			if v.Binary != nil {
				ks = append(ks, k)
			}
		case sdkforge.KindBlob:
			if v.Blob != nil {
				ks = append(ks, k)
			}
		case sdkforge.KindSource:
			if v.Source != nil {
				ks = append(ks, k)
			}
		case sdkforge.KindToolchain:
			if v.Toolchain != nil {
				ks = append(ks, k)
			}
		case sdkforge.KindEmulator:
			if v.Emulator != nil {
				ks = append(ks, k)
			}
		case sdkforge.KindProvisionable:
			if v.Provisionable != nil {
				ks = append(ks, k)
			}
		}
	}
	return ks
}

// profileDecl is the on-disk shape of profiles/<arch>.toml.
type profileDecl struct {
	Format          string                                `toml:"format"`
	Arch            string                                `toml:"arch"`
	GenericOpts     optsDecl                              `toml:"generic_opts"`
	Profiles        []profileVariantDecl                  `toml:"profiles"`
	FlavorMCPUs     map[string]map[string]string          `toml:"flavor_specific_mcpus"`
	EmulatorPresets map[string]map[string]presetEntryDecl `toml:"emulator_presets"`
}

type optsDecl struct {
	MArch string `toml:"march"`
	MABI  string `toml:"mabi"`
	MCPU  string `toml:"mcpu"`
}

type profileVariantDecl struct {
	Name       string   `toml:"name"`
	NeedFlavor []string `toml:"need_flavor"`
	MArch      string   `toml:"march"`
	MABI       string   `toml:"mabi"`
	MCPU       string   `toml:"mcpu"`
}

type presetEntryDecl struct {
	NeedFlavor []string          `toml:"need_flavor"`
	Env        map[string]string `toml:"env"`
}

// profile converts the decl; arch comes from the filename and must agree
// with the declared arch when one is present.
func (d *profileDecl) profile(arch string) (*sdkforge.Profile, error) {
	if d.Format != profileFormat {
		return nil, fmt.Errorf("unsupported profile format %q", d.Format)
	}
	if d.Arch != "" && d.Arch != arch {
		return nil, fmt.Errorf("declared arch %q does not match filename arch %q", d.Arch, arch)
	}
	p := &sdkforge.Profile{
		Arch: arch,
		GenericOpts: sdkforge.CompilerOpts{
			MArch: d.GenericOpts.MArch,
			MABI:  d.GenericOpts.MABI,
			MCPU:  d.GenericOpts.MCPU,
		},
		FlavorMCPUs: d.FlavorMCPUs,
	}
	// The unconditional generic variant comes first, unless the
	// definition spells out its own.
	hasGeneric := false
	for _, v := range d.Profiles {
		if v.Name == "generic" {
			hasGeneric = true
			break
		}
	}
	if !hasGeneric {
		p.Variants = append(p.Variants, sdkforge.ProfileVariant{Name: "generic"})
	}
	for _, v := range d.Profiles {
		p.Variants = append(p.Variants, sdkforge.ProfileVariant{
			Name:        v.Name,
			NeedFlavors: v.NeedFlavor,
			Opts: sdkforge.CompilerOpts{
				MArch: v.MArch,
				MABI:  v.MABI,
				MCPU:  v.MCPU,
			},
		})
	}
	if len(d.EmulatorPresets) > 0 {
		p.EmulatorPresets = make(map[string]sdkforge.EmulatorPreset, len(d.EmulatorPresets))
		for mcpu, byFlavor := range d.EmulatorPresets {
			preset := make(sdkforge.EmulatorPreset, len(byFlavor))
			for flavor, e := range byFlavor {
				preset[flavor] = sdkforge.EmulatorPresetEntry{
					NeedFlavors: e.NeedFlavor,
					Env:         e.Env,
				}
			}
			p.EmulatorPresets[mcpu] = preset
		}
	}
	return p, nil
}

// messagesDecl is the on-disk shape of messages.toml: message ID to
// language code to template.
type messagesDecl map[string]map[string]string
