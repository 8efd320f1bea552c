package builder

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/banshee-data/sarsweep/internal/engine"
)

// ErrUnknownVariant is returned by Preset for names with no built-in variant.
var ErrUnknownVariant = errors.New("unknown variant")

// Role assigns one material to a list of region names.
type Role struct {
	Material string
	Regions  []string
}

// WireBlock is static geometry created once per document when missing.
type WireBlock struct {
	Name   string
	P0, P1 engine.Vec3
}

// Variant describes the model a sweep runs against: which regions carry
// which material, where the source sits and how the solver is set up.
type Variant struct {
	Name   string
	Roles  []Role
	Source string

	// StaticGeometry is ensured before the first run is built.
	StaticGeometry []WireBlock

	Setup      engine.SetupSettings
	Excitation engine.Excitation

	// PreferredKernel is tried first; FallbackKernel is used when the engine
	// rejects it. Equal kernels disable the fallback.
	PreferredKernel engine.KernelKind
	FallbackKernel  engine.KernelKind
}

// AutoTerminationStrict is the termination criterion used by the anatomical
// and debug variants.
const AutoTerminationStrict = "GlobalAutoTerminationStrict"

// anatomicalMuscle lists Tissue_0..56 minus the unused indices and the skin
// and fat tissues.
func anatomicalMuscle() []string {
	skip := map[int]bool{3: true, 16: true, 27: true, 36: true, 40: true, 41: true, 47: true, 50: true}
	var names []string
	for i := 0; i <= 56; i++ {
		if skip[i] {
			continue
		}
		names = append(names, "Tissue_"+strconv.Itoa(i))
	}
	return names
}

// Anatomical is the segmented human model driven by "Wire Block 1".
func Anatomical() Variant {
	return Variant{
		Name: "anatomical",
		Roles: []Role{
			{Material: "Fat", Regions: []string{"Tissue_50"}},
			{Material: "Skin", Regions: []string{"Tissue_47"}},
			{Material: "Muscle", Regions: anatomicalMuscle()},
		},
		Source: "Wire Block 1",
		StaticGeometry: []WireBlock{
			{Name: "Wire Block 1", P0: engine.Vec3{-100, -100, -100}, P1: engine.Vec3{1800, 1800, 1800}},
		},
		Setup:           engine.SetupSettings{SimulationPeriods: 30, AutoTermination: AutoTerminationStrict},
		Excitation:      engine.Excitation{Kind: engine.ExcitationGaussian},
		PreferredKernel: engine.KernelAXware,
		FallbackKernel:  engine.KernelSoftware,
	}
}

// Debug is a single box of DebugMaterial. Its entities must already exist.
func Debug() Variant {
	return Variant{
		Name: "debug",
		Roles: []Role{
			{Material: "DebugMaterial", Regions: []string{"Debug Box"}},
		},
		Source:          "Debug Source Wire",
		Setup:           engine.SetupSettings{SimulationPeriods: 30, AutoTermination: AutoTerminationStrict},
		Excitation:      engine.Excitation{Kind: engine.ExcitationGaussian},
		PreferredKernel: engine.KernelAXware,
		FallbackKernel:  engine.KernelSoftware,
	}
}

// Tutorial is a muscle block in a 100 mm source box, excited at 1 GHz.
func Tutorial() Variant {
	return Variant{
		Name: "tutorial",
		Roles: []Role{
			{Material: "Muscle", Regions: []string{"Muscle Block"}},
		},
		Source: "Plane Wave Source",
		StaticGeometry: []WireBlock{
			{Name: "Plane Wave Source", P0: engine.Vec3{0, 0, 0}, P1: engine.Vec3{100, 100, 100}},
		},
		Setup:           engine.SetupSettings{SimulationPeriods: 10},
		Excitation:      engine.Excitation{Kind: engine.ExcitationHarmonic, CenterFrequencyHz: 1e9},
		PreferredKernel: engine.KernelSoftware,
		FallbackKernel:  engine.KernelSoftware,
	}
}

var presets = map[string]func() Variant{
	"anatomical": Anatomical,
	"debug":      Debug,
	"tutorial":   Tutorial,
}

// Preset returns the built-in variant with the given name.
func Preset(name string) (Variant, error) {
	f, ok := presets[name]
	if !ok {
		return Variant{}, fmt.Errorf("%w %q (built-in: %v)", ErrUnknownVariant, name, PresetNames())
	}
	return f(), nil
}

// PresetNames lists the built-in variants, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RegionNames returns every region name the variant references, source last.
func (v Variant) RegionNames() []string {
	var names []string
	for _, r := range v.Roles {
		names = append(names, r.Regions...)
	}
	return append(names, v.Source)
}
