package builder

import (
	"fmt"

	"github.com/banshee-data/sarsweep/internal/config"
	"github.com/banshee-data/sarsweep/internal/engine"
)

// FromConfig turns a declared variant into a Variant. Periods and excitation
// default to the tutorial settings; kernels follow the anatomical preset.
func FromConfig(name string, vc config.VariantConfig) (Variant, error) {
	v := Variant{
		Name:            name,
		Source:          vc.Source,
		Setup:           engine.SetupSettings{SimulationPeriods: vc.Periods},
		Excitation:      engine.Excitation{Kind: engine.ExcitationKind(vc.Excitation), CenterFrequencyHz: vc.FrequencyHz},
		PreferredKernel: engine.KernelAXware,
		FallbackKernel:  engine.KernelSoftware,
	}
	if v.Setup.SimulationPeriods == 0 {
		v.Setup.SimulationPeriods = 10
	}
	switch v.Excitation.Kind {
	case "":
		v.Excitation.Kind = engine.ExcitationHarmonic
	case engine.ExcitationGaussian, engine.ExcitationHarmonic:
	default:
		return Variant{}, fmt.Errorf("variant %q: unknown excitation %q", name, vc.Excitation)
	}
	for _, r := range vc.Roles {
		v.Roles = append(v.Roles, Role{Material: r.Material, Regions: append([]string(nil), r.Regions...)})
	}
	if b := vc.SourceBlock; b != nil {
		v.StaticGeometry = []WireBlock{{Name: vc.Source, P0: engine.Vec3(b.P0), P1: engine.Vec3(b.P1)}}
	}
	return v, nil
}

// Select returns the declared variant called name, or the built-in preset
// when none is declared.
func Select(name string, declared map[string]config.VariantConfig) (Variant, error) {
	if vc, ok := declared[name]; ok {
		return FromConfig(name, vc)
	}
	return Preset(name)
}
