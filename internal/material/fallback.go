package material

// Properties are the dielectric values of one material at the sweep
// frequency.
type Properties struct {
	MassDensity          float64 `json:"density" yaml:"density"`
	Conductivity         float64 `json:"conductivity" yaml:"conductivity"`
	RelativePermittivity float64 `json:"permittivity" yaml:"permittivity"`
}

// GenericFallback names the entry used for materials the table does not know.
const GenericFallback = "DebugMaterial"

// fallbackTable holds the literals substituted when a database lookup fails.
// Values are fixed; do not recompute them.
var fallbackTable = map[string]Properties{
	"Fat": {
		MassDensity:          911.0,
		Conductivity:         0.11638198214029223,
		RelativePermittivity: 11.29425354244377,
	},
	"Skin": {
		MassDensity:          1109.0,
		Conductivity:         0.8997924135002646,
		RelativePermittivity: 40.936135452253346,
	},
	"Muscle": {
		MassDensity:          1090.4,
		Conductivity:         0.9782042083052804,
		RelativePermittivity: 54.81107626413944,
	},
	"Air": {
		MassDensity:          1.2041,
		Conductivity:         0.0,
		RelativePermittivity: 1.0,
	},
	GenericFallback: {
		MassDensity:          1000.0,
		Conductivity:         0.5,
		RelativePermittivity: 50.0,
	},
}

// FallbackProperties returns the literal entry for name. The second result
// is false when name has no entry of its own and the generic entry was used.
func FallbackProperties(name string) (Properties, bool) {
	if p, ok := fallbackTable[name]; ok {
		return p, true
	}
	return fallbackTable[GenericFallback], false
}
