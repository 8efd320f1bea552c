// Package sweep generates incidence-direction configurations and drives a
// simulation engine through them, persisting one result row per analysed run.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/sarsweep/internal/monitoring"
)

// DefaultAngleStep replaces an out-of-range azimuth step.
const DefaultAngleStep = 30.0

// DefaultTheta keeps the sweep in the horizontal plane.
const DefaultTheta = 90.0

// Polarization is a named E-field orientation.
type Polarization struct {
	Label string
	Psi   float64
}

var (
	Vertical   = Polarization{Label: "VPol", Psi: 90}
	Horizontal = Polarization{Label: "HPol", Psi: 0}
)

// PolarizationMode selects the polarizations a sweep covers.
type PolarizationMode int

const (
	Both PolarizationMode = iota
	VerticalOnly
	HorizontalOnly
)

// Polarizations returns the polarizations in sweep order.
func (m PolarizationMode) Polarizations() []Polarization {
	switch m {
	case VerticalOnly:
		return []Polarization{Vertical}
	case HorizontalOnly:
		return []Polarization{Horizontal}
	default:
		return []Polarization{Vertical, Horizontal}
	}
}

func (m PolarizationMode) String() string {
	switch m {
	case VerticalOnly:
		return "vertical"
	case HorizontalOnly:
		return "horizontal"
	default:
		return "both"
	}
}

// ParsePolarizationMode accepts both, vertical/vpol and horizontal/hpol.
func ParsePolarizationMode(s string) (PolarizationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return Both, nil
	case "vertical", "vpol", "v":
		return VerticalOnly, nil
	case "horizontal", "hpol", "h":
		return HorizontalOnly, nil
	}
	return Both, fmt.Errorf("invalid polarization mode %q: expected both, vertical or horizontal", s)
}

// Configuration is one incidence direction and polarization. Values are
// copied, never shared, so a generated configuration cannot change.
type Configuration struct {
	ID           int
	Theta        float64
	Phi          float64
	Psi          float64
	Polarization string

	// Name overrides the generated label (single and cardinal runs).
	Name string
}

// Label is the run-name suffix, e.g. "Phi_030_VPol" or "Phi_007.25_VPol".
func (c Configuration) Label() string {
	if c.Name != "" {
		return c.Name
	}
	if c.Phi == math.Trunc(c.Phi) {
		return fmt.Sprintf("Phi_%03d_%s", int(c.Phi), c.Polarization)
	}
	// Shortest exact form, so distinct azimuths never share a run name.
	whole, frac, _ := strings.Cut(strconv.FormatFloat(c.Phi, 'f', -1, 64), ".")
	if len(whole) < 3 && !strings.HasPrefix(whole, "-") {
		whole = strings.Repeat("0", 3-len(whole)) + whole
	}
	return fmt.Sprintf("Phi_%s.%s_%s", whole, frac, c.Polarization)
}

// Direction is the value of the Direction column for runs built from c.
func (c Configuration) Direction() string { return c.Label() }

// RunName joins the model name and label.
func (c Configuration) RunName(model string) string {
	return model + " - " + c.Label()
}

// maxSweepAngles bounds the azimuths per polarization of a generated sweep.
const maxSweepAngles = 36000

// GeneratorParams are the inputs of GenerateConfigurations.
type GeneratorParams struct {
	// AngleStep in degrees; values outside (0, 360] or finer than
	// 360/maxSweepAngles fall back to DefaultAngleStep.
	AngleStep    float64
	Polarization PolarizationMode

	// Theta overrides DefaultTheta when non-nil.
	Theta *float64
}

// NormalizeAngleStep returns step, or DefaultAngleStep with a warning when
// step is outside (0, 360] or would yield more than maxSweepAngles azimuths.
func NormalizeAngleStep(step float64) float64 {
	if !(step > 0 && step <= 360) {
		monitoring.Warnf("sweep", "angle step %g outside (0, 360]; using %g", step, DefaultAngleStep)
		return DefaultAngleStep
	}
	if 360/step > maxSweepAngles {
		monitoring.Warnf("sweep", "angle step %g yields more than %d azimuths; using %g", step, maxSweepAngles, DefaultAngleStep)
		return DefaultAngleStep
	}
	return step
}

// GenerateConfigurations returns the azimuth sweep: polarizations outer,
// phi inner over [0, 360) in AngleStep increments. The count is
// len(polarizations) * ceil(360/step).
func GenerateConfigurations(p GeneratorParams) []Configuration {
	step := NormalizeAngleStep(p.AngleStep)
	theta := DefaultTheta
	if p.Theta != nil {
		theta = *p.Theta
	}

	n := int(math.Ceil(360/step - 1e-9))
	var out []Configuration
	for _, pol := range p.Polarization.Polarizations() {
		for i := 0; i < n; i++ {
			phi := math.Round(float64(i)*step*1e6) / 1e6
			if phi >= 360 {
				break
			}
			out = append(out, Configuration{
				ID:           len(out),
				Theta:        theta,
				Phi:          phi,
				Psi:          pol.Psi,
				Polarization: pol.Label,
			})
		}
	}
	return out
}

// ConfigurationsForPhis builds configurations for explicit phi values.
func ConfigurationsForPhis(phis []float64, mode PolarizationMode, theta float64) []Configuration {
	var out []Configuration
	for _, pol := range mode.Polarizations() {
		for _, phi := range phis {
			out = append(out, Configuration{
				ID:           len(out),
				Theta:        theta,
				Phi:          phi,
				Psi:          pol.Psi,
				Polarization: pol.Label,
			})
		}
	}
	return out
}

// SingleConfiguration is an arbitrary orientation labelled
// "Theta_<t>_Phi_<p>_Psi_<s>".
func SingleConfiguration(theta, phi, psi float64) Configuration {
	pol := ""
	switch psi {
	case Vertical.Psi:
		pol = Vertical.Label
	case Horizontal.Psi:
		pol = Horizontal.Label
	}
	return Configuration{
		Theta:        theta,
		Phi:          phi,
		Psi:          psi,
		Polarization: pol,
		Name:         fmt.Sprintf("Theta_%s_Phi_%s_Psi_%s", angle(theta), angle(phi), angle(psi)),
	}
}

// angle formats integral degrees with one decimal ("90.0") and keeps
// fractional ones as written.
func angle(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.1f", v)
	}
	return strings.TrimRight(fmt.Sprintf("%.6f", v), "0")
}

// Cardinal directions in the horizontal plane.
var cardinals = []struct {
	name string
	phi  float64
}{
	{"Front(Y-)", 270},
	{"Back(Y+)", 90},
	{"Left(X-)", 180},
	{"Right(X+)", 0},
}

// CardinalConfigurations returns front, back, left and right incidence for
// each polarization, labelled "<direction>_<pol>".
func CardinalConfigurations(mode PolarizationMode) []Configuration {
	var out []Configuration
	for _, pol := range mode.Polarizations() {
		for _, c := range cardinals {
			out = append(out, Configuration{
				ID:           len(out),
				Theta:        DefaultTheta,
				Phi:          c.phi,
				Psi:          pol.Psi,
				Polarization: pol.Label,
				Name:         c.name + "_" + pol.Label,
			})
		}
	}
	return out
}

// ParseDirection inverts Label for azimuth and cardinal labels, returning
// the azimuth and the polarization suffix.
func ParseDirection(label string) (phi float64, pol string, ok bool) {
	i := strings.LastIndex(label, "_")
	if i < 0 {
		return 0, "", false
	}
	head, pol := label[:i], label[i+1:]
	if rest, found := strings.CutPrefix(head, "Phi_"); found {
		v, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return 0, "", false
		}
		return v, pol, true
	}
	for _, c := range cardinals {
		if c.name == head {
			return c.phi, pol, true
		}
	}
	return 0, "", false
}
