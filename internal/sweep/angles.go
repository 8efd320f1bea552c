package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxAngles bounds explicit phi lists.
const maxAngles = 3600

// ParsePhiList parses comma-separated azimuth angles in degrees. Each value
// is normalised into [0, 360).
func ParsePhiList(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	var out []float64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid phi value %q: %w", p, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid phi value %q", p)
		}
		out = append(out, normalizeAzimuth(v))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty phi list")
	}
	if len(out) > maxAngles {
		return nil, fmt.Errorf("too many phi values: %d (max %d)", len(out), maxAngles)
	}
	return out, nil
}

// ParsePhiRange parses "start:end:step" into the half-open range
// [start, end) in step increments.
func ParsePhiRange(s string) ([]float64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid range format %q: expected start:end:step", s)
	}
	var vals [3]float64
	for i, name := range []string{"start", "end", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid %s value %q", name, parts[i])
		}
		vals[i] = v
	}
	start, end, step := vals[0], vals[1], vals[2]
	if step <= 0 {
		return nil, fmt.Errorf("step must be positive, got %g", step)
	}
	if start >= end {
		return nil, fmt.Errorf("start %g must be below end %g", start, end)
	}
	count := math.Ceil((end-start)/step - 1e-9)
	if count > maxAngles {
		return nil, fmt.Errorf("range %q yields %g values (max %d)", s, count, maxAngles)
	}
	n := int(count)
	out := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		// Round to avoid floating point accumulation errors.
		v := math.Round((start+float64(i)*step)*1e6) / 1e6
		if v >= end {
			break
		}
		out = append(out, normalizeAzimuth(v))
	}
	return out, nil
}

func normalizeAzimuth(v float64) float64 {
	v = math.Mod(v, 360)
	if v < 0 {
		v += 360
	}
	return v
}
