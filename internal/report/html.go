package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteHTML renders an interactive line chart with one series per
// polarization over the union of azimuths. Missing values are gaps.
// An empty assetsHost uses the go-echarts default CDN.
func WriteHTML(w io.Writer, title, subtitle, metric, assetsHost string, series []Series) error {
	phis := map[float64]bool{}
	for _, s := range series {
		for _, p := range s.Points {
			phis[p.Phi] = true
		}
	}
	axis := make([]float64, 0, len(phis))
	for phi := range phis {
		axis = append(axis, phi)
	}
	sort.Float64s(axis)
	labels := make([]string, len(axis))
	for i, phi := range axis {
		labels[i] = strconv.FormatFloat(phi, 'f', -1, 64)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: assetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Phi (deg)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: metric + " (W/kg)", NameLocation: "middle", NameGap: 50}),
	)
	line.SetXAxis(labels)

	for _, s := range series {
		byPhi := make(map[float64]float64, len(s.Points))
		for _, p := range s.Points {
			byPhi[p.Phi] = p.Value
		}
		data := make([]opts.LineData, len(axis))
		for i, phi := range axis {
			if v, ok := byPhi[phi]; ok {
				data[i] = opts.LineData{Value: v}
			} else {
				data[i] = opts.LineData{Value: "-"}
			}
		}
		line.AddSeries(s.Polarization, data)
	}

	if err := line.Render(w); err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}
	return nil
}
