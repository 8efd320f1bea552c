package report

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot size in inches.
const (
	plotWidth  = 10
	plotHeight = 5
)

var seriesColors = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 255},
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 255},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 255},
	color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 255},
}

// WritePNG plots each series as metric against azimuth.
func WritePNG(w io.Writer, title, metric string, series []Series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Phi (deg)"
	p.Y.Label.Text = metric + " (W/kg)"
	p.X.Min = 0
	p.X.Max = 360
	p.Add(plotter.NewGrid())

	for i, s := range series {
		xys := make(plotter.XYs, len(s.Points))
		for j, pt := range s.Points {
			xys[j] = plotter.XY{X: pt.Phi, Y: pt.Value}
		}
		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return fmt.Errorf("plotting %s: %w", s.Polarization, err)
		}
		c := seriesColors[i%len(seriesColors)]
		line.Color = c
		line.Width = vg.Points(1.5)
		points.Color = c
		points.Radius = vg.Points(2.5)
		p.Add(line, points)
		p.Legend.Add(s.Polarization, line, points)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(plotWidth*vg.Inch, plotHeight*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing plot: %w", err)
	}
	return nil
}
