package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/sarsweep/internal/blob"
	"github.com/banshee-data/sarsweep/internal/store"
)

// Artifact is one rendered output.
type Artifact struct {
	Name        string
	ContentType string
	Data        []byte
}

// Options control rendering.
type Options struct {
	// BaseName prefixes every artifact name, e.g. "Taro" gives
	// "Taro_summary.csv".
	BaseName string
	Title    string
	Metric   string

	// AssetsHost serves the echarts scripts; empty uses the public CDN.
	AssetsHost string
}

func (o Options) name(suffix string) string {
	if o.BaseName == "" {
		return suffix
	}
	return o.BaseName + "_" + suffix
}

// Render produces the summary CSV, PNG plot and HTML chart for records.
// The plot and chart are skipped when no record carries an azimuth.
func Render(records []store.Record, o Options) ([]Artifact, error) {
	if o.Metric == "" {
		o.Metric = store.ColumnVWASAR
	}
	if o.Title == "" {
		o.Title = "SAR by incidence direction"
	}
	series, _ := Group(records)

	var summary bytes.Buffer
	if err := WriteSummaryCSV(&summary, Summarize(records)); err != nil {
		return nil, err
	}
	out := []Artifact{{Name: o.name("summary.csv"), ContentType: "text/csv", Data: summary.Bytes()}}

	if len(series) == 0 {
		logf("no azimuth records among %d; skipping plots", len(records))
		return out, nil
	}

	var png bytes.Buffer
	if err := WritePNG(&png, o.Title, o.Metric, series); err != nil {
		return nil, err
	}
	out = append(out, Artifact{Name: o.name("sar.png"), ContentType: "image/png", Data: png.Bytes()})

	var html bytes.Buffer
	pols := make([]string, len(series))
	for i, s := range series {
		pols[i] = s.Polarization
	}
	subtitle := fmt.Sprintf("%d record(s), %s", len(records), strings.Join(pols, ", "))
	if err := WriteHTML(&html, o.Title, subtitle, o.Metric, o.AssetsHost, series); err != nil {
		return nil, err
	}
	out = append(out, Artifact{Name: o.name("sar.html"), ContentType: "text/html", Data: html.Bytes()})

	logf("rendered %d artifact(s) from %d record(s)", len(out), len(records))
	return out, nil
}

// Publish stores each artifact under prefix.
func Publish(ctx context.Context, s blob.Store, prefix string, artifacts []Artifact) ([]blob.Info, error) {
	infos := make([]blob.Info, 0, len(artifacts))
	for _, a := range artifacts {
		info, err := blob.PutBytes(ctx, s, blob.Key(prefix, a.Name), a.Data, a.ContentType)
		if err != nil {
			return infos, fmt.Errorf("publishing %s: %w", a.Name, err)
		}
		infos = append(infos, info)
	}
	logf("published %d artifact(s) to %s under %q", len(infos), s.Driver(), prefix)
	return infos, nil
}
