// Package config loads sweep campaign settings from a JSON or YAML file and
// applies SARSWEEP_* environment overrides.
package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/banshee-data/sarsweep/internal/fsutil"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SARSWEEP_"

// Extraction methods.
const (
	ExtractJSON  = "json"
	ExtractTable = "table"
)

// Submission modes.
const (
	ModeBlocking    = "blocking"
	ModeNonBlocking = "nonblocking"
)

// SweepConfig is the root configuration for a sweep campaign.
type SweepConfig struct {
	// Model overrides the model name derived from the engine document.
	Model string `json:"model,omitempty" yaml:"model,omitempty" env:"MODEL"`

	// Variant selects a built-in or configured model variant.
	Variant string `json:"variant" yaml:"variant" env:"VARIANT"`

	AngleStep    float64 `json:"angle_step" yaml:"angle_step" env:"ANGLE_STEP"`
	Polarization string  `json:"polarization" yaml:"polarization" env:"POLARIZATION"`
	Theta        float64 `json:"theta" yaml:"theta" env:"THETA"`

	// Mode is blocking or nonblocking.
	Mode string `json:"mode" yaml:"mode" env:"MODE"`

	// ResetRuns deletes every existing run before the sweep starts.
	ResetRuns bool `json:"reset_runs" yaml:"reset_runs" env:"RESET_RUNS"`

	Output     OutputConfig     `json:"output" yaml:"output" envPrefix:"OUTPUT_"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction" envPrefix:"EXTRACT_"`
	Materials  MaterialsConfig  `json:"materials" yaml:"materials" envPrefix:"MATERIALS_"`
	Ledger     LedgerConfig     `json:"ledger" yaml:"ledger" envPrefix:"LEDGER_"`
	Publish    PublishConfig    `json:"publish" yaml:"publish" envPrefix:"PUBLISH_"`

	// Variants declares additional model variants by name.
	Variants map[string]VariantConfig `json:"variants,omitempty" yaml:"variants,omitempty"`
}

type OutputConfig struct {
	ResultsPath  string `json:"results_path" yaml:"results_path" env:"RESULTS_PATH"`
	MetricColumn string `json:"metric_column" yaml:"metric_column" env:"METRIC_COLUMN"`

	// MetricsPath, when set, receives a prometheus textfile after the sweep.
	MetricsPath string `json:"metrics_path,omitempty" yaml:"metrics_path,omitempty" env:"METRICS_PATH"`
}

type ExtractionConfig struct {
	Method    string `json:"method" yaml:"method" env:"METHOD"`
	Statistic string `json:"statistic" yaml:"statistic" env:"STATISTIC"`

	// Column and Row locate the value for the table method. Row -1 is the
	// last row. The column order is fixed by the engine's report schema.
	Column         int    `json:"column" yaml:"column" env:"COLUMN"`
	Row            int    `json:"row" yaml:"row" env:"ROW"`
	HeaderContains string `json:"header_contains,omitempty" yaml:"header_contains,omitempty" env:"HEADER_CONTAINS"`

	Sensor string `json:"sensor" yaml:"sensor" env:"SENSOR"`
	Input  string `json:"input" yaml:"input" env:"INPUT"`
}

type MaterialsConfig struct {
	CatalogPath string `json:"catalog_path,omitempty" yaml:"catalog_path,omitempty" env:"CATALOG_PATH"`
	Profile     string `json:"profile" yaml:"profile" env:"PROFILE"`
}

type LedgerConfig struct {
	// Path of the sqlite ledger; empty disables it.
	Path string `json:"path,omitempty" yaml:"path,omitempty" env:"PATH"`
}

type PublishConfig struct {
	// Driver is "", "fs", "s3" or "memory". Empty disables publishing.
	Driver    string `json:"driver,omitempty" yaml:"driver,omitempty" env:"DRIVER"`
	Dir       string `json:"dir,omitempty" yaml:"dir,omitempty" env:"DIR"`
	Bucket    string `json:"bucket,omitempty" yaml:"bucket,omitempty" env:"BUCKET"`
	Region    string `json:"region,omitempty" yaml:"region,omitempty" env:"REGION"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" env:"ENDPOINT"`
	PathStyle bool   `json:"path_style,omitempty" yaml:"path_style,omitempty" env:"PATH_STYLE"`
	Prefix    string `json:"prefix,omitempty" yaml:"prefix,omitempty" env:"PREFIX"`
}

// VariantConfig declares a model variant as data.
type VariantConfig struct {
	Source      string           `json:"source" yaml:"source"`
	SourceBlock *WireBlockConfig `json:"source_block,omitempty" yaml:"source_block,omitempty"`
	Roles       []RoleConfig     `json:"roles" yaml:"roles"`
	Periods     float64          `json:"periods,omitempty" yaml:"periods,omitempty"`
	Excitation  string           `json:"excitation,omitempty" yaml:"excitation,omitempty"`
	FrequencyHz float64          `json:"frequency_hz,omitempty" yaml:"frequency_hz,omitempty"`
}

type RoleConfig struct {
	Material string   `json:"material" yaml:"material"`
	Regions  []string `json:"regions" yaml:"regions"`
}

type WireBlockConfig struct {
	P0 [3]float64 `json:"p0" yaml:"p0"`
	P1 [3]float64 `json:"p1" yaml:"p1"`
}

// DefaultSweepConfig returns the settings of the anatomical azimuth sweep.
func DefaultSweepConfig() *SweepConfig {
	return &SweepConfig{
		Variant:      "anatomical",
		AngleStep:    30,
		Polarization: "both",
		Theta:        90,
		Mode:         ModeNonBlocking,
		ResetRuns:    true,
		Output: OutputConfig{
			ResultsPath:  "sar_results.csv",
			MetricColumn: "VWA_SAR",
		},
		Extraction: ExtractionConfig{
			Method:    ExtractJSON,
			Statistic: "Average",
			Column:    2,
			Row:       -1,
			Sensor:    "Overall Field",
			Input:     "EM E(x,y,z,f0)",
		},
		Materials: MaterialsConfig{
			Profile: "IT'IS 4.1",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the defaults plus overrides.
func Load(fsys fsutil.FileSystem, path string, environ map[string]string) (*SweepConfig, error) {
	cfg := DefaultSweepConfig()
	if path != "" {
		if err := DecodeFile(fsys, path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(environ); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays SARSWEEP_* variables. A nil environ reads the process
// environment.
func (c *SweepConfig) ApplyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports every problem found, joined.
func (c *SweepConfig) Validate() error {
	var errs []error
	if c.Theta < 0 || c.Theta > 180 {
		errs = append(errs, fmt.Errorf("theta must be between 0 and 180, got %g", c.Theta))
	}
	switch c.Mode {
	case ModeBlocking, ModeNonBlocking:
	default:
		errs = append(errs, fmt.Errorf("mode must be %q or %q, got %q", ModeBlocking, ModeNonBlocking, c.Mode))
	}
	if c.Output.ResultsPath == "" {
		errs = append(errs, errors.New("output.results_path is required"))
	}
	if c.Output.MetricColumn == "" {
		errs = append(errs, errors.New("output.metric_column is required"))
	}
	switch c.Extraction.Method {
	case ExtractJSON:
		if c.Extraction.Statistic == "" {
			errs = append(errs, errors.New("extraction.statistic is required for the json method"))
		}
	case ExtractTable:
		if c.Extraction.Column < 0 {
			errs = append(errs, fmt.Errorf("extraction.column must be non-negative, got %d", c.Extraction.Column))
		}
	default:
		errs = append(errs, fmt.Errorf("extraction.method must be %q or %q, got %q", ExtractJSON, ExtractTable, c.Extraction.Method))
	}
	switch c.Publish.Driver {
	case "":
	case "fs":
		if c.Publish.Dir == "" {
			errs = append(errs, errors.New("publish.dir is required for the fs driver"))
		}
	case "s3":
		if c.Publish.Bucket == "" {
			errs = append(errs, errors.New("publish.bucket is required for the s3 driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("publish.driver must be fs, s3 or memory, got %q", c.Publish.Driver))
	}
	for name, v := range c.Variants {
		if v.Source == "" {
			errs = append(errs, fmt.Errorf("variants.%s.source is required", name))
		}
		for i, r := range v.Roles {
			if r.Material == "" {
				errs = append(errs, fmt.Errorf("variants.%s.roles[%d].material is required", name, i))
			}
		}
	}
	return errors.Join(errs...)
}
