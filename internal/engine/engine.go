// Package engine defines the contract between the sweep core and an external
// EM simulation engine. Implementations live in subpackages: memory for a
// deterministic in-process engine, bridge for an engine reached over HTTP.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a named run, entity, evaluator or output
	// does not exist in the session.
	ErrNotFound = errors.New("engine: not found")

	// ErrDuplicateName is returned when creating an entity or run whose name
	// is already taken.
	ErrDuplicateName = errors.New("engine: duplicate name")

	// ErrUnsupportedKernel is returned by SetSolverKernel when the engine
	// cannot use the requested kernel (licensing, missing accelerator).
	ErrUnsupportedKernel = errors.New("engine: unsupported solver kernel")
)

// Vec3 is a point in model units.
type Vec3 [3]float64

// Region references a live entity in the model.
type Region struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// SetupSettings controls termination and duration.
type SetupSettings struct {
	SimulationPeriods float64 `json:"simulation_periods"`
	AutoTermination   string  `json:"auto_termination"`
}

// MaterialProperties are the dielectric properties bound to a set of regions.
// DatabaseLink is empty when the values come from fallback literals.
type MaterialProperties struct {
	Name                 string  `json:"name"`
	MassDensity          float64 `json:"mass_density"`
	Conductivity         float64 `json:"conductivity"`
	RelativePermittivity float64 `json:"relative_permittivity"`
	DatabaseLink         string  `json:"database_link,omitempty"`
}

type ExcitationKind string

const (
	ExcitationGaussian ExcitationKind = "Gaussian"
	ExcitationHarmonic ExcitationKind = "Harmonic"
)

// Excitation describes the plane-wave signal. A zero CenterFrequencyHz
// leaves the engine default in place.
type Excitation struct {
	Kind              ExcitationKind `json:"kind"`
	CenterFrequencyHz float64        `json:"center_frequency_hz,omitempty"`
}

// SourceSettings orient the incident plane wave, in degrees.
type SourceSettings struct {
	Theta      float64    `json:"theta"`
	Phi        float64    `json:"phi"`
	Psi        float64    `json:"psi"`
	Excitation Excitation `json:"excitation"`
}

type BoundaryType string

const BoundaryUpmlCpml BoundaryType = "UpmlCpml"

type KernelKind string

const (
	KernelAXware   KernelKind = "AXware"
	KernelSoftware KernelKind = "Software"
)

// RunState is the engine's view of a run.
type RunState string

const (
	StateCreated   RunState = "created"
	StatePrepared  RunState = "prepared"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateFailed    RunState = "failed"
)

// OutputInfo describes one output port of a sensor.
type OutputInfo struct {
	HasData bool `json:"has_data"`
}

// SensorInfo describes a sensor and its output ports.
type SensorInfo struct {
	Name    string                `json:"name"`
	Outputs map[string]OutputInfo `json:"outputs"`
}

// ResultSet is a snapshot of a run's sensors, keyed by sensor name.
type ResultSet struct {
	Run     string                `json:"run"`
	Sensors map[string]SensorInfo `json:"sensors"`
}

// Sensor returns the named sensor.
func (r ResultSet) Sensor(name string) (SensorInfo, bool) {
	s, ok := r.Sensors[name]
	return s, ok
}

// Output returns the named output port of the sensor.
func (s SensorInfo) Output(name string) (OutputInfo, bool) {
	o, ok := s.Outputs[name]
	return o, ok
}

// OutputRef addresses one sensor output of one run.
type OutputRef struct {
	Run    string `json:"run"`
	Sensor string `json:"sensor"`
	Output string `json:"output"`
}

// Payload is the content of an evaluator output. Statistics evaluators fill
// JSON with a nested data collection, table reports fill Table row-major
// with the header in row 0.
type Payload struct {
	JSON  string  `json:"json,omitempty"`
	Table [][]any `json:"table,omitempty"`
}

// Session is the mutable simulation document: runs, entities and analysis
// algorithms. It is passed explicitly to every builder and coordinator call.
type Session interface {
	// DocumentPath is the path of the open project document, if any.
	DocumentPath(ctx context.Context) (string, error)

	Entities(ctx context.Context) ([]Region, error)
	CreateWireBlock(ctx context.Context, name string, p0, p1 Vec3) (Region, error)

	Runs(ctx context.Context) ([]Run, error)
	CreateRun(ctx context.Context, name string) (Run, error)
	DeleteRun(ctx context.Context, name string) error

	// Evaluator returns ErrNotFound when no evaluator has the name.
	Evaluator(ctx context.Context, name string) (Evaluator, error)
	CreateStatisticsEvaluator(ctx context.Context, name string, input OutputRef) (Evaluator, error)
}

// Run is one simulation unit.
type Run interface {
	Name() string
	State(ctx context.Context) (RunState, error)

	SetSetup(ctx context.Context, s SetupSettings) error
	BindMaterial(ctx context.Context, regions []Region, props MaterialProperties) error
	SetSource(ctx context.Context, region Region, src SourceSettings) error
	SetBoundary(ctx context.Context, b BoundaryType) error
	SetGrid(ctx context.Context, regions []Region) error
	SetVoxelization(ctx context.Context, regions []Region) error

	// SetSolverKernel may fail with ErrUnsupportedKernel.
	SetSolverKernel(ctx context.Context, k KernelKind) error

	// Prepare updates materials and grid and creates voxels.
	Prepare(ctx context.Context) error

	// Submit starts the solver. With wait it returns once the run finished.
	Submit(ctx context.Context, wait bool) error

	Results(ctx context.Context) (ResultSet, error)
	SetExtractedFrequency(ctx context.Context, sensor, frequency string) error
}

// Evaluator is an analysis algorithm attached to a run output.
type Evaluator interface {
	Name() string
	Input() OutputRef

	// Update recomputes the evaluator and reports success.
	Update(ctx context.Context) bool

	Output(ctx context.Context, name string) (Payload, error)
}
