// Package memory implements engine.Session in process. Results are a
// deterministic function of the source orientation and bound materials, which
// makes the sweep pipeline testable and lets the CLI dry-run a campaign
// without a solver.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/banshee-data/sarsweep/internal/engine"
)

// Sensor and output names the memory engine publishes for every run.
const (
	SensorOverallField = "Overall Field"
	OutputEField       = "EM E(x,y,z,f0)"
	OutputSARField     = "SAR(x,y,z,f0)"
	OutputSARStats     = "SAR Statistics"
)

// Fault injects a failure into one run.
type Fault uint

const (
	// FaultMissingSensor leaves the run without an "Overall Field" sensor.
	FaultMissingSensor Fault = 1 << iota
	// FaultNoData completes the run but leaves its E-field output empty.
	FaultNoData
	// FaultStatistics makes the statistics evaluator's Update return false.
	FaultStatistics
	// FaultMalformedPayload returns a statistics payload of the wrong shape.
	FaultMalformedPayload
	// FaultSolve fails Submit and moves the run to failed.
	FaultSolve
	// FaultPrepare fails Prepare.
	FaultPrepare
	// FaultHidden omits the run from Runs listings after submission.
	FaultHidden
)

// Options configure a memory session.
type Options struct {
	// DocumentPath is reported by DocumentPath; empty means unsaved.
	DocumentPath string

	// Regions are the entities present in the model at start.
	Regions []string

	// UnsupportedKernels fail SetSolverKernel with ErrUnsupportedKernel.
	UnsupportedKernels []engine.KernelKind

	// DeferCompletion leaves runs submitted without wait in the running
	// state until CompleteAll is called.
	DeferCompletion bool
}

// Session is an in-memory engine.Session. It is safe for concurrent use so
// that the bridge server can expose it over HTTP.
type Session struct {
	mu sync.Mutex

	opts       Options
	entities   []engine.Region
	runs       []*run
	evaluators map[string]*evaluator
	faults     map[string]Fault
	unsupport  map[engine.KernelKind]bool
	calls      []string
	nextID     int
}

// Compile-time check.
var _ engine.Session = (*Session)(nil)

// NewSession creates a session holding the given regions.
func NewSession(opts Options) *Session {
	s := &Session{
		opts:       opts,
		evaluators: make(map[string]*evaluator),
		faults:     make(map[string]Fault),
		unsupport:  make(map[engine.KernelKind]bool),
	}
	for _, k := range opts.UnsupportedKernels {
		s.unsupport[k] = true
	}
	for _, name := range opts.Regions {
		s.entities = append(s.entities, s.newRegion(name))
	}
	return s
}

func (s *Session) newRegion(name string) engine.Region {
	s.nextID++
	return engine.Region{Name: name, ID: "ent-" + strconv.Itoa(s.nextID)}
}

// SetFault injects failures into the run with the given name. It may be
// called before the run exists.
func (s *Session) SetFault(runName string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[runName] = f
}

// Calls returns the mutating calls made against the session, in order.
func (s *Session) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Session) record(format string, v ...any) {
	s.calls = append(s.calls, fmt.Sprintf(format, v...))
}

// CompleteAll finishes every run still in the running state.
func (s *Session) CompleteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.runs {
		if r.state == engine.StateRunning {
			r.state = engine.StateCompleted
		}
	}
}

// RunNames returns the names of all runs, including hidden ones.
func (s *Session) RunNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.runs))
	for _, r := range s.runs {
		names = append(names, r.name)
	}
	return names
}

// Lookup returns the run with the given name, including hidden ones.
func (s *Session) Lookup(name string) (engine.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findRun(name)
	if r == nil {
		return nil, false
	}
	return r, true
}

// RunInfo is a snapshot of a run's configuration.
type RunInfo struct {
	Name         string
	State        engine.RunState
	Setup        *engine.SetupSettings
	Materials    []engine.MaterialProperties
	Source       *engine.SourceSettings
	Boundary     engine.BoundaryType
	GridRegions  []string
	VoxelRegions []string
	Kernel       engine.KernelKind
	Frequency    string
}

// Inspect returns a snapshot of the named run.
func (s *Session) Inspect(name string) (RunInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findRun(name)
	if r == nil {
		return RunInfo{}, false
	}
	info := RunInfo{
		Name:      r.name,
		State:     r.state,
		Setup:     r.setup,
		Source:    r.source,
		Boundary:  r.boundary,
		Kernel:    r.kernel,
		Frequency: r.frequency,
	}
	for _, b := range r.bindings {
		info.Materials = append(info.Materials, b.props)
	}
	for _, g := range r.grid {
		info.GridRegions = append(info.GridRegions, g.Name)
	}
	for _, v := range r.voxels {
		info.VoxelRegions = append(info.VoxelRegions, v.Name)
	}
	return info, true
}

func (s *Session) DocumentPath(ctx context.Context) (string, error) {
	return s.opts.DocumentPath, nil
}

func (s *Session) Entities(ctx context.Context) ([]engine.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Region, len(s.entities))
	copy(out, s.entities)
	return out, nil
}

func (s *Session) CreateWireBlock(ctx context.Context, name string, p0, p1 engine.Vec3) (engine.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entities {
		if e.Name == name {
			return engine.Region{}, fmt.Errorf("%w: entity %q", engine.ErrDuplicateName, name)
		}
	}
	reg := s.newRegion(name)
	s.entities = append(s.entities, reg)
	s.record("CreateWireBlock %s", name)
	return reg, nil
}

func (s *Session) Runs(ctx context.Context) ([]engine.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Run, 0, len(s.runs))
	for _, r := range s.runs {
		if s.faults[r.name]&FaultHidden != 0 && r.state != engine.StateCreated {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Session) CreateRun(ctx context.Context, name string) (engine.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findRun(name) != nil {
		return nil, fmt.Errorf("%w: run %q", engine.ErrDuplicateName, name)
	}
	r := &run{session: s, name: name, state: engine.StateCreated}
	s.runs = append(s.runs, r)
	s.record("CreateRun %s", name)
	return r, nil
}

func (s *Session) DeleteRun(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.runs {
		if r.name == name {
			s.runs = append(s.runs[:i], s.runs[i+1:]...)
			s.record("DeleteRun %s", name)
			return nil
		}
	}
	return fmt.Errorf("%w: run %q", engine.ErrNotFound, name)
}

func (s *Session) Evaluator(ctx context.Context, name string) (engine.Evaluator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.evaluators[name]
	if !ok {
		return nil, fmt.Errorf("%w: evaluator %q", engine.ErrNotFound, name)
	}
	return ev, nil
}

func (s *Session) CreateStatisticsEvaluator(ctx context.Context, name string, input engine.OutputRef) (engine.Evaluator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evaluators[name]; ok {
		return nil, fmt.Errorf("%w: evaluator %q", engine.ErrDuplicateName, name)
	}
	if s.findRun(input.Run) == nil {
		return nil, fmt.Errorf("%w: run %q", engine.ErrNotFound, input.Run)
	}
	ev := &evaluator{session: s, name: name, input: input}
	s.evaluators[name] = ev
	s.record("CreateStatisticsEvaluator %s", name)
	return ev, nil
}

func (s *Session) findRun(name string) *run {
	for _, r := range s.runs {
		if r.name == name {
			return r
		}
	}
	return nil
}

// --- Runs ---

type binding struct {
	regions []engine.Region
	props   engine.MaterialProperties
}

type run struct {
	session *Session
	name    string

	state     engine.RunState
	setup     *engine.SetupSettings
	bindings  []binding
	source    *engine.SourceSettings
	boundary  engine.BoundaryType
	grid      []engine.Region
	voxels    []engine.Region
	kernel    engine.KernelKind
	frequency string
}

func (r *run) Name() string { return r.name }

func (r *run) State(ctx context.Context) (engine.RunState, error) {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	return r.state, nil
}

// configurable reports an error unless the run can still be configured.
// Callers hold the session lock.
func (r *run) configurable() error {
	if r.session.findRun(r.name) == nil {
		return fmt.Errorf("%w: run %q", engine.ErrNotFound, r.name)
	}
	if r.state != engine.StateCreated && r.state != engine.StatePrepared {
		return fmt.Errorf("run %q is %s and can no longer be configured", r.name, r.state)
	}
	return nil
}

func (r *run) SetSetup(ctx context.Context, st engine.SetupSettings) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if err := r.configurable(); err != nil {
		return err
	}
	r.setup = &st
	r.session.record("SetSetup %s", r.name)
	return nil
}

func (r *run) BindMaterial(ctx context.Context, regions []engine.Region, props engine.MaterialProperties) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if err := r.configurable(); err != nil {
		return err
	}
	if len(regions) == 0 {
		return fmt.Errorf("binding %s on %q: no regions", props.Name, r.name)
	}
	r.bindings = append(r.bindings, binding{regions: append([]engine.Region(nil), regions...), props: props})
	r.session.record("BindMaterial %s %s", r.name, props.Name)
	return nil
}

func (r *run) SetSource(ctx context.Context, region engine.Region, src engine.SourceSettings) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if err := r.configurable(); err != nil {
		return err
	}
	r.source = &src
	r.session.record("SetSource %s %s", r.name, region.Name)
	return nil
}

func (r *run) SetBoundary(ctx context.Context, b engine.BoundaryType) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if err := r.configurable(); err != nil {
		return err
	}
	r.boundary = b
	r.session.record("SetBoundary %s %s", r.name, b)
	return nil
}

func (r *run) SetGrid(ctx context.Context, regions []engine.Region) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if err := r.configurable(); err != nil {
		return err
	}
	r.grid = append([]engine.Region(nil), regions...)
	r.session.record("SetGrid %s %d", r.name, len(regions))
	return nil
}

func (r *run) SetVoxelization(ctx context.Context, regions []engine.Region) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if err := r.configurable(); err != nil {
		return err
	}
	r.voxels = append([]engine.Region(nil), regions...)
	r.session.record("SetVoxelization %s %d", r.name, len(regions))
	return nil
}

func (r *run) SetSolverKernel(ctx context.Context, k engine.KernelKind) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if err := r.configurable(); err != nil {
		return err
	}
	if r.session.unsupport[k] {
		return fmt.Errorf("%w: %s", engine.ErrUnsupportedKernel, k)
	}
	r.kernel = k
	r.session.record("SetSolverKernel %s %s", r.name, k)
	return nil
}

func (r *run) Prepare(ctx context.Context) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if err := r.configurable(); err != nil {
		return err
	}
	if r.session.faults[r.name]&FaultPrepare != 0 {
		return fmt.Errorf("voxelizing %q: injected failure", r.name)
	}
	if r.source == nil {
		return fmt.Errorf("voxelizing %q: no source", r.name)
	}
	if len(r.grid) == 0 {
		return fmt.Errorf("voxelizing %q: empty grid", r.name)
	}
	r.state = engine.StatePrepared
	r.session.record("Prepare %s", r.name)
	return nil
}

func (r *run) Submit(ctx context.Context, wait bool) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if r.state != engine.StatePrepared {
		return fmt.Errorf("submitting %q: run is %s, want %s", r.name, r.state, engine.StatePrepared)
	}
	r.session.record("Submit %s wait=%t", r.name, wait)
	if r.session.faults[r.name]&FaultSolve != 0 {
		r.state = engine.StateFailed
		return fmt.Errorf("solving %q: injected failure", r.name)
	}
	if !wait && r.session.opts.DeferCompletion {
		r.state = engine.StateRunning
		return nil
	}
	r.state = engine.StateCompleted
	return nil
}

func (r *run) Results(ctx context.Context) (engine.ResultSet, error) {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if r.session.findRun(r.name) == nil {
		return engine.ResultSet{}, fmt.Errorf("%w: run %q", engine.ErrNotFound, r.name)
	}
	rs := engine.ResultSet{Run: r.name, Sensors: map[string]engine.SensorInfo{}}
	if r.session.faults[r.name]&FaultMissingSensor != 0 {
		return rs, nil
	}
	hasData := r.state == engine.StateCompleted && r.session.faults[r.name]&FaultNoData == 0
	rs.Sensors[SensorOverallField] = engine.SensorInfo{
		Name: SensorOverallField,
		Outputs: map[string]engine.OutputInfo{
			OutputEField:   {HasData: hasData},
			OutputSARField: {HasData: hasData},
		},
	}
	return rs, nil
}

func (r *run) SetExtractedFrequency(ctx context.Context, sensor, frequency string) error {
	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if sensor != SensorOverallField || r.session.faults[r.name]&FaultMissingSensor != 0 {
		return fmt.Errorf("%w: sensor %q on %q", engine.ErrNotFound, sensor, r.name)
	}
	r.frequency = frequency
	return nil
}

// sar is the whole-body value the memory engine reports. It peaks for
// incidence along +X and is lower for horizontal polarization.
func (r *run) sar() float64 {
	if r.source == nil {
		return 0
	}
	var sigma, n float64
	for _, b := range r.bindings {
		sigma += b.props.Conductivity * float64(len(b.regions))
		n += float64(len(b.regions))
	}
	if n == 0 {
		return 0
	}
	pol := 1.0
	if r.source.Psi != 90 {
		pol = 0.8
	}
	v := 0.01 * (sigma / n) * (1.5 + math.Cos(r.source.Phi*math.Pi/180)) * pol
	return math.Round(v*1e6) / 1e6
}

// --- Evaluators ---

type evaluator struct {
	session *Session
	name    string
	input   engine.OutputRef
	updated bool
}

func (e *evaluator) Name() string            { return e.name }
func (e *evaluator) Input() engine.OutputRef { return e.input }

func (e *evaluator) Update(ctx context.Context) bool {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	r := e.session.findRun(e.input.Run)
	if r == nil || r.state != engine.StateCompleted {
		return false
	}
	f := e.session.faults[r.name]
	if f&(FaultStatistics|FaultNoData|FaultMissingSensor) != 0 {
		return false
	}
	e.updated = true
	return true
}

type dataSeries struct {
	Data []float64 `json:"data"`
}

type statisticsDoc struct {
	SimpleDataCollection struct {
		DataCollection map[string]dataSeries `json:"data_collection"`
	} `json:"simple_data_collection"`
}

func (e *evaluator) Output(ctx context.Context, name string) (engine.Payload, error) {
	e.session.mu.Lock()
	defer e.session.mu.Unlock()
	if name != OutputSARStats {
		return engine.Payload{}, fmt.Errorf("%w: output %q of %q", engine.ErrNotFound, name, e.name)
	}
	if !e.updated {
		return engine.Payload{}, fmt.Errorf("evaluator %q has not been updated", e.name)
	}
	r := e.session.findRun(e.input.Run)
	if r == nil {
		return engine.Payload{}, fmt.Errorf("%w: run %q", engine.ErrNotFound, e.input.Run)
	}
	if e.session.faults[r.name]&FaultMalformedPayload != 0 {
		return engine.Payload{
			JSON:  `{"simple_data_collection":{"data_collection":{"Average":{"data":"n/a"}}}}`,
			Table: [][]any{{"Region"}},
		}, nil
	}

	avg := r.sar()
	var doc statisticsDoc
	doc.SimpleDataCollection.DataCollection = map[string]dataSeries{
		"Average": {Data: []float64{avg}},
		"Peak":    {Data: []float64{math.Round(avg*4.2*1e6) / 1e6}},
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return engine.Payload{}, err
	}
	return engine.Payload{JSON: string(b), Table: r.table(avg)}, nil
}

// table builds the per-region statistics table with an "All Regions"
// aggregate last; mass-averaged SAR is column 2.
func (r *run) table(avg float64) [][]any {
	rows := [][]any{{"Region", "Mass [kg]", "Mass-Averaged SAR [W/kg]", "Peak SAR [W/kg]"}}
	bindings := append([]binding(nil), r.bindings...)
	sort.SliceStable(bindings, func(i, j int) bool { return bindings[i].props.Name < bindings[j].props.Name })
	var total float64
	for _, b := range bindings {
		mass := b.props.MassDensity * 1e-3 * float64(len(b.regions))
		total += mass
		rows = append(rows, []any{b.props.Name, mass, avg * b.props.Conductivity, avg * b.props.Conductivity * 4.2})
	}
	rows = append(rows, []any{"All Regions", total, avg, avg * 4.2})
	return rows
}
