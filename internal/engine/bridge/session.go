package bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/httputil"
	"github.com/banshee-data/sarsweep/internal/monitoring"
	"github.com/banshee-data/sarsweep/internal/timeutil"
)

// DefaultPollInterval is the wait between state checks of a blocking submit.
const DefaultPollInterval = 2 * time.Second

var logf = monitoring.Component("bridge")

// Session is an engine.Session reached over HTTP.
type Session struct {
	baseURL string
	client  httputil.HTTPClient

	// Clock paces polling; PollInterval is the wait between polls.
	Clock        timeutil.Clock
	PollInterval time.Duration
}

// Compile-time check.
var _ engine.Session = (*Session)(nil)

// NewSession returns a client for the engine at baseURL. A nil client uses
// http.DefaultClient.
func NewSession(baseURL string, client httputil.HTTPClient) *Session {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Session{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       client,
		Clock:        timeutil.RealClock{},
		PollInterval: DefaultPollInterval,
	}
}

// url joins escaped path segments onto the base URL.
func (s *Session) url(segments ...string) string {
	var b strings.Builder
	b.WriteString(s.baseURL)
	b.WriteString("/api")
	for _, seg := range segments {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(seg))
	}
	return b.String()
}

func (s *Session) do(ctx context.Context, method, u string, in, out any) error {
	return engineError(httputil.DoJSON(ctx, s.client, method, u, in, out))
}

func (s *Session) DocumentPath(ctx context.Context) (string, error) {
	var m modelInfo
	if err := s.do(ctx, http.MethodGet, s.url("model"), nil, &m); err != nil {
		return "", err
	}
	return m.DocumentPath, nil
}

func (s *Session) Entities(ctx context.Context) ([]engine.Region, error) {
	var regions []engine.Region
	if err := s.do(ctx, http.MethodGet, s.url("entities"), nil, &regions); err != nil {
		return nil, err
	}
	return regions, nil
}

func (s *Session) CreateWireBlock(ctx context.Context, name string, p0, p1 engine.Vec3) (engine.Region, error) {
	var reg engine.Region
	err := s.do(ctx, http.MethodPost, s.url("entities", "wire-blocks"), wireBlockRequest{Name: name, P0: p0, P1: p1}, &reg)
	return reg, err
}

func (s *Session) Runs(ctx context.Context) ([]engine.Run, error) {
	var infos []runInfo
	if err := s.do(ctx, http.MethodGet, s.url("runs"), nil, &infos); err != nil {
		return nil, err
	}
	runs := make([]engine.Run, len(infos))
	for i, info := range infos {
		runs[i] = &remoteRun{s: s, name: info.Name}
	}
	return runs, nil
}

func (s *Session) CreateRun(ctx context.Context, name string) (engine.Run, error) {
	var info runInfo
	if err := s.do(ctx, http.MethodPost, s.url("runs"), createRunRequest{Name: name}, &info); err != nil {
		return nil, err
	}
	return &remoteRun{s: s, name: info.Name}, nil
}

func (s *Session) DeleteRun(ctx context.Context, name string) error {
	return s.do(ctx, http.MethodDelete, s.url("runs", name), nil, nil)
}

func (s *Session) Evaluator(ctx context.Context, name string) (engine.Evaluator, error) {
	var info evaluatorInfo
	if err := s.do(ctx, http.MethodGet, s.url("evaluators", name), nil, &info); err != nil {
		return nil, err
	}
	return &remoteEvaluator{s: s, info: info}, nil
}

func (s *Session) CreateStatisticsEvaluator(ctx context.Context, name string, input engine.OutputRef) (engine.Evaluator, error) {
	var info evaluatorInfo
	if err := s.do(ctx, http.MethodPost, s.url("evaluators"), evaluatorInfo{Name: name, Input: input}, &info); err != nil {
		return nil, err
	}
	return &remoteEvaluator{s: s, info: info}, nil
}

// --- Runs ---

type remoteRun struct {
	s    *Session
	name string
}

func (r *remoteRun) Name() string { return r.name }

func (r *remoteRun) State(ctx context.Context) (engine.RunState, error) {
	var info runInfo
	if err := r.s.do(ctx, http.MethodGet, r.s.url("runs", r.name), nil, &info); err != nil {
		return "", err
	}
	return info.State, nil
}

func (r *remoteRun) put(ctx context.Context, what string, body any) error {
	return r.s.do(ctx, http.MethodPut, r.s.url("runs", r.name, what), body, nil)
}

func (r *remoteRun) SetSetup(ctx context.Context, st engine.SetupSettings) error {
	return r.put(ctx, "setup", st)
}

func (r *remoteRun) BindMaterial(ctx context.Context, regions []engine.Region, props engine.MaterialProperties) error {
	return r.put(ctx, "materials", materialRequest{Regions: regions, Properties: props})
}

func (r *remoteRun) SetSource(ctx context.Context, region engine.Region, src engine.SourceSettings) error {
	return r.put(ctx, "source", sourceRequest{Region: region, Settings: src})
}

func (r *remoteRun) SetBoundary(ctx context.Context, b engine.BoundaryType) error {
	return r.put(ctx, "boundary", boundaryRequest{Boundary: b})
}

func (r *remoteRun) SetGrid(ctx context.Context, regions []engine.Region) error {
	return r.put(ctx, "grid", regionsRequest{Regions: regions})
}

func (r *remoteRun) SetVoxelization(ctx context.Context, regions []engine.Region) error {
	return r.put(ctx, "voxels", regionsRequest{Regions: regions})
}

func (r *remoteRun) SetSolverKernel(ctx context.Context, k engine.KernelKind) error {
	return r.put(ctx, "kernel", kernelRequest{Kernel: k})
}

func (r *remoteRun) Prepare(ctx context.Context) error {
	return r.s.do(ctx, http.MethodPost, r.s.url("runs", r.name, "prepare"), nil, nil)
}

// Submit always starts the solver asynchronously on the engine side. With
// wait the client polls the run state until it is terminal, so a long solve
// never holds an HTTP request open.
func (r *remoteRun) Submit(ctx context.Context, wait bool) error {
	u := r.s.url("runs", r.name, "submit") + "?wait=false"
	if err := r.s.do(ctx, http.MethodPost, u, nil, nil); err != nil {
		return err
	}
	if !wait {
		return nil
	}
	for polls := 0; ; polls++ {
		state, err := r.State(ctx)
		if err != nil {
			return fmt.Errorf("polling %q: %w", r.name, err)
		}
		switch state {
		case engine.StateCompleted:
			if polls > 0 {
				logf("%q completed after %d poll(s)", r.name, polls)
			}
			return nil
		case engine.StateFailed:
			return fmt.Errorf("solving %q: run failed", r.name)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.s.Clock.Sleep(r.s.PollInterval)
	}
}

func (r *remoteRun) Results(ctx context.Context) (engine.ResultSet, error) {
	var rs engine.ResultSet
	err := r.s.do(ctx, http.MethodGet, r.s.url("runs", r.name, "results"), nil, &rs)
	return rs, err
}

func (r *remoteRun) SetExtractedFrequency(ctx context.Context, sensor, frequency string) error {
	u := r.s.url("runs", r.name, "sensors", sensor, "frequency")
	return r.s.do(ctx, http.MethodPut, u, frequencyRequest{Frequency: frequency}, nil)
}

// --- Evaluators ---

type remoteEvaluator struct {
	s    *Session
	info evaluatorInfo
}

func (e *remoteEvaluator) Name() string            { return e.info.Name }
func (e *remoteEvaluator) Input() engine.OutputRef { return e.info.Input }

// Update reports false on any transport or engine error; the error is logged.
func (e *remoteEvaluator) Update(ctx context.Context) bool {
	var resp updateResponse
	if err := e.s.do(ctx, http.MethodPost, e.s.url("evaluators", e.info.Name, "update"), nil, &resp); err != nil {
		monitoring.Warnf("bridge", "updating evaluator %q: %v", e.info.Name, err)
		return false
	}
	return resp.OK
}

func (e *remoteEvaluator) Output(ctx context.Context, name string) (engine.Payload, error) {
	var p engine.Payload
	err := e.s.do(ctx, http.MethodGet, e.s.url("evaluators", e.info.Name, "outputs", name), nil, &p)
	return p, err
}
