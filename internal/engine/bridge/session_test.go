package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sarsweep/internal/builder"
	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/engine/memory"
	"github.com/banshee-data/sarsweep/internal/httputil"
	"github.com/banshee-data/sarsweep/internal/monitoring"
	"github.com/banshee-data/sarsweep/internal/results"
	"github.com/banshee-data/sarsweep/internal/timeutil"
)

func quiet(t *testing.T) {
	t.Helper()
	monitoring.SetLogger(func(string, ...any) {})
	t.Cleanup(func() { monitoring.SetLogger(nil) })
}

func newBridge(t *testing.T, opts memory.Options) (*Session, *memory.Session) {
	t.Helper()
	quiet(t)
	mem := memory.NewSession(opts)
	srv := httptest.NewServer(NewHandler(mem))
	t.Cleanup(srv.Close)

	s := NewSession(srv.URL+"/", httputil.NewStandardClient(srv.Client()))
	s.Clock = timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return s, mem
}

func TestBridge_BuildSolveExtract(t *testing.T) {
	ctx := context.Background()
	s, mem := newBridge(t, memory.Options{
		DocumentPath: "/models/Box.smash",
		Regions:      []string{"Muscle Block", "Plane Wave Source"},
	})

	path, err := s.DocumentPath(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/models/Box.smash", path)

	b := builder.New(nil, builder.Tutorial())
	built, err := b.Build(ctx, s, builder.Request{RunName: "Box - Phi_000_VPol", Theta: 90, Phi: 0, Psi: 90})
	require.NoError(t, err)
	assert.Equal(t, engine.KernelSoftware, built.Kernel.Kind)

	require.NoError(t, built.Run.Prepare(ctx))
	require.NoError(t, built.Run.Submit(ctx, true))

	v, ok := results.NewExtractor(results.MethodJSON).Extract(ctx, s, built.Run)
	require.True(t, ok)
	assert.InDelta(t, 0.024455, v, 1e-12)

	v, ok = results.NewExtractor(results.MethodTable).Extract(ctx, s, built.Run)
	require.True(t, ok)
	assert.InDelta(t, 0.024455, v, 1e-12)

	assert.Equal(t, []string{
		"CreateRun Box - Phi_000_VPol",
		"SetSetup Box - Phi_000_VPol",
		"BindMaterial Box - Phi_000_VPol Muscle",
		"SetSource Box - Phi_000_VPol Plane Wave Source",
		"SetBoundary Box - Phi_000_VPol UpmlCpml",
		"SetGrid Box - Phi_000_VPol 2",
		"SetVoxelization Box - Phi_000_VPol 2",
		"SetSolverKernel Box - Phi_000_VPol Software",
		"Prepare Box - Phi_000_VPol",
		"Submit Box - Phi_000_VPol wait=false",
		"CreateStatisticsEvaluator SAR Statistics for Box - Phi_000_VPol",
	}, mem.Calls())

	info, ok := mem.Inspect("Box - Phi_000_VPol")
	require.True(t, ok)
	assert.Equal(t, results.AllFrequencies, info.Frequency)
}

func TestBridge_SentinelsCrossTheWire(t *testing.T) {
	ctx := context.Background()
	s, _ := newBridge(t, memory.Options{
		Regions:            []string{"Body"},
		UnsupportedKernels: []engine.KernelKind{engine.KernelAXware},
	})

	assert.ErrorIs(t, s.DeleteRun(ctx, "missing"), engine.ErrNotFound)
	_, err := s.Evaluator(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrNotFound)

	r, err := s.CreateRun(ctx, "Box - Left(X-)_HPol")
	require.NoError(t, err)
	assert.Equal(t, "Box - Left(X-)_HPol", r.Name())
	_, err = s.CreateRun(ctx, "Box - Left(X-)_HPol")
	assert.ErrorIs(t, err, engine.ErrDuplicateName)

	assert.ErrorIs(t, r.SetSolverKernel(ctx, engine.KernelAXware), engine.ErrUnsupportedKernel)
	require.NoError(t, r.SetSolverKernel(ctx, engine.KernelSoftware))

	_, err = s.CreateWireBlock(ctx, "Body", engine.Vec3{}, engine.Vec3{1, 1, 1})
	assert.ErrorIs(t, err, engine.ErrDuplicateName)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	state, err := runs[0].State(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.StateCreated, state)

	require.NoError(t, s.DeleteRun(ctx, "Box - Left(X-)_HPol"))
	runs, err = s.Runs(ctx)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRemoteRun_SubmitPolls(t *testing.T) {
	quiet(t)
	mock := httputil.NewMockHTTPClient().
		AddResponse(http.StatusNoContent, "").
		AddResponse(http.StatusOK, `{"name":"r","state":"running"}`).
		AddResponse(http.StatusOK, `{"name":"r","state":"running"}`).
		AddResponse(http.StatusOK, `{"name":"r","state":"completed"}`)
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s := NewSession("http://engine:8080", mock)
	s.Clock = clock
	s.PollInterval = 5 * time.Second

	r := &remoteRun{s: s, name: "Box - Phi_000_VPol"}
	require.NoError(t, r.Submit(context.Background(), true))

	assert.Equal(t, 4, mock.RequestCount())
	req := mock.GetRequest(0)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "http://engine:8080/api/runs/Box%20-%20Phi_000_VPol/submit?wait=false", req.URL.String())
	assert.Equal(t, http.MethodGet, mock.GetRequest(1).Method)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, clock.Sleeps())
}

func TestRemoteRun_SubmitOutcomes(t *testing.T) {
	testCases := []struct {
		name      string
		responses []string
		cancel    bool
		expectErr string
	}{
		{
			name:      "failed run",
			responses: []string{`{"name":"r","state":"failed"}`},
			expectErr: "run failed",
		},
		{
			name:      "cancelled while running",
			responses: []string{`{"name":"r","state":"running"}`},
			cancel:    true,
			expectErr: context.Canceled.Error(),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			quiet(t)
			mock := httputil.NewMockHTTPClient().AddResponse(http.StatusNoContent, "")
			for _, body := range tc.responses {
				mock.AddResponse(http.StatusOK, body)
			}
			s := NewSession("http://engine", mock)
			s.Clock = timeutil.NewMockClock(time.Time{})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tc.cancel {
				cancel()
			}
			err := (&remoteRun{s: s, name: "r"}).Submit(ctx, true)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectErr)
		})
	}
}

func TestRemoteRun_SubmitWithoutWaitDoesNotPoll(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusNoContent, "")
	s := NewSession("http://engine", mock)
	require.NoError(t, (&remoteRun{s: s, name: "r"}).Submit(context.Background(), false))
	assert.Equal(t, 1, mock.RequestCount())
}

func TestRemoteRun_SetSourceBody(t *testing.T) {
	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusNoContent, "")
	r := &remoteRun{s: NewSession("http://engine", mock), name: "Box - Phi_030_HPol"}

	err := r.SetSource(context.Background(), engine.Region{Name: "Source", ID: "e7"}, engine.SourceSettings{
		Theta:      90,
		Phi:        30,
		Psi:        0,
		Excitation: engine.Excitation{Kind: engine.ExcitationHarmonic},
	})
	require.NoError(t, err)

	require.Equal(t, 1, mock.RequestCount())
	assert.Equal(t, http.MethodPut, mock.GetRequest(0).Method)
	assert.Equal(t, "http://engine/api/runs/Box%20-%20Phi_030_HPol/source", mock.GetRequest(0).URL.String())
	assert.JSONEq(t, `{"region":{"name":"Source","id":"e7"},"settings":{"theta":90,"phi":30,"psi":0,"excitation":{"kind":"Harmonic"}}}`, mock.GetBody(0))
}

func TestRemoteRun_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name    string
		queue   func(*httputil.MockHTTPClient)
		wantErr error
	}{
		{"not_found", func(m *httputil.MockHTTPClient) { m.AddResponse(http.StatusNotFound, `{"error":"no run"}`) }, engine.ErrNotFound},
		{"conflict", func(m *httputil.MockHTTPClient) { m.AddResponse(http.StatusConflict, `{"error":"taken"}`) }, engine.ErrDuplicateName},
		{"unprocessable", func(m *httputil.MockHTTPClient) { m.AddResponse(http.StatusUnprocessableEntity, `{"error":"kernel"}`) }, engine.ErrUnsupportedKernel},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mock := httputil.NewMockHTTPClient()
			tc.queue(mock)
			r := &remoteRun{s: NewSession("http://engine", mock), name: "r"}
			err := r.SetBoundary(context.Background(), engine.BoundaryUpmlCpml)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	mock := httputil.NewMockHTTPClient().AddErrorResponse(errors.New("connection refused"))
	r := &remoteRun{s: NewSession("http://engine", mock), name: "r"}
	err := r.SetBoundary(context.Background(), engine.BoundaryUpmlCpml)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NotErrorIs(t, err, engine.ErrNotFound)
}

func TestRemoteEvaluator_UpdateErrorIsFalse(t *testing.T) {
	lines := []string{}
	monitoring.SetLogger(func(format string, v ...any) { lines = append(lines, format) })
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	mock := httputil.NewMockHTTPClient().AddResponse(http.StatusInternalServerError, `{"error":"boom"}`)
	ev := &remoteEvaluator{s: NewSession("http://engine", mock), info: evaluatorInfo{Name: "ev"}}
	assert.False(t, ev.Update(context.Background()))
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "[bridge] WARNING:"))
}

func TestHandler_BadRequests(t *testing.T) {
	quiet(t)
	mem := memory.NewSession(memory.Options{})
	_, err := mem.CreateRun(context.Background(), "r")
	require.NoError(t, err)
	h := NewHandler(mem)

	testCases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"invalid run body", http.MethodPost, "/api/runs", "{", http.StatusBadRequest},
		{"unnamed run", http.MethodPost, "/api/runs", `{}`, http.StatusBadRequest},
		{"unknown setting", http.MethodPut, "/api/runs/r/mesh", `{}`, http.StatusNotFound},
		{"invalid setting body", http.MethodPut, "/api/runs/r/kernel", "[", http.StatusBadRequest},
		{"missing run", http.MethodPost, "/api/runs/nope/prepare", "", http.StatusNotFound},
		{"prepare without source", http.MethodPost, "/api/runs/r/prepare", "", http.StatusInternalServerError},
		{"wrong method", http.MethodPatch, "/api/runs", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}
}
