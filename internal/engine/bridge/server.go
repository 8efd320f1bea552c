package bridge

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/httputil"
	"github.com/banshee-data/sarsweep/internal/monitoring"
)

// Handler serves an engine.Session over the bridge routes.
type Handler struct {
	session engine.Session
	mux     *http.ServeMux
}

// NewHandler registers the bridge routes for session.
func NewHandler(session engine.Session) *Handler {
	h := &Handler{session: session, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /api/model", h.model)
	h.mux.HandleFunc("GET /api/entities", h.entities)
	h.mux.HandleFunc("POST /api/entities/wire-blocks", h.createWireBlock)

	h.mux.HandleFunc("GET /api/runs", h.listRuns)
	h.mux.HandleFunc("POST /api/runs", h.createRun)
	h.mux.HandleFunc("GET /api/runs/{name}", h.runState)
	h.mux.HandleFunc("DELETE /api/runs/{name}", h.deleteRun)
	h.mux.HandleFunc("PUT /api/runs/{name}/{setting}", h.configureRun)
	h.mux.HandleFunc("POST /api/runs/{name}/prepare", h.prepare)
	h.mux.HandleFunc("POST /api/runs/{name}/submit", h.submit)
	h.mux.HandleFunc("GET /api/runs/{name}/results", h.results)
	h.mux.HandleFunc("PUT /api/runs/{name}/sensors/{sensor}/frequency", h.frequency)

	h.mux.HandleFunc("GET /api/evaluators/{name}", h.evaluator)
	h.mux.HandleFunc("POST /api/evaluators", h.createEvaluator)
	h.mux.HandleFunc("POST /api/evaluators/{name}/update", h.update)
	h.mux.HandleFunc("GET /api/evaluators/{name}/outputs/{output}", h.output)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		monitoring.Warnf("bridge", "%v", err)
	}
	httputil.WriteJSONError(w, status, err.Error())
}

func (h *Handler) model(w http.ResponseWriter, r *http.Request) {
	path, err := h.session.DocumentPath(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, modelInfo{DocumentPath: path})
}

func (h *Handler) entities(w http.ResponseWriter, r *http.Request) {
	regions, err := h.session.Entities(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if regions == nil {
		regions = []engine.Region{}
	}
	httputil.WriteJSONOK(w, regions)
}

func (h *Handler) createWireBlock(w http.ResponseWriter, r *http.Request) {
	var req wireBlockRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	reg, err := h.session.CreateWireBlock(r.Context(), req.Name, req.P0, req.P1)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, reg)
}

// --- Runs ---

// findRun looks the run up among the session's visible runs.
func (h *Handler) findRun(r *http.Request) (engine.Run, error) {
	name := r.PathValue("name")
	runs, err := h.session.Runs(r.Context())
	if err != nil {
		return nil, err
	}
	for _, run := range runs {
		if run.Name() == name {
			return run, nil
		}
	}
	return nil, fmt.Errorf("%w: run %q", engine.ErrNotFound, name)
}

func (h *Handler) info(r *http.Request, run engine.Run) (runInfo, error) {
	state, err := run.State(r.Context())
	if err != nil {
		return runInfo{}, err
	}
	return runInfo{Name: run.Name(), State: state}, nil
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.session.Runs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	infos := make([]runInfo, 0, len(runs))
	for _, run := range runs {
		info, err := h.info(r, run)
		if err != nil {
			writeError(w, err)
			return
		}
		infos = append(infos, info)
	}
	httputil.WriteJSONOK(w, infos)
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	run, err := h.session.CreateRun(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, runInfo{Name: run.Name(), State: engine.StateCreated})
}

func (h *Handler) runState(w http.ResponseWriter, r *http.Request) {
	run, err := h.findRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := h.info(r, run)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, info)
}

func (h *Handler) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.session.DeleteRun(r.Context(), r.PathValue("name")); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// configureRun applies one PUT setting; the body shape depends on it.
func (h *Handler) configureRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.findRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	var apply func() error
	switch r.PathValue("setting") {
	case "setup":
		var req engine.SetupSettings
		err = httputil.ReadJSON(r, &req)
		apply = func() error { return run.SetSetup(ctx, req) }
	case "materials":
		var req materialRequest
		err = httputil.ReadJSON(r, &req)
		apply = func() error { return run.BindMaterial(ctx, req.Regions, req.Properties) }
	case "source":
		var req sourceRequest
		err = httputil.ReadJSON(r, &req)
		apply = func() error { return run.SetSource(ctx, req.Region, req.Settings) }
	case "boundary":
		var req boundaryRequest
		err = httputil.ReadJSON(r, &req)
		apply = func() error { return run.SetBoundary(ctx, req.Boundary) }
	case "grid":
		var req regionsRequest
		err = httputil.ReadJSON(r, &req)
		apply = func() error { return run.SetGrid(ctx, req.Regions) }
	case "voxels":
		var req regionsRequest
		err = httputil.ReadJSON(r, &req)
		apply = func() error { return run.SetVoxelization(ctx, req.Regions) }
	case "kernel":
		var req kernelRequest
		err = httputil.ReadJSON(r, &req)
		apply = func() error { return run.SetSolverKernel(ctx, req.Kernel) }
	default:
		httputil.NotFound(w, "unknown run setting "+strconv.Quote(r.PathValue("setting")))
		return
	}
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := apply(); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) {
	run, err := h.findRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := run.Prepare(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	run, err := h.findRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if err := run.Submit(r.Context(), wait); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

func (h *Handler) results(w http.ResponseWriter, r *http.Request) {
	run, err := h.findRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rs, err := run.Results(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, rs)
}

func (h *Handler) frequency(w http.ResponseWriter, r *http.Request) {
	run, err := h.findRun(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req frequencyRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := run.SetExtractedFrequency(r.Context(), r.PathValue("sensor"), req.Frequency); err != nil {
		writeError(w, err)
		return
	}
	httputil.NoContent(w)
}

// --- Evaluators ---

func (h *Handler) evaluator(w http.ResponseWriter, r *http.Request) {
	ev, err := h.session.Evaluator(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, evaluatorInfo{Name: ev.Name(), Input: ev.Input()})
}

func (h *Handler) createEvaluator(w http.ResponseWriter, r *http.Request) {
	var req evaluatorInfo
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Name == "" {
		httputil.BadRequest(w, "name is required")
		return
	}
	ev, err := h.session.CreateStatisticsEvaluator(r.Context(), req.Name, req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, evaluatorInfo{Name: ev.Name(), Input: ev.Input()})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	ev, err := h.session.Evaluator(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, updateResponse{OK: ev.Update(r.Context())})
}

func (h *Handler) output(w http.ResponseWriter, r *http.Request) {
	ev, err := h.session.Evaluator(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := ev.Output(r.Context(), r.PathValue("output"))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteJSONOK(w, p)
}
