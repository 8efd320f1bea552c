// Package bridge drives an engine over HTTP. Session is the client; Handler
// serves any engine.Session with the same JSON routes, which lets the memory
// engine stand in for a real engine sidecar.
package bridge

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/httputil"
)

type modelInfo struct {
	DocumentPath string `json:"document_path"`
}

type wireBlockRequest struct {
	Name string      `json:"name"`
	P0   engine.Vec3 `json:"p0"`
	P1   engine.Vec3 `json:"p1"`
}

type runInfo struct {
	Name  string          `json:"name"`
	State engine.RunState `json:"state"`
}

type createRunRequest struct {
	Name string `json:"name"`
}

type materialRequest struct {
	Regions    []engine.Region           `json:"regions"`
	Properties engine.MaterialProperties `json:"properties"`
}

type sourceRequest struct {
	Region   engine.Region         `json:"region"`
	Settings engine.SourceSettings `json:"settings"`
}

type boundaryRequest struct {
	Boundary engine.BoundaryType `json:"boundary"`
}

type regionsRequest struct {
	Regions []engine.Region `json:"regions"`
}

type kernelRequest struct {
	Kernel engine.KernelKind `json:"kernel"`
}

type frequencyRequest struct {
	Frequency string `json:"frequency"`
}

type evaluatorInfo struct {
	Name  string           `json:"name"`
	Input engine.OutputRef `json:"input"`
}

type updateResponse struct {
	OK bool `json:"ok"`
}

// statusFor maps engine sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrDuplicateName):
		return http.StatusConflict
	case errors.Is(err, engine.ErrUnsupportedKernel):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// engineError restores the engine sentinel carried by a status code, so
// callers can keep using errors.Is across the wire.
func engineError(err error) error {
	if httputil.IsNotFound(err) {
		return fmt.Errorf("%w: %w", engine.ErrNotFound, err)
	}
	var se *httputil.StatusError
	if !errors.As(err, &se) {
		return err
	}
	switch se.StatusCode {
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", engine.ErrDuplicateName, err)
	case http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %w", engine.ErrUnsupportedKernel, err)
	}
	return err
}
