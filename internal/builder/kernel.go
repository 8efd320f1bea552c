package builder

import (
	"context"
	"fmt"

	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/monitoring"
)

// KernelOutcome records which solver kernel a run ended up with.
type KernelOutcome struct {
	Kind     engine.KernelKind
	FellBack bool

	// Reason is the error that rejected the preferred kernel.
	Reason error
}

// SelectKernel sets preferred on run and, if the engine rejects it, falls
// back to fallback. It fails only when neither kernel can be set.
func SelectKernel(ctx context.Context, run engine.Run, preferred, fallback engine.KernelKind) (KernelOutcome, error) {
	err := run.SetSolverKernel(ctx, preferred)
	if err == nil {
		return KernelOutcome{Kind: preferred}, nil
	}
	if fallback == "" || fallback == preferred {
		return KernelOutcome{}, fmt.Errorf("setting %s kernel on %q: %w", preferred, run.Name(), err)
	}

	monitoring.Warnf("builder", "%s kernel unavailable for %q (%v); using %s", preferred, run.Name(), err, fallback)
	if ferr := run.SetSolverKernel(ctx, fallback); ferr != nil {
		return KernelOutcome{}, fmt.Errorf("setting %s kernel on %q after %s failed: %w", fallback, run.Name(), preferred, ferr)
	}
	return KernelOutcome{Kind: fallback, FellBack: true, Reason: err}, nil
}
