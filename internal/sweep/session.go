package sweep

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/sarsweep/internal/builder"
	"github.com/banshee-data/sarsweep/internal/engine"
)

// DefaultModelName is used when the engine document has not been saved.
const DefaultModelName = "Standing Model"

// NoDirection fills the Direction column for runs not named "<model> - <label>".
const NoDirection = "N/A"

// ModelNameFromDocument returns the document's base name without extension.
func ModelNameFromDocument(path string) string {
	if path == "" {
		return DefaultModelName
	}
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return DefaultModelName
	}
	return name
}

// ResolveModelName asks the session for its document path.
func ResolveModelName(ctx context.Context, session engine.Session) (string, error) {
	path, err := session.DocumentPath(ctx)
	if err != nil {
		return "", fmt.Errorf("reading document path: %w", err)
	}
	return ModelNameFromDocument(path), nil
}

// DirectionFromRunName returns the part after the last " - ".
func DirectionFromRunName(name string) string {
	i := strings.LastIndex(name, " - ")
	if i < 0 {
		return NoDirection
	}
	return name[i+len(" - "):]
}

// DeleteAllRuns removes every run from the session. An empty session is a
// no-op.
func DeleteAllRuns(ctx context.Context, session engine.Session) (int, error) {
	runs, err := session.Runs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing runs: %w", err)
	}
	deleted := 0
	for _, r := range runs {
		if err := session.DeleteRun(ctx, r.Name()); err != nil && !errors.Is(err, engine.ErrNotFound) {
			return deleted, fmt.Errorf("deleting run %q: %w", r.Name(), err)
		}
		deleted++
	}
	if deleted > 0 {
		logf("deleted %d existing run(s)", deleted)
	}
	return deleted, nil
}

// EnsureStaticGeometry creates each wire block whose name is not yet an
// entity. Existing entities are reused as they are.
func EnsureStaticGeometry(ctx context.Context, session engine.Session, blocks []builder.WireBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	reg, err := builder.NewRegistry(ctx, session)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if _, err := reg.Lookup(b.Name); err == nil {
			logf("%q already exists; skipping creation", b.Name)
			continue
		}
		if _, err := session.CreateWireBlock(ctx, b.Name, b.P0, b.P1); err != nil {
			return fmt.Errorf("creating %q: %w", b.Name, err)
		}
		logf("created %q", b.Name)
	}
	return nil
}
