package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/sarsweep/internal/engine"
)

// ErrRegionNotFound is returned by Registry.Lookup for names the model does
// not contain.
var ErrRegionNotFound = errors.New("region not found")

// Registry indexes the model's entities by name.
type Registry struct {
	byName map[string]engine.Region
}

// NewRegistry snapshots the session's entities.
func NewRegistry(ctx context.Context, session engine.Session) (*Registry, error) {
	entities, err := session.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	return RegistryOf(entities), nil
}

// RegistryOf indexes an entity list. Later duplicates win.
func RegistryOf(entities []engine.Region) *Registry {
	r := &Registry{byName: make(map[string]engine.Region, len(entities))}
	for _, e := range entities {
		r.byName[e.Name] = e
	}
	return r
}

// Lookup returns the region with the given name.
func (r *Registry) Lookup(name string) (engine.Region, error) {
	reg, ok := r.byName[name]
	if !ok {
		return engine.Region{}, fmt.Errorf("%w: %q", ErrRegionNotFound, name)
	}
	return reg, nil
}

func (r *Registry) Len() int { return len(r.byName) }
