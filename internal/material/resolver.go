// Package material resolves named tissues to dielectric properties. A
// database lookup is always attempted first; only when it fails is a binding
// synthesized from the fixed fallback table.
package material

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/monitoring"
)

// DefaultProfile is the database profile queried when none is configured.
const DefaultProfile = "IT'IS 4.1"

// ErrMaterialNotFound is returned by Database implementations on a miss.
var ErrMaterialNotFound = errors.New("material not found")

// errNoDatabase is the fallback reason when no database handle is configured.
var errNoDatabase = errors.New("no material database configured")

// Database looks materials up by profile and name.
type Database interface {
	Lookup(ctx context.Context, profile, name string) (Properties, error)
}

// Outcome records which branch produced a binding.
type Outcome int

const (
	Resolved Outcome = iota
	FellBack
)

func (o Outcome) String() string {
	if o == Resolved {
		return "database"
	}
	return "fallback"
}

// Binding is a material ready to be applied to a set of regions.
type Binding struct {
	Name       string
	Regions    []engine.Region
	Properties Properties
	Outcome    Outcome

	// Link is "<profile>/<name>" for database-sourced bindings.
	Link string

	// Reason is the lookup error that caused a fallback.
	Reason error
}

// Applicable reports whether the binding has any regions to apply to.
func (b Binding) Applicable() bool { return len(b.Regions) > 0 }

// EngineProperties converts the binding for the engine contract.
func (b Binding) EngineProperties() engine.MaterialProperties {
	return engine.MaterialProperties{
		Name:                 b.Name,
		MassDensity:          b.Properties.MassDensity,
		Conductivity:         b.Properties.Conductivity,
		RelativePermittivity: b.Properties.RelativePermittivity,
		DatabaseLink:         b.Link,
	}
}

// Resolver resolves material names. The zero value has no database and
// always falls back.
type Resolver struct {
	Database Database
	Profile  string
	Metrics  *monitoring.Metrics
}

// NewResolver creates a resolver over db, which may be nil.
func NewResolver(db Database, profile string) *Resolver {
	if profile == "" {
		profile = DefaultProfile
	}
	return &Resolver{Database: db, Profile: profile}
}

// Resolve returns a binding for name on regions. It never fails: a lookup
// error is turned into a fallback binding and logged.
func (r *Resolver) Resolve(ctx context.Context, name string, regions []engine.Region) Binding {
	profile := r.Profile
	if profile == "" {
		profile = DefaultProfile
	}

	props, err := r.lookup(ctx, profile, name)
	if err == nil {
		return Binding{
			Name:       name,
			Regions:    regions,
			Properties: props,
			Outcome:    Resolved,
			Link:       profile + "/" + name,
		}
	}
	return r.fallback(name, regions, err)
}

// lookup queries the database, converting a panic in a third-party driver
// into an error so Resolve keeps its no-failure contract.
func (r *Resolver) lookup(ctx context.Context, profile, name string) (props Properties, err error) {
	if r.Database == nil {
		return Properties{}, errNoDatabase
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("material database panicked: %v", p)
		}
	}()
	return r.Database.Lookup(ctx, profile, name)
}

func (r *Resolver) fallback(name string, regions []engine.Region, reason error) Binding {
	props, known := FallbackProperties(name)
	if known {
		monitoring.Warnf("material", "%s not resolved from database (%v); using fallback literals", name, reason)
	} else {
		monitoring.Warnf("material", "%s not resolved from database (%v) and has no fallback entry; using %s literals", name, reason, GenericFallback)
	}
	r.Metrics.MaterialFellBack(name)
	return Binding{
		Name:       name,
		Regions:    regions,
		Properties: props,
		Outcome:    FellBack,
		Reason:     reason,
	}
}
