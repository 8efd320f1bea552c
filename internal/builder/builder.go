// Package builder configures one simulation run in the engine session:
// setup, materials, plane-wave source, boundaries, grid, voxels and solver
// kernel. Every entity reference is resolved before the run is created, so a
// missing source never leaves a half-built run behind.
package builder

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/material"
	"github.com/banshee-data/sarsweep/internal/monitoring"
)

// ErrSourceUnresolved is returned when the variant's source region is not in
// the model. No run is created in that case.
var ErrSourceUnresolved = errors.New("source region unresolved")

var logf = monitoring.Component("builder")

// Request is one run to build.
type Request struct {
	RunName string
	Theta   float64
	Phi     float64
	Psi     float64
}

// Built is a configured, not yet prepared run.
type Built struct {
	Run      engine.Run
	Bindings []material.Binding
	Source   engine.Region

	// Regions is the union used for both grid and voxelization.
	Regions []engine.Region
	Kernel  KernelOutcome
}

// Builder builds runs of one variant.
type Builder struct {
	Resolver *material.Resolver
	Variant  Variant
	Metrics  *monitoring.Metrics
}

// New creates a builder. A nil resolver falls back for every material.
func New(resolver *material.Resolver, v Variant) *Builder {
	if resolver == nil {
		resolver = &material.Resolver{}
	}
	return &Builder{Resolver: resolver, Variant: v}
}

// plan is everything resolved before the session is touched.
type plan struct {
	bindings []material.Binding
	source   engine.Region
	regions  []engine.Region
}

func (b *Builder) resolve(ctx context.Context, session engine.Session, runName string) (*plan, error) {
	reg, err := NewRegistry(ctx, session)
	if err != nil {
		return nil, err
	}

	p := &plan{}
	seen := make(map[string]bool)
	add := func(r engine.Region) {
		if !seen[r.ID] {
			seen[r.ID] = true
			p.regions = append(p.regions, r)
		}
	}

	for _, role := range b.Variant.Roles {
		var regions []engine.Region
		for _, name := range role.Regions {
			r, err := reg.Lookup(name)
			if err != nil {
				monitoring.Warnf("builder", "entity %q not found in model for %s; skipping", name, role.Material)
				continue
			}
			regions = append(regions, r)
		}
		binding := b.Resolver.Resolve(ctx, role.Material, regions)
		p.bindings = append(p.bindings, binding)
		if binding.Applicable() {
			for _, r := range regions {
				add(r)
			}
		}
	}

	src, err := reg.Lookup(b.Variant.Source)
	if err != nil {
		return nil, fmt.Errorf("%w for %q: %v", ErrSourceUnresolved, runName, err)
	}
	p.source = src
	add(src)
	return p, nil
}

// Build resolves the variant against the session and creates a configured
// run. If any step after creation fails the run is deleted again.
func (b *Builder) Build(ctx context.Context, session engine.Session, req Request) (*Built, error) {
	p, err := b.resolve(ctx, session, req.RunName)
	if err != nil {
		return nil, err
	}

	run, err := session.CreateRun(ctx, req.RunName)
	if err != nil {
		return nil, fmt.Errorf("creating run %q: %w", req.RunName, err)
	}

	built, err := b.apply(ctx, run, p, req)
	if err != nil {
		if derr := session.DeleteRun(ctx, req.RunName); derr != nil {
			monitoring.Warnf("builder", "rollback of %q failed: %v", req.RunName, derr)
		}
		return nil, err
	}
	logf("built %q (%d regions, kernel %s)", req.RunName, len(p.regions), built.Kernel.Kind)
	return built, nil
}

func (b *Builder) apply(ctx context.Context, run engine.Run, p *plan, req Request) (*Built, error) {
	v := b.Variant
	if err := run.SetSetup(ctx, v.Setup); err != nil {
		return nil, fmt.Errorf("setup of %q: %w", req.RunName, err)
	}

	var applied []material.Binding
	for _, binding := range p.bindings {
		if !binding.Applicable() {
			logf("no regions for %s in %q; binding skipped", binding.Name, req.RunName)
			continue
		}
		if err := run.BindMaterial(ctx, binding.Regions, binding.EngineProperties()); err != nil {
			return nil, fmt.Errorf("binding %s in %q: %w", binding.Name, req.RunName, err)
		}
		applied = append(applied, binding)
	}

	src := engine.SourceSettings{
		Theta:      req.Theta,
		Phi:        req.Phi,
		Psi:        req.Psi,
		Excitation: v.Excitation,
	}
	if err := run.SetSource(ctx, p.source, src); err != nil {
		return nil, fmt.Errorf("source of %q: %w", req.RunName, err)
	}
	if err := run.SetBoundary(ctx, engine.BoundaryUpmlCpml); err != nil {
		return nil, fmt.Errorf("boundary of %q: %w", req.RunName, err)
	}
	if err := run.SetGrid(ctx, p.regions); err != nil {
		return nil, fmt.Errorf("grid of %q: %w", req.RunName, err)
	}
	if err := run.SetVoxelization(ctx, p.regions); err != nil {
		return nil, fmt.Errorf("voxels of %q: %w", req.RunName, err)
	}

	preferred := v.PreferredKernel
	if preferred == "" {
		preferred = engine.KernelSoftware
	}
	kernel, err := SelectKernel(ctx, run, preferred, v.FallbackKernel)
	if err != nil {
		return nil, err
	}
	if kernel.FellBack {
		b.Metrics.KernelFellBack()
	}

	return &Built{
		Run:      run,
		Bindings: applied,
		Source:   p.source,
		Regions:  p.regions,
		Kernel:   kernel,
	}, nil
}
