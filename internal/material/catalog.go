package material

import (
	"context"
	"fmt"

	"github.com/banshee-data/sarsweep/internal/config"
	"github.com/banshee-data/sarsweep/internal/fsutil"
)

// Catalog is a Database backed by a static file:
//
//	profiles:
//	  IT'IS 4.1:
//	    Muscle: {density: 1090.4, conductivity: 0.978, permittivity: 54.8}
type Catalog struct {
	Profiles map[string]map[string]Properties `json:"profiles" yaml:"profiles"`
}

// Compile-time check.
var _ Database = (*Catalog)(nil)

// LoadCatalog reads a YAML or JSON catalogue.
func LoadCatalog(fsys fsutil.FileSystem, path string) (*Catalog, error) {
	var c Catalog
	if err := config.DecodeFile(fsys, path, &c); err != nil {
		return nil, fmt.Errorf("loading material catalog %s: %w", path, err)
	}
	return &c, nil
}

// Lookup returns ErrMaterialNotFound when the profile or the name is absent.
func (c *Catalog) Lookup(ctx context.Context, profile, name string) (Properties, error) {
	entries, ok := c.Profiles[profile]
	if !ok {
		return Properties{}, fmt.Errorf("%w: profile %q", ErrMaterialNotFound, profile)
	}
	p, ok := entries[name]
	if !ok {
		return Properties{}, fmt.Errorf("%w: %q in profile %q", ErrMaterialNotFound, name, profile)
	}
	return p, nil
}
