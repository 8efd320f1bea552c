package blob

import (
	"context"
	"fmt"

	"github.com/banshee-data/sarsweep/internal/config"
	"github.com/banshee-data/sarsweep/internal/fsutil"
	"github.com/banshee-data/sarsweep/internal/timeutil"
)

// Open selects a Store from the publish settings. It returns nil, nil when
// publishing is disabled.
//
//	driver: fs     -> files under dir
//	driver: s3     -> bucket, region, endpoint and path_style; keys from the
//	                  AWS environment or shared config
//	driver: memory -> in process, for dry runs
func Open(ctx context.Context, cfg config.PublishConfig, fsys fsutil.FileSystem, clock timeutil.Clock) (Store, error) {
	switch Driver(cfg.Driver) {
	case "":
		return nil, nil
	case DriverFilesystem:
		return NewFilesystem(fsys, cfg.Dir, clock)
	case DriverS3:
		return NewS3(ctx, S3Config{
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			PathStyle: cfg.PathStyle,
		})
	case DriverMemory:
		return NewMemory(clock), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
