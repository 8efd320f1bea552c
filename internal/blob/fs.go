package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/sarsweep/internal/fsutil"
	"github.com/banshee-data/sarsweep/internal/timeutil"
)

// metaSuffix names the sidecar holding content type and metadata.
const metaSuffix = ".meta"

// Filesystem stores each blob as a file under root with a JSON sidecar.
type Filesystem struct {
	fs    fsutil.FileSystem
	root  string
	clock timeutil.Clock
}

// Compile-time check.
var _ Store = (*Filesystem)(nil)

type metaFile struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        int64             `json:"size"`
	CreatedAt   string            `json:"created_at"`
}

// NewFilesystem returns a store rooted at root, creating it if needed.
func NewFilesystem(fsys fsutil.FileSystem, root string, clock timeutil.Clock) (*Filesystem, error) {
	if root == "" {
		root = "artifacts"
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root %s: %w", root, err)
	}
	return &Filesystem{fs: fsys, root: root, clock: clock}, nil
}

func (s *Filesystem) Driver() Driver { return DriverFilesystem }

func (s *Filesystem) pathFor(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

func (s *Filesystem) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	p, err := s.pathFor(key)
	if err != nil {
		return Info{}, err
	}
	if s.fs.Exists(p) {
		return Info{}, fmt.Errorf("%w: %s", ErrExists, key)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return Info{}, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return Info{}, err
	}
	if err := s.fs.WriteFile(p, body, 0o644); err != nil {
		return Info{}, fmt.Errorf("writing %s: %w", key, err)
	}
	mf := metaFile{
		ContentType: opts.ContentType,
		Metadata:    cloneMetadata(opts.Metadata),
		Size:        int64(len(body)),
		CreatedAt:   s.clock.Now().UTC().Format(timeFormat),
	}
	b, err := json.Marshal(mf)
	if err != nil {
		return Info{}, err
	}
	if err := s.fs.WriteFile(p+metaSuffix, b, 0o644); err != nil {
		return Info{}, fmt.Errorf("writing %s metadata: %w", key, err)
	}
	return s.Head(ctx, key)
}

func (s *Filesystem) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	p, _ := s.pathFor(key)
	f, err := s.fs.Open(p)
	if err != nil {
		return Info{}, nil, fmt.Errorf("opening %s: %w", key, err)
	}
	return info, f, nil
}

func (s *Filesystem) Head(ctx context.Context, key string) (Info, error) {
	k, err := cleanKey(key)
	if err != nil {
		return Info{}, err
	}
	p := filepath.Join(s.root, filepath.FromSlash(k))
	st, err := s.fs.Stat(p)
	if err != nil || st.IsDir() {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	info := Info{Key: k, Size: st.Size()}
	if raw, err := s.fs.ReadFile(p + metaSuffix); err == nil {
		var mf metaFile
		if err := json.Unmarshal(raw, &mf); err == nil {
			info.ContentType = mf.ContentType
			info.Metadata = mf.Metadata
			info.LastModified, _ = parseTime(mf.CreatedAt)
		}
	}
	return info, nil
}

func (s *Filesystem) List(ctx context.Context, prefix string) ([]Info, error) {
	if !s.fs.Exists(s.root) {
		return nil, nil
	}
	paths, err := s.fs.List(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}
	var out []Info
	for _, p := range paths {
		if strings.HasSuffix(p, metaSuffix) {
			continue
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			continue
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		info, err := s.Head(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}
