package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithinDirectory(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "safe")
	outside := filepath.Join(tmp, "outside")
	require.NoError(t, os.MkdirAll(safe, 0o755))
	require.NoError(t, os.MkdirAll(outside, 0o755))
	require.NoError(t, os.Symlink(outside, filepath.Join(safe, "link")))

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safe, "a.csv"), false},
		{"nested new file", filepath.Join(safe, "sub", "deeper", "a.csv"), false},
		{"dir itself", safe, false},
		{"dot dot", filepath.Join(safe, "..", "a.csv"), true},
		{"sibling", filepath.Join(outside, "a.csv"), true},
		{"through symlink", filepath.Join(safe, "link", "a.csv"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDirectory(tt.path, safe)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWithinDirectory_MissingDir(t *testing.T) {
	err := WithinDirectory("x", filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestJoinWithin(t *testing.T) {
	dir := t.TempDir()

	p, err := JoinWithin(dir, "Box_summary.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Box_summary.csv"), p)

	_, err = JoinWithin(dir, "../Box_summary.csv")
	assert.Error(t, err)
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Box", "Box"},
		{"Standing Model", "Standing_Model"},
		{"Duke v3.1 (posture: arms up)", "Duke_v3.1_posture_arms_up"},
		{"../../etc", "etc"},
		{"a__b", "a__b"},
		{"", "unknown"},
		{"///", "unknown"},
		{"Taro_emfdtd", "Taro_emfdtd"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}
