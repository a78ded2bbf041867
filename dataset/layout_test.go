package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/meds-inspect/meds-inspect/core"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, fs afero.Fs, path string) {
	t.Helper()
	require.NoError(t, fs.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fs, path, []byte("PAR1"), 0o644))
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		files []string
		dirs  []string
		path  string
		want  bool
	}{
		{
			name: "Empty path",
			path: "",
			want: false,
		},
		{
			name: "Nonexistent directory",
			path: "/nowhere",
			want: false,
		},
		{
			name:  "Path is a file",
			files: []string{"/ds"},
			path:  "/ds",
			want:  false,
		},
		{
			name:  "Missing data directory",
			files: []string{"/ds/metadata/codes.parquet"},
			path:  "/ds",
			want:  false,
		},
		{
			name:  "Empty metadata directory",
			files: []string{"/ds/data/0.parquet"},
			dirs:  []string{"/ds/metadata"},
			path:  "/ds",
			want:  false,
		},
		{
			name:  "Data directory without parquet files",
			files: []string{"/ds/data/readme.txt", "/ds/metadata/codes.parquet"},
			path:  "/ds",
			want:  false,
		},
		{
			name:  "Flat layout",
			files: []string{"/ds/data/0.parquet", "/ds/metadata/codes.parquet"},
			path:  "/ds",
			want:  true,
		},
		{
			name:  "Deeply nested data",
			files: []string{"/ds/data/a/b/c/0.parquet", "/ds/metadata/codes.parquet"},
			path:  "/ds",
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for _, f := range tt.files {
				touch(t, fs, f)
			}
			for _, d := range tt.dirs {
				require.NoError(t, fs.MkdirAll(d, 0o755))
			}
			assert.Equal(t, tt.want, IsValid(fs, tt.path))
		})
	}
}

func TestResolveDataGlob(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		want    string
		wantErr error
	}{
		{
			name:  "Partitioned layout",
			files: []string{"/ds/data/train/0.parquet", "/ds/data/held_out/0.parquet"},
			want:  "/ds/data/*/*.parquet",
		},
		{
			name:  "Flat layout",
			files: []string{"/ds/data/0.parquet"},
			want:  "/ds/data/*.parquet",
		},
		{
			name:  "Both layouts prefer partitioned",
			files: []string{"/ds/data/0.parquet", "/ds/data/train/0.parquet"},
			want:  "/ds/data/*/*.parquet",
		},
		{
			name:    "Too deep",
			files:   []string{"/ds/data/a/b/0.parquet"},
			wantErr: core.ErrNoDataFound,
		},
		{
			name:    "No data",
			files:   []string{"/ds/metadata/codes.parquet"},
			wantErr: core.ErrNoDataFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			for _, f := range tt.files {
				touch(t, fs, f)
			}
			got, err := ResolveDataGlob(context.Background(), fs, "/ds")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCachePaths(t *testing.T) {
	assert.Equal(t, "/ds/.meds_inspect_cache", CacheDir("/ds"))
	assert.Equal(t, "/ds/metadata/codes.parquet", CodesPath("/ds"))
}
