package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/meds-inspect/meds-inspect/aggregate"
	"github.com/meds-inspect/meds-inspect/querier"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRename = errors.New("rename refused")

// noRenameFs fails every rename.
type noRenameFs struct {
	afero.Fs
}

func (noRenameFs) Rename(oldname, newname string) error {
	return errRename
}

func TestWriteRowsRenameFailure(t *testing.T) {
	fs := noRenameFs{afero.NewMemMapFs()}
	path := "/cache/top_codes.parquet"
	require.NoError(t, fs.MkdirAll("/cache", 0o755))

	err := writeRows(fs, path, []aggregate.CodeCount{{Code: "DX//E11", Count: 1}})
	assert.ErrorIs(t, err, errRename)
	for _, p := range []string{path, path + tmpSuffix} {
		exists, err := afero.Exists(fs, p)
		require.NoError(t, err)
		assert.False(t, exists, p)
	}

	m := &Manifest{Views: map[aggregate.View]ManifestEntry{}}
	assert.ErrorIs(t, m.write(fs, "/cache"), errRename)
	exists, err := afero.Exists(fs, filepath.Join("/cache", manifestFileName+tmpSuffix))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSinkFrameRenameFailure(t *testing.T) {
	q := querier.NewQueryClient()
	require.NoError(t, q.Initialize())
	t.Cleanup(func() { q.Close() })

	path := filepath.Join(t.TempDir(), "numerical_code_data.parquet")
	frame := querier.FromSQL(q, "SELECT 'LAB//X' AS code, 1.5 AS numeric_value")
	err := sinkFrame(context.Background(), noRenameFs{afero.NewOsFs()}, frame, path)
	assert.ErrorIs(t, err, errRename)
	_, err = os.Stat(path + tmpSuffix)
	assert.True(t, os.IsNotExist(err))
}
