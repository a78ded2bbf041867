package dataset

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadDescriptor(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ds/metadata/dataset.json", []byte(`{
		"dataset_name": "MIMIC-IV-demo",
		"dataset_version": "2.2",
		"etl_name": "MEDS_transforms",
		"etl_version": "0.0.7",
		"meds_version": "0.3.3",
		"license": "ODbL"
	}`), 0o644))

	d, err := ReadDescriptor(fs, "/ds")
	require.NoError(t, err)
	assert.Equal(t, "MIMIC-IV-demo", d.DatasetName)
	assert.Equal(t, "2.2", d.DatasetVersion)
	assert.Equal(t, "0.3.3", d.MEDSVersion)
	assert.Equal(t, map[string]any{"license": "ODbL"}, d.Extra)
}

func TestReadDescriptorErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := ReadDescriptor(fs, "/missing")
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/ds/metadata/dataset.json", []byte(`{not json`), 0o644))
	_, err = ReadDescriptor(fs, "/ds")
	assert.Error(t, err)
}

func TestFolderSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/ds/data/0.parquet", make([]byte, 1000), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ds/metadata/codes.parquet", make([]byte, 24), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/ds/.meds_inspect_cache/top_codes.parquet", make([]byte, 5000), 0o644))

	size, err := FolderSize(fs, "/ds")
	require.NoError(t, err)
	assert.Equal(t, int64(1024), size)
}

func TestSizeMB(t *testing.T) {
	assert.Equal(t, 1.0, SizeMB(1024*1024))
	assert.Equal(t, 0.0, SizeMB(1024))
	assert.Equal(t, 2.5, SizeMB(5*1024*1024/2))
	assert.Equal(t, 0.01, SizeMB(10*1024))
}

func TestDescriptorRoundTrip(t *testing.T) {
	in := Descriptor{DatasetName: "demo", MEDSVersion: "0.3.3", Extra: map[string]any{"license": "ODbL"}}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dataset_name":"demo","meds_version":"0.3.3","license":"ODbL"}`, string(data))

	var out Descriptor
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}
