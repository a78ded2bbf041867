package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meds-inspect/meds-inspect/aggregate"
	"github.com/spf13/afero"
)

const manifestFileName = "manifest.json"

// Manifest records what was written to a cache directory. It is informative
// only: a view is cached when its file exists.
type Manifest struct {
	Views map[aggregate.View]ManifestEntry `json:"views"`
}

// ManifestEntry describes one written view.
type ManifestEntry struct {
	Rows      int64     `json:"rows"`
	WrittenAt time.Time `json:"written_at"`
}

func readManifest(fs afero.Fs, dir string) (*Manifest, error) {
	m := &Manifest{Views: map[aggregate.View]ManifestEntry{}}
	data, err := afero.ReadFile(fs, filepath.Join(dir, manifestFileName))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("bad manifest: %w", err)
	}
	if m.Views == nil {
		m.Views = map[aggregate.View]ManifestEntry{}
	}
	return m, nil
}

func (m *Manifest) write(fs afero.Fs, dir string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, manifestFileName)
	if err := afero.WriteFile(fs, path+tmpSuffix, data, 0o644); err != nil {
		return err
	}
	return rename(fs, path+tmpSuffix, path)
}
