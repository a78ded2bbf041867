// Package dataset knows the on-disk layout of a MEDS dataset root.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/meds-inspect/meds-inspect/core"
	"github.com/spf13/afero"
)

const (
	DataDirName     = "data"
	MetadataDirName = "metadata"
	CacheDirName    = ".meds_inspect_cache"

	CodesFileName      = "codes.parquet"
	DescriptorFileName = "dataset.json"
)

// Layout is a rule describing where event files live under the dataset root.
type Layout struct {
	Name    string
	Pattern string
}

// DataLayouts are tried in order; the first one matching a file wins.
var DataLayouts = []Layout{
	{Name: "partitioned", Pattern: "data/*/*.parquet"},
	{Name: "flat", Pattern: "data/*.parquet"},
}

// IsValid reports whether path is a directory holding data/ and metadata/,
// each with at least one parquet file somewhere below it.
func IsValid(fs afero.Fs, path string) bool {
	if path == "" {
		return false
	}
	info, err := fs.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	for _, sub := range []string{DataDirName, MetadataDirName} {
		dir := filepath.Join(path, sub)
		info, err := fs.Stat(dir)
		if err != nil || !info.IsDir() {
			return false
		}
		if !hasParquet(fs, dir) {
			return false
		}
	}
	return true
}

var errFound = errors.New("found")

func hasParquet(fs afero.Fs, dir string) bool {
	err := afero.Walk(fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".parquet") {
			return errFound
		}
		return nil
	})
	return err == errFound
}

// ResolveDataGlob returns the absolute glob of the event files under root.
func ResolveDataGlob(ctx context.Context, fs afero.Fs, root string) (string, error) {
	var resolved *Layout
	for i := range DataLayouts {
		layout := &DataLayouts[i]
		matches, err := afero.Glob(fs, filepath.Join(root, layout.Pattern))
		if err != nil {
			return "", fmt.Errorf("bad layout pattern %s: %w", layout.Pattern, err)
		}
		if len(matches) == 0 {
			continue
		}
		if resolved != nil {
			core.Warnf(ctx, "%s: both %s and %s layouts hold files, using %s",
				root, resolved.Name, layout.Name, resolved.Name)
			break
		}
		resolved = layout
	}
	if resolved == nil {
		core.Errorf(ctx, "No data found in %s", filepath.Join(root, DataDirName))
		return "", fmt.Errorf("%s: %w", root, core.ErrNoDataFound)
	}
	core.Debugf(ctx, "%s: using %s data layout", root, resolved.Name)
	return filepath.Join(root, resolved.Pattern), nil
}

// CacheDir returns the cache directory of a dataset root.
func CacheDir(root string) string {
	return filepath.Join(root, CacheDirName)
}

// CodesPath returns the path of the code metadata table of a dataset root.
func CodesPath(root string) string {
	return filepath.Join(root, MetadataDirName, CodesFileName)
}
