package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Descriptor is the content of metadata/dataset.json.
type Descriptor struct {
	DatasetName    string `json:"dataset_name,omitempty"`
	DatasetVersion string `json:"dataset_version,omitempty"`
	ETLName        string `json:"etl_name,omitempty"`
	ETLVersion     string `json:"etl_version,omitempty"`
	MEDSVersion    string `json:"meds_version,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`

	// Extra keeps fields not covered above. They are written back at the top
	// level.
	Extra map[string]any `json:"-"`
}

var knownDescriptorKeys = map[string]bool{
	"dataset_name": true, "dataset_version": true, "etl_name": true,
	"etl_version": true, "meds_version": true, "created_at": true,
}

func (d *Descriptor) UnmarshalJSON(data []byte) error {
	type plain Descriptor
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var all map[string]any
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	*d = Descriptor(p)
	d.Extra = nil
	for k, v := range all {
		if knownDescriptorKeys[k] {
			continue
		}
		if d.Extra == nil {
			d.Extra = make(map[string]any)
		}
		d.Extra[k] = v
	}
	return nil
}

func (d Descriptor) MarshalJSON() ([]byte, error) {
	type plain Descriptor
	data, err := json.Marshal(plain(d))
	if err != nil || len(d.Extra) == 0 {
		return data, err
	}
	all := make(map[string]any, len(d.Extra)+len(knownDescriptorKeys))
	for k, v := range d.Extra {
		all[k] = v
	}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	return json.Marshal(all)
}

// ReadDescriptor parses metadata/dataset.json of root.
func ReadDescriptor(fs afero.Fs, root string) (*Descriptor, error) {
	path := filepath.Join(root, MetadataDirName, DescriptorFileName)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var d Descriptor
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &d, nil
}

// FolderSize sums the size of every file below root, skipping the cache directory.
func FolderSize(fs afero.Fs, root string) (int64, error) {
	var total int64
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && info.Name() == CacheDirName {
			return filepath.SkipDir
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return total, nil
}

// SizeMB converts bytes to megabytes rounded to two decimals.
func SizeMB(bytes int64) float64 {
	return math.Round(float64(bytes)/(1024*1024)*100) / 100
}
