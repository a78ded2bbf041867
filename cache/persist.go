package cache

import (
	"context"
	"fmt"

	"github.com/meds-inspect/meds-inspect/querier"
	"github.com/parquet-go/parquet-go"
	"github.com/spf13/afero"
)

const tmpSuffix = ".tmp"

// writeRows writes rows to path through a temporary file so readers never see
// a partial view.
func writeRows[T any](fs afero.Fs, path string, rows []T) error {
	tmp := path + tmpSuffix
	file, err := fs.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		file.Close()
		fs.Remove(tmp)
		return fmt.Errorf("failed to write rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		fs.Remove(tmp)
		return fmt.Errorf("failed to close writer: %w", err)
	}
	if err := file.Close(); err != nil {
		fs.Remove(tmp)
		return err
	}
	return rename(fs, tmp, path)
}

func readRows[T any](fs afero.Fs, path string) ([]T, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file stats: %w", err)
	}
	rows, err := parquet.Read[T](file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if rows == nil {
		rows = []T{}
	}
	return rows, nil
}

// sinkFrame streams frame into path through a temporary file.
func sinkFrame(ctx context.Context, fs afero.Fs, frame *querier.Frame, path string) error {
	tmp := path + tmpSuffix
	if err := frame.Sink(ctx, tmp); err != nil {
		fs.Remove(tmp)
		return err
	}
	return rename(fs, tmp, path)
}

// rename moves tmp over path and removes tmp when that fails.
func rename(fs afero.Fs, tmp, path string) error {
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// rowCount reads the number of rows from the parquet footer.
func rowCount(fs afero.Fs, path string) (int64, error) {
	file, err := fs.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to get file stats: %w", err)
	}
	reader, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return 0, fmt.Errorf("failed to open parquet file: %w", err)
	}
	return reader.NumRows(), nil
}
