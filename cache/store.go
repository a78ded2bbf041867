// Package cache persists the aggregate views of a dataset next to it and
// reloads them on later runs.
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meds-inspect/meds-inspect/aggregate"
	"github.com/meds-inspect/meds-inspect/core"
	"github.com/meds-inspect/meds-inspect/dataset"
	"github.com/meds-inspect/meds-inspect/querier"
	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"
)

const lockFileName = ".lock"

// Store owns the cache directory of every dataset it is asked about. The
// engine writes numerical_code_data itself, so fs must be backed by the
// operating system filesystem.
type Store struct {
	client *querier.QueryClient
	fs     afero.Fs
	engine *aggregate.Engine
	group  singleflight.Group
	now    func() time.Time
}

// NewStore creates a store computing missing views with client.
func NewStore(client *querier.QueryClient, fs afero.Fs) *Store {
	return &Store{
		client: client,
		fs:     fs,
		engine: aggregate.NewEngine(client, fs),
		now:    time.Now,
	}
}

// Engine returns the engine used on cache misses.
func (s *Store) Engine() *aggregate.Engine {
	return s.engine
}

// Validate reports whether path looks like a MEDS dataset root.
func (s *Store) Validate(path string) bool {
	return dataset.IsValid(s.fs, path)
}

// ViewStatus tells whether a view is cached for a root.
type ViewStatus struct {
	View      aggregate.View `json:"view"`
	Cached    bool           `json:"cached"`
	Rows      int64          `json:"rows,omitempty"`
	WrittenAt *time.Time     `json:"written_at,omitempty"`
}

// Status lists every view of root with its cache state.
func (s *Store) Status(root string) ([]ViewStatus, error) {
	dir := dataset.CacheDir(root)
	manifest, err := readManifest(s.fs, dir)
	if err != nil {
		return nil, err
	}
	res := make([]ViewStatus, 0, len(aggregate.Views))
	for _, v := range aggregate.Views {
		st := ViewStatus{View: v, Cached: s.cached(root, v)}
		if e, ok := manifest.Views[v]; ok && st.Cached {
			st.Rows = e.Rows
			writtenAt := e.WrittenAt
			st.WrittenAt = &writtenAt
		}
		res = append(res, st)
	}
	return res, nil
}

// GetMetadata reads the dataset descriptor of root.
func (s *Store) GetMetadata(root string) (*dataset.Descriptor, error) {
	if !s.Validate(root) {
		return nil, fmt.Errorf("%s: %w", root, core.ErrInvalidPath)
	}
	return dataset.ReadDescriptor(s.fs, root)
}

// LoadOrCompute returns the views of root, computing and persisting only the
// ones missing from its cache directory. Concurrent calls for the same root
// share one computation.
func (s *Store) LoadOrCompute(ctx context.Context, root string) (*aggregate.Bundle, error) {
	if !s.Validate(root) {
		core.Errorf(ctx, "Invalid dataset path: %s", root)
		return nil, fmt.Errorf("%s: %w", root, core.ErrInvalidPath)
	}
	// the shared computation outlives any single caller
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(root, func() (interface{}, error) {
		return s.loadOrCompute(shared, root)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			core.Debugf(ctx, "%s: joined an in-flight computation", root)
		}
		return res.Val.(*aggregate.Bundle), nil
	}
}

func (s *Store) loadOrCompute(ctx context.Context, root string) (*aggregate.Bundle, error) {
	dir := dataset.CacheDir(root)
	if len(s.missing(root)) == 0 {
		core.Infof(ctx, "Loading cached results from %s", dir)
		return s.load(ctx, root)
	}

	// resolve the layout before touching the cache directory
	src, err := s.engine.Open(ctx, root)
	if err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	unlock, err := lockDir(dir)
	if err != nil {
		return nil, err
	}
	defer unlock()

	missing := s.missing(root)
	manifest, err := readManifest(s.fs, dir)
	if err != nil {
		core.Warnf(ctx, "%s: ignoring manifest: %v", dir, err)
		manifest = &Manifest{Views: map[aggregate.View]ManifestEntry{}}
	}
	for _, v := range missing {
		start := s.now()
		if err := s.computeView(ctx, src, v); err != nil {
			core.Errorf(ctx, "Failed to compute %s for %s: %v", v, root, err)
			return nil, err
		}
		rows, err := rowCount(s.fs, filepath.Join(dir, v.FileName()))
		if err != nil {
			return nil, err
		}
		manifest.Views[v] = ManifestEntry{Rows: rows, WrittenAt: s.now().UTC()}
		if err := manifest.write(s.fs, dir); err != nil {
			core.Warnf(ctx, "%s: failed to write manifest: %v", dir, err)
		}
		core.Infof(ctx, "Computed %s for %s: %d rows in %v", v, root, rows, s.now().Sub(start))
	}
	return s.load(ctx, root)
}

func (s *Store) computeView(ctx context.Context, src *aggregate.Source, v aggregate.View) error {
	path := filepath.Join(dataset.CacheDir(src.Root), v.FileName())
	switch v {
	case aggregate.GeneralStatistics:
		st, err := src.Statistics(ctx)
		if err != nil {
			return err
		}
		return writeRows(s.fs, path, []aggregate.Statistics{st})
	case aggregate.CodeCountYears:
		rows, err := src.Months(ctx)
		if err != nil {
			return err
		}
		return writeRows(s.fs, path, rows)
	case aggregate.CodeCountSubjects:
		rows, err := src.Subjects(ctx)
		if err != nil {
			return err
		}
		return writeRows(s.fs, path, rows)
	case aggregate.TopCodes:
		rows, err := src.TopCodes(ctx)
		if err != nil {
			return err
		}
		return writeRows(s.fs, path, rows)
	case aggregate.CodingDict:
		rows, err := src.CodingDict(ctx)
		if err != nil {
			return err
		}
		return writeRows(s.fs, path, rows)
	case aggregate.NumericalCodeData:
		return sinkFrame(ctx, s.fs, src.Numerical(), path)
	}
	return fmt.Errorf("%q: %w", v, core.ErrUnknownView)
}

func (s *Store) load(ctx context.Context, root string) (*aggregate.Bundle, error) {
	dir := dataset.CacheDir(root)
	file := func(v aggregate.View) string {
		return filepath.Join(dir, v.FileName())
	}

	var b aggregate.Bundle
	stats, err := readRows[aggregate.Statistics](s.fs, file(aggregate.GeneralStatistics))
	if err != nil {
		return nil, err
	}
	if len(stats) != 1 {
		return nil, fmt.Errorf("%s: expected one row, got %d", file(aggregate.GeneralStatistics), len(stats))
	}
	b.Statistics = stats[0]
	if b.Months, err = readRows[aggregate.MonthCount](s.fs, file(aggregate.CodeCountYears)); err != nil {
		return nil, err
	}
	if b.Subjects, err = readRows[aggregate.SubjectCount](s.fs, file(aggregate.CodeCountSubjects)); err != nil {
		return nil, err
	}
	if b.TopCodes, err = readRows[aggregate.CodeCount](s.fs, file(aggregate.TopCodes)); err != nil {
		return nil, err
	}
	if b.CodingDict, err = readRows[aggregate.PrefixCount](s.fs, file(aggregate.CodingDict)); err != nil {
		return nil, err
	}
	b.Numerical = querier.Scan(s.client, file(aggregate.NumericalCodeData))
	core.Debugf(ctx, "Loaded %d views from %s", len(aggregate.Views), dir)
	return &b, nil
}

// Invalidate deletes the cache directory of root. A missing directory is not
// an error.
func (s *Store) Invalidate(ctx context.Context, root string) error {
	dir := dataset.CacheDir(root)
	if _, err := s.fs.Stat(dir); errors.Is(err, os.ErrNotExist) {
		core.Infof(ctx, "No cache to invalidate at %s", dir)
		return nil
	}
	if err := s.fs.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove %s: %w", dir, err)
	}
	core.Infof(ctx, "Invalidated cache at %s", dir)
	return nil
}

func (s *Store) cached(root string, v aggregate.View) bool {
	info, err := s.fs.Stat(filepath.Join(dataset.CacheDir(root), v.FileName()))
	return err == nil && !info.IsDir()
}

func (s *Store) missing(root string) []aggregate.View {
	var res []aggregate.View
	for _, v := range aggregate.Views {
		if !s.cached(root, v) {
			res = append(res, v)
		}
	}
	return res
}
