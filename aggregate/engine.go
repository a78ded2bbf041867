package aggregate

import (
	"context"
	"fmt"

	"github.com/meds-inspect/meds-inspect/core"
	"github.com/meds-inspect/meds-inspect/dataset"
	"github.com/meds-inspect/meds-inspect/querier"
	"github.com/spf13/afero"
)

// Engine computes aggregate views from the event files of a dataset.
type Engine struct {
	client *querier.QueryClient
	fs     afero.Fs
}

// NewEngine creates an engine running its queries on client.
func NewEngine(client *querier.QueryClient, fs afero.Fs) *Engine {
	return &Engine{client: client, fs: fs}
}

// Source is the lazy scan over the events of one dataset root.
type Source struct {
	Root   string
	Glob   string
	Events *querier.Frame
	fs     afero.Fs
}

// Open resolves the data layout of root. Nothing is read yet.
func (e *Engine) Open(ctx context.Context, root string) (*Source, error) {
	glob, err := dataset.ResolveDataGlob(ctx, e.fs, root)
	if err != nil {
		return nil, err
	}
	return &Source{
		Root:   root,
		Glob:   glob,
		Events: querier.Scan(e.client, glob),
		fs:     e.fs,
	}, nil
}

// Compute opens root and materializes every view.
func (e *Engine) Compute(ctx context.Context, root string) (*Bundle, error) {
	src, err := e.Open(ctx, root)
	if err != nil {
		return nil, err
	}
	return src.Compute(ctx)
}

// Frame returns the query behind an eager view. code_count_years is returned
// before month gap-filling.
func (s *Source) Frame(v View) (*querier.Frame, error) {
	switch v {
	case GeneralStatistics:
		return s.Events.Agg(nil,
			"count(DISTINCT subject_id) AS subjects",
			"count(DISTINCT code) AS codes",
			"count(*) AS events"), nil
	case CodeCountYears:
		return s.Events.
			Where("time IS NOT NULL").
			Agg([]string{`strftime(time, '%Y-%m') AS "Date"`}, `count(*) AS "Amount of codes"`), nil
	case CodeCountSubjects:
		return s.Events.
			Where("subject_id IS NOT NULL").
			Agg([]string{`subject_id AS "Subject ID"`}, `count(code) AS "Code count"`).
			OrderBy(`"Subject ID"`), nil
	case TopCodes:
		return s.Events.
			Where("code IS NOT NULL").
			Agg([]string{"code"}, "count(*) AS count").
			OrderBy("count DESC", "code"), nil
	case CodingDict:
		return s.Events.
			Where("code IS NOT NULL").
			Agg([]string{"split_part(code, '/', 1) AS coding_dict"}, "count(*) AS count").
			OrderBy("count DESC", "coding_dict"), nil
	case NumericalCodeData:
		return s.Numerical(), nil
	}
	return nil, fmt.Errorf("%q: %w", v, core.ErrUnknownView)
}

// Compute materializes every eager view and attaches the lazy numerical one.
func (s *Source) Compute(ctx context.Context) (*Bundle, error) {
	var (
		b   Bundle
		err error
	)
	if b.Statistics, err = s.Statistics(ctx); err != nil {
		return nil, err
	}
	if b.Months, err = s.Months(ctx); err != nil {
		return nil, err
	}
	if b.Subjects, err = s.Subjects(ctx); err != nil {
		return nil, err
	}
	if b.TopCodes, err = s.TopCodes(ctx); err != nil {
		return nil, err
	}
	if b.CodingDict, err = s.CodingDict(ctx); err != nil {
		return nil, err
	}
	b.Numerical = s.Numerical()
	return &b, nil
}

// Statistics computes general_statistics.
func (s *Source) Statistics(ctx context.Context) (Statistics, error) {
	var st Statistics
	frame, _ := s.Frame(GeneralStatistics)
	t, err := frame.Collect(ctx)
	if err != nil {
		return st, fmt.Errorf("general statistics: %w", err)
	}
	if t.Len() != 1 {
		return st, fmt.Errorf("general statistics: got %d rows", t.Len())
	}
	row := t.Rows[0]
	st.UniqueSubjects, _ = querier.AsInt64(row[0])
	st.UniqueCodes, _ = querier.AsInt64(row[1])
	st.TotalEvents, _ = querier.AsInt64(row[2])

	if st.Columns, err = s.Events.Schema(ctx); err != nil {
		return st, fmt.Errorf("general statistics: %w", err)
	}
	size, err := dataset.FolderSize(s.fs, s.Root)
	if err != nil {
		return st, fmt.Errorf("general statistics: %w", err)
	}
	st.SizeMB = dataset.SizeMB(size)
	core.Infof(ctx, "%s: %d subjects, %d codes, %d events, %.2f MB",
		s.Root, st.UniqueSubjects, st.UniqueCodes, st.TotalEvents, st.SizeMB)
	return st, nil
}

// Months computes code_count_years, gap-filled month by month.
func (s *Source) Months(ctx context.Context) ([]MonthCount, error) {
	frame, _ := s.Frame(CodeCountYears)
	t, err := frame.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("code count years: %w", err)
	}
	counts := make([]MonthCount, 0, t.Len())
	for _, row := range t.Rows {
		n, _ := querier.AsInt64(row[1])
		counts = append(counts, MonthCount{Date: querier.AsString(row[0]), Amount: n})
	}
	return FillMonths(counts)
}

// Subjects computes code_count_subjects.
func (s *Source) Subjects(ctx context.Context) ([]SubjectCount, error) {
	frame, _ := s.Frame(CodeCountSubjects)
	t, err := frame.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("code count subjects: %w", err)
	}
	res := make([]SubjectCount, 0, t.Len())
	for _, row := range t.Rows {
		id, _ := querier.AsInt64(row[0])
		n, _ := querier.AsInt64(row[1])
		res = append(res, SubjectCount{SubjectID: id, CodeCount: n})
	}
	return res, nil
}

// TopCodes computes top_codes.
func (s *Source) TopCodes(ctx context.Context) ([]CodeCount, error) {
	frame, _ := s.Frame(TopCodes)
	t, err := frame.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("top codes: %w", err)
	}
	res := make([]CodeCount, 0, t.Len())
	for _, row := range t.Rows {
		n, _ := querier.AsInt64(row[1])
		res = append(res, CodeCount{Code: querier.AsString(row[0]), Count: n})
	}
	return res, nil
}

// CodingDict computes coding_dict.
func (s *Source) CodingDict(ctx context.Context) ([]PrefixCount, error) {
	frame, _ := s.Frame(CodingDict)
	t, err := frame.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("coding dict: %w", err)
	}
	res := make([]PrefixCount, 0, t.Len())
	for _, row := range t.Rows {
		n, _ := querier.AsInt64(row[1])
		res = append(res, PrefixCount{Prefix: querier.AsString(row[0]), Count: n})
	}
	return res, nil
}

// Numerical returns numerical_code_data without running it.
func (s *Source) Numerical() *querier.Frame {
	return s.Events.
		Where("numeric_value IS NOT NULL AND NOT isnan(numeric_value) AND code IS NOT NULL").
		Select("code", "numeric_value")
}
