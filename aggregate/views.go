// Package aggregate computes the aggregate views shown by the inspector.
package aggregate

import (
	"fmt"

	"github.com/meds-inspect/meds-inspect/core"
	"github.com/meds-inspect/meds-inspect/querier"
)

// View names one aggregate view. The name is also the cache file stem.
type View string

const (
	GeneralStatistics View = "general_statistics"
	CodeCountYears    View = "code_count_years"
	CodeCountSubjects View = "code_count_subjects"
	TopCodes          View = "top_codes"
	CodingDict        View = "coding_dict"
	NumericalCodeData View = "numerical_code_data"
)

// Views lists every view in computation order.
var Views = []View{
	GeneralStatistics,
	CodeCountYears,
	CodeCountSubjects,
	TopCodes,
	CodingDict,
	NumericalCodeData,
}

// ParseView validates a view name.
func ParseView(name string) (View, error) {
	for _, v := range Views {
		if string(v) == name {
			return v, nil
		}
	}
	return "", fmt.Errorf("%q: %w", name, core.ErrUnknownView)
}

// FileName is the name of the cache file holding the view.
func (v View) FileName() string {
	return string(v) + ".parquet"
}

// Lazy reports whether the view is kept as an unexecuted frame.
func (v View) Lazy() bool {
	return v == NumericalCodeData
}

// Statistics is the single row of general_statistics.
type Statistics struct {
	UniqueSubjects int64    `parquet:"Unique subjects" json:"unique_subjects"`
	UniqueCodes    int64    `parquet:"Unique events" json:"unique_codes"`
	TotalEvents    int64    `parquet:"Total events" json:"total_events"`
	Columns        []string `parquet:"Columns,list" json:"columns"`
	SizeMB         float64  `parquet:"Size (MB)" json:"size_mb"`
}

// MonthCount is one row of code_count_years.
type MonthCount struct {
	Date   string `parquet:"Date" json:"date"`
	Amount int64  `parquet:"Amount of codes" json:"amount"`
}

// SubjectCount is one row of code_count_subjects.
type SubjectCount struct {
	SubjectID int64 `parquet:"Subject ID" json:"subject_id"`
	CodeCount int64 `parquet:"Code count" json:"code_count"`
}

// CodeCount is one row of top_codes.
type CodeCount struct {
	Code  string `parquet:"code" json:"code"`
	Count int64  `parquet:"count" json:"count"`
}

// PrefixCount is one row of coding_dict.
type PrefixCount struct {
	Prefix string `parquet:"coding_dict" json:"coding_dict"`
	Count  int64  `parquet:"count" json:"count"`
}

// Bundle holds the six views of one dataset. Every view but Numerical is
// materialized.
type Bundle struct {
	Statistics Statistics
	Months     []MonthCount
	Subjects   []SubjectCount
	TopCodes   []CodeCount
	CodingDict []PrefixCount
	Numerical  *querier.Frame
}

// TopN returns the n most frequent codes.
func (b *Bundle) TopN(n int) []CodeCount {
	if n <= 0 || n >= len(b.TopCodes) {
		return b.TopCodes
	}
	return b.TopCodes[:n]
}

// Table returns a materialized view as a table. The numerical view is not
// forced here; use Numerical.Collect.
func (b *Bundle) Table(v View) (*querier.Table, error) {
	switch v {
	case GeneralStatistics:
		s := b.Statistics
		cols := make([]interface{}, len(s.Columns))
		for i, c := range s.Columns {
			cols[i] = c
		}
		return &querier.Table{
			Columns: []string{"Unique subjects", "Unique events", "Total events", "Columns", "Size (MB)"},
			Rows:    [][]interface{}{{s.UniqueSubjects, s.UniqueCodes, s.TotalEvents, cols, s.SizeMB}},
		}, nil
	case CodeCountYears:
		t := &querier.Table{Columns: []string{"Date", "Amount of codes"}}
		for _, m := range b.Months {
			t.Rows = append(t.Rows, []interface{}{m.Date, m.Amount})
		}
		return t, nil
	case CodeCountSubjects:
		t := &querier.Table{Columns: []string{"Subject ID", "Code count"}}
		for _, s := range b.Subjects {
			t.Rows = append(t.Rows, []interface{}{s.SubjectID, s.CodeCount})
		}
		return t, nil
	case TopCodes:
		t := &querier.Table{Columns: []string{"code", "count"}}
		for _, c := range b.TopCodes {
			t.Rows = append(t.Rows, []interface{}{c.Code, c.Count})
		}
		return t, nil
	case CodingDict:
		t := &querier.Table{Columns: []string{"coding_dict", "count"}}
		for _, c := range b.CodingDict {
			t.Rows = append(t.Rows, []interface{}{c.Prefix, c.Count})
		}
		return t, nil
	case NumericalCodeData:
		return nil, fmt.Errorf("%s is lazy, collect it instead", v)
	}
	return nil, fmt.Errorf("%q: %w", v, core.ErrUnknownView)
}
