package querier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Frame is an unexecuted query over a columnar source. Builder methods return
// a new Frame and never touch the engine; Collect, Sink, Schema and Count run it.
//
// Each builder applies to the rows and columns visible at that point: an
// operation that cannot be appended to the current SELECT (a filter after a
// projection or aggregation, a projection after a limit, ...) wraps the frame
// as a subquery first.
type Frame struct {
	client   *QueryClient
	source   string
	columns  []string
	filters  []string
	grouped  bool
	distinct bool
	orderBy  []string
	limit    int
}

// Scan returns a frame over every parquet file matching pattern.
func Scan(client *QueryClient, pattern string) *Frame {
	return &Frame{
		client: client,
		source: fmt.Sprintf("read_parquet(%s, union_by_name=true)", Quote(pattern)),
	}
}

// FromSQL returns a frame whose rows are produced by query.
func FromSQL(client *QueryClient, query string) *Frame {
	return &Frame{client: client, source: "(" + query + ") AS src"}
}

func (f *Frame) clone() *Frame {
	c := *f
	c.columns = append([]string(nil), f.columns...)
	c.filters = append([]string(nil), f.filters...)
	c.orderBy = append([]string(nil), f.orderBy...)
	return &c
}

func (f *Frame) wrap() *Frame {
	return &Frame{client: f.client, source: "(" + f.SQL() + ") AS src"}
}

func (f *Frame) projected() bool {
	return len(f.columns) > 0 || f.grouped || f.distinct
}

// Where keeps the rows for which cond holds.
func (f *Frame) Where(cond string) *Frame {
	c := f.clone()
	if f.projected() || f.limit > 0 {
		c = f.wrap()
	}
	c.filters = append(c.filters, cond)
	return c
}

// Select projects the frame onto exprs.
func (f *Frame) Select(exprs ...string) *Frame {
	c := f.clone()
	if f.projected() || f.limit > 0 {
		c = f.wrap()
	}
	c.columns = append([]string(nil), exprs...)
	return c
}

// Agg groups by keys and computes aggs for every group.
func (f *Frame) Agg(keys []string, aggs ...string) *Frame {
	c := f.Select(append(append([]string(nil), keys...), aggs...)...)
	c.grouped = len(keys) > 0
	return c
}

// Distinct removes duplicate rows.
func (f *Frame) Distinct() *Frame {
	c := f.clone()
	if f.limit > 0 {
		c = f.wrap()
	}
	c.distinct = true
	return c
}

// OrderBy sorts the frame by terms, e.g. "count DESC".
func (f *Frame) OrderBy(terms ...string) *Frame {
	c := f.clone()
	if f.limit > 0 {
		c = f.wrap()
	}
	c.orderBy = append([]string(nil), terms...)
	return c
}

// Limit keeps at most n rows.
func (f *Frame) Limit(n int) *Frame {
	c := f.clone()
	if c.limit == 0 || n < c.limit {
		c.limit = n
	}
	return c
}

// SQL renders the query the frame describes.
func (f *Frame) SQL() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if f.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(f.columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(f.columns, ", "))
	}
	b.WriteString(" FROM ")
	b.WriteString(f.source)
	if len(f.filters) > 0 {
		b.WriteString(" WHERE (")
		b.WriteString(strings.Join(f.filters, ") AND ("))
		b.WriteString(")")
	}
	if f.grouped {
		b.WriteString(" GROUP BY ALL")
	}
	if len(f.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(f.orderBy, ", "))
	}
	if f.limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(f.limit))
	}
	return b.String()
}

func (f *Frame) String() string {
	return f.SQL()
}

// Collect runs the query and materializes every row.
func (f *Frame) Collect(ctx context.Context) (*Table, error) {
	return f.client.QueryTable(ctx, f.SQL())
}

// Sink streams the rows into a parquet file at path without materializing them.
func (f *Frame) Sink(ctx context.Context, path string) error {
	return f.client.Exec(ctx, fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET)", f.SQL(), Quote(path)))
}

// Schema returns the column names of the frame.
func (f *Frame) Schema(ctx context.Context) ([]string, error) {
	t, err := f.client.QueryTable(ctx, "DESCRIBE "+f.SQL())
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	names, err := t.Column("column_name")
	if err != nil {
		return nil, err
	}
	res := make([]string, len(names))
	for i, n := range names {
		res[i], _ = n.(string)
	}
	return res, nil
}

// Count returns the number of rows of the frame.
func (f *Frame) Count(ctx context.Context) (int64, error) {
	t, err := f.client.QueryTable(ctx, fmt.Sprintf("SELECT count(*) AS n FROM (%s) AS src", f.SQL()))
	if err != nil {
		return 0, err
	}
	if t.Len() != 1 {
		return 0, fmt.Errorf("count returned %d rows", t.Len())
	}
	n, ok := AsInt64(t.Rows[0][0])
	if !ok {
		return 0, fmt.Errorf("unexpected count value %T", t.Rows[0][0])
	}
	return n, nil
}
