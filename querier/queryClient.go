// queryClient.go
package querier

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"
	"github.com/meds-inspect/meds-inspect/core"
)

// Ensure QueryClient implements core.QueryClient interface
var _ core.QueryClient = (*QueryClient)(nil)

// QueryClient runs SQL against an embedded DuckDB instance
type QueryClient struct {
	DB      *sql.DB
	queries atomic.Int64
}

// NewQueryClient creates a new QueryClient
func NewQueryClient() *QueryClient {
	return &QueryClient{}
}

// Initialize sets up the DuckDB connection
func (q *QueryClient) Initialize() error {
	db, err := sql.Open("duckdb", "?access_mode=READ_WRITE")
	if err != nil {
		return fmt.Errorf("failed to initialize DuckDB: %v", err)
	}
	q.DB = db
	return nil
}

// QueryCount returns how many statements the client has executed
func (q *QueryClient) QueryCount() int64 {
	return q.queries.Load()
}

// Table is a fully materialized query result with ordered columns
type Table struct {
	Columns []string
	Rows    [][]interface{}
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the values of the named column
func (t *Table) Column(name string) ([]interface{}, error) {
	idx := -1
	for i, c := range t.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("column %q not found", name)
	}
	res := make([]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		res[i] = row[idx]
	}
	return res, nil
}

// Maps converts the table into one map per row
func (t *Table) Maps() []map[string]interface{} {
	res := make([]map[string]interface{}, len(t.Rows))
	for i, row := range t.Rows {
		m := make(map[string]interface{}, len(t.Columns))
		for j, col := range t.Columns {
			m[col] = row[j]
		}
		res[i] = m
	}
	return res
}

// QueryTable executes a query and returns the rows in column order
func (q *QueryClient) QueryTable(ctx context.Context, query string) (*Table, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	q.queries.Add(1)
	start := time.Now()
	core.Debugf(ctx, "Running query: %s", query)

	rows, err := q.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query execution failed: %v", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %v", err)
	}

	result := &Table{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("error scanning row: %v", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %v", err)
	}

	core.Debugf(ctx, "Got %d rows in: %v", len(result.Rows), time.Since(start))
	return result, nil
}

// Query executes a query and returns one map per row
func (q *QueryClient) Query(ctx context.Context, query string) ([]map[string]interface{}, error) {
	t, err := q.QueryTable(ctx, query)
	if err != nil {
		return nil, err
	}
	return t.Maps(), nil
}

// Exec executes a statement that returns no rows
func (q *QueryClient) Exec(ctx context.Context, query string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	q.queries.Add(1)
	start := time.Now()
	core.Debugf(ctx, "Executing: %s", query)
	if _, err := q.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("statement execution failed: %v", err)
	}
	core.Debugf(ctx, "Executed in: %v", time.Since(start))
	return nil
}

// Close releases resources
func (q *QueryClient) Close() error {
	if q.DB != nil {
		return q.DB.Close()
	}
	return nil
}

// Quote renders s as a SQL string literal
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Ident renders name as a quoted SQL identifier
func Ident(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
