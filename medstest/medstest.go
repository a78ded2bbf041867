// Package medstest writes small MEDS datasets for tests.
package medstest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/meds-inspect/meds-inspect/querier"
	"github.com/stretchr/testify/require"
)

// Event is one row of the data table. A zero Time or empty Code is written as NULL.
type Event struct {
	SubjectID int64
	Time      time.Time
	Code      string
	Numeric   *float64
	Text      *string
}

// Code is one row of metadata/codes.parquet. Nil ParentCodes are written as NULL.
type Code struct {
	Code        string
	Description string
	ParentCodes []string
}

// Dataset describes the files to create under a dataset root.
type Dataset struct {
	Events     []Event
	Codes      []Code
	Descriptor map[string]any

	// Shards maps a shard name ("train", "held_out") to its events and
	// produces the partitioned layout; when empty Events go to data/0.parquet.
	Shards map[string][]Event
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Text returns a pointer to s.
func Text(s string) *string {
	return &s
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Write creates the dataset under root.
func Write(t testing.TB, root string, ds Dataset) {
	t.Helper()
	q := querier.NewQueryClient()
	require.NoError(t, q.Initialize())
	defer q.Close()
	ctx := context.Background()

	if len(ds.Shards) == 0 {
		require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
		require.NoError(t, writeEvents(ctx, q, filepath.Join(root, "data", "0.parquet"), ds.Events))
	}
	for shard, events := range ds.Shards {
		dir := filepath.Join(root, "data", shard)
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, writeEvents(ctx, q, filepath.Join(dir, "0.parquet"), events))
	}

	meta := filepath.Join(root, "metadata")
	require.NoError(t, os.MkdirAll(meta, 0o755))
	require.NoError(t, writeCodes(ctx, q, filepath.Join(meta, "codes.parquet"), ds.Codes))

	descriptor := ds.Descriptor
	if descriptor == nil {
		descriptor = map[string]any{"dataset_name": "test", "meds_version": "0.3.3"}
	}
	data, err := json.Marshal(descriptor)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(meta, "dataset.json"), data, 0o644))
}

func writeEvents(ctx context.Context, q *querier.QueryClient, path string, events []Event) error {
	const cols = "subject_id, time, code, numeric_value, text_value"
	query := "SELECT NULL::BIGINT AS subject_id, NULL::TIMESTAMP AS time, NULL::VARCHAR AS code, " +
		"NULL::DOUBLE AS numeric_value, NULL::VARCHAR AS text_value WHERE false"
	if len(events) > 0 {
		rows := make([]string, len(events))
		for i, e := range events {
			rows[i] = fmt.Sprintf("(%d::BIGINT, %s, %s, %s, %s)",
				e.SubjectID, timeLiteral(e.Time), stringLiteral(e.Code), floatLiteral(e.Numeric), textLiteral(e.Text))
		}
		query = fmt.Sprintf("SELECT * FROM (VALUES %s) AS t(%s)", strings.Join(rows, ", "), cols)
	}
	return q.Exec(ctx, fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET)", query, querier.Quote(path)))
}

func writeCodes(ctx context.Context, q *querier.QueryClient, path string, codes []Code) error {
	query := "SELECT NULL::VARCHAR AS code, NULL::VARCHAR AS description, NULL::VARCHAR[] AS parent_codes WHERE false"
	if len(codes) > 0 {
		rows := make([]string, len(codes))
		for i, c := range codes {
			rows[i] = fmt.Sprintf("(%s, %s, %s)", stringLiteral(c.Code), stringLiteral(c.Description), listLiteral(c.ParentCodes))
		}
		query = fmt.Sprintf("SELECT * FROM (VALUES %s) AS t(code, description, parent_codes)", strings.Join(rows, ", "))
	}
	return q.Exec(ctx, fmt.Sprintf("COPY (%s) TO %s (FORMAT PARQUET)", query, querier.Quote(path)))
}

func timeLiteral(t time.Time) string {
	if t.IsZero() {
		return "NULL::TIMESTAMP"
	}
	return fmt.Sprintf("TIMESTAMP '%s'", t.UTC().Format("2006-01-02 15:04:05"))
}

func stringLiteral(s string) string {
	if s == "" {
		return "NULL::VARCHAR"
	}
	return querier.Quote(s) + "::VARCHAR"
}

func textLiteral(s *string) string {
	if s == nil {
		return "NULL::VARCHAR"
	}
	return querier.Quote(*s) + "::VARCHAR"
}

func floatLiteral(f *float64) string {
	switch {
	case f == nil:
		return "NULL::DOUBLE"
	case math.IsNaN(*f):
		return "'NaN'::DOUBLE"
	}
	return strconv.FormatFloat(*f, 'g', -1, 64) + "::DOUBLE"
}

func listLiteral(l []string) string {
	if l == nil {
		return "NULL::VARCHAR[]"
	}
	quoted := make([]string, len(l))
	for i, s := range l {
		quoted[i] = querier.Quote(s)
	}
	return "[" + strings.Join(quoted, ", ") + "]::VARCHAR[]"
}
