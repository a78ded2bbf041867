package aggregate

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/meds-inspect/meds-inspect/core"
	"github.com/meds-inspect/meds-inspect/medstest"
	"github.com/meds-inspect/meds-inspect/querier"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []medstest.Event {
	return []medstest.Event{
		{SubjectID: 1, Time: medstest.Day(2021, 1, 5), Code: "LAB//GLUCOSE", Numeric: medstest.Float(5)},
		{SubjectID: 1, Time: medstest.Day(2021, 3, 10), Code: "DX//E11"},
		{SubjectID: 2, Code: "MEDS_BIRTH"},
		{SubjectID: 2, Time: medstest.Day(2021, 1, 20), Code: "LAB//GLUCOSE", Numeric: medstest.Float(7)},
		{SubjectID: 2, Time: medstest.Day(2021, 3, 1), Code: "LAB//GLUCOSE", Numeric: medstest.Float(math.NaN())},
		{SubjectID: 3, Time: medstest.Day(2021, 3, 2)},
	}
}

func newTestEngine(t *testing.T) (*Engine, *querier.QueryClient) {
	t.Helper()
	q := querier.NewQueryClient()
	require.NoError(t, q.Initialize())
	t.Cleanup(func() { q.Close() })
	return NewEngine(q, afero.NewOsFs()), q
}

func TestCompute(t *testing.T) {
	root := t.TempDir()
	medstest.Write(t, root, medstest.Dataset{Events: sampleEvents()})
	e, _ := newTestEngine(t)
	ctx := context.Background()

	b, err := e.Compute(ctx, root)
	require.NoError(t, err)

	st := b.Statistics
	assert.Equal(t, int64(3), st.UniqueSubjects)
	assert.Equal(t, int64(3), st.UniqueCodes)
	assert.Equal(t, int64(6), st.TotalEvents)
	assert.Equal(t, []string{"subject_id", "time", "code", "numeric_value", "text_value"}, st.Columns)
	assert.GreaterOrEqual(t, st.SizeMB, 0.0)

	assert.Equal(t, []MonthCount{
		{Date: "2021-01", Amount: 2},
		{Date: "2021-02", Amount: 0},
		{Date: "2021-03", Amount: 3},
	}, b.Months)
	var timed int64
	for _, m := range b.Months {
		timed += m.Amount
	}
	assert.Equal(t, int64(5), timed)

	assert.Equal(t, []SubjectCount{
		{SubjectID: 1, CodeCount: 2},
		{SubjectID: 2, CodeCount: 3},
		{SubjectID: 3, CodeCount: 0},
	}, b.Subjects)

	assert.Equal(t, []CodeCount{
		{Code: "LAB//GLUCOSE", Count: 3},
		{Code: "DX//E11", Count: 1},
		{Code: "MEDS_BIRTH", Count: 1},
	}, b.TopCodes)
	assert.Equal(t, []CodeCount{{Code: "LAB//GLUCOSE", Count: 3}}, b.TopN(1))

	assert.Equal(t, []PrefixCount{
		{Prefix: "LAB", Count: 3},
		{Prefix: "DX", Count: 1},
		{Prefix: "MEDS_BIRTH", Count: 1},
	}, b.CodingDict)

	n, err := b.Numerical.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestComputePartitioned(t *testing.T) {
	root := t.TempDir()
	events := sampleEvents()
	medstest.Write(t, root, medstest.Dataset{Shards: map[string][]medstest.Event{
		"train":    events[:3],
		"held_out": events[3:],
	}})
	e, _ := newTestEngine(t)

	src, err := e.Open(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "data/*/*.parquet"), src.Glob)

	st, err := src.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(6), st.TotalEvents)
	assert.Equal(t, int64(3), st.UniqueSubjects)
}

func TestComputeNoData(t *testing.T) {
	root := t.TempDir()
	e, q := newTestEngine(t)

	_, err := e.Compute(context.Background(), root)
	assert.True(t, errors.Is(err, core.ErrNoDataFound))
	assert.Equal(t, int64(0), q.QueryCount())
}

func TestFrameIsLazy(t *testing.T) {
	root := t.TempDir()
	medstest.Write(t, root, medstest.Dataset{Events: sampleEvents()})
	e, q := newTestEngine(t)

	src, err := e.Open(context.Background(), root)
	require.NoError(t, err)
	for _, v := range Views {
		f, err := src.Frame(v)
		require.NoError(t, err)
		assert.Contains(t, f.SQL(), "read_parquet(")
	}
	assert.Equal(t, int64(0), q.QueryCount())

	_, err = src.Frame(View("bogus"))
	assert.True(t, errors.Is(err, core.ErrUnknownView))
}

func TestNumericalSupplements(t *testing.T) {
	root := t.TempDir()
	medstest.Write(t, root, medstest.Dataset{Events: sampleEvents()})
	e, _ := newTestEngine(t)
	ctx := context.Background()

	src, err := e.Open(ctx, root)
	require.NoError(t, err)
	b := &Bundle{Numerical: src.Numerical()}

	codes, err := b.NumericalCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"LAB//GLUCOSE"}, codes)

	d, err := b.CodeDistribution(ctx, "LAB//GLUCOSE", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Count)
	assert.Equal(t, 5.0, d.Min)
	assert.Equal(t, 7.0, d.Max)
	assert.Equal(t, 6.0, d.Mean)
	assert.Equal(t, 5.0, d.Q1)
	assert.Equal(t, 7.0, d.Q3)
	assert.Equal(t, 2.0, d.Lower)
	assert.Equal(t, 10.0, d.Upper)

	none, err := b.CodeDistribution(ctx, "DX//E11", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Count)

	timeline, err := src.Timeline(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []TimelineEvent{
		{Time: medstest.Day(2021, 1, 5), Code: "LAB//GLUCOSE"},
		{Time: medstest.Day(2021, 3, 10), Code: "DX//E11"},
	}, timeline)

	timeline, err = src.Timeline(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, timeline)
}
