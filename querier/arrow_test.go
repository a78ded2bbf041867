package querier

import (
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToArrow(t *testing.T) {
	ts := time.Date(2021, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		table *Table
		check func(t *testing.T, record arrow.Record)
	}{
		{
			name: "Counts",
			table: &Table{
				Columns: []string{"code", "count"},
				Rows:    [][]interface{}{{"LAB//A", int64(3)}, {"DX//B", int64(1)}},
			},
			check: func(t *testing.T, record arrow.Record) {
				assert.Equal(t, int64(2), record.NumRows())
				assert.IsType(t, &array.String{}, record.Column(0))
				counts := record.Column(1).(*array.Int64)
				assert.Equal(t, int64(3), counts.Value(0))
				assert.Equal(t, int64(1), counts.Value(1))
			},
		},
		{
			name: "Nullable float with leading null",
			table: &Table{
				Columns: []string{"numeric_value"},
				Rows:    [][]interface{}{{nil}, {float32(2.5)}},
			},
			check: func(t *testing.T, record arrow.Record) {
				col := record.Column(0).(*array.Float64)
				assert.True(t, col.IsNull(0))
				assert.Equal(t, 2.5, col.Value(1))
			},
		},
		{
			name: "Timestamp",
			table: &Table{
				Columns: []string{"time"},
				Rows:    [][]interface{}{{ts}},
			},
			check: func(t *testing.T, record arrow.Record) {
				tsType, ok := record.Schema().Field(0).Type.(*arrow.TimestampType)
				require.True(t, ok)
				assert.Equal(t, arrow.Microsecond, tsType.Unit)
				assert.Equal(t, "UTC", tsType.TimeZone)
				col := record.Column(0).(*array.Timestamp)
				assert.Equal(t, arrow.Timestamp(ts.UnixMicro()), col.Value(0))
			},
		},
		{
			name: "String lists",
			table: &Table{
				Columns: []string{"parent_codes"},
				Rows:    [][]interface{}{{[]interface{}{"A", "B"}}, {nil}, {[]string{"C"}}},
			},
			check: func(t *testing.T, record arrow.Record) {
				col := record.Column(0).(*array.List)
				assert.True(t, col.IsNull(1))
				values := col.ListValues().(*array.String)
				assert.Equal(t, 3, values.Len())
				assert.Equal(t, "C", values.Value(2))
			},
		},
		{
			name: "All nulls default to string",
			table: &Table{
				Columns: []string{"text_value"},
				Rows:    [][]interface{}{{nil}},
			},
			check: func(t *testing.T, record arrow.Record) {
				assert.Equal(t, arrow.BinaryTypes.String, record.Schema().Field(0).Type)
				assert.True(t, record.Column(0).IsNull(0))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
			defer mem.AssertSize(t, 0)

			record, err := ToArrow(tt.table, mem)
			require.NoError(t, err)
			defer record.Release()
			tt.check(t, record)
		})
	}
}

func TestValueConversions(t *testing.T) {
	n, ok := AsInt64(int32(7))
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)
	_, ok = AsInt64("7")
	assert.False(t, ok)

	f, ok := AsFloat64(int64(2))
	assert.True(t, ok)
	assert.Equal(t, 2.0, f)

	assert.Equal(t, "", AsString(nil))
	assert.Equal(t, []string{"a", "b"}, AsStrings([]interface{}{"a", nil, "b"}))
	assert.Nil(t, AsStrings(nil))
}
