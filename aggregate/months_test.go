package aggregate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillMonths(t *testing.T) {
	tests := []struct {
		name   string
		counts []MonthCount
		want   []MonthCount
	}{
		{
			name:   "Empty",
			counts: nil,
			want:   []MonthCount{},
		},
		{
			name:   "Single month",
			counts: []MonthCount{{Date: "2021-01", Amount: 4}},
			want:   []MonthCount{{Date: "2021-01", Amount: 4}},
		},
		{
			name:   "Gap is filled with zero",
			counts: []MonthCount{{Date: "2021-03", Amount: 2}, {Date: "2021-01", Amount: 1}},
			want: []MonthCount{
				{Date: "2021-01", Amount: 1},
				{Date: "2021-02", Amount: 0},
				{Date: "2021-03", Amount: 2},
			},
		},
		{
			name:   "Year boundary",
			counts: []MonthCount{{Date: "2020-11", Amount: 1}, {Date: "2021-02", Amount: 3}},
			want: []MonthCount{
				{Date: "2020-11", Amount: 1},
				{Date: "2020-12", Amount: 0},
				{Date: "2021-01", Amount: 0},
				{Date: "2021-02", Amount: 3},
			},
		},
		{
			name:   "Duplicates are summed",
			counts: []MonthCount{{Date: "2021-05", Amount: 1}, {Date: "2021-05", Amount: 2}},
			want:   []MonthCount{{Date: "2021-05", Amount: 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FillMonths(tt.counts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFillMonthsBadDate(t *testing.T) {
	_, err := FillMonths([]MonthCount{{Date: "2021/01", Amount: 1}})
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	d, err := Summarize("LAB//X", []float64{1, 2, 3, 4, 100}, 4)
	require.NoError(t, err)
	assert.Equal(t, 5, d.Count)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 100.0, d.Max)
	assert.Equal(t, 3.0, d.Median)
	assert.Equal(t, 2.0, d.Q1)
	assert.Equal(t, 4.0, d.Q3)
	assert.Equal(t, 2.0, d.IQR)
	assert.Equal(t, -1.0, d.Lower)
	assert.Equal(t, 7.0, d.Upper)

	require.Len(t, d.Bins, 4)
	total := 0
	for _, b := range d.Bins {
		total += b.Count
	}
	// 100 falls outside the plot bounds
	assert.Equal(t, 4, total)
	assert.Equal(t, 7.0, d.Bins[3].End)

	empty, err := Summarize("LAB//Y", nil, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.Nil(t, empty.Bins)
}

func TestSummarizeQuartiles(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		q1, q3 float64
	}{
		{name: "Even", values: []float64{4, 3, 2, 1}, q1: 2, q3: 3},
		{name: "Six", values: []float64{1, 2, 3, 4, 5, 6}, q1: 2, q3: 5},
		{name: "Single", values: []float64{7}, q1: 7, q3: 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Summarize("LAB//X", tt.values, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.q1, d.Q1)
			assert.Equal(t, tt.q3, d.Q3)
			assert.Equal(t, tt.q3-tt.q1, d.IQR)
		})
	}
}

func TestSummarizeInfinite(t *testing.T) {
	d, err := Summarize("LAB//X", []float64{1, 2, math.Inf(1), math.Inf(1)}, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, d.Count)
	assert.Equal(t, 2, d.Infinite)
	assert.Equal(t, 2.0, d.Max)
	assert.False(t, math.IsInf(d.Upper, 0))
	require.Len(t, d.Bins, 4)

	only, err := Summarize("LAB//Y", []float64{math.Inf(-1)}, 4)
	require.NoError(t, err)
	assert.Equal(t, 1, only.Infinite)
	assert.Nil(t, only.Bins)
}

func TestHistogramBounds(t *testing.T) {
	values := []float64{1, 2, math.Inf(1)}
	assert.Nil(t, histogram(values, math.Inf(-1), math.Inf(1), 4))
	assert.Nil(t, histogram(values, 0, math.NaN(), 4))

	bins := histogram([]float64{0, 1, 2, 3, 4}, 0, 4, 2)
	require.Len(t, bins, 2)
	assert.Equal(t, 2, bins[0].Count)
	assert.Equal(t, 3, bins[1].Count)
}
