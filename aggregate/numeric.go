package aggregate

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/meds-inspect/meds-inspect/querier"
	"github.com/montanaflynn/stats"
)

// Distribution summarizes the numeric values recorded for one code. Lower and
// Upper are the 1.5*IQR plot bounds. Infinite values are counted in Count and
// Infinite but left out of the statistics.
type Distribution struct {
	Code     string  `json:"code"`
	Count    int     `json:"count"`
	Infinite int     `json:"infinite,omitempty"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Q1       float64 `json:"q1"`
	Q3       float64 `json:"q3"`
	IQR      float64 `json:"iqr"`
	Lower    float64 `json:"lower_bound"`
	Upper    float64 `json:"upper_bound"`
	Bins     []Bin   `json:"bins,omitempty"`
}

// Bin is one histogram bucket, [Start, End).
type Bin struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Count int     `json:"count"`
}

// TimelineEvent is one (time, code) point of a subject.
type TimelineEvent struct {
	Time time.Time `json:"time"`
	Code string    `json:"code"`
}

// NumericalCodes lists the distinct codes of the numerical view.
func (b *Bundle) NumericalCodes(ctx context.Context) ([]string, error) {
	t, err := b.Numerical.Select("code").Distinct().OrderBy("code").Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("numerical codes: %w", err)
	}
	codes := make([]string, 0, t.Len())
	for _, row := range t.Rows {
		codes = append(codes, querier.AsString(row[0]))
	}
	return codes, nil
}

// CodeDistribution forces the numerical view for code and summarizes it. bins
// > 0 adds a histogram over the plot bounds. A code without values gives a
// zero Count.
func (b *Bundle) CodeDistribution(ctx context.Context, code string, bins int) (Distribution, error) {
	d := Distribution{Code: code}
	t, err := b.Numerical.
		Where("code = " + querier.Quote(code)).
		Select("numeric_value").
		Collect(ctx)
	if err != nil {
		return d, fmt.Errorf("distribution of %s: %w", code, err)
	}
	values := make(stats.Float64Data, 0, t.Len())
	for _, row := range t.Rows {
		if v, ok := querier.AsFloat64(row[0]); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return d, nil
	}
	return Summarize(code, values, bins)
}

// Summarize computes the distribution of values. Quartiles take the sorted
// value at index round(q*(n-1)).
func Summarize(code string, values []float64, bins int) (Distribution, error) {
	d := Distribution{Code: code, Count: len(values)}
	data := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			d.Infinite++
			continue
		}
		data = append(data, v)
	}
	if len(data) == 0 {
		return d, nil
	}
	var err error
	if d.Min, err = stats.Min(data); err != nil {
		return d, err
	}
	if d.Max, err = stats.Max(data); err != nil {
		return d, err
	}
	if d.Mean, err = stats.Mean(data); err != nil {
		return d, err
	}
	if d.Median, err = stats.Median(data); err != nil {
		return d, err
	}
	sorted := slices.Clone(data)
	slices.Sort(sorted)
	d.Q1 = nearest(sorted, 0.25)
	d.Q3 = nearest(sorted, 0.75)
	d.IQR = d.Q3 - d.Q1
	d.Lower = d.Q1 - 1.5*d.IQR
	d.Upper = d.Q3 + 1.5*d.IQR
	if bins > 0 {
		d.Bins = histogram(data, d.Lower, d.Upper, bins)
	}
	return d, nil
}

// nearest is the q quantile of sorted without interpolation.
func nearest(sorted []float64, q float64) float64 {
	return sorted[int(math.Round(q*float64(len(sorted)-1)))]
}

// histogram buckets the values inside [lo, hi]; the last bucket is closed.
// Bounds that are not finite give no buckets.
func histogram(values []float64, lo, hi float64, n int) []Bin {
	if !finite(lo) || !finite(hi) {
		return nil
	}
	if hi <= lo {
		return []Bin{{Start: lo, End: hi, Count: countIn(values, lo, hi)}}
	}
	width := (hi - lo) / float64(n)
	if !finite(width) || width == 0 {
		return nil
	}
	res := make([]Bin, n)
	for i := range res {
		res[i].Start = lo + float64(i)*width
		res[i].End = lo + float64(i+1)*width
	}
	res[n-1].End = hi
	for _, v := range values {
		if !(v >= lo && v <= hi) {
			continue
		}
		i := int(math.Floor((v - lo) / width))
		if i < 0 {
			i = 0
		}
		if i >= n {
			i = n - 1
		}
		res[i].Count++
	}
	return res
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func countIn(values []float64, lo, hi float64) int {
	n := 0
	for _, v := range values {
		if v >= lo && v <= hi {
			n++
		}
	}
	return n
}

// Timeline returns the timed events of one subject ordered by time.
func (s *Source) Timeline(ctx context.Context, subjectID int64) ([]TimelineEvent, error) {
	t, err := s.Events.
		Where(fmt.Sprintf("subject_id = %d AND time IS NOT NULL", subjectID)).
		Select("time", "code").
		OrderBy("time", "code").
		Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("timeline of subject %d: %w", subjectID, err)
	}
	res := make([]TimelineEvent, 0, t.Len())
	for _, row := range t.Rows {
		ts, _ := row[0].(time.Time)
		res = append(res, TimelineEvent{Time: ts.UTC(), Code: querier.AsString(row[1])})
	}
	return res, nil
}
