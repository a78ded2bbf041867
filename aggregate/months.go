package aggregate

import (
	"fmt"
	"time"
)

const monthLayout = "2006-01"

// FillMonths returns one row per calendar month between the earliest and the
// latest month of counts, inclusive. Months absent from counts get 0.
func FillMonths(counts []MonthCount) ([]MonthCount, error) {
	if len(counts) == 0 {
		return []MonthCount{}, nil
	}

	byMonth := make(map[string]int64, len(counts))
	var first, last time.Time
	for i, c := range counts {
		m, err := time.Parse(monthLayout, c.Date)
		if err != nil {
			return nil, fmt.Errorf("bad month %q: %w", c.Date, err)
		}
		byMonth[m.Format(monthLayout)] += c.Amount
		if i == 0 || m.Before(first) {
			first = m
		}
		if i == 0 || m.After(last) {
			last = m
		}
	}

	res := make([]MonthCount, 0, len(byMonth))
	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		key := m.Format(monthLayout)
		res = append(res, MonthCount{Date: key, Amount: byMonth[key]})
	}
	return res, nil
}
