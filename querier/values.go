package querier

import (
	"fmt"
	"math/big"
)

// AsInt64 converts an integer value scanned from DuckDB.
func AsInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case *big.Int:
		if n.IsInt64() {
			return n.Int64(), true
		}
	}
	return 0, false
}

// AsFloat64 converts a numeric value scanned from DuckDB.
func AsFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	if i, ok := AsInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

// AsString converts a text value scanned from DuckDB; NULL becomes "".
func AsString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprintf("%v", v)
}

// AsStrings converts a LIST value scanned from DuckDB.
func AsStrings(v interface{}) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []interface{}:
		res := make([]string, 0, len(l))
		for _, e := range l {
			if e == nil {
				continue
			}
			res = append(res, AsString(e))
		}
		return res
	}
	return nil
}
