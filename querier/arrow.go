package querier

import (
	"fmt"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

var stringList = arrow.ListOf(arrow.BinaryTypes.String)

// ToArrow converts a table into a single Arrow record. The caller owns the
// returned record and must release it.
func ToArrow(t *Table, mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}

	fields := make([]arrow.Field, len(t.Columns))
	for i, name := range t.Columns {
		fields[i] = arrow.Field{Name: name, Type: inferTypeFromColumn(t, i), Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	arrays := make([]arrow.Array, len(fields))
	defer func() {
		for _, a := range arrays {
			if a != nil {
				a.Release()
			}
		}
	}()

	for i, field := range fields {
		builder := array.NewBuilder(mem, field.Type)
		for _, row := range t.Rows {
			if err := appendValue(builder, row[i]); err != nil {
				builder.Release()
				return nil, fmt.Errorf("column %s: %w", field.Name, err)
			}
		}
		arrays[i] = builder.NewArray()
		builder.Release()
	}

	return array.NewRecord(schema, arrays, int64(len(t.Rows))), nil
}

func appendValue(builder array.Builder, val interface{}) error {
	if val == nil {
		builder.AppendNull()
		return nil
	}
	switch b := builder.(type) {
	case *array.Int64Builder:
		n, ok := AsInt64(val)
		if !ok {
			if parsed, err := strconv.ParseInt(fmt.Sprintf("%v", val), 10, 64); err == nil {
				n, ok = parsed, true
			}
		}
		if !ok {
			b.AppendNull()
			return nil
		}
		b.Append(n)
	case *array.Float64Builder:
		f, ok := AsFloat64(val)
		if !ok {
			b.AppendNull()
			return nil
		}
		b.Append(f)
	case *array.BooleanBuilder:
		v, ok := val.(bool)
		if !ok {
			b.AppendNull()
			return nil
		}
		b.Append(v)
	case *array.TimestampBuilder:
		switch v := val.(type) {
		case time.Time:
			b.Append(arrow.Timestamp(v.UTC().UnixMicro()))
		default:
			t, err := time.Parse(time.RFC3339Nano, fmt.Sprintf("%v", v))
			if err != nil {
				b.AppendNull()
				return nil
			}
			b.Append(arrow.Timestamp(t.UTC().UnixMicro()))
		}
	case *array.ListBuilder:
		values := b.ValueBuilder().(*array.StringBuilder)
		b.Append(true)
		for _, s := range AsStrings(val) {
			values.Append(s)
		}
	case *array.StringBuilder:
		b.Append(AsString(val))
	default:
		return fmt.Errorf("unsupported builder %T", builder)
	}
	return nil
}

// inferTypeFromColumn picks the Arrow type of a column from its first non-null value
func inferTypeFromColumn(t *Table, col int) arrow.DataType {
	for _, row := range t.Rows {
		val := row[col]
		if val == nil {
			continue
		}
		switch val.(type) {
		case int, int8, int16, int32, int64, uint32, uint64:
			return arrow.PrimitiveTypes.Int64
		case float32, float64:
			return arrow.PrimitiveTypes.Float64
		case bool:
			return arrow.FixedWidthTypes.Boolean
		case time.Time:
			return &arrow.TimestampType{Unit: arrow.Microsecond, TimeZone: "UTC"}
		case []string, []interface{}:
			return stringList
		default:
			if _, ok := AsInt64(val); ok {
				return arrow.PrimitiveTypes.Int64
			}
			return arrow.BinaryTypes.String
		}
	}
	return arrow.BinaryTypes.String // Default to string if no non-null values found
}
