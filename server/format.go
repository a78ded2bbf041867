package server

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/meds-inspect/meds-inspect/querier"
)

type formatterFn func(t *querier.Table, w http.ResponseWriter) error

var formatters = map[string]formatterFn{
	"json":   JsonFormatter,
	"ndjson": NDJsonFormatter,
	"arrow":  ArrowFormatter,
}

// ViewResponse is the JSON body of a view request
type ViewResponse struct {
	Columns []string                 `json:"columns"`
	Results []map[string]interface{} `json:"results"`
}

func JsonFormatter(t *querier.Table, w http.ResponseWriter) error {
	// Process results to handle special types for JSON
	processedResults := ProcessResultsForJSON(t.Maps())

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(ViewResponse{
		Columns: t.Columns,
		Results: processedResults,
	})
}

func NDJsonFormatter(t *querier.Table, w http.ResponseWriter) error {
	processedResults := ProcessResultsForJSON(t.Maps())

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	for _, result := range processedResults {
		// Encode terminates every row with a newline
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return nil
}

// ArrowFormatter writes the table as an Arrow IPC stream
func ArrowFormatter(t *querier.Table, w http.ResponseWriter) error {
	record, err := querier.ToArrow(t, memory.DefaultAllocator)
	if err != nil {
		return fmt.Errorf("failed to convert to arrow: %w", err)
	}
	defer record.Release()

	w.Header().Set("Content-Type", "application/vnd.apache.arrow.stream")
	writer := ipc.NewWriter(w, ipc.WithSchema(record.Schema()))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record batch: %w", err)
	}
	return writer.Close()
}

// ProcessResultsForJSON prepares results for JSON serialization
func ProcessResultsForJSON(results []map[string]interface{}) []map[string]interface{} {
	processedResults := make([]map[string]interface{}, len(results))

	for i, row := range results {
		processedRow := make(map[string]interface{})

		for key, value := range row {
			switch v := value.(type) {
			case nil:
				processedRow[key] = nil
			case int64:
				// int64 does not survive a JavaScript number
				processedRow[key] = strconv.FormatInt(v, 10)
			case float64:
				if math.IsNaN(v) || math.IsInf(v, 0) {
					processedRow[key] = nil
				} else {
					processedRow[key] = v
				}
			case time.Time:
				processedRow[key] = v.Format(time.RFC3339Nano)
			default:
				processedRow[key] = v
			}
		}

		processedResults[i] = processedRow
	}

	return processedResults
}
