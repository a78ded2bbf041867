package core

import (
	"context"
)

// QueryClient defines the interface for running SQL against the columnar engine
type QueryClient interface {
	// Query executes a query and returns the results
	Query(ctx context.Context, query string) ([]map[string]interface{}, error)

	// Exec executes a statement that returns no rows (COPY, SET, ...)
	Exec(ctx context.Context, query string) error

	// Initialize sets up the query client
	Initialize() error

	// Close releases resources
	Close() error
}
