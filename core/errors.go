package core

import "errors"

var (
	// ErrInvalidPath is returned when a dataset root is missing or lacks the
	// data/ and metadata/ parquet files.
	ErrInvalidPath = errors.New("invalid dataset path")

	// ErrNoDataFound is returned when no data layout matches any event file.
	ErrNoDataFound = errors.New("no data found")

	ErrUnknownView        = errors.New("unknown view")
	ErrInvalidSearchField = errors.New("invalid search field")
	ErrEmptySearchTerm    = errors.New("empty search term")
)
