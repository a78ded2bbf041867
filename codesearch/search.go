// Package codesearch finds codes in the code metadata table of a dataset.
package codesearch

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/meds-inspect/meds-inspect/core"
	"github.com/meds-inspect/meds-inspect/querier"
	"github.com/spf13/afero"
)

// DefaultLimit is the number of matches returned when none is configured.
const DefaultLimit = 1000

// Field is a searchable column of codes.parquet.
type Field string

const (
	FieldCode        Field = "code"
	FieldDescription Field = "description"
	FieldParentCodes Field = "parent_codes"
)

// AllFields are searched when the caller selects none.
var AllFields = []Field{FieldCode, FieldDescription, FieldParentCodes}

// ParseField validates a field name.
func ParseField(name string) (Field, error) {
	for _, f := range AllFields {
		if string(f) == name {
			return f, nil
		}
	}
	return "", fmt.Errorf("%q: %w", name, core.ErrInvalidSearchField)
}

// Status tells how a result relates to the full set of matches.
type Status string

const (
	StatusNoResults Status = "no_results"
	StatusExact     Status = "exact"
	StatusTruncated Status = "truncated"
)

// Match is one row of codes.parquet.
type Match struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	ParentCodes []string `json:"parent_codes"`
}

// Result holds at most Limit matches. Status is StatusTruncated when more rows
// matched than were returned.
type Result struct {
	Status  Status  `json:"status"`
	Limit   int     `json:"limit"`
	Matches []Match `json:"matches"`
}

// Message is the line shown above the result table.
func (r *Result) Message() string {
	switch r.Status {
	case StatusNoResults:
		return "No results found."
	case StatusTruncated:
		return fmt.Sprintf("Showing first %d results found. Please refine search", len(r.Matches))
	}
	return fmt.Sprintf("Found %d results", len(r.Matches))
}

// Searcher runs searches on a query client.
type Searcher struct {
	client *querier.QueryClient
	fs     afero.Fs
	limit  int
}

// NewSearcher returns a searcher truncating results to limit rows.
func NewSearcher(client *querier.QueryClient, fs afero.Fs, limit int) *Searcher {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Searcher{client: client, fs: fs, limit: limit}
}

// Pattern turns a user term into a case-insensitive RE2 pattern. A term that
// does not compile as a regular expression is matched literally.
func Pattern(term string) string {
	pattern := "(?i)" + term
	if _, err := regexp.Compile(pattern); err != nil {
		pattern = "(?i)" + regexp.QuoteMeta(term)
	}
	return pattern
}

// Filter renders the condition matching pattern on any of fields.
func Filter(pattern string, fields []Field) (string, error) {
	if len(fields) == 0 {
		fields = AllFields
	}
	pat := querier.Quote(pattern)
	conds := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case FieldCode, FieldDescription:
			conds = append(conds, fmt.Sprintf("regexp_matches(coalesce(%s, ''), %s)", f, pat))
		case FieldParentCodes:
			conds = append(conds, fmt.Sprintf(
				"len(list_filter(coalesce(parent_codes, []::VARCHAR[]), x -> regexp_matches(x, %s))) > 0", pat))
		default:
			return "", fmt.Errorf("%q: %w", f, core.ErrInvalidSearchField)
		}
	}
	return strings.Join(conds, " OR "), nil
}

// Search matches term case-insensitively against fields of the code metadata
// file at metadataPath. Fields are combined with OR.
func (s *Searcher) Search(ctx context.Context, metadataPath, term string, fields []Field) (*Result, error) {
	if strings.TrimSpace(term) == "" {
		return nil, core.ErrEmptySearchTerm
	}
	if ok, _ := afero.Exists(s.fs, metadataPath); !ok {
		return nil, fmt.Errorf("%s: %w", metadataPath, core.ErrInvalidPath)
	}
	cond, err := Filter(Pattern(term), fields)
	if err != nil {
		return nil, err
	}

	t, err := querier.Scan(s.client, metadataPath).
		Where(cond).
		Select("code", "description", "parent_codes").
		Limit(s.limit + 1).
		Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", metadataPath, err)
	}

	res := &Result{Limit: s.limit, Matches: make([]Match, 0, t.Len())}
	for i, row := range t.Rows {
		if i == s.limit {
			break
		}
		res.Matches = append(res.Matches, Match{
			Code:        querier.AsString(row[0]),
			Description: querier.AsString(row[1]),
			ParentCodes: querier.AsStrings(row[2]),
		})
	}
	switch {
	case t.Len() == 0:
		res.Status = StatusNoResults
	case t.Len() > s.limit:
		res.Status = StatusTruncated
	default:
		res.Status = StatusExact
	}
	core.Infof(ctx, "Search %q in %s: %d matches (%s)", term, metadataPath, len(res.Matches), res.Status)
	return res, nil
}
