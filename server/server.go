// Package server exposes the cached views of MEDS datasets over HTTP and Arrow
// Flight.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/meds-inspect/meds-inspect/aggregate"
	"github.com/meds-inspect/meds-inspect/cache"
	"github.com/meds-inspect/meds-inspect/codesearch"
	"github.com/meds-inspect/meds-inspect/core"
	"github.com/meds-inspect/meds-inspect/dataset"
	"github.com/meds-inspect/meds-inspect/querier"
)

// Server represents the API server
type Server struct {
	Store    *cache.Store
	Searcher *codesearch.Searcher
	// DataDir is used when a request carries no path
	DataDir string

	router *chi.Mux
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewServer creates a new server instance
func NewServer(store *cache.Store, searcher *codesearch.Searcher, dataDir string) *Server {
	s := &Server{
		Store:    store,
		Searcher: searcher,
		DataDir:  dataDir,
		router:   chi.NewRouter(),
	}
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors)

	s.router.Get("/health", s.HandleHealth)
	s.router.Get("/validate", s.HandleValidate)
	s.router.Get("/views/{view}", s.HandleView)
	s.router.Post("/invalidate", s.HandleInvalidate)
	s.router.Get("/metadata", s.HandleMetadata)
	s.router.Get("/search", s.HandleSearch)
	s.router.Get("/numerical-codes", s.HandleNumericalCodes)
	s.router.Get("/distribution", s.HandleDistribution)
	s.router.Get("/subjects/{id}/timeline", s.HandleTimeline)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger tags the request context with a fresh request id
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqId := uuid.New().String()
		ctx := core.WithDefaultLogger(r.Context(), reqId)
		w.Header().Set("X-Request-Id", reqId)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		core.Debugf(ctx, "%s %s in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// cors adds CORS headers to the response and answers preflight requests
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) root(r *http.Request) string {
	if p := r.URL.Query().Get("path"); p != "" {
		return p
	}
	return s.DataDir
}

func sendJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// Send an error response in JSON format
func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrInvalidPath),
		errors.Is(err, core.ErrInvalidSearchField),
		errors.Is(err, core.ErrEmptySearchTerm):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNoDataFound),
		errors.Is(err, core.ErrUnknownView):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func sendError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		core.Errorf(r.Context(), "%s %s: %v", r.Method, r.URL.Path, err)
	}
	sendErrorResponse(w, err.Error(), code)
}

// HandleHealth is the health check endpoint
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ValidateResponse reports whether a path is a dataset root and what is cached
type ValidateResponse struct {
	Path  string             `json:"path"`
	Valid bool               `json:"valid"`
	Views []cache.ViewStatus `json:"views,omitempty"`
}

// HandleValidate handles the /validate endpoint
func (s *Server) HandleValidate(w http.ResponseWriter, r *http.Request) {
	root := s.root(r)
	res := ValidateResponse{Path: root, Valid: s.Store.Validate(root)}
	if res.Valid {
		views, err := s.Store.Status(root)
		if err != nil {
			sendError(w, r, err)
			return
		}
		res.Views = views
	}
	sendJSON(w, res)
}

// HandleView handles /views/{view}. The numerical view accepts a code filter;
// every view accepts a row limit.
func (s *Server) HandleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := aggregate.ParseView(chi.URLParam(r, "view"))
	if err != nil {
		sendError(w, r, err)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	formatter, ok := formatters[format]
	if !ok {
		sendErrorResponse(w, "Unsupported format: "+format, http.StatusBadRequest)
		return
	}
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if limit, err = strconv.Atoi(l); err != nil || limit < 0 {
			sendErrorResponse(w, "Invalid limit: "+l, http.StatusBadRequest)
			return
		}
	}

	bundle, err := s.Store.LoadOrCompute(ctx, s.root(r))
	if err != nil {
		sendError(w, r, err)
		return
	}

	var table *querier.Table
	if view.Lazy() {
		frame := bundle.Numerical
		if code := r.URL.Query().Get("code"); code != "" {
			frame = frame.Where("code = " + querier.Quote(code))
		}
		if limit > 0 {
			frame = frame.Limit(limit)
		}
		table, err = frame.Collect(ctx)
	} else {
		table, err = bundle.Table(view)
		if err == nil && limit > 0 && limit < table.Len() {
			table.Rows = table.Rows[:limit]
		}
	}
	if err != nil {
		sendError(w, r, err)
		return
	}
	if err := formatter(table, w); err != nil {
		core.Errorf(ctx, "Failed to write %s: %v", view, err)
	}
}

// HandleInvalidate handles the /invalidate endpoint
func (s *Server) HandleInvalidate(w http.ResponseWriter, r *http.Request) {
	root := s.root(r)
	if root == "" {
		sendError(w, r, core.ErrInvalidPath)
		return
	}
	if err := s.Store.Invalidate(r.Context(), root); err != nil {
		sendError(w, r, err)
		return
	}
	sendJSON(w, map[string]string{"invalidated": root})
}

// HandleMetadata returns the dataset descriptor
func (s *Server) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	d, err := s.Store.GetMetadata(s.root(r))
	if err != nil {
		sendError(w, r, err)
		return
	}
	sendJSON(w, d)
}

// SearchResponse is a search result with its display message
type SearchResponse struct {
	*codesearch.Result
	Message string `json:"message"`
}

// HandleSearch handles the /search endpoint. field may be repeated.
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var fields []codesearch.Field
	for _, name := range q["field"] {
		f, err := codesearch.ParseField(name)
		if err != nil {
			sendError(w, r, err)
			return
		}
		fields = append(fields, f)
	}
	res, err := s.Searcher.Search(r.Context(), dataset.CodesPath(s.root(r)), q.Get("term"), fields)
	if err != nil {
		sendError(w, r, err)
		return
	}
	sendJSON(w, SearchResponse{Result: res, Message: res.Message()})
}

// HandleNumericalCodes lists the codes having numeric values
func (s *Server) HandleNumericalCodes(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.Store.LoadOrCompute(r.Context(), s.root(r))
	if err != nil {
		sendError(w, r, err)
		return
	}
	codes, err := bundle.NumericalCodes(r.Context())
	if err != nil {
		sendError(w, r, err)
		return
	}
	sendJSON(w, map[string][]string{"codes": codes})
}

// MaxBins bounds the histogram size of a distribution request
const MaxBins = 1000

// HandleDistribution summarizes the numeric values of one code
func (s *Server) HandleDistribution(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		sendErrorResponse(w, "Missing code parameter", http.StatusBadRequest)
		return
	}
	bins := 0
	if b := q.Get("bins"); b != "" {
		var err error
		if bins, err = strconv.Atoi(b); err != nil || bins < 0 || bins > MaxBins {
			sendErrorResponse(w, "Invalid bins: "+b, http.StatusBadRequest)
			return
		}
	}
	bundle, err := s.Store.LoadOrCompute(r.Context(), s.root(r))
	if err != nil {
		sendError(w, r, err)
		return
	}
	d, err := bundle.CodeDistribution(r.Context(), code, bins)
	if err != nil {
		sendError(w, r, err)
		return
	}
	sendJSON(w, d)
}

// HandleTimeline returns the events of one subject over time
func (s *Server) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		sendErrorResponse(w, "Invalid subject id", http.StatusBadRequest)
		return
	}
	root := s.root(r)
	if !s.Store.Validate(root) {
		sendError(w, r, core.ErrInvalidPath)
		return
	}
	src, err := s.Store.Engine().Open(r.Context(), root)
	if err != nil {
		sendError(w, r, err)
		return
	}
	events, err := src.Timeline(r.Context(), id)
	if err != nil {
		sendError(w, r, err)
		return
	}
	sendJSON(w, map[string]interface{}{"subject_id": id, "events": events})
}
