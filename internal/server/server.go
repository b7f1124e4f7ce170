// Package server is the thin collaborator HTTP layer over the retrieval
// core: routing, input validation, error-kind to status-code mapping,
// admission control, and the health/stats endpoints. It holds no retrieval
// logic of its own.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/subdex/subdex/internal/apperrors"
	"github.com/subdex/subdex/internal/config"
	"github.com/subdex/subdex/internal/services"
	"github.com/subdex/subdex/internal/validation"
)

// CacheStats exposes the entry counts the /stats endpoint reports. Reading
// them performs no I/O.
type CacheStats struct {
	SearchEntries   func() int
	DownloadEntries func() int
}

// Server handles the caller-facing HTTP API.
type Server struct {
	search     *services.SearchService
	downloader *services.Downloader
	limiter    *clientLimiter
	cacheStats CacheStats
	started    time.Time

	searchServed   counter
	downloadServed counter
}

// New creates the HTTP layer over the given core services.
func New(search *services.SearchService, downloader *services.Downloader, cacheStats CacheStats, cfg *config.Config) *Server {
	return &Server{
		search:     search,
		downloader: downloader,
		limiter:    newClientLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst),
		cacheStats: cacheStats,
		started:    time.Now(),
	}
}

// Handler builds the route table. Admission control and request logging wrap
// the API routes; health and stats stay unthrottled so probes never compete
// with callers for budget.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.Handle("GET /api/search", s.limiter.middleware(http.HandlerFunc(s.handleSearch)))
	mux.Handle("GET /api/download/{id}", s.limiter.middleware(http.HandlerFunc(s.handleDownload)))
	return logRequests(mux)
}

// NewHTTPServer wraps the handler in an http.Server on the configured address.
func NewHTTPServer(s *Server, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, err := validation.Query(r.URL.Query().Get("query"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	page := 1
	if rawPage := r.URL.Query().Get("page"); rawPage != "" {
		page, err = strconv.Atoi(rawPage)
		if err != nil {
			s.writeError(w, &apperrors.ValidationError{Field: "page", Reason: "must be an integer"})
			return
		}
	}
	if err := validation.Page(page); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.search.Search(r.Context(), query, page)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if lang := r.URL.Query().Get("lang"); lang != "" {
		result = services.FilterByLanguage(result, lang)
	}

	s.searchServed.inc()
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := validation.SubtitleID(id); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.downloader.Download(r.Context(), id, r.URL.Query().Get("filename"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.downloadServed.inc()
	w.Header().Set("Content-Type", contentTypeForExt(result.Ext))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(result.Size))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Buffer)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// handleStats reads process- and cache-level counters only.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime":                 time.Since(s.started).Round(time.Second).String(),
		"searches_served":        s.searchServed.value(),
		"downloads_served":       s.downloadServed.value(),
		"search_cache_entries":   s.cacheStats.SearchEntries(),
		"download_cache_entries": s.cacheStats.DownloadEntries(),
	})
}

// writeError maps the error classes to HTTP statuses: pre-flight validation
// rejections become 400, typed I/O errors become 500 with their kind and
// message. Internal errors are also reported to Sentry when configured.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	logger := config.GetLogger()

	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "validation_error",
			"message": validationErr.Error(),
		})
		return
	}

	kind := apperrors.KindOf(err)
	if kind == "" {
		kind = "internal_error"
	}

	logger.Error().Err(err).Str("kind", kind).Msg("Request failed")
	sentry.CaptureException(err)

	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   kind,
		"message": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger := config.GetLogger()
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func contentTypeForExt(ext string) string {
	switch ext {
	case "srt":
		return "application/x-subrip"
	case "ass":
		return "application/x-ass"
	case "vtt":
		return "text/vtt"
	case "sub":
		return "application/x-sub"
	case "zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger := config.GetLogger()
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Request handled")
	})
}
