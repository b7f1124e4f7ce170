package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/subdex/subdex/internal/cache"
	"github.com/subdex/subdex/internal/config"
	"github.com/subdex/subdex/internal/fetcher"
	"github.com/subdex/subdex/internal/identity"
	"github.com/subdex/subdex/internal/models"
	"github.com/subdex/subdex/internal/parser"
	"github.com/subdex/subdex/internal/services"
	"github.com/subdex/subdex/internal/testutil"
)

// testEnv wires a full server over an httptest source host.
type testEnv struct {
	handler http.Handler
	fetches *int
	mu      *sync.Mutex
}

func newTestEnv(t *testing.T, source http.HandlerFunc) *testEnv {
	t.Helper()

	var mu sync.Mutex
	fetches := 0
	sourceServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fetches++
		mu.Unlock()
		source(w, r)
	}))
	t.Cleanup(sourceServer.Close)

	searchCache, err := cache.NewStore[*models.SearchResult](cache.Config{Size: 16, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = searchCache.Close() })

	downloadCache, err := cache.NewStore[*models.DownloadResult](cache.Config{Size: 16, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = downloadCache.Close() })

	f := fetcher.New(sourceServer.Client(), identity.NewPool([]string{"test-agent"}), fetcher.Options{
		MaxAttempts: 1,
		JitterMin:   time.Millisecond,
		JitterMax:   2 * time.Millisecond,
	})

	searchService := services.NewSearchService(f, parser.NewExtractor(), searchCache, sourceServer.URL)
	downloader := services.NewDownloader(f, downloadCache, []string{sourceServer.URL + "/sub/%s"})

	cfg := &config.Config{}
	cfg.RateLimit.PerMinute = 60000
	cfg.RateLimit.Burst = 1000

	srv := New(searchService, downloader, CacheStats{
		SearchEntries:   searchCache.Len,
		DownloadEntries: downloadCache.Len,
	}, cfg)

	return &testEnv{handler: srv.Handler(), fetches: &fetches, mu: &mu}
}

func (e *testEnv) fetchCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.fetches
}

func (e *testEnv) do(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestServer_SearchEndpoint(t *testing.T) {
	page := testutil.ResultsPage(
		testutil.ResultRow{OnclickID: "1", Title: "Dune (2021)", FlagClass: "flag en", Downloads: "10x"},
		testutil.ResultRow{OnclickID: "2", Title: "Dune (2021)", FlagClass: "flag hu", Downloads: "20x"},
	)
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	})

	rec := env.do(t, "/api/search?query=dune")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}

	var result models.SearchResult
	decodeJSON(t, rec, &result)
	if result.Total != 2 || result.FromCache {
		t.Errorf("Total = %d FromCache = %v, want 2/false", result.Total, result.FromCache)
	}
}

func TestServer_SearchLanguageFilter(t *testing.T) {
	page := testutil.ResultsPage(
		testutil.ResultRow{OnclickID: "1", Title: "Dune", FlagClass: "flag en", Downloads: "10x"},
		testutil.ResultRow{OnclickID: "2", Title: "Dune", FlagClass: "flag hu", Downloads: "20x"},
	)
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	})

	rec := env.do(t, "/api/search?query=dune&lang=HU")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var result models.SearchResult
	decodeJSON(t, rec, &result)
	if result.Total != 1 || result.Results[0].Language != "hu" {
		t.Errorf("Filtered result = %+v, want the single hu record", result)
	}
}

func TestServer_SearchValidationRejectsBeforeFetch(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Source must not be contacted for invalid input")
	})

	tests := []struct {
		name   string
		target string
	}{
		{"empty query", "/api/search?query="},
		{"oversized query", "/api/search?query=" + strings.Repeat("a", 300)},
		{"bad page", "/api/search?query=dune&page=zero"},
		{"page out of range", "/api/search?query=dune&page=0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.target)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("Status = %d, want 400", rec.Code)
			}

			var payload map[string]string
			decodeJSON(t, rec, &payload)
			if payload["error"] != "validation_error" {
				t.Errorf("error = %q, want validation_error", payload["error"])
			}
		})
	}

	if env.fetchCount() != 0 {
		t.Errorf("Expected zero outbound requests, got %d", env.fetchCount())
	}
}

func TestServer_SearchErrorKindMapping(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testutil.ChallengePage()))
	})

	rec := env.do(t, "/api/search?query=dune")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Status = %d, want 500", rec.Code)
	}

	var payload map[string]string
	decodeJSON(t, rec, &payload)
	if payload["error"] != "parse_failed" {
		t.Errorf("error = %q, want parse_failed", payload["error"])
	}
	if payload["message"] == "" {
		t.Error("Expected a message in the error payload")
	}
}

func TestServer_DownloadEndpoint(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="dune.srt"`)
		_, _ = w.Write([]byte("subtitle payload"))
	})

	rec := env.do(t, "/api/download/999")
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, "dune.srt") {
		t.Errorf("Content-Disposition = %q, want dune.srt", got)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/x-subrip" {
		t.Errorf("Content-Type = %q, want application/x-subrip", got)
	}
	if rec.Body.String() != "subtitle payload" {
		t.Errorf("Body = %q, want the raw payload", rec.Body.String())
	}
}

func TestServer_DownloadValidation(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Source must not be contacted for invalid input")
	})

	rec := env.do(t, "/api/download/not-numeric")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
	if env.fetchCount() != 0 {
		t.Errorf("Expected zero outbound requests, got %d", env.fetchCount())
	}
}

func TestServer_DownloadErrorKindMapping(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>mirror error page</html>"))
	})

	rec := env.do(t, "/api/download/999")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Status = %d, want 500", rec.Code)
	}

	var payload map[string]string
	decodeJSON(t, rec, &payload)
	if payload["error"] != "download_failed" {
		t.Errorf("error = %q, want download_failed", payload["error"])
	}
}

func TestServer_HealthAndStats(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testutil.EmptyResultsPage()))
	})

	rec := env.do(t, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("Health status = %d, want 200", rec.Code)
	}
	var health map[string]any
	decodeJSON(t, rec, &health)
	if health["status"] != "ok" {
		t.Errorf("status = %v, want ok", health["status"])
	}

	// One search populates the search cache and the served counter.
	if rec := env.do(t, "/api/search?query=dune"); rec.Code != http.StatusOK {
		t.Fatalf("Search status = %d, want 200", rec.Code)
	}

	rec = env.do(t, "/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("Stats status = %d, want 200", rec.Code)
	}
	var stats map[string]any
	decodeJSON(t, rec, &stats)
	if stats["searches_served"].(float64) != 1 {
		t.Errorf("searches_served = %v, want 1", stats["searches_served"])
	}
	if stats["search_cache_entries"].(float64) != 1 {
		t.Errorf("search_cache_entries = %v, want 1", stats["search_cache_entries"])
	}
}

func TestServer_RateLimiting(t *testing.T) {
	limiter := newClientLimiter(1, 1)

	if !limiter.allow("10.0.0.1") {
		t.Fatal("First request should be admitted")
	}
	if limiter.allow("10.0.0.1") {
		t.Error("Second immediate request should be rejected")
	}
	if !limiter.allow("10.0.0.2") {
		t.Error("A different client should have its own budget")
	}
}

func TestServer_RateLimitMiddlewareReturns429(t *testing.T) {
	limiter := newClientLimiter(1, 1)
	handler := limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/search?query=x", nil)
	req.RemoteAddr = "10.0.0.9:5000"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("First request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Second request status = %d, want 429", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{"remote addr", "192.0.2.1:4000", "", "192.0.2.1"},
		{"forwarded single", "10.0.0.1:80", "203.0.113.5", "203.0.113.5"},
		{"forwarded chain takes first hop", "10.0.0.1:80", "203.0.113.5, 198.51.100.7", "203.0.113.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
