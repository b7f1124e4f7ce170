package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/subdex/subdex/internal/apperrors"
	"github.com/subdex/subdex/internal/cache"
	"github.com/subdex/subdex/internal/fetcher"
	"github.com/subdex/subdex/internal/identity"
	"github.com/subdex/subdex/internal/models"
)

func newDownloadCache(t *testing.T, ttl time.Duration) *cache.Store[*models.DownloadResult] {
	t.Helper()
	c, err := cache.NewStore[*models.DownloadResult](cache.Config{Size: 16, TTL: ttl})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func newDownloadFetcher(client *http.Client) *fetcher.Fetcher {
	return fetcher.New(client, identity.NewPool([]string{"test-agent"}), fetcher.Options{
		MaxAttempts: 1,
		JitterMin:   time.Millisecond,
		JitterMax:   2 * time.Millisecond,
	})
}

// mirrorPair builds a Downloader whose two mirrors are the given handlers.
func mirrorPair(t *testing.T, first, second http.HandlerFunc) (*Downloader, func()) {
	t.Helper()
	serverA := httptest.NewServer(first)
	serverB := httptest.NewServer(second)

	d := NewDownloader(
		newDownloadFetcher(http.DefaultClient),
		newDownloadCache(t, time.Hour),
		[]string{serverA.URL + "/sub/%s", serverB.URL + "/sub/%s"},
	)
	return d, func() {
		serverA.Close()
		serverB.Close()
	}
}

func TestDownloader_FirstMirrorAccepted(t *testing.T) {
	payload := "1\n00:00:01,000 --> 00:00:02,000\nHello\n"
	d, cleanup := mirrorPair(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Disposition", `attachment; filename="dune.srt"`)
			_, _ = w.Write([]byte(payload))
		},
		func(w http.ResponseWriter, r *http.Request) {
			t.Error("Second mirror should not be contacted when the first succeeds")
		},
	)
	defer cleanup()

	result, err := d.Download(context.Background(), "999", "")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if string(result.Buffer) != payload {
		t.Errorf("Buffer = %q, want %q", result.Buffer, payload)
	}
	if result.Filename != "dune.srt" || result.Ext != "srt" {
		t.Errorf("Filename/Ext = %q/%q, want dune.srt/srt", result.Filename, result.Ext)
	}
	if result.Size != len(payload) {
		t.Errorf("Size = %d, want %d", result.Size, len(payload))
	}
}

func TestDownloader_MirrorFallback(t *testing.T) {
	tests := []struct {
		name  string
		first http.HandlerFunc
	}{
		{
			name: "bad status",
			first: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "empty body",
			first: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		},
		{
			name: "html interstitial lowercase",
			first: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html><body>Please log in</body></html>"))
			},
		},
		{
			name: "doctype interstitial uppercase",
			first: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<!DOCTYPE HTML><html><body>ERROR</body></html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, cleanup := mirrorPair(t, tt.first,
				func(w http.ResponseWriter, r *http.Request) {
					w.Header().Set("Content-Disposition", `attachment; filename=dune.srt`)
					_, _ = w.Write([]byte("subtitle payload"))
				},
			)
			defer cleanup()

			result, err := d.Download(context.Background(), "999", "")
			if err != nil {
				t.Fatalf("Expected fallback to second mirror, got error: %v", err)
			}
			if result.Filename != "dune.srt" || result.Ext != "srt" {
				t.Errorf("Filename/Ext = %q/%q, want dune.srt/srt", result.Filename, result.Ext)
			}
		})
	}
}

func TestDownloader_AllMirrorsRejected(t *testing.T) {
	reject := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not here"))
	}
	d, cleanup := mirrorPair(t, reject, reject)
	defer cleanup()

	_, err := d.Download(context.Background(), "999", "")
	var dlFailed *apperrors.DownloadFailed
	if !errors.As(err, &dlFailed) {
		t.Fatalf("Download error = %v, want DownloadFailed", err)
	}
	if dlFailed.Mirrors != 2 {
		t.Errorf("Mirrors = %d, want 2", dlFailed.Mirrors)
	}
	if dlFailed.Diag.StatusCode != http.StatusNotFound {
		t.Errorf("Last diagnostic status = %d, want 404", dlFailed.Diag.StatusCode)
	}
}

func TestDownloader_TransportFailureFallsThrough(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	alive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("payload"))
	}))
	defer alive.Close()

	d := NewDownloader(
		newDownloadFetcher(&http.Client{Timeout: time.Second}),
		newDownloadCache(t, time.Hour),
		[]string{deadURL + "/sub/%s", alive.URL + "/sub/%s"},
	)

	result, err := d.Download(context.Background(), "42", "")
	if err != nil {
		t.Fatalf("Expected second mirror to serve after transport failure, got %v", err)
	}
	if string(result.Buffer) != "payload" {
		t.Errorf("Buffer = %q, want %q", result.Buffer, "payload")
	}
}

func TestDownloader_CacheServesSecondCall(t *testing.T) {
	var mu sync.Mutex
	fetches := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fetches++
		mu.Unlock()
		_, _ = w.Write([]byte("payload"))
	}))
	defer server.Close()

	d := NewDownloader(
		newDownloadFetcher(server.Client()),
		newDownloadCache(t, time.Hour),
		[]string{server.URL + "/sub/%s"},
	)

	if _, err := d.Download(context.Background(), "7", ""); err != nil {
		t.Fatalf("First download failed: %v", err)
	}
	second, err := d.Download(context.Background(), "7", "")
	if err != nil {
		t.Fatalf("Second download failed: %v", err)
	}
	if string(second.Buffer) != "payload" {
		t.Errorf("Cached Buffer = %q, want %q", second.Buffer, "payload")
	}

	mu.Lock()
	defer mu.Unlock()
	if fetches != 1 {
		t.Errorf("Expected 1 outbound fetch, got %d", fetches)
	}
}

func TestResolveFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		id           string
		hinted       string
		disposition  string
		wantFilename string
		wantExt      string
	}{
		{
			name:         "hint wins over disposition",
			id:           "1",
			hinted:       "preferred.ass",
			disposition:  `attachment; filename="other.srt"`,
			wantFilename: "preferred.ass",
			wantExt:      "ass",
		},
		{
			name:         "hint sanitized preserving extension",
			id:           "1",
			hinted:       `du/ne*: part "two".srt`,
			wantFilename: "dune part two.srt",
			wantExt:      "srt",
		},
		{
			name:         "disposition quoted",
			id:           "2",
			disposition:  `attachment; filename="dune.srt"`,
			wantFilename: "dune.srt",
			wantExt:      "srt",
		},
		{
			name:         "disposition unquoted",
			id:           "2",
			disposition:  `attachment; filename=dune.zip`,
			wantFilename: "dune.zip",
			wantExt:      "zip",
		},
		{
			name:         "neither yields synthesized name",
			id:           "999",
			wantFilename: "subtitle_999.srt",
			wantExt:      "srt",
		},
		{
			name:         "hint without extension gets default ext",
			id:           "3",
			hinted:       "noext",
			wantFilename: "noext",
			wantExt:      "srt",
		},
		{
			name:         "fully unsafe hint falls through to disposition",
			id:           "4",
			hinted:       "///***",
			disposition:  `attachment; filename=saved.srt`,
			wantFilename: "saved.srt",
			wantExt:      "srt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			filename, ext := resolveFilename(tt.id, tt.hinted, tt.disposition)
			if filename != tt.wantFilename || ext != tt.wantExt {
				t.Errorf("resolveFilename(%q, %q, %q) = (%q, %q), want (%q, %q)",
					tt.id, tt.hinted, tt.disposition, filename, ext, tt.wantFilename, tt.wantExt)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"already safe", "Movie.2024.srt", "Movie.2024.srt"},
		{"path separators stripped", "../../etc/passwd", "......etcpasswd"},
		{"unicode stripped", "fïlm→.srt", "flm.srt"},
		{"spaces kept", "my subtitle file.srt", "my subtitle file.srt"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := sanitizeFilename(tt.in); got != tt.want {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
