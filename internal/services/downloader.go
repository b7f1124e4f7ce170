package services

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/subdex/subdex/internal/apperrors"
	"github.com/subdex/subdex/internal/cache"
	"github.com/subdex/subdex/internal/config"
	"github.com/subdex/subdex/internal/fetcher"
	"github.com/subdex/subdex/internal/metrics"
	"github.com/subdex/subdex/internal/models"
)

const (
	// htmlSniffLen bounds the body prefix inspected for HTML markers. The
	// mirrors substitute error/login pages for the binary payload, and those
	// always declare themselves within the first few hundred bytes.
	htmlSniffLen = 512

	// defaultExt is assumed when neither the hint nor the response yields an
	// extension.
	defaultExt = "srt"
)

var (
	// dispositionFilenamePattern is a deliberately loose match for the
	// content-disposition filename parameter; the mirrors emit technically
	// malformed headers that strict RFC 6266 parsing rejects.
	dispositionFilenamePattern = regexp.MustCompile(`(?i)filename\*?=["']?([^"';]+)`)

	// unsafeFilenameChars is everything outside the restricted safe set.
	unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._\- ]+`)
)

// Downloader resolves a subtitle id to its file payload by walking an
// ordered chain of mirror URL templates, validating each response body
// before accepting it.
type Downloader struct {
	fetcher *fetcher.Fetcher
	cache   *cache.Store[*models.DownloadResult]
	mirrors []string
}

// NewDownloader wires the download pipeline. Each mirror template carries
// one %s placeholder for the subtitle id.
func NewDownloader(f *fetcher.Fetcher, c *cache.Store[*models.DownloadResult], mirrors []string) *Downloader {
	if c.Copy == nil {
		c.Copy = (*models.DownloadResult).Clone
	}
	return &Downloader{
		fetcher: f,
		cache:   c,
		mirrors: mirrors,
	}
}

// Download fetches the subtitle payload for id, trying each mirror in order
// until one yields an acceptable body. hintedFilename, when non-empty, takes
// priority for naming the result. Inputs are assumed pre-validated.
func (d *Downloader) Download(ctx context.Context, id, hintedFilename string) (*models.DownloadResult, error) {
	logger := config.GetLogger()
	key := downloadKey(id, hintedFilename)

	if cached, ok := d.cache.Get(key); ok {
		metrics.SubtitleDownloadsTotal.WithLabelValues("cached").Inc()
		logger.Debug().Str("id", id).Msg("Download served from cache")
		return cached, nil
	}

	lastDiag := apperrors.Diagnostic{}
	for i, template := range d.mirrors {
		mirrorURL := fmt.Sprintf(template, id)

		resp, err := d.fetcher.Fetch(ctx, mirrorURL)
		if err != nil {
			logger.Warn().Err(err).Str("url", mirrorURL).Int("mirror", i).Msg("Mirror failed at transport level")
			lastDiag = apperrors.NewDiagnostic(0, nil, mirrorURL)
			continue
		}

		if reason := rejectBody(resp); reason != "" {
			logger.Warn().
				Str("url", mirrorURL).
				Int("mirror", i).
				Int("status", resp.StatusCode).
				Str("reason", reason).
				Msg("Mirror response rejected")
			lastDiag = apperrors.NewDiagnostic(resp.StatusCode, resp.Body, mirrorURL)
			continue
		}

		filename, ext := resolveFilename(id, hintedFilename, resp.Header.Get("Content-Disposition"))
		result := &models.DownloadResult{
			Buffer:   resp.Body,
			Ext:      ext,
			Filename: filename,
			Size:     len(resp.Body),
		}
		d.cache.Set(key, result)

		metrics.SubtitleDownloadsTotal.WithLabelValues("ok").Inc()
		logger.Info().
			Str("id", id).
			Str("filename", filename).
			Int("size", result.Size).
			Int("mirror", i).
			Msg("Subtitle downloaded")
		return result, nil
	}

	metrics.SubtitleDownloadsTotal.WithLabelValues(apperrors.KindDownloadFailed).Inc()
	return nil, &apperrors.DownloadFailed{
		Diag:    lastDiag,
		Mirrors: len(d.mirrors),
	}
}

// rejectBody returns a non-empty reason when the response cannot be the
// subtitle payload: bad status, empty body, or an HTML error/interstitial
// page substituted for the binary content.
func rejectBody(resp *fetcher.Response) string {
	if resp.StatusCode != http.StatusOK {
		return "bad status"
	}
	if len(resp.Body) == 0 {
		return "empty body"
	}

	prefix := resp.Body
	if len(prefix) > htmlSniffLen {
		prefix = prefix[:htmlSniffLen]
	}
	lower := strings.ToLower(string(prefix))
	if strings.Contains(lower, "<html") || strings.Contains(lower, "<!doctype") {
		return "html interstitial"
	}
	return ""
}

// resolveFilename picks the result's filename and extension: the sanitized
// caller hint first, then the content-disposition filename, then a
// synthesized name with the default extension.
func resolveFilename(id, hinted, disposition string) (filename, ext string) {
	if name := sanitizeFilename(hinted); name != "" {
		return name, extensionOf(name)
	}

	if m := dispositionFilenamePattern.FindStringSubmatch(disposition); len(m) > 1 {
		if name := sanitizeFilename(m[1]); name != "" {
			return name, extensionOf(name)
		}
	}

	return fmt.Sprintf("subtitle_%s.%s", id, defaultExt), defaultExt
}

// sanitizeFilename reduces name to the safe character set (alphanumerics,
// dot, dash, underscore, space).
func sanitizeFilename(name string) string {
	return strings.TrimSpace(unsafeFilenameChars.ReplaceAllString(name, ""))
}

// extensionOf takes the final dot-delimited segment of name, defaulting to
// "srt" when there is none.
func extensionOf(name string) string {
	if idx := strings.LastIndex(name, "."); idx != -1 && idx < len(name)-1 {
		return strings.ToLower(name[idx+1:])
	}
	return defaultExt
}

func downloadKey(id, hintedFilename string) string {
	if hint := sanitizeFilename(hintedFilename); hint != "" {
		return fmt.Sprintf("download:%s:%s", id, hint)
	}
	return "download:" + id
}
