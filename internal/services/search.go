// Package services composes the cache, fetcher, and extractor into the two
// caller-facing operations: search and download.
package services

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/subdex/subdex/internal/apperrors"
	"github.com/subdex/subdex/internal/cache"
	"github.com/subdex/subdex/internal/config"
	"github.com/subdex/subdex/internal/fetcher"
	"github.com/subdex/subdex/internal/metrics"
	"github.com/subdex/subdex/internal/models"
	"github.com/subdex/subdex/internal/parser"
)

// resultsPerPage is the source's fixed page size, used to translate page
// numbers into the offset parameter its search URLs expect.
const resultsPerPage = 40

// SearchService runs one search page: cache lookup, fetch, parse, sort.
type SearchService struct {
	fetcher   *fetcher.Fetcher
	extractor *parser.Extractor
	cache     *cache.Store[*models.SearchResult]
	baseURL   string
}

// NewSearchService wires the search pipeline. The cache is given a deep-copy
// function so the canonical cached result is never shared with callers.
func NewSearchService(f *fetcher.Fetcher, e *parser.Extractor, c *cache.Store[*models.SearchResult], baseURL string) *SearchService {
	if c.Copy == nil {
		c.Copy = (*models.SearchResult).Clone
	}
	return &SearchService{
		fetcher:   f,
		extractor: e,
		cache:     c,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// Search returns one page of results for query. Inputs are assumed
// pre-validated. Cached results come back as copies tagged FromCache=true;
// fresh results are sorted by non-increasing download count (stable with
// respect to document order on ties), cached, and tagged FromCache=false.
func (s *SearchService) Search(ctx context.Context, query string, page int) (*models.SearchResult, error) {
	logger := config.GetLogger()
	key := searchKey(query, page)

	if cached, ok := s.cache.Get(key); ok {
		cached.FromCache = true
		metrics.SearchRequestsTotal.WithLabelValues("cached").Inc()
		logger.Debug().Str("query", query).Int("page", page).Msg("Search served from cache")
		return cached, nil
	}

	searchURL := s.buildSearchURL(query, page)
	resp, err := s.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(apperrors.KindNetworkError).Inc()
		return nil, &apperrors.NetworkError{
			Diag: apperrors.NewDiagnostic(0, nil, searchURL),
			Err:  err,
		}
	}

	if resp.StatusCode != http.StatusOK {
		metrics.SearchRequestsTotal.WithLabelValues(apperrors.KindSearchFailed).Inc()
		return nil, &apperrors.SearchFailed{
			Diag: apperrors.NewDiagnostic(resp.StatusCode, resp.Body, searchURL),
		}
	}

	records, err := s.extractor.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(apperrors.KindParseFailed).Inc()
		logger.Warn().Err(err).Str("url", searchURL).Msg("Search page did not match expected structure")
		return nil, &apperrors.ParseFailed{
			Diag: apperrors.NewDiagnostic(resp.StatusCode, resp.Body, searchURL),
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Downloads > records[j].Downloads
	})

	result := &models.SearchResult{
		Query:     query,
		Page:      page,
		Total:     len(records),
		FromCache: false,
		Results:   records,
	}
	s.cache.Set(key, result)

	metrics.SearchRequestsTotal.WithLabelValues("ok").Inc()
	logger.Info().Str("query", query).Int("page", page).Int("results", len(records)).Msg("Search completed")
	return result, nil
}

// FilterByLanguage returns a new SearchResult holding only the records whose
// language equals lang, case-insensitively. Pure: the input (and any cached
// canonical entry behind it) is never mutated, and nothing is re-cached.
func FilterByLanguage(result *models.SearchResult, lang string) *models.SearchResult {
	lang = strings.ToLower(lang)

	filtered := make([]models.SubtitleRecord, 0, len(result.Results))
	for _, record := range result.Results {
		if strings.ToLower(record.Language) == lang {
			filtered = append(filtered, record)
		}
	}

	return &models.SearchResult{
		Query:     result.Query,
		Page:      result.Page,
		Total:     len(filtered),
		FromCache: result.FromCache,
		Results:   filtered,
	}
}

func (s *SearchService) buildSearchURL(query string, page int) string {
	offset := (page - 1) * resultsPerPage
	return fmt.Sprintf("%s/en/search2/sublanguageid-all/moviename-%s/offset-%d",
		s.baseURL, url.PathEscape(query), offset)
}

func searchKey(query string, page int) string {
	return fmt.Sprintf("search:%s:%d", strings.ToLower(strings.TrimSpace(query)), page)
}
