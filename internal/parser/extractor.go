package parser

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/subdex/subdex/internal/config"
	"github.com/subdex/subdex/internal/models"
)

// ErrUnparseable signals that the expected results container is absent from
// the document: either the source changed its markup or it served an
// anti-automation page instead of results. Deliberately distinct from a
// valid results page with zero rows, which parses to an empty slice.
var ErrUnparseable = errors.New("results container not found in document")

// Extractor turns raw search-results markup into SubtitleRecords.
// It is a pure projection of the page: no network access, no caching.
type Extractor struct{}

// NewExtractor creates a new extractor instance.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Parse extracts subtitle records from a results page.
//
// Returns ErrUnparseable when the results container is missing. A present
// container with zero qualifying rows is a valid empty result, not an error.
// No single field failure aborts the parse: rows without an id or title are
// dropped, and every other field falls back to its documented default.
func (e *Extractor) Parse(body io.Reader) ([]models.SubtitleRecord, error) {
	logger := config.GetLogger()

	utf8Body, err := NewUTF8Reader(body)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document encoding: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(utf8Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	if doc.Find(selResultsContainer).Length() == 0 {
		logger.Debug().Msg("Results container missing from document")
		return nil, ErrUnparseable
	}

	records := make([]models.SubtitleRecord, 0)
	doc.Find(selResultRows).Each(func(i int, row *goquery.Selection) {
		if !admitRow(row) {
			return
		}

		record := e.extractRecord(row)
		if record == nil {
			return
		}

		records = append(records, *record)
		logger.Debug().
			Str("id", record.ID).
			Str("title", record.Title).
			Str("language", record.Language).
			Int("downloads", record.Downloads).
			Msg("Extracted subtitle record")
	})

	logger.Info().Int("records", len(records)).Msg("Parsed search results page")
	return records, nil
}

// admitRow filters out header rows, explicitly hidden rows, and rows lacking
// the onclick action that identifies a result row.
func admitRow(row *goquery.Selection) bool {
	if row.Find("th").Length() > 0 {
		return false
	}
	if style, ok := row.Attr("style"); ok && strings.Contains(strings.ReplaceAll(style, " ", ""), "display:none") {
		return false
	}
	_, hasAction := row.Attr("onclick")
	return hasAction
}

// extractRecord pulls one record out of an admitted row. Returns nil when
// the row yields no identifier or no title; neither is an error.
func (e *Extractor) extractRecord(row *goquery.Selection) *models.SubtitleRecord {
	id := extractID(row)
	if id == "" {
		return nil
	}

	title, year := extractTitleYear(row)
	if title == "" {
		return nil
	}

	return &models.SubtitleRecord{
		ID:         id,
		Title:      title,
		Year:       year,
		Language:   extractLanguage(row),
		Downloads:  extractDownloads(row),
		Uploader:   extractUploader(row),
		UploadDate: extractUploadDate(row),
		Filename:   extractFilename(row),
		Features: models.Features{
			HD:              row.Find(selMarkerHD).Length() > 0,
			HearingImpaired: row.Find(selMarkerHearingImpaired).Length() > 0,
			Trusted:         row.Find(selMarkerTrusted).Length() > 0,
		},
	}
}

// extractID recovers the numeric id from the onclick action, falling back to
// a numeric suffix on the row's id attribute.
func extractID(row *goquery.Selection) string {
	if onclick, ok := row.Attr("onclick"); ok {
		if m := onclickIDPattern.FindStringSubmatch(onclick); len(m) > 1 {
			return m[1]
		}
	}
	if rowID, ok := row.Attr("id"); ok {
		if m := rowIDSuffixPattern.FindStringSubmatch(rowID); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

// extractTitleYear takes the first title-bearing cell's anchor text. A
// trailing "(YYYY)" group becomes the year and is stripped from the title.
func extractTitleYear(row *goquery.Selection) (title string, year string) {
	text := strings.TrimSpace(row.Find(selTitleAnchor).First().Text())
	if text == "" {
		return "", ""
	}

	if m := titleYearPattern.FindStringSubmatch(text); len(m) > 1 {
		year = m[1]
		text = strings.TrimSpace(titleYearPattern.ReplaceAllString(text, ""))
	}

	return text, year
}

// extractLanguage reads the 2-letter token following the flag marker in the
// indicator's class list, defaulting to "unknown".
func extractLanguage(row *goquery.Selection) string {
	class, ok := row.Find(selFlag).First().Attr("class")
	if !ok {
		return "unknown"
	}

	tokens := strings.Fields(class)
	for i, token := range tokens {
		if token == flagClassMarker && i+1 < len(tokens) {
			candidate := strings.ToLower(tokens[i+1])
			if languageTokenPattern.MatchString(candidate) {
				return candidate
			}
		}
	}
	return "unknown"
}

// extractDownloads parses the download-count link text ("5,432x"), stripping
// thousands separators and the trailing multiplier marker. Defaults to 0 on
// absence or parse failure; never fails the row.
func extractDownloads(row *goquery.Selection) int {
	text := strings.TrimSpace(row.Find(selDownloadAnchor).First().Text())
	if text == "" {
		return 0
	}

	text = strings.ReplaceAll(text, ",", "")
	text = strings.TrimSuffix(text, "x")

	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func extractUploader(row *goquery.Selection) string {
	uploader := strings.TrimSpace(row.Find(selUploaderAnchor).First().Text())
	if uploader == "" {
		return "anonymous"
	}
	return uploader
}

func extractUploadDate(row *goquery.Selection) string {
	return strings.TrimSpace(row.Find(selUploadTime).First().Text())
}

// extractFilename reads the titled span's title attribute, excluding the
// vote-count values the source stores in the same attribute.
func extractFilename(row *goquery.Selection) string {
	title, ok := row.Find(selTitledSpan).First().Attr("title")
	if !ok {
		return ""
	}
	title = strings.TrimSpace(title)
	if votesPattern.MatchString(title) {
		return ""
	}
	return title
}
