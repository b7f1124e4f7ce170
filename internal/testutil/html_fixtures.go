// Package testutil generates HTML fixtures shaped like the source site's
// search-results pages, so parser and service tests do not hand-write
// markup.
package testutil

import (
	"fmt"
	"strings"
)

// ResultRow describes one row of a generated results page.
type ResultRow struct {
	OnclickID       string // numeric id embedded in the onclick action; empty omits onclick
	RowID           string // row id attribute, e.g. "name123"
	Title           string // anchor text, may carry a trailing "(YYYY)"
	FlagClass       string // full class attr of the flag div, e.g. "flag en"; empty omits the div
	Downloads       string // download link text, e.g. "5,432x"; empty omits the link
	Uploader        string // uploader anchor text; empty omits the anchor
	UploadDate      string // text of the time element; empty omits it
	SpanTitle       string // title attr of the titled span; empty omits the span
	HD              bool
	HearingImpaired bool
	Trusted         bool
	Hidden          bool // renders the row with display:none
}

// ResultsPage generates a full document with the results container and the
// given rows, mirroring the source site's structure.
func ResultsPage(rows ...ResultRow) string {
	var sb strings.Builder

	sb.WriteString("<html><body>\n")
	sb.WriteString(`<table id="search_results" border="0" cellspacing="1">` + "\n")
	sb.WriteString("<tr><th>Movie</th><th>Lang</th><th>Downloads</th><th>Uploader</th></tr>\n")

	for _, row := range rows {
		sb.WriteString(renderRow(row))
	}

	sb.WriteString("</table>\n</body></html>\n")
	return sb.String()
}

// EmptyResultsPage generates a structurally valid page with the container
// present but zero result rows.
func EmptyResultsPage() string {
	return ResultsPage()
}

// ChallengePage generates a document without the results container, as an
// anti-automation interstitial would look.
func ChallengePage() string {
	return `<html><head><title>Attention Required</title></head>
<body><div class="challenge">Checking your browser before accessing the site.</div></body></html>`
}

func renderRow(row ResultRow) string {
	var sb strings.Builder

	sb.WriteString("<tr")
	if row.RowID != "" {
		fmt.Fprintf(&sb, " id=%q", row.RowID)
	}
	if row.OnclickID != "" {
		fmt.Fprintf(&sb, ` onclick="servOC(%s,'/en/subtitles/%s')"`, row.OnclickID, row.OnclickID)
	}
	if row.Hidden {
		sb.WriteString(` style="display:none"`)
	}
	sb.WriteString(">")

	sb.WriteString("<td>")
	if row.Title != "" {
		fmt.Fprintf(&sb, `<strong><a href="/en/subtitles/%s">%s</a></strong>`, row.OnclickID, row.Title)
	}
	if row.SpanTitle != "" {
		fmt.Fprintf(&sb, `<br/><span title=%q>%s...</span>`, row.SpanTitle, truncate(row.SpanTitle, 12))
	}
	if row.UploadDate != "" {
		fmt.Fprintf(&sb, `<time>%s</time>`, row.UploadDate)
	}
	sb.WriteString("</td>")

	sb.WriteString("<td>")
	if row.FlagClass != "" {
		fmt.Fprintf(&sb, `<div class=%q></div>`, row.FlagClass)
	}
	if row.HD {
		sb.WriteString(`<img src="/gfx/icons/hd.gif" alt="HD"/>`)
	}
	if row.HearingImpaired {
		sb.WriteString(`<img src="/gfx/icons/imp.gif" alt="Hearing impaired"/>`)
	}
	if row.Trusted {
		sb.WriteString(`<img src="/gfx/icons/trusted.gif" alt="Trusted"/>`)
	}
	sb.WriteString("</td>")

	sb.WriteString("<td>")
	if row.Downloads != "" {
		fmt.Fprintf(&sb, `<a href="/en/subtitleserve/sub/%s">%s</a>`, row.OnclickID, row.Downloads)
	}
	sb.WriteString("</td>")

	sb.WriteString("<td>")
	if row.Uploader != "" {
		fmt.Fprintf(&sb, `<a href="/en/profile/%s">%s</a>`, row.Uploader, row.Uploader)
	}
	sb.WriteString("</td>")

	sb.WriteString("</tr>\n")
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
