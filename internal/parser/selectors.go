package parser

import "regexp"

// All selector strings and markup patterns for the source site's result
// pages live here, so a structural change on the site touches one file.
const (
	// selResultsContainer is the marker whose absence means the document is
	// not a results page at all (site change or challenge/captcha page).
	selResultsContainer = "table#search_results"

	// selResultRows covers every row inside the results container,
	// including header rows, which are filtered out during admission.
	selResultRows = "table#search_results tr"

	// selTitleAnchor is the anchor inside the first title-bearing cell; the
	// title is the only strong-wrapped anchor in a row, which keeps other
	// row links (download count, uploader) from being mistaken for it.
	selTitleAnchor = "td strong a"

	// selFlag is the language flag indicator; the 2-letter language token
	// follows the marker class in its class list (e.g. "flag en").
	selFlag = "div.flag"

	// selDownloadAnchor is the link whose target references the mirror
	// download path; its text carries the download count ("5,432x").
	selDownloadAnchor = `a[href*="/subtitleserve/"]`

	// selUploaderAnchor is the anchor in the last cell of the row.
	selUploaderAnchor = "td:last-child a"

	// selUploadTime is the time-indicating element inside the row.
	selUploadTime = "time"

	// selTitledSpan carries the subtitle filename in its title attribute.
	// The same attribute is reused by the source for vote counts, which are
	// recognized and excluded by votesPattern.
	selTitledSpan = "span[title]"

	// Feature marker images.
	selMarkerHD              = `img[src*="hd.gif"]`
	selMarkerHearingImpaired = `img[src*="imp.gif"]`
	selMarkerTrusted         = `img[src*="trusted.gif"]`

	// flagClassMarker precedes the language token in the flag class list.
	flagClassMarker = "flag"
)

var (
	// onclickIDPattern recovers the numeric subtitle id embedded in the
	// row's onclick action, e.g. `servOC(123,"/en/...")`.
	onclickIDPattern = regexp.MustCompile(`\((\d+)`)

	// rowIDSuffixPattern is the fallback: a numeric suffix on the row's id
	// attribute, e.g. `name123`.
	rowIDSuffixPattern = regexp.MustCompile(`(\d+)$`)

	// titleYearPattern matches a trailing 4-digit parenthesized year on the
	// title anchor text.
	titleYearPattern = regexp.MustCompile(`\((\d{4})\)\s*$`)

	// votesPattern recognizes the vote-count reuse of the titled span.
	votesPattern = regexp.MustCompile(`^\d+\s+votes?$`)

	// languageTokenPattern is the shape of a valid 2-letter language code.
	languageTokenPattern = regexp.MustCompile(`^[a-z]{2}$`)
)
