package models

// Features holds the marker-image flags attached to a subtitle listing row.
type Features struct {
	HD              bool `json:"hd"`
	HearingImpaired bool `json:"hearingImpaired"`
	Trusted         bool `json:"trusted"`
}

// SubtitleRecord is one normalized row extracted from a search-results page.
// Identity is ID; duplicate rows within a page are passed through as the
// source emits them.
type SubtitleRecord struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Year       string   `json:"year,omitempty"`
	Language   string   `json:"language"`
	Downloads  int      `json:"downloads"`
	Uploader   string   `json:"uploader"`
	UploadDate string   `json:"uploadDate,omitempty"`
	Filename   string   `json:"filename,omitempty"`
	Features   Features `json:"features"`
}

// SearchResult is the caller-facing shape of one search page.
// Results are ordered by non-increasing Downloads and Total always equals
// len(Results).
type SearchResult struct {
	Query     string           `json:"query"`
	Page      int              `json:"page"`
	Total     int              `json:"total"`
	FromCache bool             `json:"fromCache"`
	Results   []SubtitleRecord `json:"results"`
}

// Clone returns a deep copy so the cached canonical result is never shared
// by reference with callers.
func (r *SearchResult) Clone() *SearchResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Results = make([]SubtitleRecord, len(r.Results))
	copy(out.Results, r.Results)
	return &out
}
