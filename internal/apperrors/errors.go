package apperrors

import (
	"errors"
	"fmt"
)

// Error kind strings exposed by the HTTP layer.
const (
	KindNetworkError   = "network_error"
	KindSearchFailed   = "search_failed"
	KindParseFailed    = "parse_failed"
	KindDownloadFailed = "download_failed"
)

// MaxBodySample bounds the response-body prefix carried in diagnostics so a
// failed fetch never drags a full page body through the error path.
const MaxBodySample = 512

// Diagnostic is the operator-facing snapshot attached to every I/O error.
type Diagnostic struct {
	StatusCode int
	BodySample string
	URL        string
}

// NewDiagnostic builds a Diagnostic with the body truncated to MaxBodySample.
func NewDiagnostic(statusCode int, body []byte, url string) Diagnostic {
	sample := body
	if len(sample) > MaxBodySample {
		sample = sample[:MaxBodySample]
	}
	return Diagnostic{
		StatusCode: statusCode,
		BodySample: string(sample),
		URL:        url,
	}
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("status=%d url=%s", d.StatusCode, d.URL)
}

// KindError is implemented by every typed I/O error in the taxonomy.
type KindError interface {
	error
	Kind() string
	Diagnostic() Diagnostic
}

// KindOf returns the wire kind of err, or "" if err is not a typed I/O error.
func KindOf(err error) string {
	var ke KindError
	if errors.As(err, &ke) {
		return ke.Kind()
	}
	return ""
}

// NetworkError means the source host could not be reached at the transport
// level after retries were exhausted.
type NetworkError struct {
	Diag Diagnostic
	Err  error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error reaching %s: %v", e.Diag.URL, e.Err)
}

// Is allows for error checking with errors.Is().
func (e *NetworkError) Is(target error) bool {
	_, ok := target.(*NetworkError)
	return ok
}

func (e *NetworkError) Unwrap() error          { return e.Err }
func (e *NetworkError) Kind() string           { return KindNetworkError }
func (e *NetworkError) Diagnostic() Diagnostic { return e.Diag }

// SearchFailed means the source answered the search request with a
// non-recoverable status, or 403 retries were exhausted.
type SearchFailed struct {
	Diag Diagnostic
}

// Error implements the error interface.
func (e *SearchFailed) Error() string {
	return fmt.Sprintf("search request failed with status %d (%s)", e.Diag.StatusCode, e.Diag.URL)
}

// Is allows for error checking with errors.Is().
func (e *SearchFailed) Is(target error) bool {
	_, ok := target.(*SearchFailed)
	return ok
}

func (e *SearchFailed) Kind() string           { return KindSearchFailed }
func (e *SearchFailed) Diagnostic() Diagnostic { return e.Diag }

// ParseFailed means the response body lacked the expected results structure:
// either the site changed its markup or served an anti-automation page.
// Distinct from a structurally valid page with zero results.
type ParseFailed struct {
	Diag Diagnostic
}

// Error implements the error interface.
func (e *ParseFailed) Error() string {
	return fmt.Sprintf("results structure not found in response from %s", e.Diag.URL)
}

// Is allows for error checking with errors.Is().
func (e *ParseFailed) Is(target error) bool {
	_, ok := target.(*ParseFailed)
	return ok
}

func (e *ParseFailed) Kind() string           { return KindParseFailed }
func (e *ParseFailed) Diagnostic() Diagnostic { return e.Diag }

// DownloadFailed means every mirror candidate was rejected or failed at the
// transport level. Diag holds the last observed failure.
type DownloadFailed struct {
	Diag    Diagnostic
	Mirrors int
}

// Error implements the error interface.
func (e *DownloadFailed) Error() string {
	return fmt.Sprintf("all %d download mirrors failed, last: %s", e.Mirrors, e.Diag)
}

// Is allows for error checking with errors.Is().
func (e *DownloadFailed) Is(target error) bool {
	_, ok := target.(*DownloadFailed)
	return ok
}

func (e *DownloadFailed) Kind() string           { return KindDownloadFailed }
func (e *DownloadFailed) Diagnostic() Diagnostic { return e.Diag }

// ValidationError rejects malformed input before any network access. It is a
// distinct pre-flight class, deliberately outside the I/O taxonomy.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is allows for error checking with errors.Is().
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}
