// Package validation sanitizes caller input before any network access.
// Rejections are *apperrors.ValidationError, a pre-flight class distinct
// from the I/O error taxonomy.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/subdex/subdex/internal/apperrors"
)

const (
	// MaxQueryLen bounds the search query after trimming.
	MaxQueryLen = 200

	// MaxPage bounds the page number; the source itself stops paginating
	// well before this.
	MaxPage = 100

	// MaxIDLen bounds a subtitle identifier.
	MaxIDLen = 12
)

var numericIDPattern = regexp.MustCompile(`^[0-9]+$`)

// Query trims and validates a search query, returning the cleaned value.
func Query(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", &apperrors.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if len(query) > MaxQueryLen {
		return "", &apperrors.ValidationError{
			Field:  "query",
			Reason: fmt.Sprintf("must be at most %d characters, got %d", MaxQueryLen, len(query)),
		}
	}
	return query, nil
}

// Page validates a page number.
func Page(page int) error {
	if page < 1 || page > MaxPage {
		return &apperrors.ValidationError{
			Field:  "page",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxPage, page),
		}
	}
	return nil
}

// SubtitleID validates the shape of a subtitle identifier: decimal digits
// only, bounded length.
func SubtitleID(id string) error {
	if id == "" {
		return &apperrors.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if len(id) > MaxIDLen {
		return &apperrors.ValidationError{
			Field:  "id",
			Reason: fmt.Sprintf("must be at most %d digits", MaxIDLen),
		}
	}
	if !numericIDPattern.MatchString(id) {
		return &apperrors.ValidationError{Field: "id", Reason: "must be numeric"}
	}
	return nil
}
