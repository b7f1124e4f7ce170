package parser

import (
	"io"

	"golang.org/x/net/html/charset"
)

// NewUTF8Reader wraps body with automatic character encoding detection and
// conversion to UTF-8, so goquery always sees UTF-8 regardless of what the
// source serves (ISO-8859-1, Windows-1252, ...).
//
// Detection uses <meta> tags, XML declarations, BOMs, and finally a
// heuristic; already-UTF-8 content passes through with minimal overhead.
func NewUTF8Reader(body io.Reader) (io.Reader, error) {
	// Empty contentType: detect from the document itself.
	return charset.NewReader(body, "")
}
