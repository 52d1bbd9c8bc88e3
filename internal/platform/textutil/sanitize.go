package textutil

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeText strips any markup from free-text user input and trims
// surrounding whitespace. Entities are unescaped afterwards so plain text
// like "O'Brien" survives unchanged.
func SanitizeText(value string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(value)))
}
