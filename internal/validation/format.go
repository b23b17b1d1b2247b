package validation

import (
	"html"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var (
	formats  = validator.New()
	stripper = bluemonday.StrictPolicy()
)

// checkFormat reports whether s satisfies a named string format.
// Unknown formats fail closed.
func checkFormat(format, s string) bool {
	switch format {
	case "email", "url", "uuid":
		return formats.Var(s, format) == nil
	default:
		return false
	}
}

// maxSanitizePasses bounds the strip/decode loop for nested entity encodings
const maxSanitizePasses = 8

// sanitizeHTML strips all markup and returns plain text. Stripping and entity
// decoding alternate until the value is stable, so markup hidden behind one
// or more layers of entity encoding is stripped too. A value that never
// settles is returned in bluemonday's escaped form.
func sanitizeHTML(s string) string {
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(stripper.Sanitize(s))
		if next == s {
			return next
		}
		s = next
	}
	return stripper.Sanitize(s)
}
