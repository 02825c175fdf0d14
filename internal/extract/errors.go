package extract

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const snippetLimit = 120

// ParseError describes why a model response could not be turned into the
// requested value. It is an expected outcome, not a fault.
type ParseError struct {
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet == "" {
		return "parse: " + e.Reason
	}
	return fmt.Sprintf("parse: %s (response: %q)", e.Reason, e.Snippet)
}

// Failf builds a ParseError for raw.
func Failf(raw, format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...), Snippet: snippet(raw)}
}

// IsParseError reports whether err is or wraps a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

func snippet(raw string) string {
	if len(raw) <= snippetLimit {
		return raw
	}
	cut := snippetLimit
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return raw[:cut] + "..."
}
