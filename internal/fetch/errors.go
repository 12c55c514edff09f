package fetch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageRunes bounds the length of any error text shown to a user.
const MaxMessageRunes = 160

// SourceError is the contained failure of one source. Message is safe to
// show; Err keeps the original cause for logs and errors.Is.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func newSourceError(source string, err error) *SourceError {
	return &SourceError{Source: source, Message: Sanitize(err.Error()), Err: err}
}

func (e *SourceError) Error() string {
	return e.Source + ": " + e.Message
}

func (e *SourceError) Unwrap() error { return e.Err }

// ErrHTMLPayload marks a body that sniffed as an HTML document.
var ErrHTMLPayload = errors.New("response was an HTML page, not JSON")

// ErrInvalidPayload marks a body that is not well-formed JSON.
var ErrInvalidPayload = errors.New("response was not valid JSON")

// validatePayload accepts only well-formed JSON. Content type and status
// are deliberately not consulted.
func validatePayload(body []byte) error {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if LooksLikeHTML(trimmed) {
		return ErrHTMLPayload
	}
	if !json.Valid(trimmed) {
		return ErrInvalidPayload
	}
	return nil
}

// LooksLikeHTML reports whether body starts like markup rather than JSON.
// A doctype, an html tag or any other leading tag all qualify.
func LooksLikeHTML(body []byte) bool {
	b := bytes.TrimSpace(body)
	return len(b) > 0 && b[0] == '<'
}

var (
	blockTags     = regexp.MustCompile(`(?is)<(script|style|head)[^>]*>.*?</(script|style|head)>`)
	anyTag        = regexp.MustCompile(`(?s)<[^>]*>`)
	uuidLike      = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`)
	// provider|id or kind:id, not preceded by a host, path or number
	machineTagged = regexp.MustCompile(`(^|[^A-Za-z0-9_.:/|-])[a-z][a-z0-9_-]*[:|][A-Za-z0-9][A-Za-z0-9_.-]*`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// Sanitize turns arbitrary error text into a short, display-safe message:
// markup removed, entities decoded, whitespace collapsed, opaque user ids
// replaced, and the result capped at MaxMessageRunes.
func Sanitize(msg string) string {
	s := blockTags.ReplaceAllString(msg, " ")
	s = anyTag.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = uuidLike.ReplaceAllString(s, "unknown user")
	s = machineTagged.ReplaceAllString(s, "${1}unknown user")
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	if s == "" {
		return "source unavailable"
	}
	if utf8.RuneCountInString(s) <= MaxMessageRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:MaxMessageRunes-1])) + "…"
}
