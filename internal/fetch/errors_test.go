package fetch

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"<html><body><h1>Bad   Gateway</h1>\n<p>nginx</p></body></html>", "Bad Gateway nginx"},
		{"<script>alert(1)</script>Oops &amp; sorry", "Oops & sorry"},
		{"approver 3fa85f64-5717-4562-b3fc-2c963f66afa6 not found", "approver unknown user not found"},
		{"assigned to auth0|5f1c2d by admin", "assigned to unknown user by admin"},
		{"see https://status.example.com/incidents", "see https://status.example.com/incidents"},
		{"approval held by user:jdoe42 timed out", "approval held by unknown user timed out"},
		{"owner (github:octo-cat) left", "owner (unknown user) left"},
		{"upstream status 500: try later", "upstream status 500: try later"},
		{"dial tcp api.example.com:8443: refused", "dial tcp api.example.com:8443: refused"},
		{"due 2026-01-02T10:30:00Z", "due 2026-01-02T10:30:00Z"},
		{"   ", "source unavailable"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Sanitize(tc.in), tc.in)
	}
}

func TestSanitize_Truncates(t *testing.T) {
	got := Sanitize(strings.Repeat("é", 400))
	assert.Equal(t, MaxMessageRunes, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "…"))
}

func TestValidatePayload(t *testing.T) {
	assert.NoError(t, validatePayload([]byte(` [] `)))
	assert.NoError(t, validatePayload([]byte("\xef\xbb\xbf{\"a\":1}")))
	assert.ErrorIs(t, validatePayload([]byte("<!doctype html><p>x</p>")), ErrHTMLPayload)
	assert.ErrorIs(t, validatePayload([]byte("")), ErrInvalidPayload)
	assert.ErrorIs(t, validatePayload([]byte("{broken")), ErrInvalidPayload)
}
