package document

import (
	"html"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictOnce   sync.Once
	strictPolicy *bluemonday.Policy

	// rich replies embed the quoted message in an <mx-reply> element
	mxReplyRe = regexp.MustCompile(`(?is)<mx-reply>.*?</mx-reply>`)
)

func policy() *bluemonday.Policy {
	strictOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// StripReplyFallback removes the quoted-reply fallback from a plain body: a
// leading block of "> " lines followed by one blank line.
func StripReplyFallback(body string) string {
	if !strings.HasPrefix(body, ">") {
		return body
	}

	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ">") {
		i++
	}
	if i == len(lines) || strings.TrimSpace(lines[i]) != "" {
		// not a fallback, just a quote
		return body
	}
	return strings.Join(lines[i+1:], "\n")
}

// StripHTMLReply removes <mx-reply> blocks from an HTML body.
func StripHTMLReply(formatted string) string {
	return mxReplyRe.ReplaceAllString(formatted, "")
}

// maxSanitizePasses bounds how often decoded entities are re-sanitized.
const maxSanitizePasses = 4

// Sanitize reduces markup to plain text. Entities decoded into new tags are
// stripped again, so the result never contains markup. If the text does not
// settle, the last pass is returned still entity-encoded.
func Sanitize(s string) string {
	text := s
	for range maxSanitizePasses {
		next := html.UnescapeString(policy().Sanitize(text))
		if next == text {
			return next
		}
		text = next
	}
	return policy().Sanitize(text)
}
