package output

import (
	"html"
	"strings"
)

// Highlighted renders an engine snippet for the terminal: text between pre
// and post is drawn in the match style (or wrapped in ** without colour) and
// HTML entities are decoded.
func (w *Writer) Highlighted(snippet, pre, post string) string {
	var b strings.Builder
	rest := snippet
	for {
		i := strings.Index(rest, pre)
		if i < 0 {
			break
		}
		j := strings.Index(rest[i+len(pre):], post)
		if j < 0 {
			break
		}
		b.WriteString(html.UnescapeString(rest[:i]))
		match := html.UnescapeString(rest[i+len(pre) : i+len(pre)+j])
		if w.color {
			b.WriteString(w.styles.Match.Render(match))
		} else {
			b.WriteString("**" + match + "**")
		}
		rest = rest[i+len(pre)+j+len(post):]
	}
	b.WriteString(html.UnescapeString(rest))
	return b.String()
}
