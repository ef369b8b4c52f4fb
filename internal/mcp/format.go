package mcp

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/Aman-CERP/roomdex/internal/gateway"
)

var keywordToMarkdown = strings.NewReplacer(`<span class="keyword">`, "**", `</span>`, "**")

// FormatMessages formats one page of search results as markdown.
func FormatMessages(index, query string, page *gateway.Page) string {
	if page == nil || len(page.Messages) == 0 {
		if query == "" {
			return fmt.Sprintf("No messages in %q", index)
		}
		return fmt.Sprintf("No messages matching %q in %q", query, index)
	}

	var sb strings.Builder
	if query == "" {
		fmt.Fprintf(&sb, "## Messages in %q\n\n", index)
	} else {
		fmt.Fprintf(&sb, "## Messages matching %q in %q\n\n", query, index)
	}

	for i, m := range page.Messages {
		formatMessage(&sb, i+1, m)
	}

	if page.HasMore {
		last := page.Messages[len(page.Messages)-1]
		fmt.Fprintf(&sb, "_More results: call again with before=%d._\n", last.Timestamp)
	}
	return sb.String()
}

func formatMessage(sb *strings.Builder, num int, m gateway.Message) {
	sender := "unknown sender"
	if m.DisplayName != nil {
		sender = *m.DisplayName
	}
	when := time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339)

	fmt.Fprintf(sb, "### %d. %s, %s\n\n", num, sender, when)
	sb.WriteString(markdownBody(m.HTMLBody))
	sb.WriteString("\n\n")
	if m.ExternalURL != nil {
		fmt.Fprintf(sb, "Link: %s\n\n", *m.ExternalURL)
	}
}

// markdownBody turns a highlighted body into markdown with bold keywords.
func markdownBody(highlighted string) string {
	return html.UnescapeString(keywordToMarkdown.Replace(highlighted))
}

// FormatRooms formats the room listing as markdown.
func FormatRooms(groups []gateway.Group) string {
	if len(groups) == 0 {
		return "No rooms are indexed yet."
	}

	var sb strings.Builder
	sb.WriteString("## Indexed rooms\n\n")
	sb.WriteString("| Index | Room |\n|---|---|\n")
	for _, g := range groups {
		fmt.Fprintf(&sb, "| %s | %s |\n", g.IndexName, g.RoomName)
	}
	return sb.String()
}

// nextBefore is the cursor for the page after p, nil on the last page.
func nextBefore(p *gateway.Page) *int64 {
	if p == nil || !p.HasMore || len(p.Messages) == 0 {
		return nil
	}
	ts := p.Messages[len(p.Messages)-1].Timestamp
	return &ts
}
