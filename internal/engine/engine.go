// Package engine is the search-engine port: index administration, document
// upserts keyed by event id and newest-first full-text queries with a
// timestamp cursor.
//
// Two adapters exist. BleveEngine embeds one bleve index per index name and
// needs no external service. MeiliEngine talks to a Meilisearch server.
package engine

import (
	"context"
	"errors"
	"html"
	"regexp"
	"strings"

	"github.com/Aman-CERP/roomdex/internal/document"
)

// Highlight markers wrapped around matched terms in Hit.Highlighted.
const (
	HighlightPreTag  = `<span class="keyword">`
	HighlightPostTag = `</span>`
)

// escapeHighlighted HTML-escapes s except for the highlight tags, so only the
// markers are ever rendered as markup.
func escapeHighlighted(s string) string {
	var b strings.Builder
	for {
		i := strings.Index(s, HighlightPreTag)
		if i < 0 {
			break
		}
		start := i + len(HighlightPreTag)
		j := strings.Index(s[start:], HighlightPostTag)
		if j < 0 {
			break
		}
		b.WriteString(html.EscapeString(s[:i]))
		b.WriteString(HighlightPreTag)
		b.WriteString(html.EscapeString(s[start : start+j]))
		b.WriteString(HighlightPostTag)
		s = s[start+j+len(HighlightPostTag):]
	}
	b.WriteString(html.EscapeString(s))
	return b.String()
}

// PrimaryKey is the document field every index is keyed by.
const PrimaryKey = "event_id"

var (
	// ErrIndexNotFound is returned when searching an index that was never created.
	ErrIndexNotFound = errors.New("index not found")

	// ErrInvalidIndexName is returned for names that are not [A-Za-z0-9_-]+.
	ErrInvalidIndexName = errors.New("index name must contain only letters, digits, '-' and '_'")

	indexNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,400}$`)
)

// ValidateIndexName checks name against the rules both backends share.
func ValidateIndexName(name string) error {
	if !indexNameRe.MatchString(name) {
		return ErrInvalidIndexName
	}
	return nil
}

// Query is one search request.
type Query struct {
	// Text is matched against the message body. Empty matches everything.
	Text string
	// Before, when set, restricts results to timestamp < *Before.
	Before *int64
	// Limit is the page size.
	Limit int
}

// Hit is one matching document.
type Hit struct {
	Document document.SearchDocument
	// Highlighted is the body with matches wrapped in the highlight tags.
	Highlighted string
}

// Result is one page of hits, newest first.
type Result struct {
	Hits []Hit
	// EstimatedTotal counts every match of the query, cursor included.
	EstimatedTotal int
	Limit          int
}

// HasMore reports whether matches exist beyond this page.
func (r *Result) HasMore() bool {
	return r.EstimatedTotal > r.Limit
}

// Engine is the search engine collaborator.
type Engine interface {
	// EnsureIndex creates name if needed, keyed by event_id, with sender_id
	// and timestamp filterable and timestamp sortable.
	EnsureIndex(ctx context.Context, name string) error

	// Upsert inserts or replaces docs by event_id.
	Upsert(ctx context.Context, index string, docs ...document.SearchDocument) error

	// Search runs q against index sorted by timestamp descending.
	Search(ctx context.Context, index string, q Query) (*Result, error)

	Close() error
}
