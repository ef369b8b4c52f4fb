package engine

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/highlight"
	htmlformat "github.com/blevesearch/bleve/v2/search/highlight/format/html"
	simplefragmenter "github.com/blevesearch/bleve/v2/search/highlight/fragmenter/simple"
	simplehighlighter "github.com/blevesearch/bleve/v2/search/highlight/highlighter/simple"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/roomdex/internal/document"
)

// KeywordHighlighterName is the bleve highlighter that wraps matches in the
// highlight tags and returns the whole body as a single fragment.
const KeywordHighlighterName = "roomdex-keyword"

// wholeBody is larger than any chat message, so the fragmenter never cuts.
const wholeBody = 1 << 20

func init() {
	_ = registry.RegisterHighlighter(KeywordHighlighterName, keywordHighlighterConstructor)
}

func keywordHighlighterConstructor(config map[string]interface{}, cache *registry.Cache) (highlight.Highlighter, error) {
	return simplehighlighter.NewHighlighter(
		simplefragmenter.NewFragmenter(wholeBody),
		htmlformat.NewFragmentFormatter(HighlightPreTag, HighlightPostTag),
		simplehighlighter.DefaultSeparator,
	), nil
}

// BleveEngine implements Engine with one embedded bleve index per name.
// bleve holds an exclusive lock on each index, so one process owns them.
type BleveEngine struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	indexes map[string]bleve.Index
	closed  bool
}

var _ Engine = (*BleveEngine)(nil)

// NewBleveEngine stores indexes under dir as <name>.bleve.
// An empty dir keeps every index in memory.
func NewBleveEngine(dir string, logger *slog.Logger) (*BleveEngine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory %s: %w", dir, err)
		}
	}
	return &BleveEngine{
		dir:     dir,
		logger:  logger,
		indexes: make(map[string]bleve.Index),
	}, nil
}

// messageMapping indexes body for full text, keeps identifiers as exact
// keywords and timestamp as a sortable number. Everything else is stored only.
func messageMapping() *mapping.IndexMappingImpl {
	body := bleve.NewTextFieldMapping()
	body.Analyzer = standard.Name

	exact := bleve.NewKeywordFieldMapping()
	exact.Analyzer = keyword.Name
	exact.IncludeInAll = false

	ts := bleve.NewNumericFieldMapping()
	ts.IncludeInAll = false

	storedOnly := bleve.NewTextFieldMapping()
	storedOnly.Index = false
	storedOnly.IncludeInAll = false
	storedOnly.IncludeTermVectors = false
	storedOnly.DocValues = false

	doc := bleve.NewDocumentStaticMapping()
	doc.AddFieldMappingsAt("body", body)
	doc.AddFieldMappingsAt("timestamp", ts)
	for _, f := range []string{"event_id", "sender_id", "room_id"} {
		doc.AddFieldMappingsAt(f, exact)
	}
	for _, f := range []string{"external_url", "sender_display_name", "sender_avatar", "ocr_body"} {
		doc.AddFieldMappingsAt(f, storedOnly)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

func (b *BleveEngine) path(name string) string {
	return filepath.Join(b.dir, name+".bleve")
}

// open returns the named index, creating it when create is set.
func (b *BleveEngine) open(name string, create bool) (bleve.Index, error) {
	if err := ValidateIndexName(name); err != nil {
		return nil, err
	}

	b.mu.RLock()
	idx, ok := b.indexes[name]
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("engine is closed")
	}
	if ok {
		return idx, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if idx, ok := b.indexes[name]; ok {
		return idx, nil
	}

	var err error
	switch {
	case b.dir == "" && !create:
		return nil, ErrIndexNotFound
	case b.dir == "":
		idx, err = bleve.NewMemOnly(messageMapping())
	default:
		idx, err = bleve.Open(b.path(name))
		if err == bleve.ErrorIndexPathDoesNotExist {
			if !create {
				return nil, ErrIndexNotFound
			}
			idx, err = bleve.New(b.path(name), messageMapping())
			if err == nil {
				b.logger.Info("bleve_index_created", slog.String("index", name), slog.String("path", b.path(name)))
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index %s: %w", name, err)
	}

	b.indexes[name] = idx
	return idx, nil
}

// EnsureIndex implements Engine.
func (b *BleveEngine) EnsureIndex(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.open(name, true)
	return err
}

func toFields(d document.SearchDocument) map[string]interface{} {
	fields := map[string]interface{}{
		"event_id":  d.EventID,
		"body":      d.Body,
		"sender_id": d.SenderID,
		"timestamp": float64(d.Timestamp),
		"room_id":   d.RoomID,
	}
	optional := map[string]string{
		"external_url":        d.ExternalURL,
		"sender_display_name": d.SenderDisplayName,
		"sender_avatar":       d.SenderAvatar,
		"ocr_body":            d.OCRBody,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

func fromFields(id string, fields map[string]interface{}) document.SearchDocument {
	str := func(k string) string {
		s, _ := fields[k].(string)
		return s
	}
	d := document.SearchDocument{
		EventID:           id,
		Body:              str("body"),
		ExternalURL:       str("external_url"),
		SenderID:          str("sender_id"),
		SenderDisplayName: str("sender_display_name"),
		SenderAvatar:      str("sender_avatar"),
		RoomID:            str("room_id"),
		OCRBody:           str("ocr_body"),
	}
	if ts, ok := fields["timestamp"].(float64); ok {
		d.Timestamp = int64(ts)
	}
	return d
}

// Upsert implements Engine. Indexes are created on first write, as
// Meilisearch does.
func (b *BleveEngine) Upsert(ctx context.Context, index string, docs ...document.SearchDocument) error {
	if len(docs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	idx, err := b.open(index, true)
	if err != nil {
		return err
	}

	batch := idx.NewBatch()
	for _, d := range docs {
		if d.EventID == "" {
			return fmt.Errorf("document without %s", PrimaryKey)
		}
		if err := batch.Index(d.EventID, toFields(d)); err != nil {
			return fmt.Errorf("failed to index document %s: %w", d.EventID, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search implements Engine.
func (b *BleveEngine) Search(ctx context.Context, index string, q Query) (*Result, error) {
	idx, err := b.open(index, false)
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequestOptions(buildQuery(q), q.Limit, 0, false)
	req.SortBy([]string{"-timestamp"})
	req.Fields = []string{"*"}
	req.Highlight = bleve.NewHighlightWithStyle(KeywordHighlighterName)
	req.Highlight.AddField("body")

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	out := &Result{
		Hits:           make([]Hit, 0, len(res.Hits)),
		EstimatedTotal: int(res.Total),
		Limit:          q.Limit,
	}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, toHit(h))
	}
	return out, nil
}

func buildQuery(q Query) query.Query {
	var text query.Query
	if strings.TrimSpace(q.Text) == "" {
		text = bleve.NewMatchAllQuery()
	} else {
		mq := bleve.NewMatchQuery(q.Text)
		mq.SetField("body")
		text = mq
	}
	if q.Before == nil {
		return text
	}

	upper := float64(*q.Before)
	exclusive := false
	cursor := bleve.NewNumericRangeInclusiveQuery(nil, &upper, nil, &exclusive)
	cursor.SetField("timestamp")
	return bleve.NewConjunctionQuery(text, cursor)
}

func toHit(h *search.DocumentMatch) Hit {
	doc := fromFields(h.ID, h.Fields)
	highlighted := html.EscapeString(doc.Body)
	if frags := h.Fragments["body"]; len(frags) > 0 {
		highlighted = frags[0]
	}
	return Hit{Document: doc, Highlighted: highlighted}
}

// Close implements Engine.
func (b *BleveEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	for name, idx := range b.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close index %s: %w", name, err)
		}
	}
	b.indexes = nil
	return firstErr
}
