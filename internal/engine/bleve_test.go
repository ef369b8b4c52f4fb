package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/roomdex/internal/document"
)

func newMemEngine(t *testing.T) *BleveEngine {
	t.Helper()
	e, err := NewBleveEngine("", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func doc(id string, ts int64, body string) document.SearchDocument {
	return document.SearchDocument{
		EventID:   id,
		Body:      body,
		SenderID:  "@alice:example.org",
		Timestamp: ts,
		RoomID:    "!room:example.org",
	}
}

func timestamps(res *Result) []int64 {
	out := make([]int64, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, h.Document.Timestamp)
	}
	return out
}

func TestBleveEngine_CursorPagination(t *testing.T) {
	// Given: four matching messages at 100, 90, 80, 70
	ctx := context.Background()
	e := newMemEngine(t)
	require.NoError(t, e.EnsureIndex(ctx, "general"))
	require.NoError(t, e.Upsert(ctx, "general",
		doc("e80", 80, "deploy three"),
		doc("e100", 100, "deploy one"),
		doc("e70", 70, "deploy four"),
		doc("e90", 90, "deploy two"),
	))

	// When: requesting the first page of 2
	first, err := e.Search(ctx, "general", Query{Text: "deploy", Limit: 2})
	require.NoError(t, err)

	// Then: newest first with more to come
	assert.Equal(t, []int64{100, 90}, timestamps(first))
	assert.True(t, first.HasMore())

	// When: continuing from the last timestamp
	cursor := int64(90)
	second, err := e.Search(ctx, "general", Query{Text: "deploy", Before: &cursor, Limit: 2})
	require.NoError(t, err)

	// Then: the remaining two and nothing more
	assert.Equal(t, []int64{80, 70}, timestamps(second))
	assert.False(t, second.HasMore())
}

func TestBleveEngine_UpsertReplacesByEventID(t *testing.T) {
	// Given: a message and two edits sharing its event id
	ctx := context.Background()
	e := newMemEngine(t)

	require.NoError(t, e.Upsert(ctx, "general", doc("orig", 10, "helo wrld")))
	require.NoError(t, e.Upsert(ctx, "general", doc("orig", 10, "hello wrld")))
	require.NoError(t, e.Upsert(ctx, "general", doc("orig", 10, "hello world")))

	// When: listing everything
	res, err := e.Search(ctx, "general", Query{Limit: 10})
	require.NoError(t, err)

	// Then: exactly one document with the latest body
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 1, res.EstimatedTotal)
	assert.Equal(t, "orig", res.Hits[0].Document.EventID)
	assert.Equal(t, "hello world", res.Hits[0].Document.Body)
}

func TestBleveEngine_HighlightsBodyOnly(t *testing.T) {
	ctx := context.Background()
	e := newMemEngine(t)

	d := doc("e1", 1, "the deploy finished")
	d.SenderDisplayName = "deploy bot"
	d.ExternalURL = "https://example.org/deploy"
	require.NoError(t, e.Upsert(ctx, "general", d, doc("e2", 2, "unrelated chatter")))

	res, err := e.Search(ctx, "general", Query{Text: "deploy", Limit: 10})
	require.NoError(t, err)

	require.Len(t, res.Hits, 1)
	hit := res.Hits[0]
	assert.Equal(t, `the <span class="keyword">deploy</span> finished`, hit.Highlighted)
	assert.Equal(t, "deploy bot", hit.Document.SenderDisplayName)
	assert.Equal(t, "https://example.org/deploy", hit.Document.ExternalURL)
	assert.Equal(t, "@alice:example.org", hit.Document.SenderID)
	assert.Equal(t, "!room:example.org", hit.Document.RoomID)
}

func TestBleveEngine_HighlightedBodyIsEscaped(t *testing.T) {
	ctx := context.Background()
	e := newMemEngine(t)
	require.NoError(t, e.Upsert(ctx, "general", doc("e1", 1, "x < y cat"), doc("e2", 2, "a & <b>")))

	res, err := e.Search(ctx, "general", Query{Text: "cat", Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, `x &lt; y <span class="keyword">cat</span>`, res.Hits[0].Highlighted)

	res, err = e.Search(ctx, "general", Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Hits, 2)
	assert.Equal(t, "a &amp; &lt;b&gt;", res.Hits[0].Highlighted)
}

func TestBleveEngine_EmptyQueryMatchesAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	e := newMemEngine(t)
	require.NoError(t, e.Upsert(ctx, "general", doc("a", 5, "alpha"), doc("b", 50, "beta"), doc("c", 20, "gamma")))

	res, err := e.Search(ctx, "general", Query{Text: "  ", Limit: 10})
	require.NoError(t, err)

	assert.Equal(t, []int64{50, 20, 5}, timestamps(res))
	assert.Equal(t, "beta", res.Hits[0].Highlighted)
}

func TestBleveEngine_SearchUnknownIndex(t *testing.T) {
	e := newMemEngine(t)
	_, err := e.Search(context.Background(), "missing", Query{Text: "x", Limit: 1})
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestBleveEngine_RejectsBadIndexNames(t *testing.T) {
	e := newMemEngine(t)
	for _, name := range []string{"", "../etc", "with space", "a/b"} {
		assert.ErrorIs(t, e.EnsureIndex(context.Background(), name), ErrInvalidIndexName, name)
	}
}

func TestBleveEngine_PersistsOnDisk(t *testing.T) {
	// Given: an on-disk engine with one document
	ctx := context.Background()
	dir := t.TempDir()

	e, err := NewBleveEngine(dir, nil)
	require.NoError(t, err)
	require.NoError(t, e.EnsureIndex(ctx, "general"))
	require.NoError(t, e.Upsert(ctx, "general", doc("e1", 1, "persisted message")))
	require.NoError(t, e.Close())
	assert.DirExists(t, filepath.Join(dir, "general.bleve"))

	// When: reopening
	e, err = NewBleveEngine(dir, nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	// Then: the document is still searchable
	res, err := e.Search(ctx, "general", Query{Text: "persisted", Limit: 5})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "e1", res.Hits[0].Document.EventID)

	_, err = e.Search(ctx, "other", Query{Limit: 5})
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestBleveEngine_ClosedEngineFails(t *testing.T) {
	e, err := NewBleveEngine("", nil)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	assert.Error(t, e.EnsureIndex(context.Background(), "general"))
}

func TestOpen(t *testing.T) {
	e, err := Open(Options{Backend: "bleve"})
	require.NoError(t, err)
	assert.IsType(t, &BleveEngine{}, e)
	require.NoError(t, e.Close())

	e, err = Open(Options{Backend: "meilisearch", URL: "http://127.0.0.1:7700"})
	require.NoError(t, err)
	assert.IsType(t, &MeiliEngine{}, e)

	_, err = Open(Options{Backend: "meilisearch"})
	assert.Error(t, err)

	_, err = Open(Options{Backend: "solr"})
	assert.Error(t, err)
}
