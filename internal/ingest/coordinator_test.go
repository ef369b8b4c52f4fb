package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/roomdex/internal/chat"
	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/mapping"
)

func newCoordinator(t *testing.T) (*Coordinator, mapping.Store, *recordingEngine) {
	t.Helper()
	store := newStore(t)
	eng := newRecordingEngine()
	c := NewCoordinator(CoordinatorConfig{Builder: newBuilder(), Store: store, Engine: eng, Logger: quietLogger()})
	return c, store, eng
}

func TestCoordinator_IndexesIntoBoundIndex(t *testing.T) {
	// Given: a room bound to "general"
	c, store, eng := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mapping.SetIndex(ctx, store, "!r:example.org", "general"))

	// When: a message arrives
	outcome, err := c.HandleMessage(ctx, textMessage("!r:example.org", "$e1", "hello", 100))

	// Then: it is upserted into that index under the normalized id
	require.NoError(t, err)
	assert.Equal(t, OutcomeIndexed, outcome)
	docs := eng.indexed("general")
	require.Contains(t, docs, "e1")
	assert.Equal(t, "hello", docs["e1"].Body)
	assert.Equal(t, int64(100), docs["e1"].Timestamp)
}

func TestCoordinator_UnboundRoomIsNoop(t *testing.T) {
	c, _, eng := newCoordinator(t)

	outcome, err := c.HandleMessage(context.Background(), textMessage("!unbound:example.org", "$e1", "hello", 1))

	require.NoError(t, err)
	assert.Equal(t, OutcomeUnmapped, outcome)
	assert.Zero(t, eng.upserts)
}

func TestCoordinator_SelfMessageWritesNothing(t *testing.T) {
	c, store, eng := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mapping.SetIndex(ctx, store, "!r:example.org", "general"))

	msg := textMessage("!r:example.org", "$e1", "echo", 1)
	msg.Sender = botID
	outcome, err := c.HandleMessage(ctx, msg)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, eng.upserts)
}

func TestCoordinator_UnsupportedKindSkipped(t *testing.T) {
	c, store, eng := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mapping.SetIndex(ctx, store, "!r:example.org", "general"))

	msg := textMessage("!r:example.org", "$e1", "voice.ogg", 1)
	msg.Content.Kind = chat.KindAudio
	outcome, err := c.HandleMessage(ctx, msg)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Zero(t, eng.upserts)
}

func TestCoordinator_EditsReplaceOneDocument(t *testing.T) {
	// Given: an original message and three edits of it
	c, store, eng := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mapping.SetIndex(ctx, store, "!r:example.org", "general"))

	_, err := c.HandleMessage(ctx, textMessage("!r:example.org", "$orig", "frist", 10))
	require.NoError(t, err)
	for i, body := range []string{"first", "first!", "first!!"} {
		edit := textMessage("!r:example.org", "$edit"+string(rune('a'+i)), "* "+body, int64(11+i))
		edit.Edit = &chat.Edit{Target: "$orig", NewContent: chat.MessageContent{Kind: chat.KindText, Body: body}}
		_, err := c.HandleMessage(ctx, edit)
		require.NoError(t, err)
	}

	// Then: one document keyed by the original id holds the latest content
	docs := eng.indexed("general")
	require.Len(t, docs, 1)
	assert.Equal(t, "first!!", docs["orig"].Body)
}

func TestCoordinator_EngineFailureIsRetryable(t *testing.T) {
	c, store, eng := newCoordinator(t)
	ctx := context.Background()
	require.NoError(t, mapping.SetIndex(ctx, store, "!r:example.org", "general"))
	eng.upErr = errors.New("connection refused")

	outcome, err := c.HandleMessage(ctx, textMessage("!r:example.org", "$e1", "hello", 1))

	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, rxerrors.IsRetryable(err))
	assert.Equal(t, rxerrors.ErrCodeEngineUnavailable, rxerrors.GetCode(err))

	// And: the mapping is untouched
	index, ok, err := mapping.GetIndex(ctx, store, "!r:example.org")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "general", index)
}

func TestCoordinator_StoreFailure(t *testing.T) {
	eng := newRecordingEngine()
	c := NewCoordinator(CoordinatorConfig{
		Builder: newBuilder(),
		Store:   failingStore{err: errors.New("disk I/O error")},
		Engine:  eng,
		Logger:  quietLogger(),
	})

	outcome, err := c.HandleMessage(context.Background(), textMessage("!r:example.org", "$e1", "hello", 1))

	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, rxerrors.ErrCodeStoreTxn, rxerrors.GetCode(err))
	assert.Zero(t, eng.upserts)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "indexed", OutcomeIndexed.String())
	assert.Equal(t, "unmapped", OutcomeUnmapped.String())
	assert.Equal(t, "unknown", Outcome(42).String())
}
