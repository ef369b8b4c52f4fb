package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/roomdex/internal/chat"
	"github.com/Aman-CERP/roomdex/internal/document"
	"github.com/Aman-CERP/roomdex/internal/engine"
	"github.com/Aman-CERP/roomdex/internal/mapping"
)

const botID = "@roomdex:example.org"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) mapping.Store {
	t.Helper()
	s, err := mapping.Open(string(mapping.BackendBolt), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeIdentity struct{}

func (fakeIdentity) UserID() string     { return botID }
func (fakeIdentity) Homeserver() string { return "https://matrix.example.org" }

func newBuilder() *document.Builder {
	return document.NewBuilder(document.BuilderDeps{Identity: fakeIdentity{}, Logger: quietLogger()})
}

// recordingEngine keeps upserted documents by index and event id.
type recordingEngine struct {
	mu       sync.Mutex
	docs     map[string]map[string]document.SearchDocument
	upserts  int
	ensured  []string
	upErr    error
	ensureFn func(name string) error
}

func newRecordingEngine() *recordingEngine {
	return &recordingEngine{docs: make(map[string]map[string]document.SearchDocument)}
}

func (e *recordingEngine) EnsureIndex(_ context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ensureFn != nil {
		if err := e.ensureFn(name); err != nil {
			return err
		}
	}
	e.ensured = append(e.ensured, name)
	return nil
}

func (e *recordingEngine) Upsert(_ context.Context, index string, docs ...document.SearchDocument) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.upErr != nil {
		return e.upErr
	}
	e.upserts++
	if e.docs[index] == nil {
		e.docs[index] = make(map[string]document.SearchDocument)
	}
	for _, d := range docs {
		e.docs[index][d.EventID] = d
	}
	return nil
}

func (e *recordingEngine) Search(context.Context, string, engine.Query) (*engine.Result, error) {
	return nil, errors.New("not implemented")
}

func (e *recordingEngine) Close() error { return nil }

func (e *recordingEngine) indexed(index string) map[string]document.SearchDocument {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]document.SearchDocument, len(e.docs[index]))
	for k, v := range e.docs[index] {
		out[k] = v
	}
	return out
}

type fakeJoiner struct {
	mu     sync.Mutex
	joined []string
	err    error
}

func (j *fakeJoiner) JoinRoom(_ context.Context, room string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.joined = append(j.joined, room)
	return nil
}

// failingStore fails every call.
type failingStore struct{ err error }

func (s failingStore) Lookup(context.Context, string) (mapping.RoomMapping, bool, error) {
	return mapping.RoomMapping{}, false, s.err
}
func (s failingStore) Update(context.Context, string, func(*mapping.RoomMapping) error) error {
	return s.err
}
func (s failingStore) Move(context.Context, string, string) error { return s.err }
func (s failingStore) List(context.Context) ([]mapping.RoomMapping, error) {
	return nil, s.err
}
func (s failingStore) Close() error { return nil }

type fakeDirectory struct {
	aliases map[string]string
	names   map[string]string
	nameErr error
}

func (d fakeDirectory) ResolveRoom(_ context.Context, ref string) (string, error) {
	if ref[0] == '!' {
		return ref, nil
	}
	if id, ok := d.aliases[ref]; ok {
		return id, nil
	}
	return "", errors.New("M_NOT_FOUND: room alias not found")
}

func (d fakeDirectory) RoomName(_ context.Context, room string) (string, error) {
	if d.nameErr != nil {
		return "", d.nameErr
	}
	return d.names[room], nil
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][2]string
}

func (r *recordingInvalidator) InvalidateMember(room, user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, [2]string{room, user})
}

func textMessage(room, id, body string, ts int64) chat.Message {
	return chat.Message{
		Room:      room,
		ID:        id,
		Sender:    "@alice:example.org",
		Timestamp: ts,
		Content:   chat.MessageContent{Kind: chat.KindText, Body: body},
	}
}
