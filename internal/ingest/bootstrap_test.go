package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rxerrors "github.com/Aman-CERP/roomdex/internal/errors"
	"github.com/Aman-CERP/roomdex/internal/mapping"
)

func TestBootstrapper_BindsAndCreatesIndexes(t *testing.T) {
	// Given: one alias and one room id
	store := newStore(t)
	eng := newRecordingEngine()
	b := NewBootstrapper(BootstrapConfig{
		Directory: fakeDirectory{
			aliases: map[string]string{"#general:example.org": "!gen:example.org"},
			names:   map[string]string{"!gen:example.org": "General"},
		},
		Store:  store,
		Engine: eng,
		Logger: quietLogger(),
	})

	// When: applying the configured indices
	report, err := b.Apply(context.Background(), map[string]string{
		"general": "#general:example.org",
		"ops":     "!ops:example.org",
	})

	// Then: both are bound, named where possible, and their indexes exist
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Equal(t, []string{"general", "ops"}, eng.ensured)

	rooms, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []mapping.RoomMapping{
		{RoomID: "!gen:example.org", IndexName: "general", DisplayName: "General"},
		{RoomID: "!ops:example.org", IndexName: "ops", DisplayName: "!ops:example.org"},
	}, rooms)
	assert.Equal(t, rooms, report.Bound)
}

func TestBootstrapper_KeepsNameWhenDirectoryFails(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, mapping.SetName(ctx, store, "!gen:example.org", "Renamed Earlier"))
	b := NewBootstrapper(BootstrapConfig{
		Directory: fakeDirectory{nameErr: errors.New("timeout")},
		Store:     store,
		Engine:    newRecordingEngine(),
		Logger:    quietLogger(),
	})

	_, err := b.Apply(ctx, map[string]string{"general": "!gen:example.org"})
	require.NoError(t, err)

	name, _, err := mapping.GetName(ctx, store, "!gen:example.org")
	require.NoError(t, err)
	assert.Equal(t, "Renamed Earlier", name)
}

func TestBootstrapper_PartialFailure(t *testing.T) {
	// Given: an unknown alias, an invalid index name and a good binding
	store := newStore(t)
	eng := newRecordingEngine()
	b := NewBootstrapper(BootstrapConfig{
		Directory: fakeDirectory{},
		Store:     store,
		Engine:    eng,
		Logger:    quietLogger(),
	})

	// When: applying them
	report, err := b.Apply(context.Background(), map[string]string{
		"missing":  "#gone:example.org",
		"bad name": "!x:example.org",
		"ok":       "!ok:example.org",
	})

	// Then: the good one is bound and the others are reported
	require.Error(t, err)
	require.Len(t, report.Bound, 1)
	assert.Equal(t, "ok", report.Bound[0].IndexName)
	assert.Equal(t, rxerrors.ErrCodeRoomUnknown, rxerrors.GetCode(report.Failed["missing"]))
	assert.Equal(t, rxerrors.ErrCodeInvalidInput, rxerrors.GetCode(report.Failed["bad name"]))
	assert.Contains(t, err.Error(), "missing")
}

func TestBootstrapper_WithoutDirectory(t *testing.T) {
	b := NewBootstrapper(BootstrapConfig{Store: newStore(t), Engine: newRecordingEngine(), Logger: quietLogger()})

	report, err := b.Apply(context.Background(), map[string]string{
		"ids":     "!room:example.org",
		"aliases": "#room:example.org",
		"garbage": "room",
	})

	require.Error(t, err)
	require.Len(t, report.Bound, 1)
	assert.Equal(t, "!room:example.org", report.Bound[0].RoomID)
	assert.Len(t, report.Failed, 2)
}

func TestBootstrapper_RetriesEnsureIndex(t *testing.T) {
	// Given: an engine that fails twice before succeeding
	eng := newRecordingEngine()
	attempts := 0
	eng.ensureFn = func(string) error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	}
	b := NewBootstrapper(BootstrapConfig{
		Store:  newStore(t),
		Engine: eng,
		Retry:  rxerrors.RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
		Logger: quietLogger(),
	})

	// When: bootstrapping
	_, err := b.Apply(context.Background(), map[string]string{"general": "!gen:example.org"})

	// Then: the third attempt succeeds
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []string{"general"}, eng.ensured)
}

func TestBootstrapper_EnsureIndexGivesUp(t *testing.T) {
	eng := newRecordingEngine()
	eng.ensureFn = func(string) error { return errors.New("connection refused") }
	b := NewBootstrapper(BootstrapConfig{Store: newStore(t), Engine: eng, Logger: quietLogger()})

	report, err := b.Apply(context.Background(), map[string]string{"general": "!gen:example.org"})

	require.Error(t, err)
	assert.True(t, rxerrors.IsRetryable(report.Failed["general"]))
}
