package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardroomhq/cardroom/internal/game"
)

func newDoc(id string) *TableDoc {
	return &TableDoc{
		ID:         id,
		Name:       "test",
		MaxPlayers: 6,
		SmallBlind: 10,
		BigBlind:   20,
		Seats: []Seat{
			{PlayerID: "alice", Name: "Alice", Stack: 1000},
			{PlayerID: "bob", Name: "Bob", Stack: 1000},
		},
		CreatedAt: time.Now(),
	}
}

func TestMemoryStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	doc := newDoc("t1")
	require.NoError(t, m.CreateTable(ctx, doc))
	assert.Equal(t, uint64(1), doc.Version)

	got, err := m.Table(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, uint64(1), got.Version)
	assert.Len(t, got.Seats, 2)

	require.Error(t, m.CreateTable(ctx, newDoc("t1")), "duplicate create must fail")

	_, err = m.Table(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreCompareAndSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateTable(ctx, newDoc("t1")))

	// Two readers hold version 1.
	first, err := m.Table(ctx, "t1")
	require.NoError(t, err)
	second, err := m.Table(ctx, "t1")
	require.NoError(t, err)

	first.Seats[0].Stack = 900
	require.NoError(t, m.SaveTable(ctx, first, first.Version))
	assert.Equal(t, uint64(2), first.Version, "save must bump the caller's version")

	// The loser of the race gets a conflict, not a silent overwrite.
	second.Seats[0].Stack = 500
	err = m.SaveTable(ctx, second, second.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	got, err := m.Table(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 900, got.Seats[0].Stack, "winning write must be preserved")
	assert.Equal(t, uint64(2), got.Version)
}

func TestMemoryStoreReturnsIsolatedCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateTable(ctx, newDoc("t1")))

	got, err := m.Table(ctx, "t1")
	require.NoError(t, err)
	got.Seats[0].Stack = -1

	fresh, err := m.Table(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1000, fresh.Seats[0].Stack, "mutating a returned doc must not leak into the store")
}

func TestMemoryStoreTablesAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	require.NoError(t, m.CreateTable(ctx, newDoc("t1")))
	require.NoError(t, m.CreateTable(ctx, newDoc("t2")))

	docs, err := m.Tables(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	require.NoError(t, m.DeleteTable(ctx, "t1"))
	assert.ErrorIs(t, m.DeleteTable(ctx, "t1"), ErrNotFound)

	docs, err = m.Tables(ctx)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestMemoryStoreEventQuery(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	now := time.Now()
	events := []game.Event{
		{HandNum: 1, Seq: 1, Kind: game.EventAction, Seat: 0, PlayerID: "alice", Timestamp: now},
		{HandNum: 1, Seq: 2, Kind: game.EventAction, Seat: 1, PlayerID: "bob", Timestamp: now},
		{HandNum: 1, Seq: 3, Kind: game.EventShownCards, Seat: 0, PlayerID: "alice", Timestamp: now},
		{HandNum: 2, Seq: 1, Kind: game.EventAction, Seat: 1, PlayerID: "bob", Timestamp: now},
		{HandNum: 2, Seq: 2, Kind: game.EventSpectatorJoin, Seat: -1, PlayerID: "carol", Timestamp: now},
	}
	for _, ev := range events {
		require.NoError(t, m.Append(ctx, "t1", ev))
	}

	t.Run("all events newest first", func(t *testing.T) {
		got, err := m.Query(ctx, "t1", EventFilter{})
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, uint64(2), got[0].HandNum)
		assert.Equal(t, game.EventSpectatorJoin, got[0].Kind)
	})

	t.Run("by hand", func(t *testing.T) {
		got, err := m.Query(ctx, "t1", EventFilter{HandNum: 1})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("by player and kind", func(t *testing.T) {
		got, err := m.Query(ctx, "t1", EventFilter{PlayerID: "alice", Kind: game.EventShownCards})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uint64(3), got[0].Seq)
	})

	t.Run("limit keeps most recent", func(t *testing.T) {
		got, err := m.Query(ctx, "t1", EventFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, uint64(2), got[0].HandNum)
	})

	t.Run("unknown table is empty", func(t *testing.T) {
		got, err := m.Query(ctx, "nope", EventFilter{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
