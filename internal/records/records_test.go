package records

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	seed := []Record{
		{GameType: "gomoku", RoomID: "g1", Moves: json.RawMessage(`[{"row":0,"col":0,"color":"black"}]`), Winner: "black", PlayerCount: 2, Duration: 60, CreatedAt: base},
		{GameType: "landlord", RoomID: "l1", Winner: "farmers", PlayerCount: 3, SpectatorCount: 2, Duration: 300, CreatedAt: base.Add(time.Minute)},
		{GameType: "gomoku", RoomID: "g2", Winner: "white", PlayerCount: 2, SpectatorCount: 1, Duration: 120, CreatedAt: base.Add(2 * time.Minute)},
	}
	ids := make([]int64, len(seed))
	for i, rec := range seed {
		id, err := s.RecordGame(ctx, rec)
		require.NoError(t, err)
		ids[i] = id
	}

	t.Run("query newest first", func(t *testing.T) {
		got, err := s.QueryGames(ctx, Query{GameType: "gomoku"})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "g2", got[0].RoomID)
		assert.Equal(t, "g1", got[1].RoomID)
		assert.JSONEq(t, `[{"row":0,"col":0,"color":"black"}]`, string(got[1].Moves))
	})

	t.Run("query all with paging", func(t *testing.T) {
		got, err := s.QueryGames(ctx, Query{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "l1", got[0].RoomID)

		got, err = s.QueryGames(ctx, Query{Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("by id", func(t *testing.T) {
		rec, err := s.GameByID(ctx, ids[1])
		require.NoError(t, err)
		assert.Equal(t, "farmers", rec.Winner)
		assert.Equal(t, 2, rec.SpectatorCount)
		assert.JSONEq(t, `[]`, string(rec.Moves))

		_, err = s.GameByID(ctx, 9999)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("stats", func(t *testing.T) {
		st, err := s.GameStats(ctx, "gomoku")
		require.NoError(t, err)
		assert.Equal(t, int64(2), st.Count)
		assert.InDelta(t, 90, st.AvgDuration, 0.001)
		assert.InDelta(t, 0.5, st.AvgSpectators, 0.001)

		st, err = s.GameStats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(3), st.Count)

		st, err = s.GameStats(ctx, "racing")
		require.NoError(t, err)
		assert.Equal(t, int64(0), st.Count)
	})

	require.NoError(t, s.Ping(ctx))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "data", "records.db"), true, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}

func TestSQLiteStore_MigrateTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.db")
	s, err := OpenSQLite(context.Background(), path, true, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(context.Background(), path, true, nil)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.RecordGame(context.Background(), Record{GameType: "racing", RoomID: "r1"})
	require.NoError(t, err)
}

func TestNopStore(t *testing.T) {
	ctx := context.Background()
	s := NopStore{}
	id, err := s.RecordGame(ctx, Record{GameType: "gomoku"})
	require.NoError(t, err)
	assert.Zero(t, id)

	got, err := s.QueryGames(ctx, Query{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.ErrorIs(t, s.Ping(ctx), ErrDisabled)
	assert.True(t, IsDisabled(s))
	assert.False(t, IsDisabled(NewMemoryStore()))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Driver: "none"}, nil)
	require.NoError(t, err)
	assert.True(t, IsDisabled(s))

	s, err = Open(ctx, Options{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(ctx, Options{Driver: "mongo"}, nil)
	assert.Error(t, err)
}

func TestQueryNormalize(t *testing.T) {
	assert.Equal(t, Query{Limit: DefaultLimit}, Query{}.Normalize())
	assert.Equal(t, Query{Limit: MaxLimit}, Query{Limit: 5000, Offset: -3}.Normalize())
}

type failingStore struct {
	NopStore
	calls atomic.Int32
}

func (f *failingStore) RecordGame(context.Context, Record) (int64, error) {
	f.calls.Add(1)
	return 0, errors.New("connection refused")
}

type blockingStore struct {
	NopStore
	release chan struct{}
}

func (b *blockingStore) RecordGame(ctx context.Context, _ Record) (int64, error) {
	<-b.release
	return 1, nil
}

func TestRecorder_WritesAndDrains(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, 8, time.Second, nil)
	go rec.Run(context.Background())

	for i := 0; i < 5; i++ {
		assert.True(t, rec.Submit(Record{GameType: "gomoku", RoomID: "r"}))
	}
	require.NoError(t, rec.Close(context.Background()))

	got, err := store.QueryGames(context.Background(), Query{})
	require.NoError(t, err)
	assert.Len(t, got, 5)
	assert.False(t, rec.Submit(Record{GameType: "gomoku"}))
}

func TestRecorder_SwallowsStoreErrors(t *testing.T) {
	store := &failingStore{}
	var failures atomic.Int32
	rec := NewRecorder(store, 4, time.Second, nil, OnWrite(func(err error) {
		if err != nil {
			failures.Add(1)
		}
	}))
	go rec.Run(context.Background())

	rec.Submit(Record{GameType: "racing"})
	rec.Submit(Record{GameType: "racing"})
	require.NoError(t, rec.Close(context.Background()))
	assert.Equal(t, int32(2), store.calls.Load())
	assert.Equal(t, int32(2), failures.Load())
}

func TestRecorder_SkipsWhenFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	var skipped atomic.Int32
	rec := NewRecorder(store, 1, time.Second, nil, OnSkip(func() { skipped.Add(1) }))

	// without a running writer the queue holds exactly one record
	assert.True(t, rec.Submit(Record{GameType: "gomoku"}))
	assert.False(t, rec.Submit(Record{GameType: "gomoku"}))
	assert.Equal(t, int32(1), skipped.Load())

	go rec.Run(context.Background())
	close(store.release)
	require.NoError(t, rec.Close(context.Background()))
}
