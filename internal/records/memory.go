// internal/records/memory.go
package records

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Used for tests and single node setups that do
// not need history across restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, now: time.Now}
}

func (s *MemoryStore) RecordGame(_ context.Context, rec Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = s.nextID
	s.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	if len(rec.Moves) == 0 {
		rec.Moves = []byte("[]")
	}
	s.records = append(s.records, rec)
	return rec.ID, nil
}

func (s *MemoryStore) QueryGames(_ context.Context, q Query) ([]Record, error) {
	q = q.Normalize()
	s.mu.RLock()
	matched := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if q.GameType == "" || r.GameType == q.GameType {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if q.Offset >= len(matched) {
		return []Record{}, nil
	}
	end := q.Offset + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[q.Offset:end], nil
}

func (s *MemoryStore) GameByID(_ context.Context, id int64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

func (s *MemoryStore) GameStats(_ context.Context, gameType string) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{GameType: gameType}
	var duration, players, spectators float64
	for _, r := range s.records {
		if gameType != "" && r.GameType != gameType {
			continue
		}
		st.Count++
		duration += float64(r.Duration)
		players += float64(r.PlayerCount)
		spectators += float64(r.SpectatorCount)
	}
	if st.Count > 0 {
		n := float64(st.Count)
		st.AvgDuration = duration / n
		st.AvgPlayers = players / n
		st.AvgSpectators = spectators / n
	}
	return st, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
func (s *MemoryStore) Close() error               { return nil }

// NopStore is used when storage is disabled or unreachable. Writes are dropped and reads are
// empty.
type NopStore struct{}

func (NopStore) RecordGame(context.Context, Record) (int64, error)    { return 0, nil }
func (NopStore) QueryGames(context.Context, Query) ([]Record, error)  { return []Record{}, nil }
func (NopStore) GameByID(context.Context, int64) (Record, error)      { return Record{}, ErrNotFound }
func (NopStore) GameStats(_ context.Context, g string) (Stats, error) { return Stats{GameType: g}, nil }
func (NopStore) Ping(context.Context) error                           { return ErrDisabled }
func (NopStore) Close() error                                         { return nil }

// IsDisabled reports whether s is the no-op store.
func IsDisabled(s Store) bool {
	_, ok := s.(NopStore)
	return ok
}
