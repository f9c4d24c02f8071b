// internal/records/store.go
// Package records stores finished games. Every backend satisfies Store; the engines never see
// it directly, they go through the asynchronous Recorder.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erilali/gameroom/internal/logger"
)

var (
	// ErrNotFound is returned by GameByID for unknown ids.
	ErrNotFound = errors.New("game record not found")
	// ErrDisabled is reported by the no-op store's Ping.
	ErrDisabled = errors.New("game records disabled")
)

// Record is one finished game.
type Record struct {
	ID             int64           `json:"id"`
	GameType       string          `json:"game_type"`
	RoomID         string          `json:"room_id"`
	Moves          json.RawMessage `json:"moves"`
	Winner         string          `json:"winner"`
	PlayerCount    int             `json:"player_count"`
	SpectatorCount int             `json:"spectator_count"`
	Duration       int             `json:"duration"` // seconds
	CreatedAt      time.Time       `json:"created_at"`
}

// Query filters and pages QueryGames. An empty GameType matches every game.
type Query struct {
	GameType string
	Limit    int
	Offset   int
}

// DefaultLimit and MaxLimit bound Query.Limit.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Normalize clamps the paging fields.
func (q Query) Normalize() Query {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Stats aggregates records of one game type, or of all when GameType is empty.
type Stats struct {
	GameType      string  `json:"game_type,omitempty"`
	Count         int64   `json:"total_games"`
	AvgDuration   float64 `json:"avg_duration"`
	AvgPlayers    float64 `json:"avg_players"`
	AvgSpectators float64 `json:"avg_spectators"`
}

// Store is the record backend contract.
type Store interface {
	RecordGame(ctx context.Context, rec Record) (int64, error)
	QueryGames(ctx context.Context, q Query) ([]Record, error)
	GameByID(ctx context.Context, id int64) (Record, error)
	GameStats(ctx context.Context, gameType string) (Stats, error)
	Ping(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver   string // none, memory, postgres, sqlite
	DSN      string
	Migrate  bool
	MaxConns int32
}

// Open connects the configured backend and applies migrations when asked to.
func Open(ctx context.Context, opts Options, log *logger.Logger) (Store, error) {
	if log == nil {
		log = logger.NewNop()
	}
	switch opts.Driver {
	case "", "none":
		log.Info("Game records disabled")
		return NopStore{}, nil
	case "memory":
		log.Info("Game records kept in memory")
		return NewMemoryStore(), nil
	case "postgres":
		if opts.Migrate {
			if err := migratePostgres(opts.DSN, log); err != nil {
				return nil, err
			}
		}
		return OpenPostgres(ctx, opts.DSN, opts.MaxConns)
	case "sqlite":
		return OpenSQLite(ctx, opts.DSN, opts.Migrate, log)
	}
	return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
}
