// internal/records/postgres.go
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps records in postgres through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and verifies it with a ping.
func OpenPostgres(ctx context.Context, dsn string, maxConns int32) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStore wraps an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const pgColumns = `id, game_type, room_id, moves, winner, player_count, spectator_count, duration, created_at`

func (s *PostgresStore) RecordGame(ctx context.Context, rec Record) (int64, error) {
	moves := rec.Moves
	if len(moves) == 0 {
		moves = []byte("[]")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO game_records (game_type, room_id, moves, winner, player_count, spectator_count, duration, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		rec.GameType, rec.RoomID, string(moves), rec.Winner, rec.PlayerCount, rec.SpectatorCount, rec.Duration, created,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert game record: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) QueryGames(ctx context.Context, q Query) ([]Record, error) {
	q = q.Normalize()
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgColumns+`
		FROM game_records
		WHERE $1::text = '' OR game_type = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		q.GameType, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("query game records: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, q.Limit)
	for rows.Next() {
		rec, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate game records: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GameByID(ctx context.Context, id int64) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM game_records WHERE id = $1`, id)
	rec, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *PostgresStore) GameStats(ctx context.Context, gameType string) (Stats, error) {
	st := Stats{GameType: gameType}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(duration), 0)::float8,
		       COALESCE(AVG(player_count), 0)::float8,
		       COALESCE(AVG(spectator_count), 0)::float8
		FROM game_records
		WHERE $1::text = '' OR game_type = $1`, gameType,
	).Scan(&st.Count, &st.AvgDuration, &st.AvgPlayers, &st.AvgSpectators)
	if err != nil {
		return Stats{}, fmt.Errorf("game stats: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPostgres(row pgx.Row) (Record, error) {
	var rec Record
	var moves []byte
	err := row.Scan(&rec.ID, &rec.GameType, &rec.RoomID, &moves, &rec.Winner,
		&rec.PlayerCount, &rec.SpectatorCount, &rec.Duration, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan game record: %w", err)
	}
	rec.Moves = moves
	return rec, nil
}
