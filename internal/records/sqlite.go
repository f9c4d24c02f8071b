// internal/records/sqlite.go
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/erilali/gameroom/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps records in a local sqlite file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if missing) the database file at path with WAL journaling and
// a busy timeout, then migrates it when asked to.
func OpenSQLite(ctx context.Context, path string, runMigrations bool, log *logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if runMigrations {
		if err := migrateSQLite(db, log); err != nil {
			db.Close()
			return nil, err
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteColumns = `id, game_type, room_id, moves, winner, player_count, spectator_count, duration, created_at`

func (s *SQLiteStore) RecordGame(ctx context.Context, rec Record) (int64, error) {
	moves := rec.Moves
	if len(moves) == 0 {
		moves = []byte("[]")
	}
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO game_records (game_type, room_id, moves, winner, player_count, spectator_count, duration, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.GameType, rec.RoomID, string(moves), rec.Winner, rec.PlayerCount, rec.SpectatorCount, rec.Duration, created.UTC())
	if err != nil {
		return 0, fmt.Errorf("insert game record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read record id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) QueryGames(ctx context.Context, q Query) ([]Record, error) {
	q = q.Normalize()
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteColumns+`
		FROM game_records
		WHERE ? = '' OR game_type = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		q.GameType, q.GameType, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("query game records: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, q.Limit)
	for rows.Next() {
		rec, err := scanSQLite(rows)
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

func (s *SQLiteStore) GameByID(ctx context.Context, id int64) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM game_records WHERE id = ?`, id)
	rec, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return rec, err
}

func (s *SQLiteStore) GameStats(ctx context.Context, gameType string) (Stats, error) {
	st := Stats{GameType: gameType}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(duration), 0),
		       COALESCE(AVG(player_count), 0),
		       COALESCE(AVG(spectator_count), 0)
		FROM game_records
		WHERE ? = '' OR game_type = ?`, gameType, gameType,
	).Scan(&st.Count, &st.AvgDuration, &st.AvgPlayers, &st.AvgSpectators)
	if err != nil {
		return Stats{}, fmt.Errorf("game stats: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLite(row scanner) (Record, error) {
	var rec Record
	var moves string
	err := row.Scan(&rec.ID, &rec.GameType, &rec.RoomID, &moves, &rec.Winner,
		&rec.PlayerCount, &rec.SpectatorCount, &rec.Duration, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan game record: %w", err)
	}
	rec.Moves = []byte(moves)
	return rec, nil
}
