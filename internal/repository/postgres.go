package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS board_games (
	id          BIGSERIAL PRIMARY KEY,
	game_id     TEXT NOT NULL UNIQUE,
	play_as     TEXT NOT NULL,
	level       TEXT NOT NULL,
	result      TEXT NOT NULL,
	result_method TEXT NOT NULL DEFAULT '',
	moves_uci   JSONB NOT NULL,
	moves_san   JSONB NOT NULL,
	pgn         TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	ended_at    TIMESTAMPTZ NOT NULL,
	duration_ms BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS board_games_ended_at_idx ON board_games (ended_at DESC);`

const selectColumns = `
	id, game_id, play_as, level, result, result_method,
	moves_uci, moves_san, pgn, started_at, ended_at, duration_ms`

type Postgres struct {
	db *sql.DB
}

// Open connects to Postgres and creates the games table if needed.
func Open(ctx context.Context, databaseURL string) (*Postgres, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (r *Postgres) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *Postgres) InsertGame(ctx context.Context, game *Game) (int64, error) {
	if game == nil {
		return 0, fmt.Errorf("nil game payload")
	}
	movesUCI, err := json.Marshal(nonNil(game.MovesUCI))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(game.MovesSAN))
	if err != nil {
		return 0, fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO board_games (
			game_id, play_as, level, result, result_method,
			moves_uci, moves_san, pgn, started_at, ended_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8, $9, $10, $11)
		ON CONFLICT (game_id) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err = r.db.QueryRowContext(ctx, query,
		game.GameID,
		game.PlayAs,
		game.Level,
		game.Result,
		game.Method,
		movesUCI,
		movesSAN,
		game.PGN,
		game.StartedAt,
		game.EndedAt,
		game.Duration.Milliseconds(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return 0, ErrDuplicateGame
	}
	if err != nil {
		return 0, fmt.Errorf("insert game: %w", err)
	}
	return id.Int64, nil
}

func (r *Postgres) RecentGames(ctx context.Context, limit int) ([]*Game, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := r.db.QueryContext(ctx, `SELECT`+selectColumns+`
		FROM board_games
		ORDER BY ended_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	games := make([]*Game, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return games, nil
}

func (r *Postgres) Game(ctx context.Context, gameID string) (*Game, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+selectColumns+`
		FROM board_games
		WHERE game_id = $1`, strings.TrimSpace(gameID))
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*Game, error) {
	var (
		game         Game
		movesUCIJSON []byte
		movesSANJSON []byte
		durationMS   sql.NullInt64
	)
	if err := row.Scan(
		&game.ID,
		&game.GameID,
		&game.PlayAs,
		&game.Level,
		&game.Result,
		&game.Method,
		&movesUCIJSON,
		&movesSANJSON,
		&game.PGN,
		&game.StartedAt,
		&game.EndedAt,
		&durationMS,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan game: %w", err)
	}
	if durationMS.Valid {
		game.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &game, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
