// Package store holds the per-game state shared between the board controller
// and whatever presents it: move list, current position, theme and result.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("game state not found")

type State struct {
	GameID     string    `json:"game_id"`
	Moves      []string  `json:"moves"` // SAN
	CurrentFEN string    `json:"current_fen"`
	Theme      string    `json:"theme"`
	GameOver   bool      `json:"game_over"`
	GameResult string    `json:"game_result"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Store interface {
	Save(ctx context.Context, st State) error
	Load(ctx context.Context, gameID string) (State, error)
	Delete(ctx context.Context, gameID string) error
	// Theme returns "" when the player has no stored preference.
	Theme(ctx context.Context, player string) (string, error)
	SetTheme(ctx context.Context, player, theme string) error
}
