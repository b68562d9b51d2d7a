// Package repository records finished games.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrDuplicateGame = errors.New("game already recorded")
	ErrNotFound      = errors.New("game not found")
)

// Game is one finished game against the engine.
type Game struct {
	ID        int64         `json:"id"`
	GameID    string        `json:"gameId"`
	PlayAs    string        `json:"playAs"` // white | black
	Level     string        `json:"level"`
	Result    string        `json:"result"` // user_won | engine_won | draw | resigned
	Method    string        `json:"method"`
	MovesUCI  []string      `json:"movesUci"`
	MovesSAN  []string      `json:"movesSan"`
	PGN       string        `json:"pgn"`
	StartedAt time.Time     `json:"startedAt"`
	EndedAt   time.Time     `json:"endedAt"`
	Duration  time.Duration `json:"durationMs"`
}

type Repository interface {
	InsertGame(ctx context.Context, game *Game) (int64, error)
	RecentGames(ctx context.Context, limit int) ([]*Game, error)
	Game(ctx context.Context, gameID string) (*Game, error)
}

const defaultRecentLimit = 10

// PGNResult maps a result token to the PGN result string from white's point of view.
func PGNResult(result, playAs string) string {
	userWhite := !strings.EqualFold(strings.TrimSpace(playAs), "black")
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "user_won":
		if userWhite {
			return "1-0"
		}
		return "0-1"
	case "engine_won", "resigned":
		if userWhite {
			return "0-1"
		}
		return "1-0"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

// BuildPGN renders the SAN move list with headers.
func BuildPGN(g *Game, engineName string) string {
	if g == nil {
		return ""
	}
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	if strings.TrimSpace(engineName) == "" {
		engineName = "Stockfish"
	}
	white, black := "Player", sanitizePGN(engineName)
	if strings.EqualFold(g.PlayAs, "black") {
		white, black = black, white
	}
	result := PGNResult(g.Result, g.PlayAs)

	var b strings.Builder
	b.WriteString("[Event \"Cheese Board\"]\n")
	b.WriteString("[Site \"?\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", white))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", black))
	if lvl := strings.TrimSpace(g.Level); lvl != "" {
		b.WriteString(fmt.Sprintf("[EngineLevel \"%s\"]\n", sanitizePGN(lvl)))
	}
	if method := strings.TrimSpace(g.Method); method != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(g.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(g.MovesSAN[i])))
		if i+1 < len(g.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", "")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
