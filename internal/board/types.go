// Package board turns square clicks into chess moves for one human player
// against an engine, and tracks everything a board view needs to draw.
package board

import (
	"errors"
	"strings"
	"time"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrInvalidSquare = errors.New("invalid square")
	ErrInvalidPiece  = errors.New("invalid promotion piece")
	ErrInvalidSide   = errors.New("side must be white or black")
	ErrClosed        = errors.New("board closed")
)

type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseSelected          Phase = "selected"
	PhaseAwaitingPromotion Phase = "awaiting_promotion"
)

type Outcome string

const (
	OutcomeInProgress Outcome = "in_progress"
	OutcomeUserWon    Outcome = "user_won"
	OutcomeEngineWon  Outcome = "engine_won"
	OutcomeDraw       Outcome = "draw"
	OutcomeResigned   Outcome = "resigned"
)

type StyleKind string

const (
	StyleDestination StyleKind = "destination"
	StyleCapture     StyleKind = "capture"
	StyleSelected    StyleKind = "selected"
	StyleAnnotation  StyleKind = "annotation"
	StyleLastMove    StyleKind = "last_move"
)

// Style is the CSS a browser board applies to a highlighted square.
type Style struct {
	Kind         StyleKind `json:"kind"`
	Background   string    `json:"background,omitempty"`
	BorderRadius string    `json:"borderRadius,omitempty"`
}

var (
	destinationStyle = Style{Kind: StyleDestination, Background: "radial-gradient(circle, rgba(0,0,0,.1) 25%, transparent 25%)", BorderRadius: "50%"}
	captureStyle     = Style{Kind: StyleCapture, Background: "radial-gradient(circle, rgba(0,0,0,.1) 85%, transparent 85%)", BorderRadius: "50%"}
	selectedStyle    = Style{Kind: StyleSelected, Background: "rgba(255, 255, 0, 0.4)"}
	annotationStyle  = Style{Kind: StyleAnnotation, Background: "rgba(255, 0, 0, 0.5)"}
	lastMoveStyle    = Style{Kind: StyleLastMove, Background: "rgba(155, 199, 0, 0.41)"}
)

// Highlights maps squares to styles.
type Highlights map[nchess.Square]Style

func (h Highlights) clone() Highlights {
	out := make(Highlights, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// ByName keys the map by square name ("e4").
func (h Highlights) ByName() map[string]Style {
	out := make(map[string]Style, len(h))
	for sq, st := range h {
		out[sq.String()] = st
	}
	return out
}

// View is a copy of the controller state at one revision.
type View struct {
	GameID      string
	Revision    uint64
	FEN         string
	Orientation nchess.Color
	Turn        nchess.Color
	Phase       Phase
	Selected    nchess.Square // NoSquare when nothing is selected
	PromotionTo nchess.Square // NoSquare unless a promotion choice is pending

	Options     Highlights
	Annotations Highlights
	LastMove    Highlights

	History  []string // SAN
	MovesUCI []string

	Outcome    Outcome
	Method     string
	DialogOpen bool
	Result     string

	EngineAvailable bool
	EngineThinking  bool
	Level           string
	LevelSymbol     string
	Player          string
	Theme           string

	// Round counts games played on this board, starting at 1.
	Round     int
	StartedAt time.Time
	EndedAt   time.Time

	// Chat is filled in by the session that owns the board.
	Chat []ChatMessage
}

type ChatMessage struct {
	Player  string
	Content string
	SentAt  time.Time
}

// Squares merges the three highlight sets the way the board draws them:
// last move, then options, then annotations on top.
func (v View) Squares() Highlights {
	out := make(Highlights, len(v.LastMove)+len(v.Options)+len(v.Annotations))
	for sq, st := range v.LastMove {
		out[sq] = st
	}
	for sq, st := range v.Options {
		out[sq] = st
	}
	for sq, st := range v.Annotations {
		out[sq] = st
	}
	return out
}

// ParseSquare reads algebraic square names like "e4".
func ParseSquare(s string) (nchess.Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return nchess.NoSquare, ErrInvalidSquare
	}
	return nchess.NewSquare(nchess.File(s[0]-'a'), nchess.Rank(s[1]-'1')), nil
}

// ParseSide reads "white" or "black".
func ParseSide(s string) (nchess.Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return nchess.White, nil
	case "black", "b":
		return nchess.Black, nil
	default:
		return nchess.NoColor, ErrInvalidSide
	}
}

func SideName(c nchess.Color) string {
	if c == nchess.Black {
		return "black"
	}
	return "white"
}

// parsePromotion accepts "q", "queen" or board widget codes like "wQ".
func parsePromotion(s string) (nchess.PieceType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) == 2 && (s[0] == 'w' || s[0] == 'b') {
		s = s[1:]
	}
	switch s {
	case "q", "queen":
		return nchess.Queen, nil
	case "r", "rook":
		return nchess.Rook, nil
	case "b", "bishop":
		return nchess.Bishop, nil
	case "n", "knight":
		return nchess.Knight, nil
	default:
		return nchess.NoPieceType, ErrInvalidPiece
	}
}
