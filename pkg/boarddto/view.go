package boarddto

import "time"

// SquareStyle mirrors the inline style the board widget applies to a square.
type SquareStyle struct {
	Kind         string `json:"kind"`
	Background   string `json:"background"`
	BorderRadius string `json:"borderRadius,omitempty"`
}

type View struct {
	GameID      string `json:"gameId"`
	Revision    uint64 `json:"revision"`
	FEN         string `json:"fen"`
	Orientation string `json:"orientation"`
	Turn        string `json:"turn"`
	Phase       string `json:"phase"`
	Selected    string `json:"selected,omitempty"`
	PromotionTo string `json:"promotionTo,omitempty"`

	Options       map[string]SquareStyle `json:"options"`
	Annotations   map[string]SquareStyle `json:"annotations"`
	LastMove      map[string]SquareStyle `json:"lastMove"`
	SquareStyles  map[string]SquareStyle `json:"squareStyles"`
	History       []string               `json:"history"`
	MovesUCI      []string               `json:"movesUci"`
	Outcome       string                 `json:"outcome"`
	Method        string                 `json:"method,omitempty"`
	DialogOpen    bool                   `json:"dialogOpen"`
	Result        string                 `json:"result,omitempty"`
	EngineOnline  bool                   `json:"engineAvailable"`
	EngineBusy    bool                   `json:"engineThinking"`
	Level         string                 `json:"level"`
	LevelSymbol   string                 `json:"levelSymbol"`
	Player        string                 `json:"player"`
	Theme         string                 `json:"theme"`
	Round         int                    `json:"round"`
	Messages      []ChatMessage          `json:"messages"`
	StartedAt     time.Time              `json:"startedAt"`
	EndedAt       *time.Time             `json:"endedAt,omitempty"`
	BoardImageURL string                 `json:"boardImageUrl,omitempty"`
}

// ChatMessage is one line of the side panel chat.
type ChatMessage struct {
	Username string    `json:"username"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
}

// Game is a finished game as listed by /api/games/recent.
type Game struct {
	GameID     string    `json:"gameId"`
	PlayAs     string    `json:"playAs"`
	Level      string    `json:"level"`
	Result     string    `json:"result"`
	Method     string    `json:"method,omitempty"`
	MovesSAN   []string  `json:"movesSan"`
	MovesUCI   []string  `json:"movesUci"`
	PGN        string    `json:"pgn"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt"`
	DurationMS int64     `json:"durationMs"`
}

type HistoryResponse struct {
	Games []Game `json:"games"`
}

type Health struct {
	Status   string `json:"status"`
	Engine   string `json:"engine"`
	Sessions int    `json:"sessions"`
}
