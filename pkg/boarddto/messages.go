package boarddto

// Client to server message types.
const (
	TypeClick           = "click"
	TypeRightClick      = "right_click"
	TypePromote         = "promote"
	TypeCancelPromotion = "cancel_promotion"
	TypeNewGame         = "new_game"
	TypeResign          = "resign"
	TypeCloseDialog     = "close_dialog"
	TypeSetTheme        = "set_theme"
	TypeChat            = "chat"
)

// Server to client message types.
const (
	TypeView  = "view"
	TypeError = "error"
)

// ClientMessage is one websocket frame from the browser or terminal client.
type ClientMessage struct {
	Type    string `json:"type"`
	Square  string `json:"square,omitempty"`
	Piece   string `json:"piece,omitempty"`
	Theme   string `json:"theme,omitempty"`
	Content string `json:"content,omitempty"`
}

type ServerMessage struct {
	Type  string       `json:"type"`
	View  *View        `json:"view,omitempty"`
	Error *DomainError `json:"error,omitempty"`
}

func Click(square string) ClientMessage { return ClientMessage{Type: TypeClick, Square: square} }
func RightClick(square string) ClientMessage {
	return ClientMessage{Type: TypeRightClick, Square: square}
}
func Promote(piece string) ClientMessage  { return ClientMessage{Type: TypePromote, Piece: piece} }
func SetTheme(theme string) ClientMessage { return ClientMessage{Type: TypeSetTheme, Theme: theme} }
func Simple(kind string) ClientMessage    { return ClientMessage{Type: kind} }
func Chat(content string) ClientMessage   { return ClientMessage{Type: TypeChat, Content: content} }

// NewGameRequest holds the query values of POST /api/games.
type NewGameRequest struct {
	PlayAs string `json:"playAs"`
	Level  string `json:"stockfishLevel"`
	Theme  string `json:"theme"`
	Player string `json:"player"`
}
