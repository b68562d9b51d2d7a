package server

import (
	"errors"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/Cheese-Board/internal/board"
	"github.com/park285/Cheese-Board/internal/repository"
	"github.com/park285/Cheese-Board/internal/session"
	"github.com/park285/Cheese-Board/pkg/boarddto"
)

func toViewDTO(v board.View) *boarddto.View {
	out := &boarddto.View{
		GameID:        v.GameID,
		Revision:      v.Revision,
		FEN:           v.FEN,
		Orientation:   board.SideName(v.Orientation),
		Turn:          board.SideName(v.Turn),
		Phase:         string(v.Phase),
		Options:       toStyles(v.Options),
		Annotations:   toStyles(v.Annotations),
		LastMove:      toStyles(v.LastMove),
		SquareStyles:  toStyles(v.Squares()),
		History:       append([]string{}, v.History...),
		MovesUCI:      append([]string{}, v.MovesUCI...),
		Outcome:       string(v.Outcome),
		Method:        v.Method,
		DialogOpen:    v.DialogOpen,
		Result:        v.Result,
		EngineOnline:  v.EngineAvailable,
		EngineBusy:    v.EngineThinking,
		Level:         v.Level,
		LevelSymbol:   v.LevelSymbol,
		Player:        v.Player,
		Theme:         v.Theme,
		Round:         v.Round,
		Messages:      toChatDTO(v.Chat),
		StartedAt:     v.StartedAt,
		BoardImageURL: "/api/games/" + v.GameID + "/board.png",
	}
	if v.Selected != nchess.NoSquare {
		out.Selected = v.Selected.String()
	}
	if v.PromotionTo != nchess.NoSquare {
		out.PromotionTo = v.PromotionTo.String()
	}
	if !v.EndedAt.IsZero() {
		ended := v.EndedAt
		out.EndedAt = &ended
	}
	return out
}

func toChatDTO(chat []board.ChatMessage) []boarddto.ChatMessage {
	out := make([]boarddto.ChatMessage, 0, len(chat))
	for _, m := range chat {
		out = append(out, boarddto.ChatMessage{Username: m.Player, Content: m.Content, SentAt: m.SentAt})
	}
	return out
}

func toStyles(h board.Highlights) map[string]boarddto.SquareStyle {
	out := make(map[string]boarddto.SquareStyle, len(h))
	for sq, st := range h {
		out[sq.String()] = boarddto.SquareStyle{
			Kind:         string(st.Kind),
			Background:   st.Background,
			BorderRadius: st.BorderRadius,
		}
	}
	return out
}

func toGameDTO(g *repository.Game) boarddto.Game {
	return boarddto.Game{
		GameID:     g.GameID,
		PlayAs:     g.PlayAs,
		Level:      g.Level,
		Result:     g.Result,
		Method:     g.Method,
		MovesSAN:   append([]string{}, g.MovesSAN...),
		MovesUCI:   append([]string{}, g.MovesUCI...),
		PGN:        g.PGN,
		StartedAt:  g.StartedAt,
		EndedAt:    g.EndedAt,
		DurationMS: g.Duration.Milliseconds(),
	}
}

// domainError maps package errors onto wire error codes.
func domainError(err error) *boarddto.DomainError {
	var de boarddto.DomainError
	switch {
	case errors.As(err, &de):
		return &de
	case errors.Is(err, board.ErrInvalidSquare):
		return &boarddto.DomainError{Code: boarddto.CodeInvalidSquare, Message: err.Error()}
	case errors.Is(err, board.ErrInvalidPiece):
		return &boarddto.DomainError{Code: boarddto.CodeInvalidPiece, Message: err.Error()}
	case errors.Is(err, board.ErrInvalidSide):
		return &boarddto.DomainError{Code: boarddto.CodeBadRequest, Message: err.Error()}
	case errors.Is(err, session.ErrEmptyMessage), errors.Is(err, session.ErrMessageTooLong):
		return &boarddto.DomainError{Code: boarddto.CodeBadRequest, Message: err.Error()}
	case errors.Is(err, board.ErrClosed):
		return &boarddto.DomainError{Code: boarddto.CodeClosed, Message: err.Error()}
	case errors.Is(err, session.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return &boarddto.DomainError{Code: boarddto.CodeNotFound, Message: err.Error()}
	default:
		return &boarddto.DomainError{Code: boarddto.CodeInternal, Message: err.Error(), Retryable: true}
	}
}
