package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-Board/internal/board"
	"github.com/park285/Cheese-Board/internal/render"
	"github.com/park285/Cheese-Board/internal/session"
	"github.com/park285/Cheese-Board/pkg/boarddto"
)

const (
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// viewSlot holds only the newest view; the writer always sends the latest state.
type viewSlot struct {
	mu     sync.Mutex
	latest *board.View
	notify chan struct{}
}

func newViewSlot() *viewSlot {
	return &viewSlot{notify: make(chan struct{}, 1)}
}

func (s *viewSlot) put(v board.View) {
	s.mu.Lock()
	if s.latest == nil || v.Revision >= s.latest.Revision {
		s.latest = &v
	}
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *viewSlot) take() (board.View, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return board.View{}, false
	}
	v := *s.latest
	s.latest = nil
	return v, true
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.origins,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", zap.String("game_id", sess.ID()), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	logger := s.logger.With(zap.String("game_id", sess.ID()))

	views := newViewSlot()
	errs := make(chan *boarddto.DomainError, 8)
	unsubscribe := sess.Subscribe(views.put)
	defer unsubscribe()
	views.put(sess.View())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		s.writeLoop(ctx, conn, views, errs, logger)
	}()
	go func() {
		defer wg.Done()
		pingLoop(ctx, conn)
	}()

	s.readLoop(ctx, conn, sess, errs, logger)
	cancel()
	wg.Wait()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, errs chan<- *boarddto.DomainError, logger *zap.Logger) {
	for {
		var msg boarddto.ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				logger.Debug("websocket read ended", zap.Error(err))
			}
			return
		}
		sess.Touch()
		if err := s.dispatch(ctx, sess, msg); err != nil {
			select {
			case errs <- domainError(err):
			default:
				logger.Debug("error reply dropped", zap.Error(err))
			}
		}
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, views *viewSlot, errs <-chan *boarddto.DomainError, logger *zap.Logger) {
	for {
		var out boarddto.ServerMessage
		select {
		case <-ctx.Done():
			return
		case de := <-errs:
			out = boarddto.ServerMessage{Type: boarddto.TypeError, Error: de}
		case <-views.notify:
			v, ok := views.take()
			if !ok {
				continue
			}
			out = boarddto.ServerMessage{Type: boarddto.TypeView, View: toViewDTO(v)}
		}
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := wsjson.Write(wctx, conn, out)
		cancel()
		if err != nil {
			logger.Debug("websocket write failed", zap.Error(err))
			return
		}
	}
}

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (s *Server) dispatch(ctx context.Context, sess *session.Session, msg boarddto.ClientMessage) error {
	ctrl := sess.Controller()
	switch strings.ToLower(strings.TrimSpace(msg.Type)) {
	case boarddto.TypeClick:
		return ctrl.Click(msg.Square)
	case boarddto.TypeRightClick:
		return ctrl.RightClick(msg.Square)
	case boarddto.TypePromote:
		return ctrl.ChoosePromotion(msg.Piece)
	case boarddto.TypeCancelPromotion:
		ctrl.CancelPromotion()
	case boarddto.TypeNewGame:
		ctrl.NewGame()
	case boarddto.TypeResign:
		ctrl.Resign()
	case boarddto.TypeCloseDialog:
		ctrl.CloseDialog()
	case boarddto.TypeSetTheme:
		if !render.KnownTheme(msg.Theme) {
			return boarddto.DomainError{Code: boarddto.CodeInvalidTheme, Message: "unknown theme: " + msg.Theme}
		}
		sess.SetTheme(ctx, msg.Theme)
	case boarddto.TypeChat:
		return sess.Say(msg.Content)
	default:
		return boarddto.DomainError{Code: boarddto.CodeBadRequest, Message: "unknown message type: " + msg.Type}
	}
	return nil
}
