package boardclient

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/Cheese-Board/pkg/boarddto"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

var ErrNotConnected = errors.New("websocket not connected")

type ViewCallback func(v *boarddto.View)

type ErrorCallback func(e *boarddto.DomainError)

type StateCallback func(state State)

// Socket follows one game over a websocket and reconnects when the link drops.
type Socket struct {
	url    string
	logger *zap.Logger

	connM sync.Mutex
	conn  *websocket.Conn

	state  State
	stateM sync.RWMutex

	cbM      sync.RWMutex
	viewCbs  []ViewCallback
	errCbs   []ErrorCallback
	stateCbs []StateCallback

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func NewSocket(url string, maxReconnectAttempts int, logger *zap.Logger) *Socket {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Socket{
		url:                  url,
		logger:               logger,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

func (s *Socket) OnView(cb ViewCallback) {
	s.cbM.Lock()
	s.viewCbs = append(s.viewCbs, cb)
	s.cbM.Unlock()
}

func (s *Socket) OnError(cb ErrorCallback) {
	s.cbM.Lock()
	s.errCbs = append(s.errCbs, cb)
	s.cbM.Unlock()
}

func (s *Socket) OnStateChange(cb StateCallback) {
	s.cbM.Lock()
	s.stateCbs = append(s.stateCbs, cb)
	s.cbM.Unlock()
}

func (s *Socket) State() State {
	s.stateM.RLock()
	defer s.stateM.RUnlock()
	return s.state
}

func (s *Socket) Connect(ctx context.Context) error {
	switch s.State() {
	case StateConnected, StateConnecting:
		return nil
	}
	s.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := s.dial(dialCtx)
	if err != nil {
		s.setState(StateFailed)
		s.scheduleReconnect()
		return err
	}
	s.attach(conn)
	return nil
}

// Send writes one client message.
func (s *Socket) Send(ctx context.Context, msg boarddto.ClientMessage) error {
	s.connM.Lock()
	conn := s.conn
	s.connM.Unlock()
	if conn == nil || s.State() != StateConnected {
		return ErrNotConnected
	}
	wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(wctx, conn, msg)
}

func (s *Socket) Close(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.rootCancel()
		s.setState(StateDisconnected)
		return nil
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	return conn, err
}

func (s *Socket) attach(conn *websocket.Conn) {
	s.connM.Lock()
	s.conn = conn
	s.connM.Unlock()
	s.setState(StateConnected)

	s.wg.Add(2)
	go s.listen(conn)
	go s.pingLoop(conn)
}

func (s *Socket) listen(conn *websocket.Conn) {
	defer s.wg.Done()
	for {
		var msg boarddto.ServerMessage
		if err := wsjson.Read(s.rootCtx, conn, &msg); err != nil {
			if s.isStopping() {
				return
			}
			s.logger.Debug("websocket read failed", zap.Error(err))
			s.setState(StateDisconnected)
			s.closeConn(websocket.StatusGoingAway, "reconnect")
			s.scheduleReconnect()
			return
		}
		s.deliver(msg)
	}
}

func (s *Socket) deliver(msg boarddto.ServerMessage) {
	s.cbM.RLock()
	views := append([]ViewCallback(nil), s.viewCbs...)
	errs := append([]ErrorCallback(nil), s.errCbs...)
	s.cbM.RUnlock()

	switch msg.Type {
	case boarddto.TypeView:
		if msg.View == nil {
			return
		}
		for _, cb := range views {
			cb(msg.View)
		}
	case boarddto.TypeError:
		if msg.Error == nil {
			return
		}
		for _, cb := range errs {
			cb(msg.Error)
		}
	}
}

func (s *Socket) pingLoop(conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-s.rootCtx.Done():
			return
		case <-t.C:
			s.connM.Lock()
			current := s.conn
			s.connM.Unlock()
			if current != conn {
				return
			}
			ctx, cancel := context.WithTimeout(s.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if s.isStopping() {
					return
				}
				s.closeConn(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (s *Socket) scheduleReconnect() {
	if s.maxReconnectAttempts <= 0 || s.isStopping() {
		return
	}
	s.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= s.maxReconnectAttempts; attempt++ {
			select {
			case <-s.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			dialCtx, cancel := context.WithTimeout(s.rootCtx, 10*time.Second)
			conn, err := s.dial(dialCtx)
			cancel()
			if err != nil {
				s.logger.Debug("reconnect failed", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			s.attach(conn)
			return
		}
		s.setState(StateFailed)
	}()
}

func (s *Socket) setState(state State) {
	s.stateM.Lock()
	if s.state == state {
		s.stateM.Unlock()
		return
	}
	s.state = state
	s.stateM.Unlock()

	s.cbM.RLock()
	callbacks := append([]StateCallback(nil), s.stateCbs...)
	s.cbM.RUnlock()
	for _, cb := range callbacks {
		cb(state)
	}
}

func (s *Socket) closeConn(code websocket.StatusCode, reason string) {
	s.connM.Lock()
	conn := s.conn
	s.conn = nil
	s.connM.Unlock()
	if conn != nil {
		_ = conn.Close(code, reason)
	}
}

func (s *Socket) isStopping() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}
