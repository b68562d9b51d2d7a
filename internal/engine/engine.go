// Package engine wraps a background chess search behind a small
// request/response contract: post a position, receive the best move later.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Board/internal/chess/uci"
)

var (
	ErrUnavailable = errors.New("engine unavailable")
	ErrBusy        = errors.New("engine request queue full")
	ErrClosed      = errors.New("engine adapter closed")
)

// Request asks for the best move in FEN at Depth. Generation is echoed
// back unchanged so callers can recognise replies to outdated positions.
type Request struct {
	FEN        string
	Depth      int
	Generation uint64
}

type Reply struct {
	Generation uint64
	FEN        string
	BestMove   string // UCI long algebraic, empty when the side to move has none
	Ponder     string
	Candidates []uci.Candidate
	Duration   time.Duration
}

type Handler func(Reply)

// Adapter is the controller's view of a search worker. OnResult replaces
// the single result handler. Stop and Quit never block on the search.
type Adapter interface {
	Evaluate(req Request) error
	OnResult(h Handler)
	Stop()
	Quit()
	Available() bool
}

type handlerSlot struct {
	mu sync.RWMutex
	h  Handler
}

func (s *handlerSlot) set(h Handler) {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
}

func (s *handlerSlot) get() Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.h
}

type searchFunc func(ctx context.Context, req Request) (Reply, error)

// worker drains a bounded request queue on one goroutine. Requests are
// answered in order; none is cancelled by a newer one.
type worker struct {
	name    string
	logger  *zap.Logger
	search  searchFunc
	handler handlerSlot

	queue  chan Request
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newWorker(name string, queueSize int, search searchFunc, logger *zap.Logger) *worker {
	if queueSize <= 0 {
		queueSize = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		name:   name,
		logger: logger,
		search: search,
		queue:  make(chan Request, queueSize),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *worker) Evaluate(req Request) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	select {
	case w.queue <- req:
		return nil
	default:
		return ErrBusy
	}
}

func (w *worker) OnResult(h Handler) { w.handler.set(h) }

func (w *worker) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.queue:
			w.handle(req)
		}
	}
}

func (w *worker) handle(req Request) {
	start := time.Now()
	reply, err := w.search(w.ctx, req)
	if err != nil {
		if w.ctx.Err() != nil {
			return
		}
		w.logger.Warn("engine search failed",
			zap.String("engine", w.name),
			zap.Uint64("generation", req.Generation),
			zap.String("fen", req.FEN),
			zap.Error(err),
		)
		return
	}
	reply.Generation = req.Generation
	reply.FEN = req.FEN
	reply.Duration = time.Since(start)

	w.logger.Debug("engine reply",
		zap.String("engine", w.name),
		zap.Uint64("generation", reply.Generation),
		zap.String("bestmove", reply.BestMove),
		zap.Duration("took", reply.Duration),
	)
	if h := w.handler.get(); h != nil {
		h(reply)
	}
}

// shutdown cancels the running search and waits for the loop to exit.
func (w *worker) shutdown() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	w.cancel()
	<-w.done
}

// Unavailable stands in when no search worker can be started.
type Unavailable struct{}

func (Unavailable) Evaluate(Request) error { return nil }
func (Unavailable) OnResult(Handler)       {}
func (Unavailable) Stop()                  {}
func (Unavailable) Quit()                  {}
func (Unavailable) Available() bool        { return false }
