package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Board/internal/chess"
	"github.com/park285/Cheese-Board/internal/chess/uci"
)

// Searcher is the part of a uci.Session the adapter drives.
type Searcher interface {
	NewGame(ctx context.Context) error
	Search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error)
	Stop() error
}

type SessionSource interface {
	Acquire(ctx context.Context, opt uci.Options) (Searcher, error)
	Release(s Searcher, err error)
}

// PoolSource hands out sessions from a shared uci.Pool.
type PoolSource struct {
	Pool *uci.Pool
}

func (p PoolSource) Acquire(ctx context.Context, opt uci.Options) (Searcher, error) {
	s, err := p.Pool.Acquire(ctx, opt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (p PoolSource) Release(s Searcher, err error) {
	if session, ok := s.(*uci.Session); ok {
		p.Pool.Release(session, err)
	}
}

// UCI runs searches on local engine processes.
type UCI struct {
	*worker
	src   SessionSource
	level chess.Level

	mu     sync.Mutex
	active Searcher
}

func NewUCI(src SessionSource, level chess.Level, queueSize int, logger *zap.Logger) *UCI {
	u := &UCI{src: src, level: level}
	u.worker = newWorker("uci", queueSize, u.search, logger)
	return u
}

func (u *UCI) Available() bool { return true }

// Stop asks the running search to finish now. Its bestmove is still delivered.
// u.mu is held while stop is written so the session cannot go back to the
// pool, and on to another game, in between.
func (u *UCI) Stop() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.active == nil {
		return
	}
	if err := u.active.Stop(); err != nil {
		u.logger.Debug("uci stop", zap.Error(err))
	}
}

func (u *UCI) Quit() { u.shutdown() }

func (u *UCI) search(ctx context.Context, req Request) (Reply, error) {
	lv := u.level.WithDepth(req.Depth)
	s, err := u.src.Acquire(ctx, lv.Options())
	if err != nil {
		return Reply{}, fmt.Errorf("acquire session: %w", err)
	}
	var releaseErr error
	u.setActive(s)
	defer func() {
		u.setActive(nil)
		u.src.Release(s, releaseErr)
	}()

	if err := s.NewGame(ctx); err != nil {
		releaseErr = err
		return Reply{}, fmt.Errorf("new game: %w", err)
	}
	resp, err := s.Search(ctx, uci.SearchRequest{FEN: req.FEN, Limits: lv.Limits()})
	if err != nil {
		releaseErr = err
		return Reply{}, fmt.Errorf("search: %w", err)
	}
	return Reply{
		BestMove:   resp.BestMove,
		Ponder:     resp.Ponder,
		Candidates: resp.Candidates,
	}, nil
}

func (u *UCI) setActive(s Searcher) {
	u.mu.Lock()
	u.active = s
	u.mu.Unlock()
}
