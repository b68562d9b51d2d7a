package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/Cheese-Board/internal/chess"
	"github.com/park285/Cheese-Board/internal/chess/uci"
)

type fakeSearcher struct {
	mu       sync.Mutex
	started  chan struct{}
	release  chan struct{}
	stops    int
	searches []uci.SearchRequest
	best     string
}

func newFakeSearcher(best string, block bool) *fakeSearcher {
	f := &fakeSearcher{best: best, started: make(chan struct{}, 8)}
	if block {
		f.release = make(chan struct{})
	}
	return f
}

func (f *fakeSearcher) NewGame(context.Context) error { return nil }

func (f *fakeSearcher) Search(ctx context.Context, req uci.SearchRequest) (uci.SearchResponse, error) {
	f.mu.Lock()
	f.searches = append(f.searches, req)
	f.mu.Unlock()
	f.started <- struct{}{}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return uci.SearchResponse{}, ctx.Err()
		}
	}
	return uci.SearchResponse{BestMove: f.best, Ponder: "g1f3"}, nil
}

func (f *fakeSearcher) Stop() error {
	f.mu.Lock()
	f.stops++
	first := f.stops == 1
	f.mu.Unlock()
	if first && f.release != nil {
		close(f.release)
	}
	return nil
}

type fakeSource struct {
	s        *fakeSearcher
	mu       sync.Mutex
	opts     []uci.Options
	released []error
}

func (f *fakeSource) Acquire(_ context.Context, opt uci.Options) (Searcher, error) {
	f.mu.Lock()
	f.opts = append(f.opts, opt)
	f.mu.Unlock()
	return f.s, nil
}

func (f *fakeSource) Release(_ Searcher, err error) {
	f.mu.Lock()
	f.released = append(f.released, err)
	f.mu.Unlock()
}

func waitReply(t *testing.T, ch <-chan Reply) Reply {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for reply")
	}
	return Reply{}
}

func TestUCIAdapterDeliversReplyWithGeneration(t *testing.T) {
	src := &fakeSource{s: newFakeSearcher("e7e5", false)}
	a := NewUCI(src, chess.Presets["level5"], 2, nil)
	defer a.Quit()

	replies := make(chan Reply, 1)
	a.OnResult(func(r Reply) { replies <- r })

	fen := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"
	if err := a.Evaluate(Request{FEN: fen, Depth: 9, Generation: 7}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	r := waitReply(t, replies)
	if r.Generation != 7 || r.BestMove != "e7e5" || r.FEN != fen {
		t.Fatalf("unexpected reply %+v", r)
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if len(src.opts) != 1 || src.opts[0].Elo != 1200 {
		t.Fatalf("unexpected acquire options %+v", src.opts)
	}
	if len(src.released) != 1 || src.released[0] != nil {
		t.Fatalf("session not released cleanly: %v", src.released)
	}
	src.s.mu.Lock()
	defer src.s.mu.Unlock()
	if src.s.searches[0].Limits.Depth != 9 {
		t.Fatalf("depth not forwarded: %+v", src.s.searches[0].Limits)
	}
}

func TestUCIAdapterOnResultReplacesHandler(t *testing.T) {
	src := &fakeSource{s: newFakeSearcher("d7d5", false)}
	a := NewUCI(src, chess.DepthLevel(3), 2, nil)
	defer a.Quit()

	first := make(chan Reply, 1)
	second := make(chan Reply, 1)
	a.OnResult(func(r Reply) { first <- r })
	a.OnResult(func(r Reply) { second <- r })

	if err := a.Evaluate(Request{FEN: "startpos", Depth: 3, Generation: 1}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	waitReply(t, second)
	select {
	case r := <-first:
		t.Fatalf("replaced handler still called: %+v", r)
	default:
	}
}

func TestUCIAdapterStopFinishesSearch(t *testing.T) {
	s := newFakeSearcher("c7c5", true)
	a := NewUCI(&fakeSource{s: s}, chess.DepthLevel(20), 1, nil)
	defer a.Quit()

	replies := make(chan Reply, 1)
	a.OnResult(func(r Reply) { replies <- r })
	if err := a.Evaluate(Request{FEN: "startpos", Depth: 20, Generation: 2}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	<-s.started
	a.Stop()
	if r := waitReply(t, replies); r.BestMove != "c7c5" {
		t.Fatalf("unexpected reply %+v", r)
	}
}

func TestUCIAdapterQueueFull(t *testing.T) {
	s := newFakeSearcher("e7e5", true)
	a := NewUCI(&fakeSource{s: s}, chess.DepthLevel(5), 1, nil)
	defer a.Quit()

	if err := a.Evaluate(Request{FEN: "startpos", Depth: 5, Generation: 1}); err != nil {
		t.Fatalf("first Evaluate: %v", err)
	}
	<-s.started
	if err := a.Evaluate(Request{FEN: "startpos", Depth: 5, Generation: 2}); err != nil {
		t.Fatalf("queued Evaluate: %v", err)
	}
	if err := a.Evaluate(Request{FEN: "startpos", Depth: 5, Generation: 3}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestUCIAdapterQuitRejectsRequests(t *testing.T) {
	s := newFakeSearcher("e7e5", true)
	a := NewUCI(&fakeSource{s: s}, chess.DepthLevel(5), 1, nil)
	if err := a.Evaluate(Request{FEN: "startpos", Depth: 5}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	<-s.started
	a.Quit()
	a.Quit()
	if err := a.Evaluate(Request{FEN: "startpos", Depth: 5}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestUnavailableIsNoop(t *testing.T) {
	var a Adapter = Unavailable{}
	called := false
	a.OnResult(func(Reply) { called = true })
	if err := a.Evaluate(Request{FEN: "startpos", Depth: 1}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	a.Stop()
	a.Quit()
	if a.Available() || called {
		t.Fatalf("unavailable adapter must do nothing")
	}
}

func TestFactoryFallsBackToUnavailable(t *testing.T) {
	f, err := NewFactory(FactoryConfig{StockfishPath: "/nonexistent/stockfish"}, nil)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	if f.Kind() != KindUnavailable {
		t.Fatalf("expected unavailable, got %s", f.Kind())
	}
	if f.New(chess.DepthLevel(5)).Available() {
		t.Fatalf("expected unavailable adapter")
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestFactoryPrefersRemote(t *testing.T) {
	f, err := NewFactory(FactoryConfig{URL: "http://127.0.0.1:1", StockfishPath: "/usr/bin/stockfish"}, nil)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	if f.Kind() != KindRemote {
		t.Fatalf("expected remote, got %s", f.Kind())
	}
	a := f.New(chess.DepthLevel(5))
	defer a.Quit()
	if _, ok := a.(*Remote); !ok {
		t.Fatalf("expected *Remote, got %T", a)
	}
}

// slowStopSearcher ends the search as soon as stop arrives but takes a while
// to return from Stop itself.
type slowStopSearcher struct {
	*fakeSearcher
	entered chan struct{}
	gate    chan struct{}
}

func (s *slowStopSearcher) Stop() error {
	close(s.entered)
	err := s.fakeSearcher.Stop()
	<-s.gate
	return err
}

type recordingSource struct {
	s        Searcher
	released chan error
}

func (r *recordingSource) Acquire(context.Context, uci.Options) (Searcher, error) { return r.s, nil }
func (r *recordingSource) Release(_ Searcher, err error)                          { r.released <- err }

func TestUCIAdapterKeepsSessionUntilStopReturns(t *testing.T) {
	s := &slowStopSearcher{
		fakeSearcher: newFakeSearcher("e7e5", true),
		entered:      make(chan struct{}),
		gate:         make(chan struct{}),
	}
	src := &recordingSource{s: s, released: make(chan error, 1)}
	a := NewUCI(src, chess.DepthLevel(10), 1, nil)
	defer a.Quit()

	replies := make(chan Reply, 1)
	a.OnResult(func(r Reply) { replies <- r })
	if err := a.Evaluate(Request{FEN: "startpos", Depth: 10, Generation: 1}); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	<-s.started

	stopped := make(chan struct{})
	go func() {
		a.Stop()
		close(stopped)
	}()
	<-s.entered

	select {
	case <-src.released:
		t.Fatalf("session released while stop was still being written")
	case <-time.After(50 * time.Millisecond):
	}

	close(s.gate)
	<-stopped
	select {
	case err := <-src.released:
		if err != nil {
			t.Fatalf("unexpected release error %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("session never released")
	}
	if r := waitReply(t, replies); r.BestMove != "e7e5" {
		t.Fatalf("unexpected reply %+v", r)
	}
}
