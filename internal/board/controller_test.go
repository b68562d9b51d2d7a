package board

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	nchess "github.com/corentings/chess/v2"

	"github.com/park285/Cheese-Board/internal/engine"
	"github.com/park285/Cheese-Board/internal/store"
)

const startBoard = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w"

type manualTask struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTask) Stop() bool {
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &manualTask{delay: d, fn: f}
	s.tasks = append(s.tasks, task)
	return task
}

func (s *manualScheduler) live() []*manualTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*manualTask
	for _, t := range s.tasks {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// runAll fires every task that is still pending.
func (s *manualScheduler) runAll() {
	for _, t := range s.live() {
		t.fired = true
		t.fn()
	}
}

type fakeEngine struct {
	mu        sync.Mutex
	requests  []engine.Request
	handler   engine.Handler
	stops     int
	quit      bool
	available bool
}

func (f *fakeEngine) Evaluate(req engine.Request) error {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) OnResult(h engine.Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
}

func (f *fakeEngine) Quit() {
	f.mu.Lock()
	f.quit = true
	f.mu.Unlock()
}

func (f *fakeEngine) Available() bool { return f.available }

func (f *fakeEngine) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeEngine) lastRequest(t *testing.T) engine.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatalf("no engine request recorded")
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeEngine) reply(gen uint64, move string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(engine.Reply{Generation: gen, BestMove: move})
	}
}

type harness struct {
	c     *Controller
	eng   *fakeEngine
	sched *manualScheduler
	store *store.Memory
}

func newHarness(t *testing.T, playAs nchess.Color) *harness {
	t.Helper()
	h := &harness{
		eng:   &fakeEngine{available: true},
		sched: &manualScheduler{},
		store: store.NewMemory(),
	}
	h.c = New(Config{
		GameID:    "game-1",
		PlayAs:    playAs,
		Depth:     8,
		Engine:    h.eng,
		Store:     h.store,
		Scheduler: h.sched,
	})
	t.Cleanup(h.c.Close)
	return h
}

func (h *harness) clicks(t *testing.T, squares ...string) {
	t.Helper()
	for _, sq := range squares {
		if err := h.c.Click(sq); err != nil {
			t.Fatalf("Click(%s): %v", sq, err)
		}
	}
}

// engineMove lets the scheduled request fire and answers it with move.
func (h *harness) engineMove(t *testing.T, move string) {
	t.Helper()
	h.sched.runAll()
	req := h.eng.lastRequest(t)
	h.eng.reply(req.Generation, move)
}

func setPosition(t *testing.T, c *Controller, fen string) {
	t.Helper()
	opt, err := nchess.FEN(fen)
	if err != nil {
		t.Fatalf("FEN: %v", err)
	}
	c.mu.Lock()
	c.game = nchess.NewGame(opt)
	c.mu.Unlock()
}

func sq(t *testing.T, name string) nchess.Square {
	t.Helper()
	s, err := ParseSquare(name)
	if err != nil {
		t.Fatalf("ParseSquare(%s): %v", name, err)
	}
	return s
}

func TestClickSquareWithoutMovesStaysIdle(t *testing.T) {
	h := newHarness(t, nchess.White)
	for _, name := range []string{"e4", "e7", "a1"} {
		h.clicks(t, name)
		v := h.c.View()
		if v.Phase != PhaseIdle || v.Selected != nchess.NoSquare || len(v.Options) != 0 {
			t.Fatalf("%s: expected idle with no options, got %s %v %v", name, v.Phase, v.Selected, v.Options)
		}
	}
}

func TestClickShowsDestinations(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "e2")
	v := h.c.View()
	if v.Phase != PhaseSelected || v.Selected != sq(t, "e2") {
		t.Fatalf("expected e2 selected, got %s %v", v.Phase, v.Selected)
	}
	if len(v.Options) != 3 {
		t.Fatalf("expected e3, e4 and the selected square, got %v", v.Options.ByName())
	}
	if v.Options[sq(t, "e4")].Kind != StyleDestination || v.Options[sq(t, "e2")].Kind != StyleSelected {
		t.Fatalf("unexpected styles %v", v.Options.ByName())
	}

	// Clicking another own piece re-selects; an empty non-destination deselects.
	h.clicks(t, "g1")
	if v := h.c.View(); v.Selected != sq(t, "g1") || len(v.Options) != 3 {
		t.Fatalf("expected g1 selected, got %v %v", v.Selected, v.Options.ByName())
	}
	h.clicks(t, "a5")
	if v := h.c.View(); v.Phase != PhaseIdle || len(v.Options) != 0 {
		t.Fatalf("expected idle, got %s %v", v.Phase, v.Options.ByName())
	}
}

func TestCaptureDestinationStyle(t *testing.T) {
	h := newHarness(t, nchess.White)
	setPosition(t, h.c, "4k3/8/8/3p4/4P3/8/8/4K3 w - - 0 1")
	h.clicks(t, "e4")
	v := h.c.View()
	if v.Options[sq(t, "d5")].Kind != StyleCapture || v.Options[sq(t, "e5")].Kind != StyleDestination {
		t.Fatalf("unexpected styles %v", v.Options.ByName())
	}
}

func TestHumanMoveSchedulesOneEngineRequest(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "e2", "e4")

	v := h.c.View()
	if v.Phase != PhaseIdle || v.Selected != nchess.NoSquare || len(v.Options) != 0 {
		t.Fatalf("selection not cleared: %s %v %v", v.Phase, v.Selected, v.Options)
	}
	if len(v.History) != 1 || v.History[0] != "e4" {
		t.Fatalf("unexpected history %v", v.History)
	}
	if len(v.LastMove) != 2 {
		t.Fatalf("expected last-move highlight on two squares, got %v", v.LastMove.ByName())
	}
	if !v.EngineThinking {
		t.Fatalf("expected engine thinking while the request is scheduled")
	}
	live := h.sched.live()
	if len(live) != 1 || live[0].delay != DefaultMoveDelay {
		t.Fatalf("expected one task after %v, got %d", DefaultMoveDelay, len(live))
	}
	if h.eng.requestCount() != 0 {
		t.Fatalf("engine asked before the delay elapsed")
	}

	h.sched.runAll()
	if h.eng.requestCount() != 1 {
		t.Fatalf("expected exactly one engine request, got %d", h.eng.requestCount())
	}
	req := h.eng.lastRequest(t)
	if req.Depth != 8 || !strings.HasPrefix(req.FEN, "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b") {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestEngineReplyApplied(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "e2", "e4")
	h.engineMove(t, "e7e5")

	v := h.c.View()
	if len(v.History) != 2 || v.History[1] != "e5" {
		t.Fatalf("expected two plies, got %v", v.History)
	}
	if v.Turn != nchess.White || v.EngineThinking {
		t.Fatalf("expected human to move, turn=%v thinking=%v", v.Turn, v.EngineThinking)
	}
	if _, ok := v.LastMove[sq(t, "e7")]; !ok {
		t.Fatalf("last move not highlighted: %v", v.LastMove.ByName())
	}

	st, err := h.store.Load(context.Background(), "game-1")
	if err != nil {
		t.Fatalf("store Load: %v", err)
	}
	if st.CurrentFEN != v.FEN || len(st.Moves) != 2 || st.GameOver {
		t.Fatalf("store out of sync: %+v", st)
	}
}

func TestDuplicateReplyIgnored(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "e2", "e4")
	h.engineMove(t, "e7e5")
	gen := h.eng.lastRequest(t).Generation
	h.eng.reply(gen, "d7d5")
	if v := h.c.View(); len(v.History) != 2 {
		t.Fatalf("duplicate reply applied: %v", v.History)
	}
}

func TestClicksIgnoredWhileEngineToMove(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "e2", "e4")
	before := h.c.View()
	h.clicks(t, "e7")
	after := h.c.View()
	if after.Phase != PhaseIdle || after.Revision != before.Revision {
		t.Fatalf("click during engine turn changed state")
	}
}

func TestStaleReplyDroppedAfterNewGame(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "e2", "e4")
	h.sched.runAll()
	stale := h.eng.lastRequest(t).Generation

	h.c.NewGame()
	h.eng.reply(stale, "e7e5")

	v := h.c.View()
	if !strings.HasPrefix(v.FEN, startBoard) || len(v.History) != 0 {
		t.Fatalf("stale reply applied: %s %v", v.FEN, v.History)
	}
	if h.eng.stops == 0 {
		t.Fatalf("expected stop on new game")
	}
}

func TestScheduledRequestDroppedAfterNewGame(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "e2", "e4")
	task := h.sched.live()[0]
	h.c.NewGame()
	if !task.stopped {
		t.Fatalf("pending engine task not stopped")
	}
	// A timer that already fired before Stop must still be harmless.
	task.fn()
	if h.eng.requestCount() != 0 {
		t.Fatalf("engine asked for an abandoned game")
	}
}

func TestPromotionPromptsBeforeCommit(t *testing.T) {
	h := newHarness(t, nchess.White)
	setPosition(t, h.c, "8/P7/8/8/8/8/8/k6K w - - 0 1")
	fen := h.c.View().FEN

	h.clicks(t, "a7", "a8")
	v := h.c.View()
	if v.Phase != PhaseAwaitingPromotion || v.PromotionTo != sq(t, "a8") {
		t.Fatalf("expected promotion prompt, got %s %v", v.Phase, v.PromotionTo)
	}
	if v.FEN != fen || len(h.sched.live()) != 0 {
		t.Fatalf("move committed before a piece was chosen")
	}

	// Board clicks wait for the choice.
	h.clicks(t, "h1")
	if h.c.View().Phase != PhaseAwaitingPromotion {
		t.Fatalf("click dismissed the promotion prompt")
	}

	if err := h.c.ChoosePromotion("wN"); err != nil {
		t.Fatalf("ChoosePromotion: %v", err)
	}
	v = h.c.View()
	if v.Phase != PhaseIdle || len(v.MovesUCI) != 1 || v.MovesUCI[0] != "a7a8n" {
		t.Fatalf("promotion not applied: %s %v", v.Phase, v.MovesUCI)
	}
	if len(h.sched.live()) != 1 {
		t.Fatalf("expected engine request after promotion")
	}
}

func TestCancelPromotionDiscardsMove(t *testing.T) {
	h := newHarness(t, nchess.White)
	setPosition(t, h.c, "8/P7/8/8/8/8/8/k6K w - - 0 1")
	fen := h.c.View().FEN
	h.clicks(t, "a7", "a8")
	h.c.CancelPromotion()
	v := h.c.View()
	if v.Phase != PhaseIdle || v.FEN != fen || v.Selected != nchess.NoSquare {
		t.Fatalf("cancel left state behind: %s %s %v", v.Phase, v.FEN, v.Selected)
	}
	if err := h.c.ChoosePromotion("x"); err != ErrInvalidPiece {
		t.Fatalf("expected ErrInvalidPiece, got %v", err)
	}
}

func TestFoolsMateEngineWins(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "f2", "f3")
	h.engineMove(t, "e7e5")
	h.clicks(t, "g2", "g4")
	h.engineMove(t, "d8h4")

	v := h.c.View()
	if v.Outcome != OutcomeEngineWon || v.Method != "checkmate" {
		t.Fatalf("expected engine win by checkmate, got %s %s", v.Outcome, v.Method)
	}
	if v.Turn != nchess.White {
		t.Fatalf("the mated side must be to move")
	}
	if !v.DialogOpen || v.Result != "Stockfish wins!" {
		t.Fatalf("unexpected dialog %v %q", v.DialogOpen, v.Result)
	}
	if v.EndedAt.IsZero() {
		t.Fatalf("end time not recorded")
	}
	h.clicks(t, "e2")
	if h.c.View().Phase != PhaseIdle {
		t.Fatalf("click accepted after game over")
	}
}

func TestFoolsMateUserWinsAsBlack(t *testing.T) {
	h := newHarness(t, nchess.Black)
	if h.eng.requestCount() != 1 {
		t.Fatalf("expected immediate engine request when playing black, got %d", h.eng.requestCount())
	}
	if len(h.sched.live()) != 0 {
		t.Fatalf("first engine move must not be delayed")
	}
	h.eng.reply(h.eng.lastRequest(t).Generation, "f2f3")
	h.clicks(t, "e7", "e5")
	h.engineMove(t, "g2g4")
	h.clicks(t, "d8", "h4")

	v := h.c.View()
	if v.Outcome != OutcomeUserWon || v.Result != "User wins!" {
		t.Fatalf("expected user win, got %s %q", v.Outcome, v.Result)
	}
	if v.Orientation != nchess.Black {
		t.Fatalf("board should face black")
	}
	st, _ := h.store.Load(context.Background(), "game-1")
	if !st.GameOver || st.GameResult != "User wins!" {
		t.Fatalf("store not updated: %+v", st)
	}
}

func TestStalemateIsDraw(t *testing.T) {
	h := newHarness(t, nchess.White)
	setPosition(t, h.c, "k7/8/1Q6/8/8/8/8/7K w - - 0 1")
	h.clicks(t, "b6", "c7")
	v := h.c.View()
	if v.Outcome != OutcomeDraw || v.Method != "stalemate" || v.Result != "It's a draw!" {
		t.Fatalf("expected stalemate draw, got %s %s %q", v.Outcome, v.Method, v.Result)
	}
}

func TestNewGameResets(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "f2", "f3")
	h.engineMove(t, "e7e5")
	h.clicks(t, "g2", "g4")
	h.engineMove(t, "d8h4")
	h.c.RightClick("a1")

	h.c.NewGame()
	v := h.c.View()
	if !strings.HasPrefix(v.FEN, startBoard) {
		t.Fatalf("position not reset: %s", v.FEN)
	}
	if len(v.History) != 0 || v.Outcome != OutcomeInProgress || v.DialogOpen || v.Result != "" {
		t.Fatalf("game not reset: %+v", v)
	}
	if len(v.LastMove) != 0 || len(v.Options) != 0 {
		t.Fatalf("highlights not cleared")
	}
	st, _ := h.store.Load(context.Background(), "game-1")
	if st.GameOver || len(st.Moves) != 0 {
		t.Fatalf("store not reset: %+v", st)
	}
}

func TestResignAndCloseDialog(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "e2", "e4")
	h.sched.runAll()
	gen := h.eng.lastRequest(t).Generation

	h.c.Resign()
	v := h.c.View()
	if v.Outcome != OutcomeResigned || !v.DialogOpen || v.Result != "You Resigned!" {
		t.Fatalf("unexpected resign state %s %v %q", v.Outcome, v.DialogOpen, v.Result)
	}
	h.eng.reply(gen, "e7e5")
	if len(h.c.View().History) != 1 {
		t.Fatalf("engine reply applied after resignation")
	}

	h.c.CloseDialog()
	v = h.c.View()
	if v.DialogOpen || v.Outcome != OutcomeResigned {
		t.Fatalf("close dialog changed outcome: %v %s", v.DialogOpen, v.Outcome)
	}
	h.clicks(t, "d2")
	if h.c.View().Phase != PhaseIdle {
		t.Fatalf("click accepted after resignation")
	}

	h.c.NewGame()
	if v := h.c.View(); v.Outcome != OutcomeInProgress || v.Result != "" {
		t.Fatalf("resignation survived new game: %s %q", v.Outcome, v.Result)
	}
}

func TestRightClickTogglesAndClickClears(t *testing.T) {
	h := newHarness(t, nchess.White)
	if err := h.c.RightClick("d4"); err != nil {
		t.Fatalf("RightClick: %v", err)
	}
	if v := h.c.View(); v.Annotations[sq(t, "d4")].Kind != StyleAnnotation {
		t.Fatalf("annotation not set: %v", v.Annotations.ByName())
	}
	_ = h.c.RightClick("d4")
	if v := h.c.View(); len(v.Annotations) != 0 {
		t.Fatalf("annotation not toggled off")
	}
	_ = h.c.RightClick("h5")
	h.clicks(t, "a3")
	if v := h.c.View(); len(v.Annotations) != 0 {
		t.Fatalf("click must clear annotations")
	}
	if err := h.c.RightClick("z9"); err != ErrInvalidSquare {
		t.Fatalf("expected ErrInvalidSquare, got %v", err)
	}
}

func TestEmptyBestMoveIgnored(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.clicks(t, "e2", "e4")
	h.engineMove(t, "")
	v := h.c.View()
	if len(v.History) != 1 || v.EngineThinking {
		t.Fatalf("unexpected state after empty reply: %v thinking=%v", v.History, v.EngineThinking)
	}
}

func TestUnavailableEngineStillAcceptsHumanMoves(t *testing.T) {
	sched := &manualScheduler{}
	c := New(Config{GameID: "g", PlayAs: nchess.White, Scheduler: sched})
	defer c.Close()

	if err := c.Click("d2"); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if err := c.Click("d4"); err != nil {
		t.Fatalf("Click: %v", err)
	}
	sched.runAll()
	v := c.View()
	if len(v.History) != 1 || v.History[0] != "d4" {
		t.Fatalf("human move not applied: %v", v.History)
	}
	if v.EngineAvailable || v.EngineThinking {
		t.Fatalf("unavailable engine reported as working")
	}
}

func TestObserverSeesEveryChangeInOrder(t *testing.T) {
	h := newHarness(t, nchess.White)
	var revs []uint64
	h.c.OnChange(func(v View) { revs = append(revs, v.Revision) })
	h.clicks(t, "e2", "e4")
	h.engineMove(t, "e7e5")
	if len(revs) < 3 {
		t.Fatalf("expected at least 3 notifications, got %v", revs)
	}
	for i := 1; i < len(revs); i++ {
		if revs[i] <= revs[i-1] {
			t.Fatalf("revisions out of order: %v", revs)
		}
	}
}

func TestCloseQuitsEngine(t *testing.T) {
	h := newHarness(t, nchess.White)
	h.c.Close()
	if !h.eng.quit {
		t.Fatalf("engine not quit")
	}
	if err := h.c.Click("e2"); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestParseHelpers(t *testing.T) {
	if s, err := ParseSquare(" E4 "); err != nil || s.String() != "e4" {
		t.Fatalf("ParseSquare: %v %v", s, err)
	}
	for _, bad := range []string{"", "e9", "i1", "e44"} {
		if _, err := ParseSquare(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
	if c, err := ParseSide("Black"); err != nil || c != nchess.Black {
		t.Fatalf("ParseSide: %v %v", c, err)
	}
	if _, err := ParseSide("red"); err != ErrInvalidSide {
		t.Fatalf("expected ErrInvalidSide, got %v", err)
	}
}

func TestHumanMateLeavesNoThinkingFlag(t *testing.T) {
	h := newHarness(t, nchess.White)
	setPosition(t, h.c, "6k1/5ppp/8/8/8/8/8/R6K w - - 0 1")
	var last View
	h.c.OnChange(func(v View) { last = v })

	h.clicks(t, "a1", "a8")
	if last.Outcome != OutcomeUserWon || last.Method != "checkmate" {
		t.Fatalf("expected back rank mate, got %s %s", last.Outcome, last.Method)
	}
	if last.EngineThinking {
		t.Fatalf("finished game published with the engine thinking")
	}

	h.sched.runAll()
	if h.eng.requestCount() != 0 {
		t.Fatalf("engine asked to move after mate")
	}
	if last.EngineThinking || h.c.View().EngineThinking {
		t.Fatalf("engine thinking after the scheduled task fired: published=%v", last.EngineThinking)
	}
}

func TestThreefoldRepetitionIsDraw(t *testing.T) {
	h := newHarness(t, nchess.White)
	for i := 0; i < 2; i++ {
		h.clicks(t, "g1", "f3")
		h.engineMove(t, "g8f6")
		h.clicks(t, "f3", "g1")
		h.engineMove(t, "f6g8")
	}
	v := h.c.View()
	if v.Outcome != OutcomeDraw || v.Method != "threefold_repetition" {
		t.Fatalf("expected threefold draw, got %s %s", v.Outcome, v.Method)
	}
	if len(v.History) != 8 || !v.DialogOpen || v.EngineThinking {
		t.Fatalf("unexpected view: plies=%d dialog=%v thinking=%v", len(v.History), v.DialogOpen, v.EngineThinking)
	}
}

func TestFiftyMoveRuleIsDraw(t *testing.T) {
	h := newHarness(t, nchess.White)
	setPosition(t, h.c, "k7/8/8/8/8/8/8/KR6 w - - 99 80")
	h.clicks(t, "b1", "b2")
	v := h.c.View()
	if v.Outcome != OutcomeDraw || v.Method != "fifty_move_rule" {
		t.Fatalf("expected fifty-move draw, got %s %s", v.Outcome, v.Method)
	}
	h.sched.runAll()
	if h.eng.requestCount() != 0 {
		t.Fatalf("engine asked to move after a draw")
	}
}

func TestInsufficientMaterialAfterCapture(t *testing.T) {
	h := newHarness(t, nchess.White)
	setPosition(t, h.c, "k7/8/8/8/8/8/1p6/2B4K w - - 0 1")
	h.clicks(t, "c1", "b2")
	v := h.c.View()
	if v.Outcome != OutcomeDraw || v.Method != "insufficient_material" {
		t.Fatalf("expected insufficient material draw, got %s %s", v.Outcome, v.Method)
	}
	if v.Result != "It's a draw!" {
		t.Fatalf("unexpected result text %q", v.Result)
	}
}

func TestRoundCountsNewGames(t *testing.T) {
	h := newHarness(t, nchess.White)
	if r := h.c.View().Round; r != 1 {
		t.Fatalf("first round = %d", r)
	}
	h.c.NewGame()
	h.c.NewGame()
	if r := h.c.View().Round; r != 3 {
		t.Fatalf("expected round 3, got %d", r)
	}
}

func TestRepublishBumpsRevision(t *testing.T) {
	h := newHarness(t, nchess.White)
	before := h.c.View().Revision
	var got []uint64
	h.c.OnChange(func(v View) { got = append(got, v.Revision) })
	h.c.Republish()
	if len(got) != 1 || got[0] <= before {
		t.Fatalf("expected one newer revision, got %v (before %d)", got, before)
	}
	h.c.Close()
	h.c.Republish()
	if len(got) != 1 {
		t.Fatalf("republished after close")
	}
}
