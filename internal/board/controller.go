package board

import (
	"context"
	"strings"
	"sync"
	"time"

	nchess "github.com/corentings/chess/v2"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Board/internal/engine"
	"github.com/park285/Cheese-Board/internal/msgcat"
	"github.com/park285/Cheese-Board/internal/store"
)

const (
	DefaultMoveDelay  = 500 * time.Millisecond
	DefaultEngineName = "Stockfish"

	storeTimeout = 2 * time.Second
)

type Config struct {
	GameID      string
	PlayAs      nchess.Color
	Depth       int
	Level       string
	LevelSymbol string // strength badge shown next to the engine name
	Player      string
	Theme       string
	MoveDelay   time.Duration // zero means DefaultMoveDelay; negative means no delay
	EngineName  string

	Engine    engine.Adapter  // nil behaves like engine.Unavailable
	Store     store.Store     // optional
	Scheduler Scheduler       // nil means TimerScheduler
	Messages  *msgcat.Catalog // nil means msgcat.Default()
	Logger    *zap.Logger
	Now       func() time.Time // nil means time.Now
}

// Controller owns one game. All methods are safe for concurrent use;
// state changes are serialized and the observer sees them in order.
type Controller struct {
	id         string
	playAs     nchess.Color
	depth      int
	level      string
	symbol     string
	player     string
	delay      time.Duration
	engineName string

	engine   engine.Adapter
	store    store.Store
	sched    Scheduler
	messages *msgcat.Catalog
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	notifyMu    sync.Mutex
	published   bool
	lastRev     uint64
	observer    func(View)
	closed      bool
	game        *nchess.Game
	revision    uint64
	phase       Phase
	from        nchess.Square
	to          nchess.Square
	options     Highlights
	annotations Highlights
	lastMove    Highlights
	outcome     Outcome
	method      string
	dialogOpen  bool
	result      string
	theme       string
	startedAt   time.Time
	endedAt     time.Time
	round       int

	// generation changes on every engine request, new game and resignation.
	// A reply is applied only while awaiting a reply for the current one.
	generation uint64
	awaiting   bool
	pending    Task
}

func New(cfg Config) *Controller {
	c := &Controller{
		id:         cfg.GameID,
		playAs:     cfg.PlayAs,
		depth:      cfg.Depth,
		level:      cfg.Level,
		symbol:     cfg.LevelSymbol,
		player:     cfg.Player,
		delay:      cfg.MoveDelay,
		engineName: cfg.EngineName,
		engine:     cfg.Engine,
		store:      cfg.Store,
		sched:      cfg.Scheduler,
		messages:   cfg.Messages,
		logger:     cfg.Logger,
		now:        cfg.Now,
		theme:      cfg.Theme,
	}
	if c.playAs != nchess.Black {
		c.playAs = nchess.White
	}
	if c.depth <= 0 {
		c.depth = 10
	}
	if c.level == "" {
		c.level = "10"
	}
	if c.delay == 0 {
		c.delay = DefaultMoveDelay
	} else if c.delay < 0 {
		c.delay = 0
	}
	if c.engineName == "" {
		c.engineName = DefaultEngineName
	}
	if c.engine == nil {
		c.engine = engine.Unavailable{}
	}
	if c.sched == nil {
		c.sched = TimerScheduler
	}
	if c.messages == nil {
		c.messages = msgcat.Default()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.logger = c.logger.With(zap.String("game_id", c.id))

	c.engine.OnResult(c.handleReply)

	c.mu.Lock()
	c.resetLocked()
	if c.playAs == nchess.Black {
		c.requestEngineLocked()
	}
	c.mu.Unlock()
	c.publish(c.View())
	return c
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) PlayAs() nchess.Color { return c.playAs }

// OnChange replaces the observer called with a fresh View after every change.
func (c *Controller) OnChange(fn func(View)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Click handles a left click on square. Clicks are ignored while the result
// dialog is up, while the engine is to move, and once the game is over.
func (c *Controller) Click(square string) error {
	sq, err := ParseSquare(square)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.acceptsInputLocked() || c.phase == PhaseAwaitingPromotion {
		c.mu.Unlock()
		return nil
	}
	c.annotations = Highlights{}

	switch c.phase {
	case PhaseIdle:
		c.selectLocked(sq)
	case PhaseSelected:
		mv, ok := c.findMoveLocked(c.from, sq, nchess.NoPieceType)
		if !ok {
			c.selectLocked(sq)
			break
		}
		if c.isPromotionLocked(c.from, sq) {
			c.to = sq
			c.phase = PhaseAwaitingPromotion
			break
		}
		c.commitHumanLocked(mv)
	}
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
	return nil
}

// RightClick toggles the annotation mark on square.
func (c *Controller) RightClick(square string) error {
	sq, err := ParseSquare(square)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if _, marked := c.annotations[sq]; marked {
		delete(c.annotations, sq)
	} else {
		c.annotations[sq] = annotationStyle
	}
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
	return nil
}

// ChoosePromotion completes a pending pawn move with piece.
func (c *Controller) ChoosePromotion(piece string) error {
	pt, err := parsePromotion(piece)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.phase != PhaseAwaitingPromotion {
		c.mu.Unlock()
		return nil
	}
	mv, ok := c.findMoveLocked(c.from, c.to, pt)
	if !ok {
		c.clearSelectionLocked()
	} else {
		c.commitHumanLocked(mv)
	}
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
	return nil
}

// CancelPromotion drops the half-made pawn move.
func (c *Controller) CancelPromotion() {
	c.mu.Lock()
	if c.closed || c.phase != PhaseAwaitingPromotion {
		c.mu.Unlock()
		return
	}
	c.clearSelectionLocked()
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
}

// NewGame resets the board. When the human plays black the engine is asked
// for its first move straight away.
func (c *Controller) NewGame() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.resetLocked()
	c.engine.Stop()
	if c.playAs == nchess.Black {
		c.requestEngineLocked()
	}
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
}

// Resign ends a game in progress as a loss for the human.
func (c *Controller) Resign() {
	c.mu.Lock()
	if c.closed || c.outcome != OutcomeInProgress {
		c.mu.Unlock()
		return
	}
	c.cancelEngineLocked()
	c.engine.Stop()
	c.clearSelectionLocked()
	c.outcome = OutcomeResigned
	c.method = "resignation"
	c.result = c.messages.Text("result.resigned", nil, "You Resigned!")
	c.dialogOpen = true
	c.endedAt = c.now()
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.logger.Info("player resigned", zap.Int("plies", len(v.MovesUCI)))
	c.publish(v)
}

// CloseDialog hides the result dialog; the outcome stays.
func (c *Controller) CloseDialog() {
	c.mu.Lock()
	if c.closed || !c.dialogOpen {
		c.mu.Unlock()
		return
	}
	c.dialogOpen = false
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
}

func (c *Controller) SetTheme(theme string) {
	theme = strings.ToLower(strings.TrimSpace(theme))
	c.mu.Lock()
	if c.closed || theme == "" || theme == c.theme {
		c.mu.Unlock()
		return
	}
	c.theme = theme
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
}

// Republish sends the current state again under a new revision, for
// changes held outside the controller such as chat.
func (c *Controller) Republish() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
}

// Close cancels pending engine work and shuts the adapter down.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.cancelEngineLocked()
	c.mu.Unlock()

	c.engine.OnResult(nil)
	c.engine.Quit()
}

func (c *Controller) acceptsInputLocked() bool {
	return !c.dialogOpen &&
		c.outcome == OutcomeInProgress &&
		c.game.Position().Turn() == c.playAs
}

func (c *Controller) resetLocked() {
	c.cancelEngineLocked()
	c.game = nchess.NewGame()
	c.clearSelectionLocked()
	c.annotations = Highlights{}
	c.lastMove = Highlights{}
	c.outcome = OutcomeInProgress
	c.method = ""
	c.result = ""
	c.dialogOpen = false
	c.startedAt = c.now()
	c.endedAt = time.Time{}
	c.round++
}

func (c *Controller) clearSelectionLocked() {
	c.phase = PhaseIdle
	c.from = nchess.NoSquare
	c.to = nchess.NoSquare
	c.options = Highlights{}
}

// selectLocked shows the legal destinations of the piece on sq, or returns
// to idle when it has none.
func (c *Controller) selectLocked(sq nchess.Square) {
	opts := c.moveOptionsLocked(sq)
	if len(opts) == 0 {
		c.clearSelectionLocked()
		return
	}
	c.phase = PhaseSelected
	c.from = sq
	c.to = nchess.NoSquare
	c.options = opts
}

func (c *Controller) moveOptionsLocked(sq nchess.Square) Highlights {
	board := c.game.Position().Board()
	piece := board.Piece(sq)
	out := Highlights{}
	moves := c.game.ValidMoves()
	for i := range moves {
		mv := &moves[i]
		if mv.S1() != sq {
			continue
		}
		target := board.Piece(mv.S2())
		if target != nchess.NoPiece && target.Color() != piece.Color() {
			out[mv.S2()] = captureStyle
		} else {
			out[mv.S2()] = destinationStyle
		}
	}
	if len(out) == 0 {
		return nil
	}
	out[sq] = selectedStyle
	return out
}

// findMoveLocked returns the legal move from→to. A promotion piece of
// NoPieceType matches any promotion, so a found pawn push to the last rank
// is reported before a piece is chosen.
func (c *Controller) findMoveLocked(from, to nchess.Square, promo nchess.PieceType) (*nchess.Move, bool) {
	moves := c.game.ValidMoves()
	for i := range moves {
		mv := &moves[i]
		if mv.S1() != from || mv.S2() != to {
			continue
		}
		if promo != nchess.NoPieceType && mv.Promo() != promo {
			continue
		}
		return mv, true
	}
	return nil, false
}

func (c *Controller) isPromotionLocked(from, to nchess.Square) bool {
	piece := c.game.Position().Board().Piece(from)
	if piece.Type() != nchess.Pawn {
		return false
	}
	return (piece.Color() == nchess.White && to.Rank() == nchess.Rank8) ||
		(piece.Color() == nchess.Black && to.Rank() == nchess.Rank1)
}

func (c *Controller) commitHumanLocked(mv *nchess.Move) {
	if err := c.game.Move(mv, nil); err != nil {
		c.logger.Warn("human move rejected", zap.String("move", mv.String()), zap.Error(err))
		c.clearSelectionLocked()
		return
	}
	c.lastMove = Highlights{mv.S1(): lastMoveStyle, mv.S2(): lastMoveStyle}
	c.clearSelectionLocked()
	c.updateOutcomeLocked()
	c.scheduleEngineLocked()
}

// scheduleEngineLocked defers one engine request by the move delay. The task
// is dropped if the game changes generation before it fires.
func (c *Controller) scheduleEngineLocked() {
	c.cancelEngineLocked()
	gen := c.generation
	c.pending = c.sched.AfterFunc(c.delay, func() { c.fireEngine(gen) })
}

func (c *Controller) fireEngine(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	if !c.requestEngineLocked() {
		c.logger.Debug("engine request skipped", zap.String("outcome", string(c.outcome)))
	}
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
}

// requestEngineLocked posts the current position when the engine is to move.
func (c *Controller) requestEngineLocked() bool {
	if c.outcome != OutcomeInProgress || c.game.Position().Turn() == c.playAs {
		return false
	}
	c.generation++
	req := engine.Request{FEN: c.game.FEN(), Depth: c.depth, Generation: c.generation}
	if err := c.engine.Evaluate(req); err != nil {
		c.logger.Warn("engine request failed", zap.Uint64("generation", req.Generation), zap.Error(err))
		return false
	}
	c.awaiting = c.engine.Available()
	return true
}

func (c *Controller) cancelEngineLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.awaiting = false
	c.generation++
}

func (c *Controller) handleReply(r engine.Reply) {
	c.mu.Lock()
	if c.closed || !c.awaiting || r.Generation != c.generation {
		current := c.generation
		c.mu.Unlock()
		c.logger.Debug("dropping stale engine reply",
			zap.Uint64("generation", r.Generation),
			zap.Uint64("current", current),
			zap.String("bestmove", r.BestMove),
		)
		return
	}
	c.awaiting = false

	if r.BestMove == "" {
		c.mu.Unlock()
		c.logger.Debug("engine has no move", zap.String("fen", r.FEN))
		return
	}
	pos := c.game.Position()
	mv, err := nchess.UCINotation{}.Decode(pos, strings.ToLower(r.BestMove))
	if err == nil {
		err = c.game.Move(mv, nil)
	}
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("engine move not applicable", zap.String("bestmove", r.BestMove), zap.Error(err))
		return
	}
	c.lastMove = Highlights{mv.S1(): lastMoveStyle, mv.S2(): lastMoveStyle}
	c.clearSelectionLocked()
	c.updateOutcomeLocked()
	c.revision++
	v := c.viewLocked()
	c.mu.Unlock()

	c.publish(v)
}

func (c *Controller) updateOutcomeLocked() {
	if c.outcome != OutcomeInProgress {
		return
	}
	// Threefold repetition and the fifty-move rule end the game here
	// instead of waiting for a claim.
	if c.game.Outcome() == nchess.NoOutcome {
		for _, m := range c.game.EligibleDraws() {
			if m == nchess.ThreefoldRepetition || m == nchess.FiftyMoveRule {
				if err := c.game.Draw(m); err == nil {
					break
				}
			}
		}
	}

	var winner nchess.Color
	switch c.game.Outcome() {
	case nchess.NoOutcome:
		return
	case nchess.WhiteWon:
		winner = nchess.White
	case nchess.BlackWon:
		winner = nchess.Black
	case nchess.Draw:
		winner = nchess.NoColor
	}

	c.method = methodName(c.game.Method())
	switch {
	case winner == nchess.NoColor:
		c.outcome = OutcomeDraw
		c.result = c.messages.Text("result.draw", nil, "It's a draw!")
	case winner == c.playAs:
		c.outcome = OutcomeUserWon
		c.result = c.messages.Text("result.user_wins", nil, "User wins!")
	default:
		c.outcome = OutcomeEngineWon
		c.result = c.messages.Text("result.engine_wins", map[string]string{"Engine": c.engineName}, c.engineName+" wins!")
	}
	c.dialogOpen = true
	c.endedAt = c.now()
	c.cancelEngineLocked()
	c.logger.Info("game over",
		zap.String("outcome", string(c.outcome)),
		zap.String("method", c.method),
		zap.Int("plies", len(c.game.Moves())),
	)
}

func methodName(m nchess.Method) string {
	switch m {
	case nchess.Checkmate:
		return "checkmate"
	case nchess.Resignation:
		return "resignation"
	case nchess.Stalemate:
		return "stalemate"
	case nchess.ThreefoldRepetition:
		return "threefold_repetition"
	case nchess.FivefoldRepetition:
		return "fivefold_repetition"
	case nchess.FiftyMoveRule:
		return "fifty_move_rule"
	case nchess.SeventyFiveMoveRule:
		return "seventy_five_move_rule"
	case nchess.InsufficientMaterial:
		return "insufficient_material"
	default:
		return ""
	}
}

func (c *Controller) viewLocked() View {
	moves := c.game.Moves()
	positions := c.game.Positions()
	san := make([]string, 0, len(moves))
	uciMoves := make([]string, 0, len(moves))
	for i, mv := range moves {
		if i >= len(positions) {
			break
		}
		san = append(san, nchess.AlgebraicNotation{}.Encode(positions[i], mv))
		uciMoves = append(uciMoves, nchess.UCINotation{}.Encode(positions[i], mv))
	}
	v := View{
		GameID:          c.id,
		Revision:        c.revision,
		FEN:             c.game.FEN(),
		Orientation:     c.playAs,
		Turn:            c.game.Position().Turn(),
		Phase:           c.phase,
		Selected:        c.from,
		PromotionTo:     nchess.NoSquare,
		Options:         c.options.clone(),
		Annotations:     c.annotations.clone(),
		LastMove:        c.lastMove.clone(),
		History:         san,
		MovesUCI:        uciMoves,
		Outcome:         c.outcome,
		Method:          c.method,
		DialogOpen:      c.dialogOpen,
		Result:          c.result,
		EngineAvailable: c.engine.Available(),
		EngineThinking:  c.outcome == OutcomeInProgress && (c.pending != nil || c.awaiting),
		Level:           c.level,
		LevelSymbol:     c.symbol,
		Player:          c.player,
		Round:           c.round,
		Theme:           c.theme,
		StartedAt:       c.startedAt,
		EndedAt:         c.endedAt,
	}
	if c.phase == PhaseAwaitingPromotion {
		v.PromotionTo = c.to
	}
	return v
}

// publish hands v to the observer and the shared store, outside c.mu.
// notifyMu keeps deliveries in revision order.
func (c *Controller) publish(v View) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if c.published && v.Revision <= c.lastRev {
		return
	}
	c.published = true
	c.lastRev = v.Revision

	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()

	if c.store != nil && c.id != "" {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := c.store.Save(ctx, store.State{
			GameID:     v.GameID,
			Moves:      v.History,
			CurrentFEN: v.FEN,
			Theme:      v.Theme,
			GameOver:   v.Outcome != OutcomeInProgress,
			GameResult: v.Result,
			UpdatedAt:  c.now(),
		})
		cancel()
		if err != nil {
			c.logger.Warn("store save failed", zap.Error(err))
		}
	}
	if observer != nil {
		observer(v)
	}
}
