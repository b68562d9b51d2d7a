// Package session keeps the registry of live games.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	nchess "github.com/corentings/chess/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Board/internal/board"
	"github.com/park285/Cheese-Board/internal/chess"
	"github.com/park285/Cheese-Board/internal/engine"
	"github.com/park285/Cheese-Board/internal/msgcat"
	"github.com/park285/Cheese-Board/internal/repository"
	"github.com/park285/Cheese-Board/internal/store"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrEmptyMessage   = errors.New("chat message is empty")
	ErrMessageTooLong = errors.New("chat message is too long")
)

const (
	persistTimeout = 5 * time.Second

	maxChatMessages = 100
	maxChatRunes    = 500
	guestName       = "Guest"
)

// EngineFactory builds one adapter per game.
type EngineFactory interface {
	New(level chess.Level) engine.Adapter
}

type Config struct {
	Engines       EngineFactory         // nil means every game gets engine.Unavailable
	Store         store.Store           // nil means store.NewMemory()
	Games         repository.Repository // nil disables recording finished games
	Messages      *msgcat.Catalog
	Scheduler     board.Scheduler
	MoveDelay     time.Duration
	EngineName    string
	DefaultLevel  string
	DefaultTheme  string
	DefaultPlayAs string
	Logger        *zap.Logger
	Now           func() time.Time
}

// Settings are the per-game choices from the new game request.
type Settings struct {
	PlayAs string // white | black; empty means white
	Level  string // depth or preset name
	Theme  string // empty means the player's saved theme
	Player string // optional key for the saved theme preference
}

// Session is one live game plus its subscribers.
type Session struct {
	id      string
	player  string
	level   chess.Level
	ctrl    *board.Controller
	manager *Manager

	mu         sync.Mutex
	subs       map[uint64]func(board.View)
	nextSub    uint64
	lastActive time.Time
	recorded   map[int]bool
	chat       []board.ChatMessage
}

func (s *Session) ID() string { return s.id }

func (s *Session) Player() string { return s.player }

func (s *Session) Level() chess.Level { return s.level }

func (s *Session) Controller() *board.Controller { return s.ctrl }

func (s *Session) View() board.View {
	v := s.ctrl.View()
	s.mu.Lock()
	v.Chat = s.chatLocked()
	s.mu.Unlock()
	return v
}

// Name is how the player appears in chat.
func (s *Session) Name() string {
	if s.player == "" {
		return guestName
	}
	return s.player
}

// Say appends a chat line from the player and republishes the board.
// Blank messages are rejected; only the newest maxChatMessages are kept.
func (s *Session) Say(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > maxChatRunes {
		return ErrMessageTooLong
	}
	now := s.manager.now()
	s.mu.Lock()
	s.chat = append(s.chat, board.ChatMessage{Player: s.Name(), Content: content, SentAt: now})
	if over := len(s.chat) - maxChatMessages; over > 0 {
		s.chat = append([]board.ChatMessage(nil), s.chat[over:]...)
	}
	s.lastActive = now
	s.mu.Unlock()

	s.ctrl.Republish()
	return nil
}

func (s *Session) chatLocked() []board.ChatMessage {
	return append([]board.ChatMessage(nil), s.chat...)
}

// Touch marks the session as active so CloseIdle keeps it.
func (s *Session) Touch() {
	now := s.manager.now()
	s.mu.Lock()
	s.lastActive = now
	s.mu.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Subscribe registers fn for every published view. The returned func removes it.
func (s *Session) Subscribe(fn func(board.View)) func() {
	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// SetTheme changes the board theme and remembers it for the player.
func (s *Session) SetTheme(ctx context.Context, theme string) {
	theme = strings.ToLower(strings.TrimSpace(theme))
	if theme == "" {
		return
	}
	s.ctrl.SetTheme(theme)
	if s.player == "" {
		return
	}
	if err := s.manager.store.SetTheme(ctx, s.player, theme); err != nil {
		s.manager.logger.Warn("save theme failed", zap.String("player", s.player), zap.Error(err))
	}
}

func (s *Session) onChange(v board.View) {
	s.mu.Lock()
	s.lastActive = s.manager.now()
	v.Chat = s.chatLocked()
	round := v.Round
	record := v.Outcome != board.OutcomeInProgress && !s.recorded[round]
	if record {
		s.recorded[round] = true
	}
	subs := make([]func(board.View), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	if record {
		s.manager.persist(s, v, round)
	}
	for _, fn := range subs {
		fn(v)
	}
}

// Manager owns every live session.
type Manager struct {
	engines      EngineFactory
	store        store.Store
	games        repository.Repository
	messages     *msgcat.Catalog
	sched        board.Scheduler
	moveDelay    time.Duration
	engineName   string
	defaultLevel string
	defaultTheme string
	defaultSide  string
	logger       *zap.Logger
	now          func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg Config) *Manager {
	m := &Manager{
		engines:      cfg.Engines,
		store:        cfg.Store,
		games:        cfg.Games,
		messages:     cfg.Messages,
		sched:        cfg.Scheduler,
		moveDelay:    cfg.MoveDelay,
		engineName:   cfg.EngineName,
		defaultLevel: cfg.DefaultLevel,
		defaultTheme: strings.ToLower(strings.TrimSpace(cfg.DefaultTheme)),
		defaultSide:  cfg.DefaultPlayAs,
		logger:       cfg.Logger,
		now:          cfg.Now,
		sessions:     make(map[string]*Session),
	}
	if m.store == nil {
		m.store = store.NewMemory()
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.defaultTheme == "" {
		m.defaultTheme = "classic"
	}
	return m
}

// Start creates a game with its own engine adapter and registers it.
func (m *Manager) Start(ctx context.Context, st Settings) (*Session, error) {
	playAs := nchess.White
	rawSide := st.PlayAs
	if strings.TrimSpace(rawSide) == "" {
		rawSide = m.defaultSide
	}
	if strings.TrimSpace(rawSide) != "" {
		side, err := board.ParseSide(rawSide)
		if err != nil {
			return nil, err
		}
		playAs = side
	}
	rawLevel := st.Level
	if strings.TrimSpace(rawLevel) == "" {
		rawLevel = m.defaultLevel
	}
	level, err := chess.ParseLevel(rawLevel)
	if err != nil {
		return nil, err
	}
	player := strings.TrimSpace(st.Player)
	theme := m.resolveTheme(ctx, st.Theme, player)

	var adapter engine.Adapter = engine.Unavailable{}
	if m.engines != nil {
		adapter = m.engines.New(level)
	}

	s := &Session{
		id:         uuid.NewString(),
		player:     player,
		level:      level,
		manager:    m,
		subs:       make(map[uint64]func(board.View)),
		recorded:   make(map[int]bool),
		lastActive: m.now(),
	}
	s.ctrl = board.New(board.Config{
		GameID:      s.id,
		PlayAs:      playAs,
		Depth:       level.Depth,
		Level:       level.Name,
		LevelSymbol: level.Symbol(),
		Player:      s.Name(),
		Theme:       theme,
		MoveDelay:   m.moveDelay,
		EngineName:  m.engineName,
		Engine:      adapter,
		Store:       m.store,
		Scheduler:   m.sched,
		Messages:    m.messages,
		Logger:      m.logger.Named("board"),
		Now:         m.now,
	})
	s.ctrl.OnChange(s.onChange)

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	m.logger.Info("game started",
		zap.String("game_id", s.id),
		zap.String("play_as", board.SideName(playAs)),
		zap.String("level", level.Name),
		zap.Bool("engine", adapter.Available()),
	)
	return s, nil
}

func (m *Manager) resolveTheme(ctx context.Context, requested, player string) string {
	if t := strings.ToLower(strings.TrimSpace(requested)); t != "" {
		return t
	}
	if player != "" {
		t, err := m.store.Theme(ctx, player)
		if err == nil && t != "" {
			return t
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			m.logger.Warn("load theme failed", zap.String("player", player), zap.Error(err))
		}
	}
	return m.defaultTheme
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[strings.TrimSpace(id)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close removes the session and shuts its engine down.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.ctrl.Close()
	m.logger.Debug("game closed", zap.String("game_id", id))
	return nil
}

// CloseIdle closes sessions with no activity for maxIdle and reports how many went.
func (m *Manager) CloseIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)
	var stale []string
	m.mu.RLock()
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	m.mu.RUnlock()

	closed := 0
	for _, id := range stale {
		if err := m.Close(id); err == nil {
			closed++
		}
	}
	if closed > 0 {
		m.logger.Info("idle games closed", zap.Int("count", closed))
	}
	return closed
}

// RunJanitor calls CloseIdle every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval, maxIdle time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CloseIdle(maxIdle)
		}
	}
}

// CloseAll shuts every session down.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.ctrl.Close()
	}
}

func (m *Manager) persist(s *Session, v board.View, round int) {
	if m.games == nil {
		return
	}
	gameID := s.id
	if round > 1 {
		gameID = fmt.Sprintf("%s-%d", s.id, round)
	}
	ended := v.EndedAt
	if ended.IsZero() {
		ended = m.now()
	}
	duration := ended.Sub(v.StartedAt)
	if duration < 0 {
		duration = 0
	}
	rec := &repository.Game{
		GameID:    gameID,
		PlayAs:    board.SideName(v.Orientation),
		Level:     v.Level,
		Result:    string(v.Outcome),
		Method:    v.Method,
		MovesUCI:  append([]string(nil), v.MovesUCI...),
		MovesSAN:  append([]string(nil), v.History...),
		StartedAt: v.StartedAt,
		EndedAt:   ended,
		Duration:  duration,
	}
	rec.PGN = repository.BuildPGN(rec, m.engineName)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := m.games.InsertGame(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateGame) {
			m.logger.Debug("game already recorded", zap.String("game_id", gameID))
			return
		}
		m.logger.Warn("record game failed", zap.String("game_id", gameID), zap.Error(err))
		return
	}
	m.logger.Info("game recorded",
		zap.String("game_id", gameID),
		zap.String("result", rec.Result),
		zap.String("method", rec.Method),
		zap.Int("plies", len(rec.MovesUCI)),
	)
}
