// Package server exposes games over HTTP and websockets.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Board/internal/chess"
	"github.com/park285/Cheese-Board/internal/render"
	"github.com/park285/Cheese-Board/internal/repository"
	"github.com/park285/Cheese-Board/internal/session"
	"github.com/park285/Cheese-Board/pkg/boarddto"
)

const (
	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

type Config struct {
	Sessions       *session.Manager
	Games          repository.Repository // nil serves an empty history
	Renderer       render.Renderer       // nil means render.NewRenderer()
	EngineKind     string
	AllowedOrigins []string // websocket origin patterns; empty allows same host only
	Logger         *zap.Logger
}

type Server struct {
	sessions   *session.Manager
	games      repository.Repository
	renderer   render.Renderer
	engineKind string
	origins    []string
	logger     *zap.Logger
	mux        *http.ServeMux
}

func New(cfg Config) *Server {
	s := &Server{
		sessions:   cfg.Sessions,
		games:      cfg.Games,
		renderer:   cfg.Renderer,
		engineKind: cfg.EngineKind,
		origins:    cfg.AllowedOrigins,
		logger:     cfg.Logger,
		mux:        http.NewServeMux(),
	}
	if s.renderer == nil {
		s.renderer = render.NewRenderer()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/games", s.handleCreate)
	s.mux.HandleFunc("GET /api/games/recent", s.handleRecent)
	s.mux.HandleFunc("GET /api/history/{id}", s.handleFinished)
	s.mux.HandleFunc("GET /api/games/{id}", s.handleView)
	s.mux.HandleFunc("GET /api/games/{id}/board.png", s.handleBoardPNG)
	s.mux.HandleFunc("GET /ws/games/{id}", s.handleSocket)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("http request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("elapsed", time.Since(start)),
	)
}

// ListenAndServe runs the HTTP server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, boarddto.Health{
		Status:   "ok",
		Engine:   s.engineKind,
		Sessions: s.sessions.Len(),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := boarddto.NewGameRequest{
		PlayAs: q.Get("playAs"),
		Level:  q.Get("stockfishLevel"),
		Theme:  q.Get("theme"),
		Player: q.Get("player"),
	}
	if req.Level != "" {
		if _, err := chess.ParseLevel(req.Level); err != nil {
			writeError(w, http.StatusBadRequest, &boarddto.DomainError{Code: boarddto.CodeInvalidLevel, Message: err.Error()})
			return
		}
	}
	if req.Theme != "" && !render.KnownTheme(req.Theme) {
		writeError(w, http.StatusBadRequest, &boarddto.DomainError{
			Code:    boarddto.CodeInvalidTheme,
			Message: "theme must be one of " + strings.Join(render.ThemeNames(), ", "),
		})
		return
	}

	sess, err := s.sessions.Start(r.Context(), session.Settings{
		PlayAs: req.PlayAs,
		Level:  req.Level,
		Theme:  req.Theme,
		Player: req.Player,
	})
	if err != nil {
		de := domainError(err)
		if de.Code == boarddto.CodeInternal {
			writeError(w, http.StatusInternalServerError, de)
			return
		}
		writeError(w, http.StatusBadRequest, de)
		return
	}
	writeJSON(w, http.StatusCreated, toViewDTO(sess.View()))
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(sess.View()))
}

func (s *Server) handleBoardPNG(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(w, r)
	if !ok {
		return
	}
	data, err := s.renderer.RenderPNG(r.Context(), sess.View())
	if err != nil {
		s.logger.Warn("render board failed", zap.String("game_id", sess.ID()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, domainError(err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, &boarddto.DomainError{Code: boarddto.CodeBadRequest, Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxRecentLimit)
	}
	resp := boarddto.HistoryResponse{Games: []boarddto.Game{}}
	if s.games != nil {
		games, err := s.games.RecentGames(r.Context(), limit)
		if err != nil {
			s.logger.Warn("recent games failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, domainError(err))
			return
		}
		for _, g := range games {
			resp.Games = append(resp.Games, toGameDTO(g))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFinished(w http.ResponseWriter, r *http.Request) {
	if s.games == nil {
		writeError(w, http.StatusNotFound, domainError(repository.ErrNotFound))
		return
	}
	g, err := s.games.Game(r.Context(), r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, repository.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, domainError(err))
		return
	}
	writeJSON(w, http.StatusOK, toGameDTO(g))
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.sessions.Get(r.PathValue("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, session.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, domainError(err))
		return nil, false
	}
	sess.Touch()
	return sess, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, de *boarddto.DomainError) {
	writeJSON(w, status, boarddto.ServerMessage{Type: boarddto.TypeError, Error: de})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes the websocket upgrade through to the underlying writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
