package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	appcfg "github.com/park285/Cheese-Board/internal/config"
	"github.com/park285/Cheese-Board/internal/engine"
	"github.com/park285/Cheese-Board/internal/msgcat"
	"github.com/park285/Cheese-Board/internal/obslog"
	"github.com/park285/Cheese-Board/internal/render"
	"github.com/park285/Cheese-Board/internal/repository"
	"github.com/park285/Cheese-Board/internal/server"
	"github.com/park285/Cheese-Board/internal/session"
	"github.com/park285/Cheese-Board/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.Init(obslog.OptionsFromEnv())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("message catalog", zap.Error(err))
	}

	var st store.Store = store.NewMemory()
	if cfg.RedisURL != "" {
		rdb, err := store.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis init", zap.Error(err))
		}
		defer rdb.Close()
		st = store.NewRedis(rdb, cfg.StateTTL)
		logger.Info("shared state on redis")
	} else {
		logger.Warn("REDIS_URL not set; shared state kept in memory")
	}

	var games repository.Repository = repository.NewMemory()
	if cfg.DatabaseURL != "" {
		pg, err := repository.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres init", zap.Error(err))
		}
		defer pg.Close()
		games = pg
		logger.Info("finished games on postgres")
	} else {
		logger.Warn("DATABASE_URL not set; finished games kept in memory")
	}

	engines, err := engine.NewFactory(engine.FactoryConfig{
		URL:           cfg.EngineURL,
		StockfishPath: cfg.StockfishPath,
		PoolSize:      cfg.EnginePoolSize,
		MaxInFlight:   cfg.EngineMaxInFlight,
	}, obslog.Named("engine"))
	if err != nil {
		logger.Fatal("engine init", zap.Error(err))
	}
	defer engines.Close()

	sessions := session.NewManager(session.Config{
		Engines:       engines,
		Store:         st,
		Games:         games,
		Messages:      messages,
		MoveDelay:     cfg.EngineMoveDelay,
		DefaultLevel:  cfg.DefaultLevel,
		DefaultTheme:  cfg.DefaultTheme,
		DefaultPlayAs: cfg.DefaultPlayAs,
		Logger:        obslog.Named("session"),
	})
	defer sessions.CloseAll()
	go sessions.RunJanitor(ctx, cfg.SessionIdleTTL/4, cfg.SessionIdleTTL)

	srv := server.New(server.Config{
		Sessions:       sessions,
		Games:          games,
		Renderer:       render.NewRenderer(),
		EngineKind:     string(engines.Kind()),
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         obslog.Named("http"),
	})
	if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped", zap.Error(err))
	}
	logger.Info("shutting down", zap.Int("sessions", sessions.Len()))
}
