package engine

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Board/internal/chess"
	"github.com/park285/Cheese-Board/internal/chess/uci"
)

type Kind string

const (
	KindRemote      Kind = "remote"
	KindUCI         Kind = "uci"
	KindUnavailable Kind = "unavailable"
)

type FactoryConfig struct {
	URL           string // remote engine service; wins over StockfishPath
	StockfishPath string
	PoolSize      int
	MaxInFlight   int
	Timeout       time.Duration
}

// Factory builds one adapter per game on top of a shared backend.
type Factory struct {
	kind   Kind
	cfg    FactoryConfig
	pool   *uci.Pool
	logger *zap.Logger
}

func NewFactory(cfg FactoryConfig, logger *zap.Logger) (*Factory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Factory{cfg: cfg, logger: logger}

	if url := strings.TrimSpace(cfg.URL); url != "" {
		f.kind = KindRemote
		logger.Info("engine backend", zap.String("kind", string(f.kind)), zap.String("url", url))
		return f, nil
	}

	path := strings.TrimSpace(cfg.StockfishPath)
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			pool, err := uci.NewPool(uci.PoolConfig{
				BinaryPath:         path,
				PerOptionsCapacity: cfg.PoolSize,
				Logger:             logger.Named("uci"),
			})
			if err != nil {
				return nil, err
			}
			f.kind = KindUCI
			f.pool = pool
			logger.Info("engine backend", zap.String("kind", string(f.kind)), zap.String("path", path))
			return f, nil
		}
	}

	f.kind = KindUnavailable
	logger.Warn("no engine configured; games will get no engine replies",
		zap.String("stockfish_path", path))
	return f, nil
}

func (f *Factory) Kind() Kind { return f.kind }

func (f *Factory) New(level chess.Level) Adapter {
	switch f.kind {
	case KindRemote:
		opts := []RemoteOption{WithQueueSize(f.cfg.MaxInFlight), WithLogger(f.logger.Named("remote"))}
		if f.cfg.Timeout > 0 {
			opts = append(opts, WithTimeout(f.cfg.Timeout))
		}
		return NewRemote(f.cfg.URL, opts...)
	case KindUCI:
		return NewUCI(PoolSource{Pool: f.pool}, level, f.cfg.MaxInFlight, f.logger.Named("uci"))
	default:
		return Unavailable{}
	}
}

// Stats reports pool usage; zero for backends without local processes.
func (f *Factory) Stats() uci.PoolStats {
	if f.pool == nil {
		return uci.PoolStats{}
	}
	return f.pool.Stats()
}

func (f *Factory) Close() error {
	if f.pool == nil {
		return nil
	}
	return f.pool.Close()
}
