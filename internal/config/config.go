package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr string

	// Engine: ENGINE_URL wins over STOCKFISH_PATH when both are set.
	StockfishPath     string
	EngineURL         string
	EnginePoolSize    int
	EngineMoveDelay   time.Duration
	EngineMaxInFlight int

	RedisURL    string
	DatabaseURL string

	DefaultLevel   string
	DefaultTheme   string
	DefaultPlayAs  string
	SessionIdleTTL time.Duration
	StateTTL       time.Duration
	MessagesDir    string
	AllowedOrigins []string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:        ":8080",
		EngineMoveDelay:   500 * time.Millisecond,
		EngineMaxInFlight: 4,
		DefaultLevel:      "10",
		DefaultTheme:      "classic",
		DefaultPlayAs:     "white",
		SessionIdleTTL:    30 * time.Minute,
		StateTTL:          24 * time.Hour,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.EngineURL = strings.TrimSpace(os.Getenv("ENGINE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("ENGINE_POOL_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EnginePoolSize = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_MAX_IN_FLIGHT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EngineMaxInFlight = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ENGINE_MOVE_DELAY_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.EngineMoveDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_LEVEL")); v != "" {
		cfg.DefaultLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_THEME")); v != "" {
		cfg.DefaultTheme = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_PLAY_AS")); v != "" {
		cfg.DefaultPlayAs = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("SESSION_IDLE_TTL")); v != "" { // Go duration, e.g. 45m
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SessionIdleTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("STATE_TTL")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.StateTTL = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	if cfg.DefaultPlayAs != "white" && cfg.DefaultPlayAs != "black" {
		return nil, errors.New("DEFAULT_PLAY_AS must be white or black")
	}
	if cfg.ListenAddr == "" {
		return nil, errors.New("LISTEN_ADDR is required")
	}
	return cfg, nil
}
