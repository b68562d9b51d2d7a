package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "")
	t.Setenv("ENGINE_MOVE_DELAY_MS", "")
	t.Setenv("DEFAULT_PLAY_AS", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen addr: %q", cfg.ListenAddr)
	}
	if cfg.EngineMoveDelay != 500*time.Millisecond {
		t.Fatalf("move delay: %v", cfg.EngineMoveDelay)
	}
	if cfg.DefaultPlayAs != "white" {
		t.Fatalf("play as: %q", cfg.DefaultPlayAs)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENGINE_MOVE_DELAY_MS", "0")
	t.Setenv("SESSION_IDLE_TTL", "45m")
	t.Setenv("ALLOWED_ORIGINS", "localhost:3000, example.com ,")
	t.Setenv("DEFAULT_THEME", "Green")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EngineMoveDelay != 0 {
		t.Fatalf("expected zero delay, got %v", cfg.EngineMoveDelay)
	}
	if cfg.SessionIdleTTL != 45*time.Minute {
		t.Fatalf("idle ttl: %v", cfg.SessionIdleTTL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "example.com" {
		t.Fatalf("origins: %v", cfg.AllowedOrigins)
	}
	if cfg.DefaultTheme != "green" {
		t.Fatalf("theme: %q", cfg.DefaultTheme)
	}
}

func TestLoadRejectsUnknownSide(t *testing.T) {
	t.Setenv("DEFAULT_PLAY_AS", "purple")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown side")
	}
}
