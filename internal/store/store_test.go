package store

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedis(rdb, time.Hour), mr
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	st := State{GameID: "g1", Moves: []string{"e4", "e5"}, CurrentFEN: "fen", Theme: "green"}
	if err := s.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "g1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Moves) != 2 || got.Moves[1] != "e5" || got.CurrentFEN != "fen" || got.UpdatedAt.IsZero() {
		t.Fatalf("unexpected state %+v", got)
	}
	if err := s.Save(ctx, State{}); err == nil {
		t.Fatalf("expected error for empty game id")
	}
	if err := s.Delete(ctx, "g1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if theme, err := s.Theme(ctx, "alice"); err != nil || theme != "" {
		t.Fatalf("expected empty theme, got %q %v", theme, err)
	}
	if err := s.SetTheme(ctx, "alice", "blue"); err != nil {
		t.Fatalf("SetTheme: %v", err)
	}
	if theme, _ := s.Theme(ctx, "alice"); theme != "blue" {
		t.Fatalf("expected blue, got %q", theme)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestRedisStore(t *testing.T) {
	s, _ := newTestRedis(t)
	exerciseStore(t, s)
}

func TestRedisStateExpires(t *testing.T) {
	s, mr := newTestRedis(t)
	ctx := context.Background()
	if err := s.Save(ctx, State{GameID: "g2", CurrentFEN: "x"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL("board:state:g2"); ttl != time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := s.Load(ctx, "g2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:secret@cache.local:6380/2")
	if err != nil {
		t.Fatalf("parseRedisURL: %v", err)
	}
	if opts.Addr != "cache.local:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := parseRedisURL("http://x"); err == nil {
		t.Fatalf("expected scheme error")
	}
	if _, err := parseRedisURL("redis://x/abc"); err == nil {
		t.Fatalf("expected db error")
	}
}

func TestDialMiniredis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb, err := Dial(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	_ = rdb.Close()
}
