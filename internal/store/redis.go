package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultStateTTL = 24 * time.Hour
	themeTTL        = 90 * 24 * time.Hour
)

type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &Redis{rdb: rdb, ttl: ttl}
}

// Dial connects to REDIS_URL (redis:// or rediss://) and pings it.
func Dial(ctx context.Context, rawURL string) (*redis.Client, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, fmt.Errorf("redis url required")
	}
	opts, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *Redis) keyState(gameID string) string { return "board:state:" + strings.TrimSpace(gameID) }
func (s *Redis) keyTheme(player string) string { return "board:theme:" + strings.TrimSpace(player) }

func (s *Redis) Save(ctx context.Context, st State) error {
	if strings.TrimSpace(st.GameID) == "" {
		return fmt.Errorf("game id required")
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyState(st.GameID), raw, s.ttl).Err()
}

func (s *Redis) Load(ctx context.Context, gameID string) (State, error) {
	raw, err := s.rdb.Get(ctx, s.keyState(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrNotFound
	}
	if err != nil {
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	return st, nil
}

func (s *Redis) Delete(ctx context.Context, gameID string) error {
	return s.rdb.Del(ctx, s.keyState(gameID)).Err()
}

func (s *Redis) Theme(ctx context.Context, player string) (string, error) {
	if strings.TrimSpace(player) == "" {
		return "", nil
	}
	v, err := s.rdb.Get(ctx, s.keyTheme(player)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return v, err
}

func (s *Redis) SetTheme(ctx context.Context, player, theme string) error {
	if strings.TrimSpace(player) == "" {
		return nil
	}
	return s.rdb.Set(ctx, s.keyTheme(player), strings.TrimSpace(theme), themeTTL).Err()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		port = "6379"
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{
		Addr:     host + ":" + port,
		Username: u.User.Username(),
		Password: pass,
		DB:       db,
	}, nil
}
