package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory keeps games in process. Used when DATABASE_URL is unset.
type Memory struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[string]*Game
	games  []*Game
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]*Game)}
}

func (m *Memory) InsertGame(_ context.Context, game *Game) (int64, error) {
	if game == nil {
		return 0, ErrDuplicateGame
	}
	key := strings.TrimSpace(game.GameID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[key]; exists {
		return 0, ErrDuplicateGame
	}
	m.nextID++
	stored := cloneGame(game)
	stored.ID = m.nextID
	m.byID[key] = stored
	m.games = append(m.games, stored)
	return stored.ID, nil
}

func (m *Memory) RecentGames(_ context.Context, limit int) ([]*Game, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	m.mu.RLock()
	items := make([]*Game, 0, len(m.games))
	for _, g := range m.games {
		items = append(items, cloneGame(g))
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].EndedAt.Equal(items[j].EndedAt) {
			return items[i].EndedAt.After(items[j].EndedAt)
		}
		return items[i].ID > items[j].ID
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *Memory) Game(_ context.Context, gameID string) (*Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.byID[strings.TrimSpace(gameID)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneGame(g), nil
}

func cloneGame(g *Game) *Game {
	out := *g
	out.MovesUCI = append([]string(nil), g.MovesUCI...)
	out.MovesSAN = append([]string(nil), g.MovesSAN...)
	return &out
}
