package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Memory keeps state in process. Used when REDIS_URL is unset and in tests.
type Memory struct {
	mu     sync.RWMutex
	states map[string]State
	themes map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		states: make(map[string]State),
		themes: make(map[string]string),
	}
}

func (m *Memory) Save(_ context.Context, st State) error {
	if strings.TrimSpace(st.GameID) == "" {
		return fmt.Errorf("game id required")
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	st.Moves = append([]string(nil), st.Moves...)
	m.mu.Lock()
	m.states[st.GameID] = st
	m.mu.Unlock()
	return nil
}

func (m *Memory) Load(_ context.Context, gameID string) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[gameID]
	if !ok {
		return State{}, ErrNotFound
	}
	st.Moves = append([]string(nil), st.Moves...)
	return st, nil
}

func (m *Memory) Delete(_ context.Context, gameID string) error {
	m.mu.Lock()
	delete(m.states, gameID)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Theme(_ context.Context, player string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.themes[strings.TrimSpace(player)], nil
}

func (m *Memory) SetTheme(_ context.Context, player, theme string) error {
	if strings.TrimSpace(player) == "" {
		return nil
	}
	m.mu.Lock()
	m.themes[strings.TrimSpace(player)] = strings.TrimSpace(theme)
	m.mu.Unlock()
	return nil
}
