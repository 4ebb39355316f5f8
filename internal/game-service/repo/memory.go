package repo

import (
	"context"
	"sync"

	"github.com/radieske/casino-games-platform-poc/internal/game-service/engine"
)

// Memory guarda rounds e apostas em mapas. Backend de dev/teste; o
// contrato é o mesmo do Postgres.
type Memory struct {
	mu     sync.RWMutex
	rounds map[string]*engine.Round
	bets   map[string]*engine.Bet
}

func NewMemory() *Memory {
	return &Memory{
		rounds: make(map[string]*engine.Round),
		bets:   make(map[string]*engine.Bet),
	}
}

func (m *Memory) SaveRound(_ context.Context, r *engine.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[r.ID] = r
	return nil
}

func (m *Memory) UpdateRound(_ context.Context, r *engine.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[r.ID] = r
	return nil
}

func (m *Memory) SaveBet(_ context.Context, b *engine.Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bets[b.ID] = &cp
	return nil
}

func (m *Memory) UpdateBet(ctx context.Context, b *engine.Bet) error {
	return m.SaveBet(ctx, b)
}

func (m *Memory) GetBet(_ context.Context, betID string) (*engine.Bet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bets[betID]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}
