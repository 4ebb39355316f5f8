package history

import (
	"context"
	"sync"
)

// Memory guarda o histórico em memória (dev local e testes). A retenção
// é aplicada no próprio Append: mantém as retention entradas mais
// recentes por conta, como o produto original fazia com as últimas 50.
type Memory struct {
	mu        sync.RWMutex
	byAccount map[string][]Entry // mais recente primeiro
	seen      map[string]bool    // bet_id já registrado (idempotência)
	retention int
}

func NewMemory(retention int) *Memory {
	return &Memory{
		byAccount: make(map[string][]Entry),
		seen:      make(map[string]bool),
		retention: retention,
	}
}

func (m *Memory) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.seen[e.BetID] {
		return nil
	}
	m.seen[e.BetID] = true

	list := append([]Entry{e}, m.byAccount[e.AccountID]...)
	if m.retention > 0 && len(list) > m.retention {
		for _, old := range list[m.retention:] {
			delete(m.seen, old.BetID)
		}
		list = list[:m.retention]
	}
	m.byAccount[e.AccountID] = list
	return nil
}

func (m *Memory) Query(_ context.Context, accountID string, limit, offset int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	list := m.byAccount[accountID]
	if offset >= len(list) {
		return nil, nil
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}

	out := make([]Entry, end-offset)
	copy(out, list[offset:end])
	return out, nil
}
