package ledger

import (
	"context"
	"sync"
	"time"
)

// Entry é um lançamento do ledger em memória (espelha ledger_entries).
type Entry struct {
	AccountID   string
	Kind        string
	AmountCents int64
	Ref         string
	CreatedAt   time.Time
}

// Memory implementa o Ledger em memória pra dev local (STORE=memory) e
// testes. O mutex serializa mutações; o contrato observável (saldo nunca
// negativo, version incrementando a cada mutação) é o mesmo do Postgres.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	entries  []Entry
}

func NewMemory() *Memory {
	return &Memory{accounts: make(map[string]*Account)}
}

func (m *Memory) CreateAccount(_ context.Context, accountID string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.accounts[accountID]; ok {
		cp := *a
		return &cp, nil
	}
	a := &Account{ID: accountID, BalanceCents: 0, Version: 1, CreatedAt: time.Now()}
	m.accounts[accountID] = a
	cp := *a
	return &cp, nil
}

func (m *Memory) GetAccount(_ context.Context, accountID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) Balance(ctx context.Context, accountID string) (int64, error) {
	a, err := m.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return a.BalanceCents, nil
}

func (m *Memory) Debit(_ context.Context, accountID string, amountCents int64, ref string) (*Account, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return m.mutate(accountID, -amountCents, EntryDebit, ref)
}

func (m *Memory) Credit(ctx context.Context, accountID string, amountCents int64, ref string) (*Account, error) {
	if amountCents < 0 {
		return nil, ErrInvalidAmount
	}
	if amountCents == 0 {
		return m.GetAccount(ctx, accountID)
	}
	return m.mutate(accountID, amountCents, EntryCredit, ref)
}

func (m *Memory) mutate(accountID string, delta int64, kind, ref string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	if a.BalanceCents+delta < 0 {
		return nil, ErrInsufficientFunds
	}

	a.BalanceCents += delta
	a.Version++
	amount := delta
	if amount < 0 {
		amount = -amount
	}
	m.entries = append(m.entries, Entry{
		AccountID:   accountID,
		Kind:        kind,
		AmountCents: amount,
		Ref:         ref,
		CreatedAt:   time.Now(),
	})

	cp := *a
	return &cp, nil
}

// Entries devolve uma cópia dos lançamentos (inspeção em testes).
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}
