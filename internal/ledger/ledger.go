package ledger

import (
	"context"
	"errors"
	"time"
)

// Erros do ledger; o HTTP layer mapeia cada um pro errorKind do contrato.
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("account not found")
	ErrDuplicate         = errors.New("account already exists")
	ErrConflict          = errors.New("optimistic concurrency conflict")
)

// Account é a conta do ledger. Invariante: BalanceCents >= 0 sempre;
// Version incrementa em toda mutação (token de concorrência otimista).
type Account struct {
	ID           string    `json:"id"`
	BalanceCents int64     `json:"balance_cents"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

// Tipos de lançamento registrados no ledger append-only.
const (
	EntryDebit  = "DEBIT"
	EntryCredit = "CREDIT"
)

// Ledger é o dono exclusivo do saldo das contas. Toda mutação é
// serializada por conta (CAS na version com retry limitado) e atômica:
// falha não deixa efeito parcial.
type Ledger interface {
	CreateAccount(ctx context.Context, accountID string) (*Account, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)

	// Debit falha com ErrInvalidAmount (amount <= 0) ou
	// ErrInsufficientFunds (amount > saldo), sem efeito parcial.
	Debit(ctx context.Context, accountID string, amountCents int64, ref string) (*Account, error)

	// Credit aceita amount >= 0; zero é um no-op que ainda retorna sucesso.
	Credit(ctx context.Context, accountID string, amountCents int64, ref string) (*Account, error)

	Balance(ctx context.Context, accountID string) (int64, error)
}

// maxRetries limita o loop de retry no conflito de version antes de
// devolver ErrConflict ao chamador.
const maxRetries = 5
