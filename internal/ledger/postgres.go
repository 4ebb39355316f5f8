package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/radieske/casino-games-platform-poc/internal/shared/metrics"
)

// Postgres implementa o Ledger em banco. A serialização por conta é feita
// com compare-and-swap na coluna version (UPDATE ... WHERE version=$n):
// duas apostas concorrentes nunca debitam o mesmo saldo desatualizado.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// CreateAccount insere a conta com saldo zero e version 1.
func (p *Postgres) CreateAccount(ctx context.Context, accountID string) (*Account, error) {
	now := time.Now()
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO accounts (id, balance_cents, version, created_at)
		VALUES ($1, 0, 1, $2)
		ON CONFLICT (id) DO NOTHING`,
		accountID, now)
	if err != nil {
		return nil, err
	}
	return p.GetAccount(ctx, accountID)
}

func (p *Postgres) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var a Account
	err := p.db.QueryRowContext(ctx,
		`SELECT id, balance_cents, version, created_at FROM accounts WHERE id=$1`,
		accountID).Scan(&a.ID, &a.BalanceCents, &a.Version, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (p *Postgres) Balance(ctx context.Context, accountID string) (int64, error) {
	a, err := p.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return a.BalanceCents, nil
}

// Debit remove amountCents do saldo. Rejeita amount <= 0 e saldo
// insuficiente antes de qualquer escrita; no conflito de version tenta de
// novo até maxRetries e então devolve ErrConflict.
func (p *Postgres) Debit(ctx context.Context, accountID string, amountCents int64, ref string) (*Account, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidAmount
	}
	return p.mutate(ctx, accountID, -amountCents, EntryDebit, ref)
}

// Credit soma amountCents ao saldo. amount zero é no-op com sucesso
// (idempotente); negativo é ErrInvalidAmount.
func (p *Postgres) Credit(ctx context.Context, accountID string, amountCents int64, ref string) (*Account, error) {
	if amountCents < 0 {
		return nil, ErrInvalidAmount
	}
	if amountCents == 0 {
		return p.GetAccount(ctx, accountID)
	}
	return p.mutate(ctx, accountID, amountCents, EntryCredit, ref)
}

// mutate aplica o delta com CAS na version; a linha do ledger entra na
// mesma transação do update, então falha não deixa efeito parcial.
func (p *Postgres) mutate(ctx context.Context, accountID string, delta int64, kind, ref string) (*Account, error) {
	for attempt := 0; attempt < maxRetries; attempt++ {
		acc, err := p.GetAccount(ctx, accountID)
		if err != nil {
			return nil, err
		}

		newBalance := acc.BalanceCents + delta
		if newBalance < 0 {
			return nil, ErrInsufficientFunds
		}

		tx, err := p.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET balance_cents = $1, version = version + 1
			WHERE id = $2 AND version = $3`,
			newBalance, accountID, acc.Version)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		if n == 0 {
			// outra mutação venceu a corrida; tenta na version nova
			_ = tx.Rollback()
			metrics.LedgerConflicts.Inc()
			continue
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (account_id, kind, amount_cents, ref, created_at)
			VALUES ($1, $2, $3, $4, NOW())`,
			accountID, kind, abs(delta), ref); err != nil {
			_ = tx.Rollback()
			return nil, err
		}

		if err = tx.Commit(); err != nil {
			return nil, err
		}

		acc.BalanceCents = newBalance
		acc.Version++
		return acc, nil
	}

	return nil, ErrConflict
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
