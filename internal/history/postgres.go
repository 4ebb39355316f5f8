package history

import (
	"context"
	"database/sql"
)

// Postgres persiste o histórico na tabela bet_history, chaveada por
// (account_id, settled_at). Append é o único insert; a retenção roda
// como janitor periódico no game-service.
type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Append(ctx context.Context, e Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bet_history
		  (bet_id, account_id, game_type, stake_cents, payout_cents, net_cents, outcome, voided, settled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (bet_id) DO NOTHING`,
		e.BetID, e.AccountID, e.GameType, e.Stake, e.Payout, e.NetCents, e.Outcome, e.WasVoided, e.SettledAt)
	return err
}

func (p *Postgres) Query(ctx context.Context, accountID string, limit, offset int) ([]Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT bet_id, account_id, game_type, stake_cents, payout_cents, net_cents, outcome, voided, settled_at
		FROM bet_history
		WHERE account_id=$1
		ORDER BY settled_at DESC
		LIMIT $2 OFFSET $3`,
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.BetID, &e.AccountID, &e.GameType, &e.Stake, &e.Payout,
			&e.NetCents, &e.Outcome, &e.WasVoided, &e.SettledAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune aplica a política de retenção: mantém as keep entradas mais
// recentes de cada conta e apaga o resto.
func (p *Postgres) Prune(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM bet_history h
		WHERE h.bet_id IN (
			SELECT bet_id FROM (
				SELECT bet_id,
				       ROW_NUMBER() OVER (PARTITION BY account_id ORDER BY settled_at DESC) AS rn
				FROM bet_history
			) ranked
			WHERE ranked.rn > $1
		)`, keep)
	return err
}
