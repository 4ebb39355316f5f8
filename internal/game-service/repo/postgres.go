package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/radieske/casino-games-platform-poc/internal/game-service/engine"
	"github.com/radieske/casino-games-platform-poc/internal/game-service/rng"
)

// Postgres persiste rounds e apostas pra auditoria e pras consultas de
// GET /bets/{id} depois que o round sai da memória.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) SaveRound(ctx context.Context, r *engine.Round) error {
	outcome := ""
	if r.Outcome != nil {
		outcome = r.Outcome.String(r.GameType)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rounds (id, game_type, state, opened_at, closes_at, closed_at, seed_commit, server_seed, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET state = $3, closed_at = $6, outcome = $9`,
		r.ID, r.GameType, r.State, r.OpenedAt,
		nullTime(r.ClosesAt), nullTime(r.ClosedAt),
		r.Seed.Commit, r.Seed.Server, outcome,
	)
	if err != nil {
		return fmt.Errorf("save round: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateRound(ctx context.Context, r *engine.Round) error {
	return p.SaveRound(ctx, r)
}

func (p *Postgres) SaveBet(ctx context.Context, b *engine.Bet) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO bets (id, account_id, game_type, round_id, stake_cents, status, placed_at,
		                  pred_color, pred_car, pred_pos, auto_cashout, cashed_out_at, half_cashed_out, payout_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			stake_cents = $5, status = $6, cashed_out_at = $12,
			half_cashed_out = $13, payout_cents = $14`,
		b.ID, b.AccountID, b.GameType, b.RoundID, b.Stake, b.Status, b.PlacedAt,
		string(b.PredColor), b.PredCar, b.PredPos, b.AutoCashout,
		b.CashedOutAt, b.HalfCashedOut, b.PayoutCents,
	)
	if err != nil {
		return fmt.Errorf("save bet: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateBet(ctx context.Context, b *engine.Bet) error {
	return p.SaveBet(ctx, b)
}

func (p *Postgres) GetBet(ctx context.Context, betID string) (*engine.Bet, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, account_id, game_type, round_id, stake_cents, status, placed_at,
		       pred_color, pred_car, pred_pos, auto_cashout, cashed_out_at, half_cashed_out, payout_cents
		FROM bets WHERE id = $1`, betID)

	var b engine.Bet
	var gameType, status, predColor string
	err := row.Scan(&b.ID, &b.AccountID, &gameType, &b.RoundID, &b.Stake, &status, &b.PlacedAt,
		&predColor, &b.PredCar, &b.PredPos, &b.AutoCashout,
		&b.CashedOutAt, &b.HalfCashedOut, &b.PayoutCents)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bet: %w", err)
	}
	b.GameType = engine.GameType(gameType)
	b.Status = engine.BetStatus(status)
	b.PredColor = rng.Color(predColor)
	return &b, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
