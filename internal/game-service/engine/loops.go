package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/casino-games-platform-poc/internal/game-service/rng"
	"github.com/radieske/casino-games-platform-poc/internal/history"
	"github.com/radieske/casino-games-platform-poc/internal/shared/metrics"
	ev "github.com/radieske/casino-games-platform-poc/pkg/contracts/events"
)

// Run inicia os três loops de jogo e bloqueia até o contexto cancelar.
// Rounds abertos no momento do shutdown são anulados com estorno.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(4)
	go func() { defer wg.Done(); e.runCrash(ctx) }()
	go func() { defer wg.Done(); e.runTimed(ctx, GameColor, e.cfg.ColorBetWindow, e.cfg.ColorRevealDelay) }()
	go func() { defer wg.Done(); e.runTimed(ctx, GameCarRace, e.cfg.CarBetWindow, e.cfg.CarRaceDuration) }()
	go func() { defer wg.Done(); e.retryPayouts(ctx) }()
	wg.Wait()
}

// openRound gera o seed, publica o commit e instala o round como corrente.
// Falha de entropia é o único jeito do provider falhar; nesse caso nenhum
// round abre e o loop tenta de novo.
func (e *Engine) openRound(ctx context.Context, game GameType, window time.Duration) (*Round, error) {
	seed, err := e.provider.NewSeed()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	r := &Round{
		ID:       uuid.NewString(),
		GameType: game,
		State:    RoundOpen,
		OpenedAt: now,
		Seed:     seed,
		Bets:     make(map[string]*Bet),
	}
	if window > 0 {
		r.ClosesAt = now.Add(window)
	}
	if game == GameCrash {
		r.LiveMult = 100
		r.crashPoint = rng.CrashPoint(seed, r.ID)
	}

	gs := e.games[game]
	gs.mu.Lock()
	if prev := gs.current; prev != nil && prev.State == RoundSettled {
		prev.State = RoundArchived
	}
	gs.current = r
	gs.mu.Unlock()

	if err := e.repo.SaveRound(ctx, r); err != nil {
		e.log.Warn("round persist failed", zap.String("roundId", r.ID), zap.Error(err))
	}
	e.broadcast(ctx, RoundUpdate{
		GameType: string(game),
		RoundID:  r.ID,
		Phase:    "open",
		Commit:   seed.Commit,
		ClosesAt: r.ClosesAt,
	})
	e.log.Info("round opened",
		zap.String("roundId", r.ID),
		zap.String("gameType", string(game)),
		zap.String("commit", seed.Commit))
	return r, nil
}

// settleRound liquida todas as apostas pendentes do round fechado.
// Idempotente: a transição Closed→Settled acontece exatamente uma vez sob
// o mutex, e cada aposta é reivindicada (Pending→Settled) no mesmo passo.
// Créditos de contas distintas rodam em paralelo.
func (e *Engine) settleRound(ctx context.Context, r *Round) {
	gs := e.games[r.GameType]

	type settled struct {
		bet    *Bet
		payout int64
	}

	gs.mu.Lock()
	if r.State != RoundClosed {
		gs.mu.Unlock()
		return
	}
	r.State = RoundSettled
	var claims []settled
	for _, b := range r.Bets {
		if b.Status != BetPending {
			continue
		}
		b.Status = BetSettled
		p := payoutFor(b, r.Outcome)
		b.PayoutCents += p
		claims = append(claims, settled{bet: b, payout: p})
	}
	outcome := r.Outcome.String(r.GameType)
	gs.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range claims {
		wg.Add(1)
		go func(b *Bet, payout int64) {
			defer wg.Done()
			if payout > 0 {
				// vencedor: histórico e evento só depois do crédito assentar
				due := payoutDue{bet: b, entryID: b.ID, stake: b.Stake, payout: payout,
					outcome: outcome, ref: "payout:" + b.ID}
				if _, err := e.ledger.Credit(ctx, b.AccountID, payout, due.ref); err != nil {
					e.queuePayout(due, err)
					return
				}
				e.settlePaid(ctx, due)
				return
			}
			entry := history.Entry{
				BetID:     b.ID,
				AccountID: b.AccountID,
				GameType:  string(b.GameType),
				Stake:     b.Stake,
				Payout:    0,
				NetCents:  -b.Stake,
				Outcome:   outcome,
				SettledAt: time.Now(),
			}
			if err := e.hist.Append(ctx, entry); err != nil {
				e.log.Warn("history append failed", zap.String("betId", b.ID), zap.Error(err))
			}
			if err := e.repo.UpdateBet(ctx, b); err != nil {
				e.log.Warn("bet update failed", zap.String("betId", b.ID), zap.Error(err))
			}
			metrics.BetsSettled.WithLabelValues(string(b.GameType), "loss").Inc()
			e.publishSettled(ctx, b, b.Stake, 0, outcome, string(BetSettled))
		}(c.bet, c.payout)
	}
	wg.Wait()

	if err := e.repo.UpdateRound(ctx, r); err != nil {
		e.log.Warn("round update failed", zap.String("roundId", r.ID), zap.Error(err))
	}
	e.publishRoundClosed(ctx, r, false)
	e.broadcast(ctx, RoundUpdate{
		GameType: string(r.GameType),
		RoundID:  r.ID,
		Phase:    "settled",
		Outcome:  outcome,
	})
	e.log.Info("round settled",
		zap.String("roundId", r.ID),
		zap.String("gameType", string(r.GameType)),
		zap.String("outcome", outcome),
		zap.Int("bets", len(claims)))
}

// Abort anula o round corrente do jogo: toda aposta pendente vira VOID e
// o stake remanescente volta integral pra conta. Usado no shutdown e
// quando um round não consegue resolver.
func (e *Engine) Abort(ctx context.Context, game GameType, reason string) error {
	gs, ok := e.games[game]
	if !ok {
		return ErrInvalidGameType
	}
	gs.mu.Lock()
	r := gs.current
	if r == nil {
		gs.mu.Unlock()
		return ErrRoundNotFound
	}
	if r.State == RoundSettled || r.State == RoundVoided || r.State == RoundArchived {
		gs.mu.Unlock()
		return nil
	}
	r.State = RoundVoided
	now := time.Now()
	r.ClosedAt = now
	var refunds []*Bet
	for _, b := range r.Bets {
		if b.Status != BetPending {
			continue
		}
		b.Status = BetVoid
		refunds = append(refunds, b)
	}
	gs.mu.Unlock()

	for _, b := range refunds {
		due := payoutDue{bet: b, entryID: b.ID, stake: b.Stake, payout: b.Stake,
			outcome: "void:" + reason, ref: "void:" + b.ID, voided: true}
		if _, err := e.ledger.Credit(ctx, b.AccountID, b.Stake, due.ref); err != nil {
			e.queuePayout(due, err)
			continue
		}
		e.settlePaid(ctx, due)
	}

	metrics.RoundsVoided.WithLabelValues(string(game)).Inc()
	if err := e.repo.UpdateRound(ctx, r); err != nil {
		e.log.Warn("round update failed", zap.String("roundId", r.ID), zap.Error(err))
	}
	e.publishRoundClosed(ctx, r, true)
	e.broadcast(ctx, RoundUpdate{
		GameType: string(game),
		RoundID:  r.ID,
		Phase:    "voided",
	})
	e.log.Warn("round voided",
		zap.String("roundId", r.ID),
		zap.String("gameType", string(game)),
		zap.String("reason", reason),
		zap.Int("refunds", len(refunds)))
	return nil
}

func (e *Engine) publishRoundClosed(ctx context.Context, r *Round, voided bool) {
	if e.publ == nil {
		return
	}
	outcome := ""
	if r.Outcome != nil {
		outcome = r.Outcome.String(r.GameType)
	}
	err := e.publ.PublishRoundClosed(ctx, ev.RoundClosed{
		RoundID:    r.ID,
		GameType:   string(r.GameType),
		Outcome:    outcome,
		Commit:     r.Seed.Commit,
		ServerSeed: r.Seed.Server,
		Voided:     voided,
		ClosedAt:   time.Now(),
	})
	if err != nil {
		e.log.Warn("publish round_closed failed", zap.String("roundId", r.ID), zap.Error(err))
	}
}

// runCrash roda o loop do crash: abre, espera, sobe 0.01x a cada tick até
// o ponto de crash sorteado, liquida e recomeça. A janela de espera
// inicial é o intervalo entre rounds.
func (e *Engine) runCrash(ctx context.Context) {
	gs := e.games[GameCrash]
	for ctx.Err() == nil {
		r, err := e.openRound(ctx, GameCrash, 0)
		if err != nil {
			e.log.Error("crash round open failed", zap.Error(err))
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		if !sleepCtx(ctx, e.cfg.CrashWaitDelay) {
			e.Abort(context.Background(), GameCrash, "shutdown")
			return
		}

		ticker := time.NewTicker(e.cfg.CrashTick)
		crashed := false
		for !crashed {
			select {
			case <-ctx.Done():
				ticker.Stop()
				e.Abort(context.Background(), GameCrash, "shutdown")
				return
			case <-ticker.C:
			}

			gs.mu.Lock()
			r.LiveMult++
			var autoClaims []*Bet
			if r.LiveMult >= r.crashPoint {
				crashed = true
				r.LiveMult = r.crashPoint
				r.State = RoundClosed
				r.ClosedAt = time.Now()
				r.Outcome = &Outcome{Crash: r.crashPoint}
			} else {
				for _, b := range r.Bets {
					if b.Status == BetPending && b.CashedOutAt == 0 &&
						b.AutoCashout > 0 && r.LiveMult >= b.AutoCashout {
						b.CashedOutAt = b.AutoCashout
						b.Status = BetSettled
						b.PayoutCents += b.Stake * b.AutoCashout / 100
						autoClaims = append(autoClaims, b)
					}
				}
			}
			live := r.LiveMult
			gs.mu.Unlock()

			for _, b := range autoClaims {
				payout := b.Stake * b.CashedOutAt / 100
				due := payoutDue{bet: b, entryID: b.ID, stake: b.Stake, payout: payout,
					outcome: "crash:auto-cashout", ref: "payout:" + b.ID}
				if _, err := e.ledger.Credit(ctx, b.AccountID, payout, due.ref); err != nil {
					e.queuePayout(due, err)
					continue
				}
				e.settlePaid(ctx, due)
			}

			e.broadcast(ctx, RoundUpdate{
				GameType:   string(GameCrash),
				RoundID:    r.ID,
				Phase:      "tick",
				Multiplier: live,
			})
		}
		ticker.Stop()

		e.broadcast(ctx, RoundUpdate{
			GameType:   string(GameCrash),
			RoundID:    r.ID,
			Phase:      "closed",
			Multiplier: r.crashPoint,
			Outcome:    r.Outcome.String(GameCrash),
		})
		e.settleRound(ctx, r)
	}
}

// runTimed roda color e car_race: janela de apostas fixa, fechamento no
// deadline, sorteio determinístico do seed, revelação e liquidação.
func (e *Engine) runTimed(ctx context.Context, game GameType, window, reveal time.Duration) {
	gs := e.games[game]
	for ctx.Err() == nil {
		r, err := e.openRound(ctx, game, window)
		if err != nil {
			e.log.Error("round open failed",
				zap.String("gameType", string(game)), zap.Error(err))
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		if !sleepUntil(ctx, r.ClosesAt) {
			e.Abort(context.Background(), game, "shutdown")
			return
		}

		gs.mu.Lock()
		r.State = RoundClosed
		r.ClosedAt = time.Now()
		switch game {
		case GameColor:
			r.Outcome = &Outcome{Color: rng.DrawColor(r.Seed, r.ID)}
		case GameCarRace:
			r.Outcome = &Outcome{CarOrder: rng.DrawCarOrder(r.Seed, r.ID)}
		}
		gs.mu.Unlock()

		e.broadcast(ctx, RoundUpdate{
			GameType: string(game),
			RoundID:  r.ID,
			Phase:    "closed",
			Outcome:  r.Outcome.String(game),
		})

		// janela de revelação/animação antes do crédito aparecer
		if !sleepCtx(ctx, reveal) {
			e.settleRound(context.Background(), r)
			return
		}
		e.settleRound(ctx, r)
	}
}

// sleepCtx dorme d respeitando o contexto; false se cancelou antes.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func sleepUntil(ctx context.Context, deadline time.Time) bool {
	return sleepCtx(ctx, time.Until(deadline))
}
