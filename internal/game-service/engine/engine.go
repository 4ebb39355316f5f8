package engine

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/casino-games-platform-poc/internal/game-service/rng"
	"github.com/radieske/casino-games-platform-poc/internal/history"
	"github.com/radieske/casino-games-platform-poc/internal/ledger"
	"github.com/radieske/casino-games-platform-poc/internal/shared/metrics"
	ev "github.com/radieske/casino-games-platform-poc/pkg/contracts/events"
)

// Publisher publica eventos de liquidação no Kafka.
type Publisher interface {
	PublishBetSettled(ctx context.Context, e ev.BetSettled) error
	PublishRoundClosed(ctx context.Context, e ev.RoundClosed) error
}

// Broadcaster repassa atualizações de round pro canal Redis que alimenta
// o hub WebSocket.
type Broadcaster interface {
	BroadcastRound(ctx context.Context, u RoundUpdate) error
}

// Repo persiste rounds e apostas (leitura de GET /bets/{id} e auditoria).
type Repo interface {
	SaveRound(ctx context.Context, r *Round) error
	UpdateRound(ctx context.Context, r *Round) error
	SaveBet(ctx context.Context, b *Bet) error
	UpdateBet(ctx context.Context, b *Bet) error
	GetBet(ctx context.Context, betID string) (*Bet, error)
}

// RoundUpdate é o payload enviado aos clientes WS a cada mudança de fase
// (e a cada tick do crash).
type RoundUpdate struct {
	GameType   string    `json:"gameType"`
	RoundID    string    `json:"roundId"`
	Phase      string    `json:"phase"` // "open" | "closed" | "settled" | "voided" | "tick"
	Multiplier int64     `json:"multiplier,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	Commit     string    `json:"commit,omitempty"`
	ClosesAt   time.Time `json:"closesAt,omitempty"`
}

// Config são os parâmetros de jogo (paridade com o produto original).
type Config struct {
	ColorBetWindow   time.Duration
	ColorRevealDelay time.Duration
	CarBetWindow     time.Duration
	CarRaceDuration  time.Duration
	CrashWaitDelay   time.Duration
	CrashTick        time.Duration
	CrashBetCutoff   int64 // centésimos; 150 = apostas até 1.50x
	PremiumTierCents int64 // saldo mínimo pro half cash-out

	// intervalo de retry de créditos devidos; 0 = 1s
	PayoutRetryInterval time.Duration
}

type gameState struct {
	mu      sync.Mutex
	current *Round
}

// Engine é a máquina de estados dos três jogos. Exatamente um round OPEN
// por jogo; toda transição de estado passa pelo mutex do jogo, então
// aposta depois do fechamento e liquidação dupla são impossíveis por
// construção (fechamento ganha o empate).
type Engine struct {
	log      *zap.Logger
	ledger   ledger.Ledger
	hist     history.Store
	provider *rng.Provider
	repo     Repo
	publ     Publisher
	bcast    Broadcaster
	cfg      Config

	games map[GameType]*gameState

	// créditos devidos cujo lançamento no ledger falhou; drenados pelo
	// retryPayouts
	dueMu sync.Mutex
	due   []payoutDue
}

func New(log *zap.Logger, l ledger.Ledger, h history.Store, p *rng.Provider, repo Repo, cfg Config) *Engine {
	return &Engine{
		log:      log,
		ledger:   l,
		hist:     h,
		provider: p,
		repo:     repo,
		cfg:      cfg,
		games: map[GameType]*gameState{
			GameCrash:   {},
			GameColor:   {},
			GameCarRace: {},
		},
	}
}

// SetPublisher e SetBroadcaster são opcionais (dev local sem Kafka/Redis
// roda com nil).
func (e *Engine) SetPublisher(p Publisher) { e.publ = p }
func (e *Engine) SetBroadcaster(b Broadcaster) { e.bcast = b }

// parsePrediction valida e converte a predição crua do request.
// color: "red" | "green" | "violet"
// car_race: "3" (vencer) ou "3:2" (carro 3 chegar em 2º)
// crash: "" (manual) ou alvo de auto cash-out, ex "2.50"
func parsePrediction(game GameType, raw string) (predColor rng.Color, predCar, predPos int, auto int64, err error) {
	switch game {
	case GameColor:
		c := rng.Color(raw)
		if c != rng.ColorRed && c != rng.ColorGreen && c != rng.ColorViolet {
			return "", 0, 0, 0, ErrBadPrediction
		}
		return c, 0, 0, 0, nil

	case GameCarRace:
		carPart, posPart := raw, "1"
		if i := strings.IndexByte(raw, ':'); i >= 0 {
			carPart, posPart = raw[:i], raw[i+1:]
		}
		car, cerr := strconv.Atoi(carPart)
		pos, perr := strconv.Atoi(posPart)
		if cerr != nil || perr != nil || car < 1 || car > rng.CarCount || pos < 1 || pos > rng.CarCount {
			return "", 0, 0, 0, ErrBadPrediction
		}
		return "", car, pos, 0, nil

	case GameCrash:
		if raw == "" {
			return "", 0, 0, 0, nil
		}
		target, aerr := ParseMultiplier(raw)
		if aerr != nil || target <= 100 {
			return "", 0, 0, 0, ErrBadPrediction
		}
		return "", 0, 0, target, nil
	}
	return "", 0, 0, 0, ErrInvalidGameType
}

// ParseMultiplier converte "2.50" pra 250 (centésimos).
func ParseMultiplier(s string) (int64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f*100 + 0.5), nil
}

// accepting diz se o round ainda aceita apostas. Pro crash o cutoff é o
// multiplicador vivo (paridade 1.50x); pros demais é o deadline.
func (e *Engine) accepting(r *Round) bool {
	if r == nil || r.State != RoundOpen {
		return false
	}
	if r.GameType == GameCrash {
		return r.LiveMult < e.cfg.CrashBetCutoff
	}
	return time.Now().Before(r.ClosesAt)
}

// PlaceBet valida e aceita uma aposta: debita o stake no ledger e cria a
// aposta PENDING no round corrente. O débito roda fora do mutex do jogo;
// se o round fechar na janela entre debitar e anexar, o stake volta
// intacto e o caller recebe ErrRoundClosed.
func (e *Engine) PlaceBet(ctx context.Context, accountID string, game GameType, stakeCents int64, prediction string) (*Bet, error) {
	if stakeCents <= 0 {
		metrics.BetsRejected.WithLabelValues(string(game), "InvalidStake").Inc()
		return nil, ErrInvalidStake
	}
	predColor, predCar, predPos, auto, err := parsePrediction(game, prediction)
	if err != nil {
		metrics.BetsRejected.WithLabelValues(string(game), "InvalidPrediction").Inc()
		return nil, err
	}

	gs, ok := e.games[game]
	if !ok {
		return nil, ErrInvalidGameType
	}

	gs.mu.Lock()
	r := gs.current
	if r == nil {
		gs.mu.Unlock()
		return nil, ErrRoundNotFound
	}
	if !e.accepting(r) {
		gs.mu.Unlock()
		metrics.BetsRejected.WithLabelValues(string(game), "RoundClosed").Inc()
		return nil, ErrRoundClosed
	}
	roundID := r.ID
	gs.mu.Unlock()

	betID := uuid.NewString()
	acc, err := e.ledger.Debit(ctx, accountID, stakeCents, "stake:"+betID)
	if err != nil {
		metrics.BetsRejected.WithLabelValues(string(game), "InsufficientFunds").Inc()
		return nil, err
	}

	b := &Bet{
		ID:            betID,
		AccountID:     accountID,
		GameType:      game,
		RoundID:       roundID,
		Stake:         stakeCents,
		Status:        BetPending,
		PlacedAt:      time.Now(),
		PredColor:     predColor,
		PredCar:       predCar,
		PredPos:       predPos,
		AutoCashout:   auto,
		PremiumAtOpen: acc.BalanceCents+stakeCents >= e.cfg.PremiumTierCents,
	}

	gs.mu.Lock()
	stillOpen := gs.current != nil && gs.current.ID == roundID && e.accepting(gs.current)
	if stillOpen {
		gs.current.Bets[betID] = b
	}
	gs.mu.Unlock()

	if !stillOpen {
		// o round fechou entre o débito e o anexo; estorna e rejeita
		if _, rerr := e.ledger.Credit(ctx, accountID, stakeCents, "refund:"+betID); rerr != nil {
			e.log.Error("refund after late bet failed",
				zap.String("betId", betID), zap.Error(rerr))
		}
		metrics.BetsRejected.WithLabelValues(string(game), "RoundClosed").Inc()
		return nil, ErrRoundClosed
	}

	if err := e.repo.SaveBet(ctx, b); err != nil {
		e.log.Warn("bet persist failed", zap.String("betId", betID), zap.Error(err))
	}
	metrics.BetsPlaced.WithLabelValues(string(game)).Inc()
	e.log.Info("bet accepted",
		zap.String("betId", betID),
		zap.String("accountId", accountID),
		zap.String("gameType", string(game)),
		zap.Int64("stakeCents", stakeCents))
	return b, nil
}

// CashOut liquida uma aposta de crash no multiplicador pedido e retorna
// o payout junto com o multiplicador efetivamente aplicado.
// atMultiplier em centésimos; 0 = "agora" (multiplicador vivo).
// Regras: round ainda voando (fechamento ganha o empate), multiplicador
// pedido não pode estar à frente do vivo, aposta ainda pendente.
func (e *Engine) CashOut(ctx context.Context, betID string, atMultiplier int64) (int64, int64, error) {
	gs := e.games[GameCrash]

	gs.mu.Lock()
	r := gs.current
	var b *Bet
	if r != nil {
		b = r.Bets[betID]
	}
	if b == nil {
		gs.mu.Unlock()
		return 0, 0, e.lookupMissingBet(ctx, betID)
	}
	if r.State != RoundOpen {
		gs.mu.Unlock()
		return 0, 0, ErrRoundClosed
	}
	if b.Status != BetPending || b.CashedOutAt != 0 {
		gs.mu.Unlock()
		return 0, 0, ErrAlreadyCashed
	}
	if atMultiplier == 0 {
		atMultiplier = r.LiveMult
	}
	if atMultiplier < 100 || atMultiplier > r.LiveMult {
		gs.mu.Unlock()
		return 0, 0, ErrBadPrediction
	}

	// reivindica o cash-out sob o lock; o crédito roda fora
	b.CashedOutAt = atMultiplier
	b.Status = BetSettled
	payout := b.Stake * atMultiplier / 100
	b.PayoutCents += payout
	gs.mu.Unlock()

	due := payoutDue{bet: b, entryID: b.ID, stake: b.Stake, payout: payout,
		outcome: "crash:cashout", ref: "payout:" + b.ID}
	if _, err := e.ledger.Credit(ctx, b.AccountID, payout, due.ref); err != nil {
		gs.mu.Lock()
		if gs.current == r && r.State == RoundOpen {
			// round ainda voando: devolve a aposta pro estado pendente e
			// o caller tenta de novo
			b.CashedOutAt = 0
			b.Status = BetPending
			b.PayoutCents -= payout
			gs.mu.Unlock()
			return 0, 0, err
		}
		// o round resolveu com o claim feito: o payout é devido e fica
		// na fila até o ledger aceitar
		gs.mu.Unlock()
		e.queuePayout(due, err)
		return payout, atMultiplier, nil
	}
	e.settlePaid(ctx, due)
	return payout, atMultiplier, nil
}

// HalfCashOut é o cash-out parcial de uso único: metade do stake liquida
// no multiplicador corrente, metade segue no round. Disponível só pra
// contas que entraram no round com saldo acima do tier premium.
func (e *Engine) HalfCashOut(ctx context.Context, betID string, atMultiplier int64) (int64, int64, error) {
	gs := e.games[GameCrash]

	gs.mu.Lock()
	r := gs.current
	var b *Bet
	if r != nil {
		b = r.Bets[betID]
	}
	if b == nil {
		gs.mu.Unlock()
		return 0, 0, e.lookupMissingBet(ctx, betID)
	}
	if r.State != RoundOpen {
		gs.mu.Unlock()
		return 0, 0, ErrRoundClosed
	}
	if b.Status != BetPending || b.CashedOutAt != 0 {
		gs.mu.Unlock()
		return 0, 0, ErrAlreadyCashed
	}
	if b.HalfCashedOut {
		gs.mu.Unlock()
		return 0, 0, ErrAlreadyCashed
	}
	if !b.PremiumAtOpen {
		gs.mu.Unlock()
		return 0, 0, ErrPremiumRequired
	}
	if atMultiplier == 0 {
		atMultiplier = r.LiveMult
	}
	if atMultiplier < 100 || atMultiplier > r.LiveMult {
		gs.mu.Unlock()
		return 0, 0, ErrBadPrediction
	}

	half := b.Stake / 2
	if half == 0 {
		gs.mu.Unlock()
		return 0, 0, ErrInvalidStake
	}
	b.HalfCashedOut = true
	b.Stake -= half // a outra metade segue valendo
	payout := half * atMultiplier / 100
	b.PayoutCents += payout
	gs.mu.Unlock()

	due := payoutDue{bet: b, entryID: b.ID + "-half", stake: half, payout: payout,
		outcome: "crash:half-cashout", ref: "payout:" + b.ID + ":half"}
	if _, err := e.ledger.Credit(ctx, b.AccountID, payout, due.ref); err != nil {
		gs.mu.Lock()
		if gs.current == r && r.State == RoundOpen {
			b.HalfCashedOut = false
			b.Stake += half
			b.PayoutCents -= payout
			gs.mu.Unlock()
			return 0, 0, err
		}
		gs.mu.Unlock()
		e.queuePayout(due, err)
		return payout, atMultiplier, nil
	}
	e.settlePaid(ctx, due)
	return payout, atMultiplier, nil
}

// lookupMissingBet distingue aposta inexistente de aposta de round já
// fechado (409 pro caller).
func (e *Engine) lookupMissingBet(ctx context.Context, betID string) error {
	if b, err := e.repo.GetBet(ctx, betID); err == nil && b != nil {
		return ErrRoundClosed
	}
	return ErrBetNotFound
}

// GetBet procura nos rounds vivos e cai pro repositório.
func (e *Engine) GetBet(ctx context.Context, betID string) (*Bet, error) {
	for _, gs := range e.games {
		gs.mu.Lock()
		if gs.current != nil {
			if b, ok := gs.current.Bets[betID]; ok {
				cp := *b
				gs.mu.Unlock()
				return &cp, nil
			}
		}
		gs.mu.Unlock()
	}
	b, err := e.repo.GetBet(ctx, betID)
	if err != nil || b == nil {
		return nil, ErrBetNotFound
	}
	return b, nil
}

// RoundSnapshot é a visão read-only do round corrente exposta na API.
// O server seed só aparece depois do round resolvido.
type RoundSnapshot struct {
	RoundID    string    `json:"roundId"`
	GameType   string    `json:"gameType"`
	State      string    `json:"state"`
	OpenedAt   time.Time `json:"openedAt"`
	ClosesAt   time.Time `json:"closesAt,omitempty"`
	Commit     string    `json:"commit"`
	Multiplier int64     `json:"multiplier,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	ServerSeed string    `json:"serverSeed,omitempty"`
	Bets       int       `json:"bets"`
}

func (e *Engine) CurrentRound(game GameType) (RoundSnapshot, error) {
	gs, ok := e.games[game]
	if !ok {
		return RoundSnapshot{}, ErrInvalidGameType
	}
	gs.mu.Lock()
	defer gs.mu.Unlock()

	r := gs.current
	if r == nil {
		return RoundSnapshot{}, ErrRoundNotFound
	}

	snap := RoundSnapshot{
		RoundID:  r.ID,
		GameType: string(r.GameType),
		State:    string(r.State),
		OpenedAt: r.OpenedAt,
		ClosesAt: r.ClosesAt,
		Commit:   r.Seed.Commit,
		Bets:     len(r.Bets),
	}
	if r.GameType == GameCrash {
		snap.Multiplier = r.LiveMult
	}
	if r.State == RoundSettled || r.State == RoundVoided {
		snap.Outcome = r.Outcome.String(r.GameType)
		snap.ServerSeed = r.Seed.Server
	}
	return snap, nil
}

// payoutDue é um crédito devido: a aposta já foi reivindicada, então o
// retry nunca paga em dobro. Histórico, persistência e evento só saem
// depois do crédito assentar no ledger.
type payoutDue struct {
	bet     *Bet
	entryID string
	stake   int64
	payout  int64
	outcome string
	ref     string
	voided  bool
}

// queuePayout enfileira um crédito que o ledger recusou. Dinheiro devido
// nunca é descartado: a fila é drenada pelo retryPayouts.
func (e *Engine) queuePayout(p payoutDue, cause error) {
	e.dueMu.Lock()
	e.due = append(e.due, p)
	e.dueMu.Unlock()
	metrics.PayoutRetries.Inc()
	e.log.Error("payout credit failed, queued for retry",
		zap.String("betId", p.bet.ID),
		zap.String("accountId", p.bet.AccountID),
		zap.Int64("payoutCents", p.payout),
		zap.Error(cause))
}

// retryPayouts drena a fila de créditos devidos até o contexto cancelar.
// Conta inexistente é a única falha permanente; o resto volta pra fila.
func (e *Engine) retryPayouts(ctx context.Context) {
	interval := e.cfg.PayoutRetryInterval
	if interval == 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		e.dueMu.Lock()
		pending := e.due
		e.due = nil
		e.dueMu.Unlock()

		for _, p := range pending {
			if _, err := e.ledger.Credit(ctx, p.bet.AccountID, p.payout, p.ref); err != nil {
				if errors.Is(err, ledger.ErrNotFound) {
					e.log.Error("payout dropped, account missing",
						zap.String("betId", p.bet.ID),
						zap.String("accountId", p.bet.AccountID),
						zap.Int64("payoutCents", p.payout))
					continue
				}
				metrics.PayoutRetries.Inc()
				e.log.Warn("payout retry failed",
					zap.String("betId", p.bet.ID), zap.Error(err))
				e.dueMu.Lock()
				e.due = append(e.due, p)
				e.dueMu.Unlock()
				continue
			}
			e.settlePaid(ctx, p)
		}
	}
}

// settlePaid registra histórico, persiste e publica uma aposta cujo
// crédito já assentou.
func (e *Engine) settlePaid(ctx context.Context, p payoutDue) {
	entry := history.Entry{
		BetID:     p.entryID,
		AccountID: p.bet.AccountID,
		GameType:  string(p.bet.GameType),
		Stake:     p.stake,
		Payout:    p.payout,
		NetCents:  p.payout - p.stake,
		Outcome:   p.outcome,
		SettledAt: time.Now(),
		WasVoided: p.voided,
	}
	if err := e.hist.Append(ctx, entry); err != nil {
		e.log.Warn("history append failed", zap.String("betId", p.bet.ID), zap.Error(err))
	}
	if err := e.repo.UpdateBet(ctx, p.bet); err != nil {
		e.log.Warn("bet update failed", zap.String("betId", p.bet.ID), zap.Error(err))
	}
	if p.voided {
		e.publishSettled(ctx, p.bet, p.stake, p.payout, p.outcome, string(BetVoid))
		return
	}
	e.publishSettled(ctx, p.bet, p.stake, p.payout, p.outcome, string(BetSettled))
	metrics.BetsSettled.WithLabelValues(string(p.bet.GameType), "win").Inc()
	metrics.PayoutCents.WithLabelValues(string(p.bet.GameType)).Add(float64(p.payout))
}

func (e *Engine) publishSettled(ctx context.Context, b *Bet, stake, payout int64, outcome, status string) {
	if e.publ == nil {
		return
	}
	err := e.publ.PublishBetSettled(ctx, ev.BetSettled{
		BetID:       b.ID,
		AccountID:   b.AccountID,
		GameType:    string(b.GameType),
		StakeCents:  stake,
		PayoutCents: payout,
		Status:      status,
		Outcome:     outcome,
		SettledAt:   time.Now(),
	})
	if err != nil {
		e.log.Warn("publish bet_settled failed", zap.String("betId", b.ID), zap.Error(err))
	}
}

func (e *Engine) broadcast(ctx context.Context, u RoundUpdate) {
	if e.bcast == nil {
		return
	}
	if err := e.bcast.BroadcastRound(ctx, u); err != nil {
		e.log.Warn("round broadcast failed", zap.String("roundId", u.RoundID), zap.Error(err))
	}
}
