package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/casino-games-platform-poc/internal/game-service/rng"
	"github.com/radieske/casino-games-platform-poc/internal/history"
	"github.com/radieske/casino-games-platform-poc/internal/ledger"
)

type memRepo struct {
	mu   sync.Mutex
	bets map[string]*Bet
}

func newMemRepo() *memRepo { return &memRepo{bets: make(map[string]*Bet)} }

func (m *memRepo) SaveRound(context.Context, *Round) error   { return nil }
func (m *memRepo) UpdateRound(context.Context, *Round) error { return nil }

func (m *memRepo) SaveBet(_ context.Context, b *Bet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bets[b.ID] = &cp
	return nil
}

func (m *memRepo) UpdateBet(ctx context.Context, b *Bet) error { return m.SaveBet(ctx, b) }

func (m *memRepo) GetBet(_ context.Context, id string) (*Bet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bets[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

// hookLedger intercepta o Debit pra provocar corridas controladas.
type hookLedger struct {
	ledger.Ledger
	onDebit func()
}

func (h *hookLedger) Debit(ctx context.Context, accountID string, amount int64, ref string) (*ledger.Account, error) {
	if h.onDebit != nil {
		h.onDebit()
	}
	return h.Ledger.Debit(ctx, accountID, amount, ref)
}

func testConfig() Config {
	return Config{
		ColorBetWindow:   50 * time.Millisecond,
		ColorRevealDelay: 10 * time.Millisecond,
		CarBetWindow:     50 * time.Millisecond,
		CarRaceDuration:  10 * time.Millisecond,
		CrashWaitDelay:   10 * time.Millisecond,
		CrashTick:        time.Millisecond,
		CrashBetCutoff:   150,
		PremiumTierCents: 500000,
	}
}

func newTestEngine(t *testing.T) (*Engine, *ledger.Memory, *history.Memory) {
	t.Helper()
	led := ledger.NewMemory()
	hist := history.NewMemory(50)
	return New(zap.NewNop(), led, hist, rng.New(), newMemRepo(), testConfig()), led, hist
}

func fund(t *testing.T, led *ledger.Memory, accountID string, cents int64) {
	t.Helper()
	ctx := context.Background()
	if _, err := led.CreateAccount(ctx, accountID); err != nil {
		t.Fatalf("create account: %v", err)
	}
	if _, err := led.Credit(ctx, accountID, cents, "seed"); err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

// openRoundFor abre um round com janela longa pra que o teste controle o
// fechamento.
func openRoundFor(t *testing.T, e *Engine, game GameType) *Round {
	t.Helper()
	r, err := e.openRound(context.Background(), game, time.Minute)
	if err != nil {
		t.Fatalf("open round: %v", err)
	}
	return r
}

func closeWith(e *Engine, r *Round, o *Outcome) {
	gs := e.games[r.GameType]
	gs.mu.Lock()
	r.State = RoundClosed
	r.ClosedAt = time.Now()
	r.Outcome = o
	gs.mu.Unlock()
}

func TestPlaceBet_InvalidStake(t *testing.T) {
	e, led, _ := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 10000)
	openRoundFor(t, e, GameColor)

	for _, stake := range []int64{0, -1, -10000} {
		if _, err := e.PlaceBet(ctx, "a1", GameColor, stake, "red"); !errors.Is(err, ErrInvalidStake) {
			t.Errorf("stake %d: got %v, want ErrInvalidStake", stake, err)
		}
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 10000 {
		t.Fatalf("balance changed by rejected bets: %d", bal)
	}
}

func TestPlaceBet_InsufficientFundsLeavesBalanceUnchanged(t *testing.T) {
	e, led, _ := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 5000)
	openRoundFor(t, e, GameColor)

	_, err := e.PlaceBet(ctx, "a1", GameColor, 5001, "red")
	if !errors.Is(err, ledger.ErrInsufficientFunds) {
		t.Fatalf("got %v, want ErrInsufficientFunds", err)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 5000 {
		t.Fatalf("balance after rejected bet = %d, want 5000", bal)
	}
}

func TestPlaceBet_BadPrediction(t *testing.T) {
	e, led, _ := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 10000)
	openRoundFor(t, e, GameColor)
	openRoundFor(t, e, GameCarRace)
	openRoundFor(t, e, GameCrash)

	cases := []struct {
		game GameType
		pred string
	}{
		{GameColor, "blue"},
		{GameColor, ""},
		{GameCarRace, "0"},
		{GameCarRace, "5"},
		{GameCarRace, "2:9"},
		{GameCarRace, "abc"},
		{GameCrash, "0.50"},
		{GameCrash, "1.00"},
		{GameCrash, "nope"},
	}
	for _, tc := range cases {
		if _, err := e.PlaceBet(ctx, "a1", tc.game, 100, tc.pred); !errors.Is(err, ErrBadPrediction) {
			t.Errorf("%s %q: got %v, want ErrBadPrediction", tc.game, tc.pred, err)
		}
	}
}

func TestPlaceBet_ClosedRound(t *testing.T) {
	e, led, _ := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 10000)

	if _, err := e.PlaceBet(ctx, "a1", GameColor, 100, "red"); !errors.Is(err, ErrRoundNotFound) {
		t.Fatalf("no round: got %v, want ErrRoundNotFound", err)
	}

	r := openRoundFor(t, e, GameColor)
	closeWith(e, r, &Outcome{Color: rng.ColorRed})
	if _, err := e.PlaceBet(ctx, "a1", GameColor, 100, "red"); !errors.Is(err, ErrRoundClosed) {
		t.Fatalf("closed round: got %v, want ErrRoundClosed", err)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 10000 {
		t.Fatalf("balance = %d, want 10000", bal)
	}
}

// O round fecha entre o débito e o anexo da aposta: o fechamento ganha o
// empate e o stake volta intacto.
func TestPlaceBet_LateBetRefunded(t *testing.T) {
	led := ledger.NewMemory()
	hist := history.NewMemory(50)
	e := New(zap.NewNop(), led, hist, rng.New(), newMemRepo(), testConfig())
	ctx := context.Background()
	fund(t, led, "a1", 10000)

	r := openRoundFor(t, e, GameColor)
	hooked := &hookLedger{Ledger: led, onDebit: func() {
		closeWith(e, r, &Outcome{Color: rng.ColorRed})
	}}
	e.ledger = hooked

	if _, err := e.PlaceBet(ctx, "a1", GameColor, 2500, "red"); !errors.Is(err, ErrRoundClosed) {
		t.Fatalf("got %v, want ErrRoundClosed", err)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 10000 {
		t.Fatalf("late bet not fully refunded: balance = %d", bal)
	}
	if len(r.Bets) != 0 {
		t.Fatalf("late bet attached to closed round")
	}
}

func TestCrash_CashOutPaysStakeTimesMultiplier(t *testing.T) {
	e, led, hist := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 10000)

	r := openRoundFor(t, e, GameCrash)
	b, err := e.PlaceBet(ctx, "a1", GameCrash, 10000, "")
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}

	gs := e.games[GameCrash]
	gs.mu.Lock()
	r.LiveMult = 250
	gs.mu.Unlock()

	payout, applied, err := e.CashOut(ctx, b.ID, 250)
	if err != nil {
		t.Fatalf("cash out: %v", err)
	}
	if payout != 25000 {
		t.Fatalf("payout = %d, want 25000", payout)
	}
	if applied != 250 {
		t.Fatalf("applied multiplier = %d, want 250", applied)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 25000 {
		t.Fatalf("balance = %d, want 25000", bal)
	}
	entries, _ := hist.Query(ctx, "a1", 10, 0)
	if len(entries) != 1 || entries[0].NetCents != 15000 {
		t.Fatalf("history = %+v, want one entry with net 15000", entries)
	}

	if _, _, err := e.CashOut(ctx, b.ID, 250); !errors.Is(err, ErrAlreadyCashed) {
		t.Fatalf("second cash out: got %v, want ErrAlreadyCashed", err)
	}
}

func TestCrash_CashOutAheadOfLiveRejected(t *testing.T) {
	e, led, _ := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 10000)

	openRoundFor(t, e, GameCrash)
	b, _ := e.PlaceBet(ctx, "a1", GameCrash, 1000, "")

	gs := e.games[GameCrash]
	gs.mu.Lock()
	gs.current.LiveMult = 120
	gs.mu.Unlock()

	if _, _, err := e.CashOut(ctx, b.ID, 300); !errors.Is(err, ErrBadPrediction) {
		t.Fatalf("got %v, want ErrBadPrediction", err)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 9000 {
		t.Fatalf("balance = %d, want 9000", bal)
	}
}

// Quem não saca antes do crash perde o stake inteiro.
func TestCrash_RideToCrashLosesStake(t *testing.T) {
	e, led, hist := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 10000)

	r := openRoundFor(t, e, GameCrash)
	b, _ := e.PlaceBet(ctx, "a1", GameCrash, 10000, "")

	closeWith(e, r, &Outcome{Crash: 180})

	if _, _, err := e.CashOut(ctx, b.ID, 0); !errors.Is(err, ErrRoundClosed) {
		t.Fatalf("cash out after crash: got %v, want ErrRoundClosed", err)
	}

	e.settleRound(ctx, r)

	if bal, _ := led.Balance(ctx, "a1"); bal != 0 {
		t.Fatalf("balance = %d, want 0", bal)
	}
	entries, _ := hist.Query(ctx, "a1", 10, 0)
	if len(entries) != 1 || entries[0].Payout != 0 || entries[0].NetCents != -10000 {
		t.Fatalf("history = %+v, want one losing entry of -10000", entries)
	}
}

func TestHalfCashOut(t *testing.T) {
	e, led, hist := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 600000)

	r := openRoundFor(t, e, GameCrash)
	b, err := e.PlaceBet(ctx, "a1", GameCrash, 10000, "")
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	if !b.PremiumAtOpen {
		t.Fatalf("account above tier not flagged premium")
	}

	gs := e.games[GameCrash]
	gs.mu.Lock()
	r.LiveMult = 200
	gs.mu.Unlock()

	payout, _, err := e.HalfCashOut(ctx, b.ID, 200)
	if err != nil {
		t.Fatalf("half cash out: %v", err)
	}
	if payout != 10000 { // metade (5000) x 2.00
		t.Fatalf("half payout = %d, want 10000", payout)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 600000 {
		t.Fatalf("balance = %d, want 600000", bal)
	}

	// uso único
	if _, _, err := e.HalfCashOut(ctx, b.ID, 200); !errors.Is(err, ErrAlreadyCashed) {
		t.Fatalf("second half: got %v, want ErrAlreadyCashed", err)
	}

	// a metade restante segue no round e pode ser sacada integral
	gs.mu.Lock()
	r.LiveMult = 300
	gs.mu.Unlock()
	payout, _, err = e.CashOut(ctx, b.ID, 300)
	if err != nil {
		t.Fatalf("cash out remaining half: %v", err)
	}
	if payout != 15000 { // 5000 x 3.00
		t.Fatalf("remaining payout = %d, want 15000", payout)
	}

	entries, _ := hist.Query(ctx, "a1", 10, 0)
	if len(entries) != 2 {
		t.Fatalf("history entries = %d, want 2", len(entries))
	}
}

func TestHalfCashOut_RequiresPremiumTier(t *testing.T) {
	e, led, _ := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 499999)

	r := openRoundFor(t, e, GameCrash)
	b, _ := e.PlaceBet(ctx, "a1", GameCrash, 10000, "")

	gs := e.games[GameCrash]
	gs.mu.Lock()
	r.LiveMult = 200
	gs.mu.Unlock()

	if _, _, err := e.HalfCashOut(ctx, b.ID, 200); !errors.Is(err, ErrPremiumRequired) {
		t.Fatalf("got %v, want ErrPremiumRequired", err)
	}
}

// A elegibilidade premium é capturada na entrada do round: sacar metade
// depois que o saldo caiu abaixo do tier continua permitido.
func TestHalfCashOut_EligibilityCapturedAtPlacement(t *testing.T) {
	e, led, _ := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 500000)

	r := openRoundFor(t, e, GameCrash)
	b, _ := e.PlaceBet(ctx, "a1", GameCrash, 490000, "")

	if bal, _ := led.Balance(ctx, "a1"); bal != 10000 {
		t.Fatalf("balance = %d, want 10000", bal)
	}

	gs := e.games[GameCrash]
	gs.mu.Lock()
	r.LiveMult = 110
	gs.mu.Unlock()

	if _, _, err := e.HalfCashOut(ctx, b.ID, 110); err != nil {
		t.Fatalf("half cash out: %v", err)
	}
}

func TestColor_Settlement(t *testing.T) {
	e, led, hist := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 10000)
	fund(t, led, "a2", 10000)

	r := openRoundFor(t, e, GameColor)
	if _, err := e.PlaceBet(ctx, "a1", GameColor, 10000, "violet"); err != nil {
		t.Fatalf("place violet: %v", err)
	}
	if _, err := e.PlaceBet(ctx, "a2", GameColor, 10000, "red"); err != nil {
		t.Fatalf("place red: %v", err)
	}

	closeWith(e, r, &Outcome{Color: rng.ColorViolet})
	e.settleRound(ctx, r)

	if bal, _ := led.Balance(ctx, "a1"); bal != 45000 { // 100.00 x 4.5
		t.Fatalf("violet winner balance = %d, want 45000", bal)
	}
	if bal, _ := led.Balance(ctx, "a2"); bal != 0 {
		t.Fatalf("red loser balance = %d, want 0", bal)
	}
	entries, _ := hist.Query(ctx, "a2", 10, 0)
	if len(entries) != 1 || entries[0].NetCents != -10000 {
		t.Fatalf("loser history = %+v", entries)
	}
}

func TestCarRace_Settlement(t *testing.T) {
	e, led, _ := newTestEngine(t)
	ctx := context.Background()
	for _, id := range []string{"a1", "a2", "a3"} {
		fund(t, led, id, 10000)
	}

	r := openRoundFor(t, e, GameCarRace)
	// a1 aposta no carro 2 vencer; a2 no carro 3 vencer (chega em 3º);
	// a3 no carro 1 chegar em 2º
	if _, err := e.PlaceBet(ctx, "a1", GameCarRace, 10000, "2"); err != nil {
		t.Fatalf("a1: %v", err)
	}
	if _, err := e.PlaceBet(ctx, "a2", GameCarRace, 10000, "3"); err != nil {
		t.Fatalf("a2: %v", err)
	}
	if _, err := e.PlaceBet(ctx, "a3", GameCarRace, 10000, "1:2"); err != nil {
		t.Fatalf("a3: %v", err)
	}

	closeWith(e, r, &Outcome{CarOrder: []int{2, 1, 3, 4}})
	e.settleRound(ctx, r)

	if bal, _ := led.Balance(ctx, "a1"); bal != 35000 { // vencedor 3.5x
		t.Fatalf("a1 balance = %d, want 35000", bal)
	}
	if bal, _ := led.Balance(ctx, "a2"); bal != 0 { // chegou em 3º, não em 1º
		t.Fatalf("a2 balance = %d, want 0", bal)
	}
	if bal, _ := led.Balance(ctx, "a3"); bal != 25000 { // 2º lugar 2.5x
		t.Fatalf("a3 balance = %d, want 25000", bal)
	}
}

func TestSettleRound_Idempotent(t *testing.T) {
	e, led, hist := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 10000)

	r := openRoundFor(t, e, GameColor)
	if _, err := e.PlaceBet(ctx, "a1", GameColor, 10000, "red"); err != nil {
		t.Fatalf("place bet: %v", err)
	}

	closeWith(e, r, &Outcome{Color: rng.ColorRed})
	e.settleRound(ctx, r)
	e.settleRound(ctx, r)
	e.settleRound(ctx, r)

	if bal, _ := led.Balance(ctx, "a1"); bal != 20000 { // creditado uma vez só
		t.Fatalf("balance = %d, want 20000", bal)
	}
	entries, _ := hist.Query(ctx, "a1", 10, 0)
	if len(entries) != 1 {
		t.Fatalf("history entries = %d, want 1", len(entries))
	}
}

func TestAbort_RefundsExactStakes(t *testing.T) {
	e, led, hist := newTestEngine(t)
	ctx := context.Background()
	fund(t, led, "a1", 10000)
	fund(t, led, "a2", 7000)

	r := openRoundFor(t, e, GameColor)
	b1, _ := e.PlaceBet(ctx, "a1", GameColor, 2500, "red")
	b2, _ := e.PlaceBet(ctx, "a2", GameColor, 7000, "green")

	if err := e.Abort(ctx, GameColor, "provider failure"); err != nil {
		t.Fatalf("abort: %v", err)
	}

	if bal, _ := led.Balance(ctx, "a1"); bal != 10000 {
		t.Fatalf("a1 balance = %d, want 10000", bal)
	}
	if bal, _ := led.Balance(ctx, "a2"); bal != 7000 {
		t.Fatalf("a2 balance = %d, want 7000", bal)
	}
	for _, b := range []*Bet{b1, b2} {
		if b.Status != BetVoid {
			t.Errorf("bet %s status = %s, want VOID", b.ID, b.Status)
		}
	}
	entries, _ := hist.Query(ctx, "a1", 10, 0)
	if len(entries) != 1 || !entries[0].WasVoided || entries[0].NetCents != 0 {
		t.Fatalf("void history = %+v", entries)
	}

	// segundo abort é no-op
	if err := e.Abort(ctx, GameColor, "again"); err != nil {
		t.Fatalf("second abort: %v", err)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 10000 {
		t.Fatalf("double refund: balance = %d", bal)
	}
	if r.State != RoundVoided {
		t.Fatalf("round state = %s, want VOIDED", r.State)
	}
}

func TestCurrentRound_HidesSeedUntilResolved(t *testing.T) {
	e, _, _ := newTestEngine(t)
	r := openRoundFor(t, e, GameColor)

	snap, err := e.CurrentRound(GameColor)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Commit == "" {
		t.Fatalf("open round must publish the commit")
	}
	if snap.ServerSeed != "" || snap.Outcome != "" {
		t.Fatalf("open round leaked seed/outcome: %+v", snap)
	}

	closeWith(e, r, &Outcome{Color: rng.ColorGreen})
	e.settleRound(context.Background(), r)

	snap, _ = e.CurrentRound(GameColor)
	if snap.ServerSeed != r.Seed.Server || snap.Outcome != "color:green" {
		t.Fatalf("settled round must reveal seed and outcome: %+v", snap)
	}
	if !rng.VerifyCommit(rng.Seed{Server: snap.ServerSeed, Commit: snap.Commit}) {
		t.Fatalf("revealed seed does not match commit")
	}
}

// Integração do loop do crash: auto cash-out dispara no alvo e quem fica
// até o fim perde.
func TestRunCrash_AutoCashoutAndLosers(t *testing.T) {
	led := ledger.NewMemory()
	cfg := testConfig()
	cfg.CrashWaitDelay = 50 * time.Millisecond
	cfg.CrashTick = 5 * time.Millisecond
	e := New(zap.NewNop(), led, history.NewMemory(50), rng.New(), newMemRepo(), cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fund(t, led, "auto", 10000)
	fund(t, led, "rider", 10000)

	done := make(chan struct{})
	go func() { defer close(done); e.runCrash(ctx) }()

	// espera o round abrir e fixa o ponto de crash em 2.00x
	gs := e.games[GameCrash]
	deadline := time.After(2 * time.Second)
	var r *Round
	for r == nil {
		select {
		case <-deadline:
			t.Fatalf("crash round never opened")
		default:
		}
		gs.mu.Lock()
		if gs.current != nil && gs.current.State == RoundOpen {
			r = gs.current
			r.crashPoint = 200
		}
		gs.mu.Unlock()
		time.Sleep(time.Millisecond)
	}

	if _, err := e.PlaceBet(ctx, "auto", GameCrash, 10000, "1.30"); err != nil {
		t.Fatalf("auto bet: %v", err)
	}
	if _, err := e.PlaceBet(ctx, "rider", GameCrash, 10000, ""); err != nil {
		t.Fatalf("rider bet: %v", err)
	}

	// espera o round crashar e liquidar
	deadline = time.After(5 * time.Second)
	for {
		gs.mu.Lock()
		state := r.State
		gs.mu.Unlock()
		if state == RoundSettled || state == RoundArchived {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("round never settled, state=%s", state)
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
	<-done

	if bal, _ := led.Balance(ctx, "auto"); bal != 13000 { // 100.00 x 1.30
		t.Fatalf("auto balance = %d, want 13000", bal)
	}
	if bal, _ := led.Balance(ctx, "rider"); bal != 0 {
		t.Fatalf("rider balance = %d, want 0", bal)
	}
}

// flakyLedger recusa os primeiros N créditos antes de delegar.
type flakyLedger struct {
	ledger.Ledger
	mu       sync.Mutex
	failures int
}

func (f *flakyLedger) Credit(ctx context.Context, accountID string, amount int64, ref string) (*ledger.Account, error) {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return nil, ledger.ErrConflict
	}
	f.mu.Unlock()
	return f.Ledger.Credit(ctx, accountID, amount, ref)
}

// Crédito recusado na liquidação não pode sumir com o prêmio: nada de
// histórico antes do dinheiro assentar, e a fila de retry acaba pagando.
func TestSettleRound_CreditFailureRetriesUntilPaid(t *testing.T) {
	led := ledger.NewMemory()
	flaky := &flakyLedger{Ledger: led}
	hist := history.NewMemory(50)
	cfg := testConfig()
	cfg.PayoutRetryInterval = 2 * time.Millisecond
	e := New(zap.NewNop(), flaky, hist, rng.New(), newMemRepo(), cfg)
	ctx := context.Background()
	fund(t, led, "a1", 10000)

	r := openRoundFor(t, e, GameColor)
	b, err := e.PlaceBet(ctx, "a1", GameColor, 10000, "red")
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	closeWith(e, r, &Outcome{Color: rng.ColorRed})

	flaky.mu.Lock()
	flaky.failures = 2
	flaky.mu.Unlock()
	e.settleRound(ctx, r)

	// o claim está feito mas o crédito ainda não assentou
	if b.Status != BetSettled {
		t.Fatalf("bet status = %s, want SETTLED", b.Status)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 0 {
		t.Fatalf("balance = %d, want 0 before the retry lands", bal)
	}
	if entries, _ := hist.Query(ctx, "a1", 10, 0); len(entries) != 0 {
		t.Fatalf("history = %+v, want empty until the credit lands", entries)
	}

	retryCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.retryPayouts(retryCtx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if bal, _ := led.Balance(ctx, "a1"); bal == 20000 {
			break
		}
		if time.Now().After(deadline) {
			bal, _ := led.Balance(ctx, "a1")
			t.Fatalf("balance = %d, want 20000 after retries", bal)
		}
		time.Sleep(2 * time.Millisecond)
	}
	entries, _ := hist.Query(ctx, "a1", 10, 0)
	if len(entries) != 1 || entries[0].Payout != 20000 {
		t.Fatalf("history = %+v, want the paid win", entries)
	}
}

// Crédito recusado com o round ainda voando devolve a aposta pro estado
// pendente; o caller tenta de novo e recebe certinho.
func TestCrash_CashOutCreditFailureLeavesBetRetryable(t *testing.T) {
	led := ledger.NewMemory()
	flaky := &flakyLedger{Ledger: led}
	e := New(zap.NewNop(), flaky, history.NewMemory(50), rng.New(), newMemRepo(), testConfig())
	ctx := context.Background()
	fund(t, led, "a1", 10000)

	r := openRoundFor(t, e, GameCrash)
	b, err := e.PlaceBet(ctx, "a1", GameCrash, 10000, "")
	if err != nil {
		t.Fatalf("place bet: %v", err)
	}
	gs := e.games[GameCrash]
	gs.mu.Lock()
	r.LiveMult = 250
	gs.mu.Unlock()

	flaky.mu.Lock()
	flaky.failures = 1
	flaky.mu.Unlock()
	if _, _, err := e.CashOut(ctx, b.ID, 250); !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict surfaced to the caller", err)
	}
	gs.mu.Lock()
	status, cashedAt := b.Status, b.CashedOutAt
	gs.mu.Unlock()
	if status != BetPending || cashedAt != 0 {
		t.Fatalf("bet not reverted: status=%s cashedOutAt=%d", status, cashedAt)
	}

	payout, applied, err := e.CashOut(ctx, b.ID, 250)
	if err != nil {
		t.Fatalf("retried cash out: %v", err)
	}
	if payout != 25000 || applied != 250 {
		t.Fatalf("payout=%d applied=%d, want 25000 at 250", payout, applied)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 25000 {
		t.Fatalf("balance = %d, want 25000", bal)
	}
}

// Estorno de void recusado pelo ledger fica devido e é pago pelo retry.
func TestAbort_RefundFailureIsQueuedNotDropped(t *testing.T) {
	led := ledger.NewMemory()
	flaky := &flakyLedger{Ledger: led}
	hist := history.NewMemory(50)
	cfg := testConfig()
	cfg.PayoutRetryInterval = 2 * time.Millisecond
	e := New(zap.NewNop(), flaky, hist, rng.New(), newMemRepo(), cfg)
	ctx := context.Background()
	fund(t, led, "a1", 10000)

	openRoundFor(t, e, GameCrash)
	if _, err := e.PlaceBet(ctx, "a1", GameCrash, 10000, ""); err != nil {
		t.Fatalf("place bet: %v", err)
	}

	flaky.mu.Lock()
	flaky.failures = 1
	flaky.mu.Unlock()
	if err := e.Abort(ctx, GameCrash, "maintenance"); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if bal, _ := led.Balance(ctx, "a1"); bal != 0 {
		t.Fatalf("balance = %d, want 0 before the retry lands", bal)
	}

	retryCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go e.retryPayouts(retryCtx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		if bal, _ := led.Balance(ctx, "a1"); bal == 10000 {
			break
		}
		if time.Now().After(deadline) {
			bal, _ := led.Balance(ctx, "a1")
			t.Fatalf("balance = %d, want the 10000 refund", bal)
		}
		time.Sleep(2 * time.Millisecond)
	}
	entries, _ := hist.Query(ctx, "a1", 10, 0)
	if len(entries) != 1 || !entries[0].WasVoided {
		t.Fatalf("history = %+v, want one voided refund entry", entries)
	}
}
