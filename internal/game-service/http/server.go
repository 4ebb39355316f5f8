package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/casino-games-platform-poc/internal/auth"
	"github.com/radieske/casino-games-platform-poc/internal/game-service/dto"
	"github.com/radieske/casino-games-platform-poc/internal/game-service/engine"
	"github.com/radieske/casino-games-platform-poc/internal/history"
	"github.com/radieske/casino-games-platform-poc/internal/ledger"
)

// Server expõe a API REST dos jogos. Toda rota /v1 exige sessão válida
// via X-Session-Token; o accountID vem sempre da sessão, nunca do corpo.
type Server struct {
	log   *zap.Logger
	eng   *engine.Engine
	led   ledger.Ledger
	hist  history.Store
	sess  auth.Resolver
	wsFun http.HandlerFunc
}

func NewServer(log *zap.Logger, eng *engine.Engine, led ledger.Ledger, hist history.Store, sess auth.Resolver, wsHandler http.HandlerFunc) *Server {
	return &Server{log: log, eng: eng, led: led, hist: hist, sess: sess, wsFun: wsHandler}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	if s.wsFun != nil {
		r.Get("/ws", s.wsFun)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(s.sessionAuth)
		r.Post("/bets", s.placeBet)
		r.Get("/bets/{id}", s.getBet)
		r.Post("/bets/{id}/cashout", s.cashout)
		r.Post("/bets/{id}/cashout/half", s.halfCashout)
		r.Get("/rounds/{game}/current", s.currentRound)
		r.Get("/accounts/{id}/history", s.accountHistory)
		r.Get("/accounts/{id}/stats", s.accountStats)
	})
	return r
}

type ctxKey int

const ctxAccountID ctxKey = 0

// sessionAuth resolve o token de sessão pra conta dona da requisição.
func (s *Server) sessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Session-Token")
		if token == "" {
			writeError(w, http.StatusUnauthorized, "AuthError", "missing session token")
			return
		}
		accountID, err := s.sess.Resolve(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "AuthError", "invalid or expired session")
			return
		}
		ctx := contextWithAccount(r.Context(), accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)

	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidPayload", "bad json")
		return
	}
	game, err := engine.ParseGameType(req.GameType)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidGameType", "unknown game type")
		return
	}

	b, err := s.eng.PlaceBet(r.Context(), accountID, game, req.StakeCents, req.Prediction)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PlaceBetResponse{
		BetID:      b.ID,
		RoundID:    b.RoundID,
		GameType:   string(b.GameType),
		Status:     string(b.Status),
		StakeCents: b.Stake,
	})
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	b, err := s.eng.GetBet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if b.AccountID != accountFrom(r) {
		writeError(w, http.StatusForbidden, "Forbidden", "bet belongs to another account")
		return
	}
	writeJSON(w, http.StatusOK, dto.BetResponse{
		BetID:       b.ID,
		RoundID:     b.RoundID,
		GameType:    string(b.GameType),
		Status:      string(b.Status),
		StakeCents:  b.Stake,
		PayoutCents: b.PayoutCents,
		PlacedAt:    b.PlacedAt,
	})
}

func (s *Server) cashout(w http.ResponseWriter, r *http.Request) {
	s.cashoutAt(w, r, s.eng.CashOut)
}

func (s *Server) halfCashout(w http.ResponseWriter, r *http.Request) {
	s.cashoutAt(w, r, s.eng.HalfCashOut)
}

func (s *Server) cashoutAt(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, betID string, at int64) (int64, int64, error)) {
	accountID := accountFrom(r)
	betID := chi.URLParam(r, "id")

	b, err := s.eng.GetBet(r.Context(), betID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if b.AccountID != accountID {
		writeError(w, http.StatusForbidden, "Forbidden", "bet belongs to another account")
		return
	}

	var req dto.CashoutRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // corpo vazio = sacar agora
	}
	var at int64
	if req.Multiplier != "" {
		at, err = engine.ParseMultiplier(req.Multiplier)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidMultiplier", "multiplier must look like 2.50")
			return
		}
	}

	payout, applied, err := fn(r.Context(), betID, at)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	balance, err := s.led.Balance(r.Context(), accountID)
	if err != nil {
		s.log.Warn("balance read after cashout failed", zap.String("accountId", accountID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, dto.CashoutResponse{
		BetID:       betID,
		Multiplier:  formatMultiplier(applied),
		PayoutCents: payout,
		NewBalance:  balance,
	})
}

func (s *Server) currentRound(w http.ResponseWriter, r *http.Request) {
	game, err := engine.ParseGameType(chi.URLParam(r, "game"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidGameType", "unknown game type")
		return
	}
	snap, err := s.eng.CurrentRound(game)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) accountHistory(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID != accountFrom(r) {
		writeError(w, http.StatusForbidden, "Forbidden", "history belongs to another account")
		return
	}
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	entries, err := s.hist.Query(r.Context(), accountID, limit, offset)
	if err != nil {
		s.log.Error("history query failed", zap.String("accountId", accountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "history unavailable")
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) accountStats(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "id")
	if accountID != accountFrom(r) {
		writeError(w, http.StatusForbidden, "Forbidden", "stats belong to another account")
		return
	}
	entries, err := s.hist.Query(r.Context(), accountID, 200, 0)
	if err != nil {
		s.log.Error("history query failed", zap.String("accountId", accountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "history unavailable")
		return
	}
	st := history.Fold(entries)
	writeJSON(w, http.StatusOK, dto.StatsResponse{
		AccountID: accountID,
		Wins:      st.Wins,
		Losses:    st.Losses,
		Voids:     st.Voids,
		NetCents:  st.NetCents,
	})
}

// writeEngineError traduz os erros do engine e do ledger pro status HTTP
// e o kind estável que o cliente enxerga.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidStake), errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "InvalidStake", err.Error())
	case errors.Is(err, engine.ErrBadPrediction):
		writeError(w, http.StatusBadRequest, "InvalidPrediction", err.Error())
	case errors.Is(err, engine.ErrInvalidGameType):
		writeError(w, http.StatusBadRequest, "InvalidGameType", err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "InsufficientFunds", err.Error())
	case errors.Is(err, engine.ErrRoundClosed):
		writeError(w, http.StatusConflict, "RoundClosed", err.Error())
	case errors.Is(err, engine.ErrAlreadyCashed):
		writeError(w, http.StatusConflict, "AlreadyCashedOut", err.Error())
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, engine.ErrPremiumRequired):
		writeError(w, http.StatusForbidden, "PremiumRequired", err.Error())
	case errors.Is(err, engine.ErrRoundNotFound):
		writeError(w, http.StatusNotFound, "RoundNotFound", err.Error())
	case errors.Is(err, engine.ErrBetNotFound), errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	default:
		s.log.Error("unexpected error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "unexpected error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Kind: kind})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// formatMultiplier converte centésimos pra forma "2.50".
func formatMultiplier(x int64) string {
	return fmt.Sprintf("%d.%02d", x/100, x%100)
}
