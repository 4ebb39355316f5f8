package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/casino-games-platform-poc/internal/auth"
	"github.com/radieske/casino-games-platform-poc/internal/ledger"
	"github.com/radieske/casino-games-platform-poc/internal/wallet-service/dto"
)

// Sessions é o que o wallet-service precisa do store de sessões.
type Sessions interface {
	Issue(ctx context.Context, accountID string) (string, error)
	Resolve(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

// Server expõe cadastro, login e as operações de saldo. A conta do
// ledger nasce zerada no cadastro; depósito e saque passam pelas mesmas
// invariantes que os payouts dos jogos.
type Server struct {
	log   *zap.Logger
	led   ledger.Ledger
	users auth.UserStore
	sess  Sessions
}

func NewServer(log *zap.Logger, led ledger.Ledger, users auth.UserStore, sess Sessions) *Server {
	return &Server{log: log, led: led, users: users, sess: sess}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/register", s.register) // POST
	mux.HandleFunc("/v1/login", s.login)       // POST
	mux.HandleFunc("/v1/logout", s.logout)     // POST
	mux.HandleFunc("/v1/accounts/", s.account) // GET {id}/balance, POST {id}/deposit|/withdraw
	return mux
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "use POST")
		return
	}
	var req dto.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidPayload", "bad json")
		return
	}
	if req.Username == "" || req.Email == "" || len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "InvalidPayload", "username, email and password (6+ chars) required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error("password hash failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "registration unavailable")
		return
	}

	accountID := uuid.NewString()
	if _, err := s.led.CreateAccount(r.Context(), accountID); err != nil {
		s.log.Error("account create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "registration unavailable")
		return
	}

	err = s.users.Create(r.Context(), auth.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		AccountID:    accountID,
	})
	switch {
	case errors.Is(err, auth.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "UsernameTaken", err.Error())
		return
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "EmailTaken", err.Error())
		return
	case err != nil:
		s.log.Error("user create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "registration unavailable")
		return
	}

	token, err := s.sess.Issue(r.Context(), accountID)
	if err != nil {
		s.log.Error("session issue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "registration unavailable")
		return
	}
	s.log.Info("user registered", zap.String("username", req.Username), zap.String("accountId", accountID))
	writeJSON(w, http.StatusCreated, dto.SessionResponse{AccountID: accountID, Username: req.Username, Token: token})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "use POST")
		return
	}
	var req dto.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidPayload", "bad json")
		return
	}

	u, err := s.users.ByUsername(r.Context(), req.Username)
	if err == nil {
		err = auth.CheckPassword(u.PasswordHash, req.Password)
	}
	if err != nil {
		// credencial inválida e usuário inexistente respondem igual
		writeError(w, http.StatusUnauthorized, "AuthError", "invalid credentials")
		return
	}

	token, err := s.sess.Issue(r.Context(), u.AccountID)
	if err != nil {
		s.log.Error("session issue failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "login unavailable")
		return
	}
	writeJSON(w, http.StatusOK, dto.SessionResponse{AccountID: u.AccountID, Username: u.Username, Token: token})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "use POST")
		return
	}
	token := r.Header.Get("X-Session-Token")
	if token != "" {
		_ = s.sess.Revoke(r.Context(), token)
	}
	w.WriteHeader(http.StatusNoContent)
}

// account roteia /v1/accounts/{id}/balance|deposit|withdraw. Toda rota é
// da própria conta: o id do path tem que bater com a sessão.
func (s *Server) account(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "NotFound", "unknown route")
		return
	}
	accountID, op := parts[0], parts[1]

	sessionAccount, err := s.sess.Resolve(r.Context(), r.Header.Get("X-Session-Token"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AuthError", "invalid or expired session")
		return
	}
	if sessionAccount != accountID {
		writeError(w, http.StatusForbidden, "Forbidden", "account belongs to another session")
		return
	}

	switch op {
	case "balance":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "use GET")
			return
		}
		s.balance(w, r, accountID)
	case "deposit":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "use POST")
			return
		}
		s.move(w, r, accountID, false)
	case "withdraw":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "use POST")
			return
		}
		s.move(w, r, accountID, true)
	default:
		writeError(w, http.StatusNotFound, "NotFound", "unknown route")
	}
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request, accountID string) {
	bal, err := s.led.Balance(r.Context(), accountID)
	if errors.Is(err, ledger.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NotFound", "account not found")
		return
	}
	if err != nil {
		s.log.Error("balance read failed", zap.String("accountId", accountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "balance unavailable")
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: accountID, BalanceCents: bal})
}

func (s *Server) move(w http.ResponseWriter, r *http.Request, accountID string, withdraw bool) {
	var req dto.AmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "InvalidPayload", "bad json")
		return
	}

	if req.AmountCents <= 0 {
		writeError(w, http.StatusBadRequest, "InvalidAmount", "amountCents must be positive")
		return
	}

	ref := "deposit:" + uuid.NewString()
	op := s.led.Credit
	if withdraw {
		ref = "withdraw:" + uuid.NewString()
		op = s.led.Debit
	}
	acc, err := op(r.Context(), accountID, req.AmountCents, ref)
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "InvalidAmount", err.Error())
		return
	case errors.Is(err, ledger.ErrInsufficientFunds):
		writeError(w, http.StatusConflict, "InsufficientFunds", err.Error())
		return
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "NotFound", "account not found")
		return
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "Conflict", "concurrent update, retry")
		return
	case err != nil:
		s.log.Error("ledger move failed", zap.String("accountId", accountID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal", "operation unavailable")
		return
	}
	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: accountID, BalanceCents: acc.BalanceCents})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Kind: kind})
}
