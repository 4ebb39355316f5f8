package auth

import (
	"context"
	"errors"
)

var (
	// ErrAuth cobre credencial inválida, sessão expirada e senha errada.
	// O motivo exato nunca vaza pro cliente.
	ErrAuth = errors.New("auth error")

	ErrUsernameTaken = errors.New("username already registered")
	ErrEmailTaken    = errors.New("email already registered")
)

// Resolver mapeia uma credencial opaca (token de sessão) pra uma conta.
// É o único contrato que o core consome: RoundEngine e Ledger recebem
// sempre um accountID já resolvido.
type Resolver interface {
	Resolve(ctx context.Context, token string) (accountID string, err error)
}

// User é o registro de login. AccountID aponta pra conta do ledger
// criada no registro.
type User struct {
	Username     string
	Email        string
	PasswordHash string
	AccountID    string
}

// UserStore persiste usuários (username/email únicos).
type UserStore interface {
	Create(ctx context.Context, u User) error
	ByUsername(ctx context.Context, username string) (*User, error)
}
