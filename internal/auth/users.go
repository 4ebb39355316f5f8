package auth

import (
	"context"
	"database/sql"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword gera o hash bcrypt armazenado no cadastro.
func HashPassword(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword compara a senha informada com o hash; erro vira ErrAuth.
func CheckPassword(hash, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrAuth
	}
	return nil
}

// PostgresUsers persiste usuários na tabela users.
type PostgresUsers struct{ db *sql.DB }

func NewPostgresUsers(db *sql.DB) *PostgresUsers { return &PostgresUsers{db: db} }

func (p *PostgresUsers) Create(ctx context.Context, u User) error {
	var exists bool
	if err := p.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, u.Email).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrEmailTaken
	}

	res, err := p.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, account_id, created_at)
		VALUES ($1,$2,$3,$4,NOW())
		ON CONFLICT (username) DO NOTHING`,
		u.Username, u.Email, u.PasswordHash, u.AccountID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUsernameTaken
	}
	return nil
}

func (p *PostgresUsers) ByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := p.db.QueryRowContext(ctx,
		`SELECT username, email, password_hash, account_id FROM users WHERE username=$1`,
		username).Scan(&u.Username, &u.Email, &u.PasswordHash, &u.AccountID)
	if err == sql.ErrNoRows {
		return nil, ErrAuth
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// MemoryUsers é o user store em memória (dev local e testes).
type MemoryUsers struct {
	mu      sync.RWMutex
	byName  map[string]User
	byEmail map[string]string
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{byName: make(map[string]User), byEmail: make(map[string]string)}
}

func (m *MemoryUsers) Create(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byName[u.Username]; ok {
		return ErrUsernameTaken
	}
	if _, ok := m.byEmail[u.Email]; ok {
		return ErrEmailTaken
	}
	m.byName[u.Username] = u
	m.byEmail[u.Email] = u.Username
	return nil
}

func (m *MemoryUsers) ByUsername(_ context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byName[username]
	if !ok {
		return nil, ErrAuth
	}
	cp := u
	return &cp, nil
}
