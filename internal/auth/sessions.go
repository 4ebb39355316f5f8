package auth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func sessionKey(token string) string { return "session:" + token }

// RedisSessions guarda sessões como "session:{token}" -> accountID com TTL.
// Qualquer instância do game-service resolve o token sem estado local.
type RedisSessions struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisSessions(rdb *redis.Client, ttl time.Duration) *RedisSessions {
	return &RedisSessions{rdb: rdb, ttl: ttl}
}

// Issue cria uma sessão nova e devolve o token opaco.
func (s *RedisSessions) Issue(ctx context.Context, accountID string) (string, error) {
	token := uuid.NewString()
	if err := s.rdb.Set(ctx, sessionKey(token), accountID, s.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisSessions) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrAuth
	}
	accountID, err := s.rdb.Get(ctx, sessionKey(token)).Result()
	if err == redis.Nil {
		return "", ErrAuth
	}
	if err != nil {
		return "", err
	}
	return accountID, nil
}

func (s *RedisSessions) Revoke(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, sessionKey(token)).Err()
}
