package consumer

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	ev "github.com/radieske/casino-games-platform-poc/pkg/contracts/events"
)

const leaderboardKey = "stats:leaderboard"

func accountKey(accountID string) string { return "stats:account:" + accountID }

// Delta é a contribuição de um evento pros agregados da conta.
// Void não conta como derrota e não move o net.
type Delta struct {
	Wins     int64
	Losses   int64
	Voids    int64
	NetCents int64
}

// DeltaFor reduz um evento liquidado no incremento de estatística.
func DeltaFor(e ev.BetSettled) Delta {
	if e.Status == "VOID" {
		return Delta{Voids: 1}
	}
	if e.PayoutCents > 0 {
		return Delta{Wins: 1, NetCents: e.PayoutCents - e.StakeCents}
	}
	return Delta{Losses: 1, NetCents: -e.StakeCents}
}

// RedisSink mantém um hash por conta e o leaderboard global por net.
type RedisSink struct {
	rdb *redis.Client
}

func NewRedisSink(rdb *redis.Client) *RedisSink { return &RedisSink{rdb: rdb} }

func (s *RedisSink) Apply(ctx context.Context, e ev.BetSettled) error {
	d := DeltaFor(e)
	key := accountKey(e.AccountID)

	pipe := s.rdb.TxPipeline()
	if d.Wins != 0 {
		pipe.HIncrBy(ctx, key, "wins", d.Wins)
	}
	if d.Losses != 0 {
		pipe.HIncrBy(ctx, key, "losses", d.Losses)
	}
	if d.Voids != 0 {
		pipe.HIncrBy(ctx, key, "voids", d.Voids)
	}
	if d.NetCents != 0 {
		pipe.HIncrBy(ctx, key, "net_cents", d.NetCents)
		pipe.ZIncrBy(ctx, leaderboardKey, float64(d.NetCents), e.AccountID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("stats apply %s: %w", e.BetID, err)
	}
	return nil
}
