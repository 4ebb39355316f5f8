package producer

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/radieske/casino-games-platform-poc/internal/game-service/engine"
	"github.com/radieske/casino-games-platform-poc/internal/shared/kafka"
	"github.com/radieske/casino-games-platform-poc/pkg/contracts/events"
)

// KafkaPublisher emite os eventos de liquidação consumidos pelo
// stats-worker. Um writer por tópico.
type KafkaPublisher struct {
	BetSettled  *kafkago.Writer
	RoundClosed *kafkago.Writer
}

func NewKafkaPublisher(betSettled, roundClosed *kafkago.Writer) *KafkaPublisher {
	return &KafkaPublisher{BetSettled: betSettled, RoundClosed: roundClosed}
}

// key = accountID/roundID preserva a ordem por entidade na partição
func (p *KafkaPublisher) PublishBetSettled(ctx context.Context, e events.BetSettled) error {
	b, _ := json.Marshal(e)
	return kafka.WriteJSON(ctx, p.BetSettled, e.AccountID, b)
}

func (p *KafkaPublisher) PublishRoundClosed(ctx context.Context, e events.RoundClosed) error {
	b, _ := json.Marshal(e)
	return kafka.WriteJSON(ctx, p.RoundClosed, e.RoundID, b)
}

// RedisBroadcaster publica as atualizações de round no canal Pub/Sub que
// alimenta o hub WebSocket.
type RedisBroadcaster struct {
	rdb     *redis.Client
	channel string
}

func NewRedisBroadcaster(rdb *redis.Client, channel string) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb, channel: channel}
}

func (b *RedisBroadcaster) BroadcastRound(ctx context.Context, u engine.RoundUpdate) error {
	payload, _ := json.Marshal(u)
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}
