package consumer

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/casino-games-platform-poc/internal/shared/metrics"
	ev "github.com/radieske/casino-games-platform-poc/pkg/contracts/events"
)

// Reader é o subconjunto do kafka.Reader que o worker consome.
type Reader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
}

// Writer é o subconjunto do kafka.Writer usado pra DLQ.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// Sink aplica um evento liquidado nos agregados de estatística.
type Sink interface {
	Apply(ctx context.Context, e ev.BetSettled) error
}

// Consumer materializa os eventos bet_settled em agregados por conta e
// no leaderboard global. Mensagem indecifrável vai pra DLQ; falha do
// sink faz retry com backoff antes de desistir.
type Consumer struct {
	log    *zap.Logger
	reader Reader
	sink   Sink
	dlq    Writer
}

func New(log *zap.Logger, r Reader, s Sink, dlq Writer) *Consumer {
	return &Consumer{log: log, reader: r, sink: s, dlq: dlq}
}

// Run consome até o contexto cancelar.
func (c *Consumer) Run(ctx context.Context) {
	for ctx.Err() == nil {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.ConsumerErrors.WithLabelValues("read").Inc()
			c.log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		c.processOne(ctx, msg)
	}
}

func (c *Consumer) processOne(ctx context.Context, msg kafkago.Message) {
	var e ev.BetSettled
	if err := json.Unmarshal(msg.Value, &e); err != nil {
		metrics.ConsumerErrors.WithLabelValues("decode").Inc()
		c.log.Error("unmarshal bet_settled", zap.Error(err))
		c.toDLQ(ctx, msg)
		return
	}

	const retries = 3
	var err error
	for i := 0; i < retries; i++ {
		if err = c.sink.Apply(ctx, e); err == nil {
			return
		}
		time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
	}
	metrics.ConsumerErrors.WithLabelValues("sink").Inc()
	c.log.Error("apply bet_settled", zap.String("betId", e.BetID), zap.Error(err))
	c.toDLQ(ctx, msg)
}

func (c *Consumer) toDLQ(ctx context.Context, msg kafkago.Message) {
	if c.dlq == nil {
		return
	}
	err := c.dlq.WriteMessages(ctx, kafkago.Message{Key: msg.Key, Value: msg.Value})
	if err != nil {
		c.log.Error("dlq write", zap.Error(err))
	}
}
