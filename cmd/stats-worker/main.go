package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/radieske/casino-games-platform-poc/internal/shared/cache"
	"github.com/radieske/casino-games-platform-poc/internal/shared/config"
	"github.com/radieske/casino-games-platform-poc/internal/shared/kafka"
	"github.com/radieske/casino-games-platform-poc/internal/shared/logger"
	"github.com/radieske/casino-games-platform-poc/internal/shared/metrics"
	"github.com/radieske/casino-games-platform-poc/internal/stats-worker/consumer"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	log.Info("starting service", zap.String("service", cfg.ServiceName), zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicBetSettled, "stats-worker")
	defer reader.Close()

	dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettledDLQ)
	defer dlq.Close()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	defer metricsSrv.Close()

	log.Info("stats-worker started",
		zap.String("consume", cfg.TopicBetSettled),
		zap.String("dlq", cfg.TopicBetSettledDLQ))

	c := consumer.New(log, reader, consumer.NewRedisSink(redisClient), dlq)
	c.Run(ctx)

	log.Info("stats-worker stopped")
}
