package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/casino-games-platform-poc/internal/auth"
	"github.com/radieske/casino-games-platform-poc/internal/ledger"
	"github.com/radieske/casino-games-platform-poc/internal/shared/cache"
	"github.com/radieske/casino-games-platform-poc/internal/shared/config"
	"github.com/radieske/casino-games-platform-poc/internal/shared/db"
	"github.com/radieske/casino-games-platform-poc/internal/shared/logger"
	"github.com/radieske/casino-games-platform-poc/internal/shared/metrics"
	walletapi "github.com/radieske/casino-games-platform-poc/internal/wallet-service/http"
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

	var (
		led      ledger.Ledger
		users    auth.UserStore
		healthFn metrics.HealthFunc
	)
	if cfg.Store == "memory" {
		led = ledger.NewMemory()
		users = auth.NewMemoryUsers()
		healthFn = func(context.Context) error { return nil }
		log.Info("using in-memory stores")
	} else {
		pg, err := db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect postgres", zap.Error(err))
		}
		defer pg.Close()
		log.Info("postgres connected")

		led = ledger.NewPostgres(pg)
		users = auth.NewPostgresUsers(pg)
		healthFn = pg.PingContext
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	sessions := auth.NewRedisSessions(redisClient, cfg.SessionTTL)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, healthFn)
	defer metricsSrv.Close()

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: walletapi.NewServer(log, led, users, sessions).Router(),
	}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	log.Info("wallet-service listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("http server failed", zap.Error(err))
	}
	log.Info("wallet-service stopped")
}
