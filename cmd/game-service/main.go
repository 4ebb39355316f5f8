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
	"github.com/radieske/casino-games-platform-poc/internal/game-service/engine"
	httpapi "github.com/radieske/casino-games-platform-poc/internal/game-service/http"
	"github.com/radieske/casino-games-platform-poc/internal/game-service/producer"
	"github.com/radieske/casino-games-platform-poc/internal/game-service/repo"
	"github.com/radieske/casino-games-platform-poc/internal/game-service/rng"
	"github.com/radieske/casino-games-platform-poc/internal/game-service/ws"
	"github.com/radieske/casino-games-platform-poc/internal/history"
	"github.com/radieske/casino-games-platform-poc/internal/ledger"
	"github.com/radieske/casino-games-platform-poc/internal/shared/cache"
	"github.com/radieske/casino-games-platform-poc/internal/shared/config"
	"github.com/radieske/casino-games-platform-poc/internal/shared/db"
	"github.com/radieske/casino-games-platform-poc/internal/shared/kafka"
	"github.com/radieske/casino-games-platform-poc/internal/shared/logger"
	"github.com/radieske/casino-games-platform-poc/internal/shared/metrics"
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

	// backends do core: memory pra dev local, postgres em qualquer outro caso
	var (
		led      ledger.Ledger
		hist     history.Store
		gameRepo engine.Repo
		pruner   *history.Postgres
		healthFn metrics.HealthFunc
	)
	if cfg.Store == "memory" {
		led = ledger.NewMemory()
		hist = history.NewMemory(cfg.HistoryRetention)
		gameRepo = repo.NewMemory()
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
		pgHist := history.NewPostgres(pg)
		hist = pgHist
		pruner = pgHist
		gameRepo = repo.NewPostgres(pg)
		healthFn = pg.PingContext
	}

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("redis connected")

	betWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer betWriter.Close()
	roundWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRoundClosed)
	defer roundWriter.Close()

	eng := engine.New(log, led, hist, rng.New(), gameRepo, engine.Config{
		ColorBetWindow:   cfg.ColorBetWindow,
		ColorRevealDelay: cfg.ColorRevealDelay,
		CarBetWindow:     cfg.CarBetWindow,
		CarRaceDuration:  cfg.CarRaceDuration,
		CrashWaitDelay:   cfg.CrashWaitDelay,
		CrashTick:        cfg.CrashTick,
		CrashBetCutoff:   cfg.CrashBetCutoff,
		PremiumTierCents: cfg.PremiumTierCents,
	})
	eng.SetPublisher(producer.NewKafkaPublisher(betWriter, roundWriter))
	eng.SetBroadcaster(producer.NewRedisBroadcaster(redisClient, cfg.RedisRoundChannel))

	hub := ws.NewHub(func(*http.Request) bool { return true })
	ws.StartRedisSubscriber(ctx, log, redisClient, cfg.RedisRoundChannel, hub)

	sessions := auth.NewRedisSessions(redisClient, cfg.SessionTTL)

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, healthFn)
	defer metricsSrv.Close()

	// poda periódica do histórico (só faz sentido no backend durável)
	if pruner != nil {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := pruner.Prune(ctx, cfg.HistoryRetention); err != nil {
						log.Warn("history prune failed", zap.Error(err))
					}
				}
			}
		}()
	}

	go eng.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: httpapi.NewServer(log, eng, led, hist, sessions, hub.HandleWS).Router(),
	}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	log.Info("game-service listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("http server failed", zap.Error(err))
	}
	log.Info("game-service stopped")
}
