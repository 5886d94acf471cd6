package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/geocoder89/eventhub/internal/cache"
	"github.com/geocoder89/eventhub/internal/config"
	"github.com/geocoder89/eventhub/internal/lockservice"
	"github.com/geocoder89/eventhub/internal/observability"
	"github.com/geocoder89/eventhub/internal/queue/redisclient"
	"github.com/geocoder89/eventhub/internal/repo/postgres"
	"github.com/geocoder89/eventhub/internal/sweep"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := observability.NewLogger(cfg.Env)

	pool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	prom := observability.NewProm(prometheus.NewRegistry())

	eventsRepo := postgres.NewEventsRepo(pool)
	regsRepo := postgres.NewRegistrationsRepo(pool, prom)
	sharedCache := cache.New(cfg.EventCacheTTL)

	redisC := redisclient.New(redisclient.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() { _ = redisC.Close() }()
	lock := lockservice.New(redisC)

	sweeper := sweep.New(eventsRepo, regsRepo, sharedCache, log)

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Schedule(cron.Every(cfg.StatusSweepInterval), cron.FuncJob(func() {
		ran, err := lock.WithLock(ctx, "sweep:status", cfg.SweepLockTTL, sweeper.RunStatusSweep)
		if err != nil {
			log.Error("status sweep failed", "err", err)
		} else if !ran {
			log.Debug("status sweep skipped, held by another replica")
		}
	}))
	c.Schedule(cron.Every(cfg.CounterSweepInterval), cron.FuncJob(func() {
		ran, err := lock.WithLock(ctx, "sweep:counter", cfg.SweepLockTTL, sweeper.RunCounterSweep)
		if err != nil {
			log.Error("counter sweep failed", "err", err)
		} else if !ran {
			log.Debug("counter sweep skipped, held by another replica")
		}
	}))

	log.Info("sweeper.start",
		"status_interval", cfg.StatusSweepInterval,
		"counter_interval", cfg.CounterSweepInterval,
	)

	c.Start()
	<-ctx.Done()
	log.Info("sweeper.shutdown")
	<-c.Stop().Done()
}
