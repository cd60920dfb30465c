package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeybisMelendez/km9-comanda/internal/config"
	"github.com/DeybisMelendez/km9-comanda/internal/infra"
	"github.com/DeybisMelendez/km9-comanda/internal/router"
	"github.com/DeybisMelendez/km9-comanda/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: console in dev, JSON in prod
	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	shutdownTracer, err := infra.InitTracer("km9-comanda", cfg.JaegerEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init tracer")
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
	} else {
		log.Warn().Msg("REDIS_URL empty: ledger events and the audit cron are disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svcs := router.NewServices(cfg, db, rdb)

	if rdb != nil {
		// Kafka is optional; without brokers the pool only logs events.
		var publisher worker.Publisher
		if brokers := cfg.Brokers(); len(brokers) > 0 {
			kp, err := infra.NewKafkaPublisher(brokers, cfg.KafkaTopic)
			if err != nil {
				log.Fatal().Err(err).Strs("brokers", brokers).Msg("failed to connect to kafka")
			}
			defer kp.Close()
			publisher = kp
		}
		cb := infra.NewCircuitBreaker("kafka", infra.DefaultCBConfig())
		worker.NewPool(rdb, publisher, cb).Start(ctx, cfg.WorkerPoolSize)

		worker.StartAuditCron(ctx, worker.AuditCronConfig{
			Inventory: svcs.Inventory,
			RDB:       rdb,
			Interval:  cfg.AuditInterval,
		})
	}

	r := router.New(cfg, db, rdb, svcs)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("km9-comanda listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown")
	}
	log.Info().Msg("server exited")
}
