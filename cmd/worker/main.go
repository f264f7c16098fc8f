package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/linguamatch/match-worker/internal/config"
	"github.com/linguamatch/match-worker/internal/handler"
	"github.com/linguamatch/match-worker/internal/httpapi"
	"github.com/linguamatch/match-worker/internal/messaging"
	"github.com/linguamatch/match-worker/internal/queue"
	"github.com/linguamatch/match-worker/internal/resilience"
	"github.com/linguamatch/match-worker/internal/state"
	"github.com/linguamatch/match-worker/internal/uow"
	"github.com/linguamatch/match-worker/internal/usecase"
)

// txFactory adapts the concrete unit-of-work factory to the use-case port.
type txFactory struct {
	f *uow.Factory
}

func (t txFactory) Begin(ctx context.Context) (usecase.Tx, error) {
	return t.f.Begin(ctx)
}

func main() {
	log.Println("Starting match worker...")

	cfg := config.Load()

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatalf("failed to connect to Redis: %v", err)
	}
	cancel()

	// Postgres setup + schema migrations.
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to open Postgres: %v", err)
	}
	if err := db.Ping(); err != nil {
		log.Fatalf("failed to connect to Postgres: %v", err)
	}
	if err := runMigrations(cfg.MigrationsDir, cfg.PostgresURL); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// NATS setup.
	brokerConfig := messaging.DefaultConfig()
	brokerConfig.URL = cfg.NATSURL
	broker, err := messaging.NewBroker(brokerConfig)
	if err != nil {
		log.Fatalf("failed to connect to NATS: %v", err)
	}

	// Wiring.
	queueStore := queue.NewStore(rdb, cfg.CacheTTL, cfg.MaxWaitTime)
	stateStore := state.NewStore(cfg.StateMaxSize, cfg.StateTTL)
	uowFactory := uow.NewFactory(db)

	findMatch := usecase.NewFindMatch(queueStore, nil, cfg.CompatibilityThreshold)
	process := usecase.NewProcessRequest(
		findMatch, queueStore, stateStore, txFactory{f: uowFactory}, broker,
		cfg.MaxWaitTime, cfg.InitialDelay, cfg.MaxRetries,
	)

	limiter := resilience.NewRateLimiter(resilience.Rule{
		Limit:  cfg.RateLimitMax,
		Window: cfg.RateLimitWindow,
	})
	breaker := resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerRecovery)
	msgHandler := handler.New(process, limiter, breaker)

	ctx, stop := context.WithCancel(context.Background())

	if err := broker.ConsumeRequests(ctx, func(ctx context.Context, data []byte) bool {
		return msgHandler.Handle(ctx, data) == handler.Ack
	}); err != nil {
		log.Fatalf("failed to start consumer: %v", err)
	}

	go stateStore.Run(ctx)

	api := httpapi.NewServer(queueStore, stateStore, uowFactory, broker)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[api] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	log.Printf("match worker running")
	log.Printf("  redis_addr:  %s", cfg.RedisAddr)
	log.Printf("  nats_url:    %s", cfg.NATSURL)
	log.Printf("  listen_addr: %s", cfg.ListenAddr)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("received signal %v, shutting down...", sig)

	stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}

	broker.Close()
	if err := db.Close(); err != nil {
		log.Printf("postgres close: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Printf("redis close: %v", err)
	}
}

func runMigrations(dir, dbURL string) error {
	m, err := migrate.New(fmt.Sprintf("file://%s", dir), dbURL)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
