package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/diet-digest/backend/internal/backend"
	"github.com/DeafMist/diet-digest/backend/internal/config"
	"github.com/DeafMist/diet-digest/backend/internal/dedupe"
	"github.com/DeafMist/diet-digest/backend/internal/invalidation"
	"github.com/DeafMist/diet-digest/backend/internal/logger"
	"github.com/DeafMist/diet-digest/backend/internal/payload"
	"github.com/DeafMist/diet-digest/backend/internal/querycache"
	"github.com/DeafMist/diet-digest/backend/internal/repository"
	"github.com/DeafMist/diet-digest/backend/internal/tracing"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api stopped", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.API, log *slog.Logger) error {
	shutdownTracing, err := tracing.Setup(ctx, "diet-digest-api", cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("flush traces", slog.Any("err", err))
		}
	}()

	b, err := backend.Connect(ctx, cfg.Common, backend.ConnectOptions{Retries: cfg.StartupRetries, Logger: log})
	if err != nil {
		if ctx.Err() != nil {
			log.Info("shutdown signal received during startup")
			return nil
		}
		return err
	}
	defer b.Close()

	repo := repository.New(b.Store,
		payload.NewLoader(b.Objects, b.Bucket, cfg.PayloadTimeout, log),
		repository.Options{Schema: b.Schema, Timeout: cfg.StoreTimeout, Logger: log},
	)

	var reader repository.Reader = repo
	if cfg.CacheTTL > 0 {
		cache := querycache.New(repo, cfg.CacheTTL, log)
		reader = cache

		if cfg.CacheWarmSchedule != "" {
			warmer, err := querycache.NewWarmer(cache, cfg.CacheWarmSchedule, cfg.StoreTimeout)
			if err != nil {
				return err
			}
			warmer.Run()
			warmer.Start()
			defer warmer.Stop()
		}

		if len(cfg.KafkaBrokers) > 0 {
			stopListener := startListener(ctx, cfg, cache, log)
			defer stopListener()
		}
	}

	var limiter *clientLimiter
	if cfg.RateLimit > 0 {
		limiter = newClientLimiter(cfg.RateLimit, cfg.RateBurst, 10*time.Minute)
		go sweepLimiter(ctx, limiter, time.Minute)
	}

	srv := &server{log: log, reader: reader, health: b.Ping}
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(limiter, cfg.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("api server starting",
			slog.String("addr", cfg.BindAddr),
			slog.String("backend", b.Name),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
	return nil
}

// startListener consumes article events in the background and returns a
// function that stops it and waits for it to finish.
func startListener(ctx context.Context, cfg *config.API, cache *querycache.Cache, log *slog.Logger) func() {
	ctx, cancel := context.WithCancel(ctx)
	reader := invalidation.NewReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaConsumer)
	dlq := invalidation.NewDeadLetterWriter(cfg.KafkaBrokers, cfg.KafkaTopic)
	seen := dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL)
	listener := invalidation.NewListener(reader, dlq, cache, seen, log.With("component", "invalidation"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("listening for article events",
			slog.String("topic", cfg.KafkaTopic),
			slog.Any("brokers", cfg.KafkaBrokers),
		)
		if err := listener.Run(ctx); err != nil {
			log.Error("article listener stopped", slog.Any("err", err))
		}
	}()

	return func() {
		cancel()
		<-done
		if err := reader.Close(); err != nil {
			log.Warn("close kafka reader", slog.Any("err", err))
		}
		if err := dlq.Close(); err != nil {
			log.Warn("close dlq writer", slog.Any("err", err))
		}
	}
}

func sweepLimiter(ctx context.Context, l *clientLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}
