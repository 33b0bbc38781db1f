package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"limit/internal/auth"
	"limit/internal/cache"
	"limit/internal/config"
	"limit/internal/metrics"
	"limit/internal/ratelimit"
	"limit/internal/services"
	"limit/internal/store"
	"limit/internal/taskqueue"
	"limit/internal/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := config.Load(logger)

	st, err := store.Open(cfg.DatabasePath, cfg.DatabasePool)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	m := metrics.Default()
	queue := taskqueue.New(m, logger)
	defer queue.Stop()

	svc := &services.Services{
		Store:               st,
		KV:                  cache.NewKV(),
		Hub:                 cache.NewHub(),
		Queue:               queue,
		Tokens:              auth.New(cfg.JWTSecret),
		Limiter:             ratelimit.NewPerMinute(cfg.AuthRatePerMin),
		Metrics:             m,
		Logger:              logger,
		ServerURL:           cfg.ServerURL,
		PerUserMessageLimit: cfg.PerUserLimit,
		ServerSecret:        cfg.ServerSecret,
	}

	router := transport.NewRouter(svc)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
