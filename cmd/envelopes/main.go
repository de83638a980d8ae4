package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"envelopes/internal/backend"
	"envelopes/internal/cache"
	"envelopes/internal/cli"
	"envelopes/internal/core"
	apphttp "envelopes/internal/http"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

const (
	shutdownTimeout  = 30 * time.Second
	cacheSize        = 512
	cacheTTL         = 10 * time.Minute
	cacheSweepPeriod = 5 * time.Minute
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	ctx, stop := cli.SignalContext()
	defer stop()

	res, err := cli.OpenBackend(ctx, cfg, backend.RoleServer, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	challengeCache := cache.NewLRUCache[*core.Challenge](cacheSize, cacheTTL)
	svc := cli.NewChallengeService(cfg, res, logger, services.WithCache(challengeCache))
	go cache.NewJanitor(logger, challengeCache).Run(ctx, cacheSweepPeriod)

	srv := apphttp.NewServer(":"+cfg.Port, svc,
		apphttp.WithReadiness(res.Pinger()),
		apphttp.WithServerLogger(logger),
		apphttp.WithDefaultCurrency(cfg.DefaultCurrency))

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting envelopes server",
			"port", cfg.Port,
			log.FieldBackend, cfg.DataBackend,
			"remote", res.Remote != nil,
			"amqp", res.AMQP != nil,
			"day_boundary_tz", cfg.DayBoundaryTZ)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			svc.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	if err := svc.Close(); err != nil {
		logger.Error("Failed to flush pending remote pushes", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
