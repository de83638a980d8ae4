package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"envelopes/internal/backend"
	"envelopes/internal/cli"
	"envelopes/internal/log"
	"envelopes/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting envelopes-worker")

	ctx, stop := cli.SignalContext()
	defer stop()

	res, err := cli.OpenBackend(ctx, cfg, backend.RoleWorker, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	if res.Remote == nil && res.Ledger == nil {
		logger.Info("No remote store or ledger configured, messages will only be acknowledged")
	}
	syncWorker := worker.NewSyncWorker(res.Local, res.Remote, res.Ledger, cfg.SyncBatchSize, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return res.AMQP.ConsumeChallengeSync(gctx, syncWorker.HandleSyncMessage)
	})
	g.Go(func() error {
		return syncWorker.Run(gctx, cfg.SyncInterval)
	})

	logger.Info("Worker running",
		"queue", cfg.AMQPQueue,
		"sync_interval", cfg.SyncInterval,
		"batch_size", cfg.SyncBatchSize)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", log.FieldError, err)
		res.Cleanup()
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
