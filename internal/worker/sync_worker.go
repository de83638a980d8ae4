package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"envelopes/internal/amqp"
	"envelopes/internal/core"
	"envelopes/internal/log"
	"envelopes/internal/metrics"
	"envelopes/internal/sheets"
	"envelopes/internal/store"
)

// SyncWorker copies challenges from the local store to the remote store
// and keeps the spreadsheet ledger in step.
type SyncWorker struct {
	local     store.ChallengeStore
	remote    store.ChallengeStore
	ledger    sheets.LedgerWriter
	batchSize int
	now       func() time.Time
	logger    *log.Logger

	mu      sync.Mutex
	applied map[string]int64
}

// NewSyncWorker creates a worker. remote and ledger may each be nil, in
// which case that target is skipped.
func NewSyncWorker(local store.ChallengeStore, remote store.ChallengeStore, ledger sheets.LedgerWriter, batchSize int, logger *log.Logger) *SyncWorker {
	if batchSize < 1 {
		batchSize = 1
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		local:     local,
		remote:    remote,
		ledger:    ledger,
		batchSize: batchSize,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentWorker),
		applied:   make(map[string]int64),
	}
}

// HandleSyncMessage processes one challenge sync message from AMQP.
// Messages older than the last applied version for the code are dropped.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ChallengeSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		log.FieldMessageID, msg.ID,
		log.FieldSyncCode, msg.Code,
		log.FieldVersion, msg.Version,
		"kind", msg.Kind)

	if msg.Kind == amqp.KindDelete {
		if err := w.deleteChallenge(ctx, msg.Code); err != nil {
			return err
		}
		w.forget(msg.Code)
		return nil
	}

	if w.stale(msg.Code, msg.Version) {
		metrics.RemoteSyncs.WithLabelValues("worker", metrics.ResultSkipped).Inc()
		w.logger.DebugContext(ctx, "Skipping stale sync message",
			log.FieldSyncCode, msg.Code, log.FieldVersion, msg.Version)
		return nil
	}

	c, err := w.local.Load(ctx, msg.Code)
	if errors.Is(err, store.ErrNotFound) {
		// Reset after publish; the delete message handles the remote side.
		w.logger.InfoContext(ctx, "Challenge no longer stored locally", log.FieldSyncCode, msg.Code)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load challenge %s: %w", msg.Code, err)
	}

	if err := w.syncChallenge(ctx, msg.Code, c); err != nil {
		return err
	}
	w.record(msg.Code, msg.Version)
	return nil
}

func (w *SyncWorker) stale(code string, version int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	last, ok := w.applied[code]
	return ok && version < last
}

func (w *SyncWorker) record(code string, version int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if version > w.applied[code] {
		w.applied[code] = version
	}
}

func (w *SyncWorker) forget(code string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.applied, code)
}

func (w *SyncWorker) syncChallenge(ctx context.Context, code string, c *core.Challenge) error {
	if w.remote != nil {
		err := w.remote.Save(ctx, code, c)
		metrics.RecordSync("firestore", err)
		if err != nil {
			return fmt.Errorf("save remote challenge %s: %w", code, err)
		}
	}

	if w.ledger != nil {
		ref, err := w.ledger.Upsert(ctx, sheets.Summarize(code, c, w.now()))
		metrics.RecordSync("sheets", err)
		if err != nil {
			return fmt.Errorf("upsert ledger row %s: %w", code, err)
		}
		w.logger.DebugContext(ctx, "Ledger row written", log.FieldSyncCode, code, "sheets_ref", ref)
	}

	w.logger.InfoContext(ctx, "Successfully synced challenge",
		log.FieldSyncCode, code,
		"opened", c.OpenedCount(),
		log.FieldDays, c.Days)
	return nil
}

func (w *SyncWorker) deleteChallenge(ctx context.Context, code string) error {
	if w.remote != nil {
		err := w.remote.Delete(ctx, code)
		metrics.RecordSync("firestore", err)
		if err != nil {
			return fmt.Errorf("delete remote challenge %s: %w", code, err)
		}
	}
	if w.ledger != nil {
		err := w.ledger.Remove(ctx, code)
		metrics.RecordSync("sheets", err)
		if err != nil {
			return fmt.Errorf("remove ledger row %s: %w", code, err)
		}
	}
	w.logger.InfoContext(ctx, "Successfully deleted challenge", log.FieldSyncCode, code)
	return nil
}

// ResyncResult summarizes one full resync pass.
type ResyncResult struct {
	Total  int
	Synced int
	Failed int
}

// ResyncAll pushes every locally stored challenge. It is the backup path
// for lost AMQP messages. Per-code failures are logged and counted but do
// not stop the pass.
func (w *SyncWorker) ResyncAll(ctx context.Context) (ResyncResult, error) {
	lister, ok := w.local.(store.CodeLister)
	if !ok {
		return ResyncResult{}, errors.New("local store cannot list codes")
	}
	codes, err := lister.Codes(ctx)
	if err != nil {
		return ResyncResult{}, fmt.Errorf("list codes: %w", err)
	}

	var (
		mu  sync.Mutex
		res = ResyncResult{Total: len(codes)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)
	for _, code := range codes {
		g.Go(func() error {
			err := w.resyncOne(gctx, code)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed++
				w.logger.ErrorContext(gctx, "Failed to resync challenge", log.FieldSyncCode, code, log.FieldError, err)
				return nil
			}
			res.Synced++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	w.logger.InfoContext(ctx, "Resync completed",
		"total", res.Total,
		"synced", res.Synced,
		"errors", res.Failed)
	return res, nil
}

func (w *SyncWorker) resyncOne(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c, err := w.local.Load(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load challenge %s: %w", code, err)
	}
	return w.syncChallenge(ctx, code, c)
}

// Run performs a startup resync and then one every interval until ctx is
// done.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.ResyncAll(ctx); err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Startup resync failed", log.FieldError, err)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ResyncAll(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Periodic resync failed", log.FieldError, err)
			}
		}
	}
}
