package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"envelopes/internal/amqp"
	"envelopes/internal/core"
	"envelopes/internal/sheets"
	ledgermem "envelopes/internal/sheets/memory"
	"envelopes/internal/store"
	"envelopes/internal/store/memory"
)

type failingStore struct {
	store.ChallengeStore
	failCode string
}

func (f *failingStore) Save(ctx context.Context, code string, c *core.Challenge) error {
	if code == f.failCode {
		return errors.New("remote unavailable")
	}
	return f.ChallengeStore.Save(ctx, code, c)
}

func saveChallenge(t *testing.T, st store.ChallengeStore, code string, opened int) {
	t.Helper()
	c := &core.Challenge{
		TargetAmount:         30,
		Days:                 3,
		Currency:             "RUB",
		Distribution:         core.Equal,
		StartDate:            time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Envelopes:            []core.Envelope{{ID: 1, Amount: 10}, {ID: 2, Amount: 10}, {ID: 3, Amount: 10}},
		UnlockedAchievements: []string{},
	}
	for id := 1; id <= opened; id++ {
		c.Open(id, time.Date(2024, 1, id, 12, 0, 0, 0, time.UTC))
	}
	if err := st.Save(context.Background(), code, c); err != nil {
		t.Fatal(err)
	}
}

func ledgerRow(t *testing.T, l sheets.LedgerReader, code string) (sheets.Summary, bool) {
	t.Helper()
	rows, err := l.Rows(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range rows {
		if r.Code == code {
			return r, true
		}
	}
	return sheets.Summary{}, false
}

func TestSyncWorker_HandleUpsert(t *testing.T) {
	ctx := context.Background()
	local, remote, ledger := memory.New(), memory.New(), ledgermem.New()
	saveChallenge(t, local, "abc234", 2)
	w := NewSyncWorker(local, remote, ledger, 4, nil)

	msg := amqp.NewChallengeSyncMessage("abc234", 3, amqp.KindUpsert)
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatalf("HandleSyncMessage() err = %v", err)
	}

	got, err := remote.Load(ctx, "abc234")
	if err != nil || got.OpenedCount() != 2 {
		t.Fatalf("remote = %+v, %v", got, err)
	}
	row, ok := ledgerRow(t, ledger, "abc234")
	if !ok || row.Saved != 20 || row.DaysCompleted != 2 {
		t.Errorf("ledger row = %+v, %v", row, ok)
	}

	// A redelivery of the same version is applied again; the ledger stays one row.
	if err := w.HandleSyncMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	rows, _ := ledger.Rows(ctx)
	if len(rows) != 1 {
		t.Errorf("ledger rows = %d, want 1", len(rows))
	}
}

func TestSyncWorker_SkipsStaleVersions(t *testing.T) {
	ctx := context.Background()
	local, remote := memory.New(), memory.New()
	saveChallenge(t, local, "abc234", 1)
	w := NewSyncWorker(local, remote, nil, 1, nil)

	if err := w.HandleSyncMessage(ctx, amqp.NewChallengeSyncMessage("abc234", 5, amqp.KindUpsert)); err != nil {
		t.Fatal(err)
	}
	before := remote.Saves()
	if err := w.HandleSyncMessage(ctx, amqp.NewChallengeSyncMessage("abc234", 4, amqp.KindUpsert)); err != nil {
		t.Fatal(err)
	}
	if remote.Saves() != before {
		t.Errorf("stale message was applied")
	}
	if err := w.HandleSyncMessage(ctx, amqp.NewChallengeSyncMessage("abc234", 6, amqp.KindUpsert)); err != nil {
		t.Fatal(err)
	}
	if remote.Saves() != before+1 {
		t.Errorf("newer message was not applied")
	}
}

func TestSyncWorker_HandleDelete(t *testing.T) {
	ctx := context.Background()
	local, remote, ledger := memory.New(), memory.New(), ledgermem.New()
	saveChallenge(t, local, "abc234", 1)
	w := NewSyncWorker(local, remote, ledger, 1, nil)

	if err := w.HandleSyncMessage(ctx, amqp.NewChallengeSyncMessage("abc234", 9, amqp.KindUpsert)); err != nil {
		t.Fatal(err)
	}
	local.Delete(ctx, "abc234")
	if err := w.HandleSyncMessage(ctx, amqp.NewChallengeSyncMessage("abc234", 10, amqp.KindDelete)); err != nil {
		t.Fatalf("delete err = %v", err)
	}

	if _, err := remote.Load(ctx, "abc234"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("remote Load() err = %v, want ErrNotFound", err)
	}
	if _, ok := ledgerRow(t, ledger, "abc234"); ok {
		t.Error("ledger row not removed")
	}

	// The code can be reused with a fresh version sequence.
	saveChallenge(t, local, "abc234", 0)
	if err := w.HandleSyncMessage(ctx, amqp.NewChallengeSyncMessage("abc234", 1, amqp.KindUpsert)); err != nil {
		t.Fatal(err)
	}
	if _, err := remote.Load(ctx, "abc234"); err != nil {
		t.Errorf("reused code not synced: %v", err)
	}
}

func TestSyncWorker_UpsertForMissingLocal(t *testing.T) {
	remote := memory.New()
	w := NewSyncWorker(memory.New(), remote, nil, 1, nil)
	if err := w.HandleSyncMessage(context.Background(), amqp.NewChallengeSyncMessage("abc234", 1, amqp.KindUpsert)); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if remote.Saves() != 0 {
		t.Error("nothing should be pushed")
	}
}

func TestSyncWorker_RemoteFailureIsReturned(t *testing.T) {
	local := memory.New()
	saveChallenge(t, local, "abc234", 1)
	w := NewSyncWorker(local, &failingStore{ChallengeStore: memory.New(), failCode: "abc234"}, nil, 1, nil)

	err := w.HandleSyncMessage(context.Background(), amqp.NewChallengeSyncMessage("abc234", 1, amqp.KindUpsert))
	if err == nil {
		t.Fatal("expected error so the message is requeued")
	}
}

func TestSyncWorker_ResyncAll(t *testing.T) {
	ctx := context.Background()
	local, ledger := memory.New(), ledgermem.New()
	remote := &failingStore{ChallengeStore: memory.New(), failCode: "bad222"}
	for _, code := range []string{"abc234", "bad222", "xyz789"} {
		saveChallenge(t, local, code, 1)
	}
	w := NewSyncWorker(local, remote, ledger, 2, nil)

	res, err := w.ResyncAll(ctx)
	if err != nil {
		t.Fatalf("ResyncAll() err = %v", err)
	}
	if res.Total != 3 || res.Synced != 2 || res.Failed != 1 {
		t.Errorf("ResyncAll() = %+v", res)
	}
	rows, _ := ledger.Rows(ctx)
	if len(rows) != 2 {
		t.Errorf("ledger rows = %d, want 2", len(rows))
	}
}

func TestSyncWorker_ResyncRequiresLister(t *testing.T) {
	type plain struct{ store.ChallengeStore }
	w := NewSyncWorker(plain{memory.New()}, nil, nil, 1, nil)
	if _, err := w.ResyncAll(context.Background()); err == nil {
		t.Error("expected error for a store without Codes")
	}
}

func TestSyncWorker_RunStopsOnCancel(t *testing.T) {
	local, remote := memory.New(), memory.New()
	saveChallenge(t, local, "abc234", 1)
	w := NewSyncWorker(local, remote, nil, 1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, time.Hour) }()

	deadline := time.After(2 * time.Second)
	for remote.Saves() == 0 {
		select {
		case <-deadline:
			t.Fatal("startup resync did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() err = %v, want context.Canceled", err)
	}
}
