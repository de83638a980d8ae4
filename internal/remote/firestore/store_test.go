package firestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"envelopes/internal/core"
	"envelopes/internal/store"
)

func TestDocumentConversion(t *testing.T) {
	opened := time.Date(2024, 2, 3, 4, 5, 6, 0, time.FixedZone("MSK", 3*3600))
	c := &core.Challenge{
		TargetAmount: 30,
		Days:         2,
		Currency:     "BYN",
		Distribution: core.Random,
		StartDate:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Envelopes: []core.Envelope{
			{ID: 1, Amount: 10, IsOpen: true, OpenedAt: &opened, DayNumber: 1},
			{ID: 2, Amount: 20},
		},
		UnlockedAchievements: []string{core.AchievementFirstStep},
	}

	d := toDocument(c)
	if !d.LastUpdated.IsZero() {
		t.Error("LastUpdated must be left for the server to fill")
	}
	if d.Envelopes[0].OpenedAt.Location() != time.UTC {
		t.Error("timestamps should be stored in UTC")
	}
	d.LastUpdated = time.Now()

	got := fromDocument(d)
	if err := got.Validate(); err != nil {
		t.Fatalf("converted challenge invalid: %v", err)
	}
	if !got.Envelopes[0].OpenedAt.Equal(opened) || got.Envelopes[1].OpenedAt != nil {
		t.Errorf("envelopes = %+v", got.Envelopes)
	}
	if got.Distribution != core.Random || got.Currency != "BYN" || got.UnlockedAchievements[0] != core.AchievementFirstStep {
		t.Errorf("challenge = %+v", got)
	}

	// The document does not alias the challenge.
	d.UnlockedAchievements[0] = "x"
	if c.UnlockedAchievements[0] != core.AchievementFirstStep {
		t.Error("document shares achievements slice with challenge")
	}
}

// TestStoreEmulator exercises the real client when an emulator is available.
func TestStoreEmulator(t *testing.T) {
	if !EmulatorConfigured() {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, "envelopes-test", "savings_states_test")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	c := &core.Challenge{
		TargetAmount: 3, Days: 1, Currency: "RUB", StartDate: time.Now().UTC(),
		Envelopes:            []core.Envelope{{ID: 1, Amount: 3}},
		UnlockedAchievements: []string{},
	}
	if err := s.Save(ctx, "emu234", c); err != nil {
		t.Fatalf("Save() err = %v", err)
	}
	if _, err := s.Load(ctx, "emu234"); err != nil {
		t.Fatalf("Load() err = %v", err)
	}
	if err := s.Delete(ctx, "emu234"); err != nil {
		t.Fatalf("Delete() err = %v", err)
	}
	if _, err := s.Load(ctx, "emu234"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Load() after delete err = %v", err)
	}
}
