package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"envelopes/internal/amqp"
	"envelopes/internal/core"
	"envelopes/internal/store"
	"envelopes/internal/store/memory"
)

type published struct {
	code    string
	version int64
	kind    amqp.SyncKind
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) PublishChallengeSync(_ context.Context, code string, version int64, kind amqp.SyncKind) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{code, version, kind})
	return p.err
}

func (p *fakePublisher) sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.msgs)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestService(t *testing.T, local store.ChallengeStore, opts ...Option) *ChallengeService {
	t.Helper()
	base := []Option{
		WithGenerator(core.NewGenerator(rand.NewPCG(7, 11))),
		WithClock(newTestClock().now),
	}
	svc := NewChallengeService(local, append(base, opts...)...)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func seedChallenge(t *testing.T, st store.ChallengeStore, code string, amounts ...int64) {
	t.Helper()
	c := &core.Challenge{
		Days:                 len(amounts),
		Currency:             "RUB",
		Distribution:         core.Equal,
		StartDate:            time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		UnlockedAchievements: []string{},
	}
	for i, a := range amounts {
		c.Envelopes = append(c.Envelopes, core.Envelope{ID: i + 1, Amount: a})
		c.TargetAmount += a
	}
	if err := st.Save(context.Background(), code, c); err != nil {
		t.Fatalf("seed %s: %v", code, err)
	}
}

func TestChallengeService_Start(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	pub := &fakePublisher{}
	svc := newTestService(t, local, WithPublisher(pub))

	v, err := svc.Start(ctx, StartParams{Target: 1000, Days: 10, Currency: "usd", Distribution: core.Random})
	if err != nil {
		t.Fatalf("Start() err = %v", err)
	}
	if !core.ValidSyncCode(v.Code) {
		t.Errorf("Start() code = %q", v.Code)
	}
	if v.Challenge.Currency != "USD" || len(v.Challenge.Envelopes) != 10 {
		t.Errorf("Start() challenge = %+v", v.Challenge)
	}
	if v.Progress.Total != 1000 || v.Progress.Saved != 0 {
		t.Errorf("Start() progress = %+v", v.Progress)
	}

	stored, err := local.Load(ctx, v.Code)
	if err != nil {
		t.Fatalf("local Load() err = %v", err)
	}
	if err := stored.Validate(); err != nil {
		t.Errorf("stored challenge invalid: %v", err)
	}

	msgs := pub.sent()
	if len(msgs) != 1 || msgs[0].code != v.Code || msgs[0].kind != amqp.KindUpsert {
		t.Errorf("published = %+v", msgs)
	}
}

func TestChallengeService_StartValidation(t *testing.T) {
	svc := newTestService(t, memory.New())
	tests := []struct {
		name string
		p    StartParams
		want error
	}{
		{name: "zero days", p: StartParams{Target: 10, Days: 0, Currency: "RUB", Distribution: core.Equal}, want: core.ErrInvalidDays},
		{name: "too many days", p: StartParams{Target: 10, Days: core.MaxDays + 1, Currency: "RUB", Distribution: core.Equal}, want: core.ErrInvalidDays},
		{name: "zero target", p: StartParams{Target: 0, Days: 5, Currency: "RUB", Distribution: core.Equal}, want: core.ErrInvalidTarget},
		{name: "bad currency", p: StartParams{Target: 10, Days: 5, Currency: "rubles", Distribution: core.Equal}, want: core.ErrInvalidCurrency},
		{name: "bad distribution", p: StartParams{Target: 10, Days: 5, Currency: "RUB", Distribution: "wild"}, want: core.ErrUnknownDistribution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Start(context.Background(), tt.p); !errors.Is(err, tt.want) {
				t.Errorf("Start() err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChallengeService_StartClampsTarget(t *testing.T) {
	svc := newTestService(t, memory.New())
	v, err := svc.Start(context.Background(), StartParams{Target: 3, Days: 7, Currency: "EUR", Distribution: core.Progression})
	if err != nil {
		t.Fatal(err)
	}
	if v.Challenge.TargetAmount != 7 {
		t.Errorf("TargetAmount = %d, want 7", v.Challenge.TargetAmount)
	}
}

func TestChallengeService_StartRetriesCollidingCode(t *testing.T) {
	local := memory.New()
	seedChallenge(t, local, "aaaaaa", 1)

	entropy := append(bytes.Repeat([]byte{0}, 6), bytes.Repeat([]byte{1}, 6)...)
	svc := newTestService(t, local, WithRandom(bytes.NewReader(entropy)))

	v, err := svc.Start(context.Background(), StartParams{Target: 10, Days: 2, Currency: "RUB", Distribution: core.Equal})
	if err != nil {
		t.Fatalf("Start() err = %v", err)
	}
	if v.Code != "bbbbbb" {
		t.Errorf("code = %q, want bbbbbb", v.Code)
	}
}

func TestChallengeService_OpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	seedChallenge(t, local, "abc234", 10, 20, 30, 40)
	pub := &fakePublisher{}
	svc := newTestService(t, local, WithPublisher(pub))
	savesBefore := local.Saves()

	first, err := svc.Open(ctx, "ABC234", 2)
	if err != nil {
		t.Fatalf("Open() err = %v", err)
	}
	if !first.Opened || first.Envelope.DayNumber != 1 || first.Envelope.OpenedAt == nil {
		t.Errorf("first open = %+v", first)
	}
	if !slices.Equal(first.NewAchievements, []string{core.AchievementFirstStep}) {
		t.Errorf("NewAchievements = %v", first.NewAchievements)
	}

	again, err := svc.Open(ctx, "abc234", 2)
	if err != nil {
		t.Fatalf("second Open() err = %v", err)
	}
	if again.Opened || len(again.NewAchievements) != 0 {
		t.Errorf("second open = %+v", again)
	}
	if !again.Envelope.OpenedAt.Equal(*first.Envelope.OpenedAt) {
		t.Error("second open changed openedAt")
	}
	if got := local.Saves() - savesBefore; got != 1 {
		t.Errorf("saves = %d, want 1", got)
	}
	if n := len(pub.sent()); n != 1 {
		t.Errorf("published %d messages, want 1", n)
	}
}

func TestChallengeService_OpenErrors(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	seedChallenge(t, local, "abc234", 5, 5)
	svc := newTestService(t, local)

	tests := []struct {
		name string
		code string
		id   int
		want error
	}{
		{name: "malformed code", code: "abc", id: 1, want: ErrInvalidSyncCode},
		{name: "ambiguous glyph", code: "abc10o", id: 1, want: ErrInvalidSyncCode},
		{name: "unknown code", code: "zzzzzz", id: 1, want: store.ErrNotFound},
		{name: "unknown envelope", code: "abc234", id: 3, want: core.ErrEnvelopeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Open(ctx, tt.code, tt.id); !errors.Is(err, tt.want) {
				t.Errorf("Open() err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChallengeService_AchievementSequence(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	seedChallenge(t, local, "abc234", 10, 20, 30, 40)
	clk := newTestClock()
	svc := newTestService(t, local, WithClock(clk.now))

	want := [][]string{
		{core.AchievementFirstStep},
		{},
		{core.AchievementHalfWay, core.AchievementStreak3},
		{core.AchievementGoalReached},
	}
	for i, id := range []int{1, 2, 3, 4} {
		res, err := svc.Open(ctx, "abc234", id)
		if err != nil {
			t.Fatalf("Open(%d) err = %v", id, err)
		}
		slices.Sort(res.NewAchievements)
		exp := slices.Clone(want[i])
		slices.Sort(exp)
		if !slices.Equal(res.NewAchievements, exp) {
			t.Errorf("Open(%d) new = %v, want %v", id, res.NewAchievements, exp)
		}
		clk.advance(24 * time.Hour)
	}

	v, err := svc.Get(ctx, "abc234")
	if err != nil {
		t.Fatal(err)
	}
	if v.Progress.Percentage != 100 || v.Progress.DaysCompleted != 4 {
		t.Errorf("progress = %+v", v.Progress)
	}
	if len(v.Challenge.UnlockedAchievements) != 4 {
		t.Errorf("unlocked = %v", v.Challenge.UnlockedAchievements)
	}
}

func TestChallengeService_ConcurrentOpens(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	amounts := make([]int64, 20)
	for i := range amounts {
		amounts[i] = 5
	}
	seedChallenge(t, local, "abc234", amounts...)
	svc := newTestService(t, local)

	var wg sync.WaitGroup
	errs := make(chan error, len(amounts))
	for id := 1; id <= len(amounts); id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := svc.Open(ctx, "abc234", id); err != nil {
				errs <- err
			}
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Open() err = %v", err)
	}

	c, err := local.Load(ctx, "abc234")
	if err != nil {
		t.Fatal(err)
	}
	seen := make(map[int]bool)
	for _, e := range c.Envelopes {
		if !e.IsOpen {
			t.Errorf("envelope %d not open", e.ID)
		}
		seen[e.DayNumber] = true
	}
	for n := 1; n <= len(amounts); n++ {
		if !seen[n] {
			t.Errorf("day number %d missing", n)
		}
	}
	if svc.locks.size() != 0 {
		t.Errorf("locks leaked: %d", svc.locks.size())
	}
}

func TestChallengeService_Reset(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	seedChallenge(t, local, "abc234", 5, 5)
	pub := &fakePublisher{}
	svc := newTestService(t, local, WithPublisher(pub))

	if _, err := svc.Get(ctx, "abc234"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Reset(ctx, "abc234"); err != nil {
		t.Fatalf("Reset() err = %v", err)
	}
	if _, err := svc.Get(ctx, "abc234"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() after reset err = %v, want ErrNotFound", err)
	}
	if err := svc.Reset(ctx, "abc234"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Reset() err = %v, want ErrNotFound", err)
	}
	msgs := pub.sent()
	if len(msgs) != 1 || msgs[0].kind != amqp.KindDelete {
		t.Errorf("published = %+v", msgs)
	}
}

func TestChallengeService_PublishFailureDoesNotFailOpen(t *testing.T) {
	local := memory.New()
	seedChallenge(t, local, "abc234", 5, 5)
	svc := newTestService(t, local, WithPublisher(&fakePublisher{err: errors.New("broker down")}))

	res, err := svc.Open(context.Background(), "abc234", 1)
	if err != nil || !res.Opened {
		t.Fatalf("Open() = %+v, %v", res, err)
	}
}

func TestChallengeService_DebouncedRemotePush(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	remote := memory.New()
	seedChallenge(t, local, "abc234", 1, 2, 3)
	clk := newTestClock()
	svc := NewChallengeService(local, WithRemote(remote), WithDebounce(time.Hour), WithClock(clk.now))

	for id := 1; id <= 3; id++ {
		if _, err := svc.Open(ctx, "abc234", id); err != nil {
			t.Fatal(err)
		}
	}
	if remote.Saves() != 0 {
		t.Fatalf("remote saved before debounce elapsed: %d", remote.Saves())
	}

	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	if remote.Saves() != 1 {
		t.Errorf("remote saves = %d, want 1", remote.Saves())
	}
	got, err := remote.Load(ctx, "abc234")
	if err != nil {
		t.Fatal(err)
	}
	if got.OpenedCount() != 3 {
		t.Errorf("remote opened = %d, want 3 (last write wins)", got.OpenedCount())
	}
}

func TestChallengeService_ImmediatePushAndRemoteReset(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	remote := memory.New()
	svc := newTestService(t, local, WithRemote(remote), WithDebounce(0))

	v, err := svc.Start(ctx, StartParams{Target: 30, Days: 3, Currency: "KZT", Distribution: core.Equal})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := remote.Load(ctx, v.Code); err != nil {
		t.Fatalf("remote Load() err = %v", err)
	}

	if err := svc.Reset(ctx, v.Code); err != nil {
		t.Fatal(err)
	}
	if _, err := remote.Load(ctx, v.Code); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("remote Load() after reset err = %v", err)
	}
}

func TestChallengeService_Join(t *testing.T) {
	ctx := context.Background()

	t.Run("without remote", func(t *testing.T) {
		svc := newTestService(t, memory.New())
		if _, err := svc.Join(ctx, "abc234"); !errors.Is(err, ErrNoRemote) {
			t.Errorf("Join() err = %v, want ErrNoRemote", err)
		}
	})

	t.Run("missing remote copy", func(t *testing.T) {
		svc := newTestService(t, memory.New(), WithRemote(memory.New()))
		if _, err := svc.Join(ctx, "abc234"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Join() err = %v, want ErrNotFound", err)
		}
	})

	t.Run("replaces local copy", func(t *testing.T) {
		local, remote := memory.New(), memory.New()
		seedChallenge(t, local, "abc234", 1, 1)
		seedChallenge(t, remote, "abc234", 10, 20, 30)
		svc := newTestService(t, local, WithRemote(remote))

		if _, err := svc.Get(ctx, "abc234"); err != nil { // warm the cache
			t.Fatal(err)
		}
		v, err := svc.Join(ctx, " ABC234 ")
		if err != nil {
			t.Fatalf("Join() err = %v", err)
		}
		if v.Challenge.Days != 3 || v.Progress.Total != 60 {
			t.Errorf("Join() view = %+v", v)
		}
		got, err := svc.Get(ctx, "abc234")
		if err != nil || got.Challenge.Days != 3 {
			t.Errorf("Get() after join = %+v, %v", got.Challenge, err)
		}
	})
}

func TestChallengeService_Views(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	seedChallenge(t, local, "abc234", 40, 10, 30, 20)
	clk := newTestClock()
	svc := newTestService(t, local, WithClock(clk.now))

	for _, id := range []int{3, 1} {
		if _, err := svc.Open(ctx, "abc234", id); err != nil {
			t.Fatal(err)
		}
		clk.advance(time.Hour)
	}

	closed, err := svc.Envelopes(ctx, "abc234", core.FilterClosed, core.SortByAmount)
	if err != nil {
		t.Fatal(err)
	}
	var ids []int
	for _, e := range closed {
		ids = append(ids, e.ID)
	}
	if !slices.Equal(ids, []int{2, 4}) {
		t.Errorf("closed by amount = %v, want [2 4]", ids)
	}

	tl, err := svc.Timeline(ctx, "abc234")
	if err != nil {
		t.Fatal(err)
	}
	if len(tl) != 2 || tl[0].EnvelopeID != 3 || tl[1].Saved != 70 {
		t.Errorf("timeline = %+v", tl)
	}

	p, err := svc.Progress(ctx, "abc234")
	if err != nil {
		t.Fatal(err)
	}
	if p.Saved != 70 || p.Remaining != 30 || p.DaysRemaining != 2 {
		t.Errorf("progress = %+v", p)
	}
}

func TestChallengeService_Achievements(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	seedChallenge(t, local, "abc234", 600, 400)
	svc := newTestService(t, local)
	if _, err := svc.Open(ctx, "abc234", 1); err != nil {
		t.Fatal(err)
	}

	list, err := svc.Achievements(ctx, "abc234", "ru-RU")
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]bool{}
	for _, a := range list {
		byID[a.ID] = a.Unlocked
		if a.ID == core.AchievementFirstStep && a.Title != "Первый шаг" {
			t.Errorf("title = %q", a.Title)
		}
	}
	if !byID[core.AchievementFirstStep] || !byID[core.AchievementHalfWay] || byID[core.AchievementSaved1000] {
		t.Errorf("unlocked = %v", byID)
	}
}

func TestChallengeService_Preview(t *testing.T) {
	svc := newTestService(t, memory.New())

	p, err := svc.Preview(100, 7, core.Random)
	if err != nil {
		t.Fatal(err)
	}
	var sum int64
	for _, e := range p.Envelopes {
		sum += e.Amount
	}
	if len(p.Envelopes) != 7 || sum != 100 || p.Stats.Total != 100 {
		t.Errorf("preview = %+v", p)
	}

	for _, tc := range []struct {
		target int64
		days   int
		d      core.Distribution
		want   error
	}{
		{100, 0, core.Equal, core.ErrInvalidDays},
		{0, 3, core.Equal, core.ErrInvalidTarget},
		{100, 3, "steep", core.ErrUnknownDistribution},
	} {
		t.Run(fmt.Sprintf("%d_%d_%s", tc.target, tc.days, tc.d), func(t *testing.T) {
			if _, err := svc.Preview(tc.target, tc.days, tc.d); !errors.Is(err, tc.want) {
				t.Errorf("Preview() err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestChallengeService_SetCurrency(t *testing.T) {
	ctx := context.Background()
	local := memory.New()
	seedChallenge(t, local, "abc234", 600, 400)
	pub := &fakePublisher{}
	svc := newTestService(t, local, WithPublisher(pub))

	v, err := svc.SetCurrency(ctx, "abc234", " usd ")
	if err != nil {
		t.Fatalf("SetCurrency() err = %v", err)
	}
	if v.Challenge.Currency != "USD" || v.Progress.Total != 1000 {
		t.Errorf("SetCurrency() view = %+v", v)
	}
	stored, _ := local.Load(ctx, "abc234")
	if stored.Currency != "USD" || stored.TargetAmount != 1000 {
		t.Errorf("stored = %+v", stored)
	}
	if got, _ := svc.Get(ctx, "abc234"); got.Challenge.Currency != "USD" {
		t.Errorf("cached currency = %s", got.Challenge.Currency)
	}

	if _, err := svc.SetCurrency(ctx, "abc234", "USD"); err != nil {
		t.Fatalf("repeated SetCurrency() err = %v", err)
	}
	if msgs := pub.sent(); len(msgs) != 1 || msgs[0].kind != amqp.KindUpsert {
		t.Errorf("published = %+v, want one upsert", msgs)
	}

	tests := []struct {
		name     string
		code     string
		currency string
		want     error
	}{
		{"unknown currency", "abc234", "ZZZ", core.ErrInvalidCurrency},
		{"missing challenge", "zzzzzz", "EUR", store.ErrNotFound},
		{"bad code", "0o0o0o", "EUR", ErrInvalidSyncCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SetCurrency(ctx, tt.code, tt.currency); !errors.Is(err, tt.want) {
				t.Errorf("SetCurrency() err = %v, want %v", err, tt.want)
			}
		})
	}
	if stored, _ := local.Load(ctx, "abc234"); stored.Currency != "USD" {
		t.Errorf("failed SetCurrency changed stored currency to %s", stored.Currency)
	}
}

func TestChallengeService_Catalog(t *testing.T) {
	svc := newTestService(t, memory.New())

	list := svc.Catalog("en", "USD")
	if len(list) != len(core.DefaultAchievements()) {
		t.Fatalf("Catalog() len = %d, want %d", len(list), len(core.DefaultAchievements()))
	}
	for _, a := range list {
		if a.Unlocked {
			t.Errorf("%s unlocked in catalog", a.ID)
		}
		if a.ID == core.AchievementSaved1000 && a.Description != "First $1,000 accumulated" {
			t.Errorf("saved_1000 description = %q", a.Description)
		}
	}
	if got := svc.Catalog("ru", "RUB")[0].Title; got != "Первый шаг" {
		t.Errorf("ru first title = %q", got)
	}
}
