package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"envelopes/internal/amqp"
	"envelopes/internal/cache"
	"envelopes/internal/core"
	"envelopes/internal/i18n"
	"envelopes/internal/log"
	"envelopes/internal/metrics"
	"envelopes/internal/store"
)

var (
	// ErrInvalidSyncCode is returned for malformed challenge codes.
	ErrInvalidSyncCode = core.ErrInvalidSyncCode
	// ErrNoRemote is returned by Join when no remote store is configured.
	ErrNoRemote = errors.New("remote store not configured")
	// ErrCodeExhausted is returned when no free sync code could be drawn.
	ErrCodeExhausted = errors.New("could not allocate a free sync code")
)

const maxCodeAttempts = 5

// Publisher announces saved challenges to the sync worker.
type Publisher interface {
	PublishChallengeSync(ctx context.Context, code string, version int64, kind amqp.SyncKind) error
}

// Versioner is implemented by local stores that track save counts.
type Versioner interface {
	Version(ctx context.Context, code string) (int64, error)
}

// StartParams are the user inputs for a new challenge.
type StartParams struct {
	Target       int64
	Days         int
	Currency     string
	Distribution core.Distribution
}

// ChallengeView is a challenge together with its derived progress.
type ChallengeView struct {
	Code      string          `json:"code"`
	Challenge *core.Challenge `json:"challenge"`
	Progress  core.Progress   `json:"progress"`
}

// Preview is a generated envelope set that was not persisted.
type Preview struct {
	Envelopes []core.Envelope      `json:"envelopes"`
	Stats     core.GenerationStats `json:"stats"`
}

// ChallengeService orchestrates challenges across the local store, the
// optional remote store and the optional AMQP publisher. The local store
// is authoritative: remote pushes and publishes never fail a request.
type ChallengeService struct {
	local     store.ChallengeStore
	remote    store.ChallengeStore
	publisher Publisher
	evaluator *core.Evaluator
	cache     cache.Cache[*core.Challenge]
	debounce  time.Duration
	debouncer *Debouncer
	random    io.Reader
	now       func() time.Time
	logger    *log.Logger

	genMu sync.Mutex
	gen   *core.Generator

	locks *keyedMutex
}

// Option configures a ChallengeService.
type Option func(*ChallengeService)

// WithRemote sets the remote store used by Join and, when no publisher is
// configured, as the target of debounced pushes.
func WithRemote(remote store.ChallengeStore) Option {
	return func(s *ChallengeService) { s.remote = remote }
}

// WithPublisher hands remote propagation to the sync worker.
func WithPublisher(p Publisher) Option {
	return func(s *ChallengeService) { s.publisher = p }
}

// WithDebounce sets the quiet period before a remote push.
func WithDebounce(d time.Duration) Option {
	return func(s *ChallengeService) { s.debounce = d }
}

func WithEvaluator(ev *core.Evaluator) Option {
	return func(s *ChallengeService) { s.evaluator = ev }
}

func WithGenerator(g *core.Generator) Option {
	return func(s *ChallengeService) { s.gen = g }
}

func WithCache(c cache.Cache[*core.Challenge]) Option {
	return func(s *ChallengeService) { s.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *ChallengeService) { s.now = now }
}

// WithRandom sets the entropy source for sync codes.
func WithRandom(r io.Reader) Option {
	return func(s *ChallengeService) { s.random = r }
}

func WithLogger(l *log.Logger) Option {
	return func(s *ChallengeService) { s.logger = l }
}

func NewChallengeService(local store.ChallengeStore, opts ...Option) *ChallengeService {
	s := &ChallengeService{
		local:    local,
		debounce: 2 * time.Second,
		random:   rand.Reader,
		now:      time.Now,
		logger:   log.Discard(),
		locks:    newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.evaluator == nil {
		s.evaluator = core.NewEvaluator(nil, nil)
	}
	if s.gen == nil {
		s.gen = core.NewGenerator(nil)
	}
	if s.cache == nil {
		s.cache = cache.NewLRUCache[*core.Challenge](256, 10*time.Minute)
	}
	s.logger = s.logger.WithComponent(log.ComponentChallenge)
	if s.remote != nil && s.publisher == nil {
		s.debouncer = NewDebouncer(s.debounce, s.pushRemote, func(code string, err error) {
			s.logger.Error("Remote push failed", log.FieldSyncCode, code, log.FieldError, err)
		})
	}
	return s
}

// Evaluator returns the achievement evaluator in use.
func (s *ChallengeService) Evaluator() *core.Evaluator {
	return s.evaluator
}

// Start generates a new challenge under a fresh sync code and saves it.
func (s *ChallengeService) Start(ctx context.Context, p StartParams) (ChallengeView, error) {
	s.genMu.Lock()
	c, stats, err := core.NewChallengeWithStats(core.NewChallengeParams{
		Target:       p.Target,
		Days:         p.Days,
		Currency:     p.Currency,
		Distribution: p.Distribution,
		Now:          s.now(),
	}, s.gen)
	s.genMu.Unlock()
	if err != nil {
		return ChallengeView{}, fmt.Errorf("new challenge: %w", err)
	}

	code, err := s.allocateCode(ctx)
	if err != nil {
		return ChallengeView{}, err
	}

	unlock := s.locks.Lock(code)
	defer unlock()

	if err := s.local.Save(ctx, code, c); err != nil {
		return ChallengeView{}, fmt.Errorf("save challenge %s: %w", code, err)
	}
	s.cache.Set(code, c.Clone())

	metrics.ChallengesCreated.WithLabelValues(string(c.Distribution)).Inc()
	metrics.GeneratorFineTuneSteps.Observe(float64(stats.FineTuneSteps))
	if stats.UsedFallback {
		metrics.GeneratorFallbacks.Inc()
	}

	s.logger.InfoContext(ctx, "Challenge started",
		log.FieldSyncCode, code,
		log.FieldAmount, c.TargetAmount,
		log.FieldDays, c.Days,
		log.FieldCurrency, c.Currency,
		log.FieldMode, c.Distribution,
		"clamped", stats.Clamped,
		"fallback", stats.UsedFallback)

	s.propagate(ctx, code, amqp.KindUpsert)
	return ChallengeView{Code: code, Challenge: c, Progress: core.ComputeProgress(c.Envelopes)}, nil
}

func (s *ChallengeService) allocateCode(ctx context.Context) (string, error) {
	for range maxCodeAttempts {
		code, err := core.NewSyncCode(s.random)
		if err != nil {
			return "", fmt.Errorf("generate sync code: %w", err)
		}
		_, err = s.local.Load(ctx, code)
		if errors.Is(err, store.ErrNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("check sync code %s: %w", code, err)
		}
		s.logger.WarnContext(ctx, "Sync code collision, drawing again", log.FieldSyncCode, code)
	}
	return "", ErrCodeExhausted
}

// Get returns a copy of the challenge stored under code.
func (s *ChallengeService) Get(ctx context.Context, code string) (ChallengeView, error) {
	code, err := core.NormalizeSyncCode(code)
	if err != nil {
		return ChallengeView{}, err
	}
	c, err := s.load(ctx, code)
	if err != nil {
		return ChallengeView{}, err
	}
	return ChallengeView{Code: code, Challenge: c, Progress: core.ComputeProgress(c.Envelopes)}, nil
}

// load reads through the cache and always returns a private copy.
func (s *ChallengeService) load(ctx context.Context, code string) (*core.Challenge, error) {
	if c, ok := s.cache.Get(code); ok {
		metrics.CacheLookups.WithLabelValues("hit").Inc()
		return c.Clone(), nil
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	c, err := s.local.Load(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("load challenge %s: %w", code, err)
	}
	s.cache.Set(code, c.Clone())
	return c, nil
}

// Open opens envelope id of the challenge under code. Repeated opens are
// no-ops that neither save nor evaluate achievements.
func (s *ChallengeService) Open(ctx context.Context, code string, id int) (core.OpenResult, error) {
	code, err := core.NormalizeSyncCode(code)
	if err != nil {
		return core.OpenResult{}, err
	}
	unlock := s.locks.Lock(code)
	defer unlock()

	c, err := s.load(ctx, code)
	if err != nil {
		return core.OpenResult{}, err
	}
	res, err := core.OpenEnvelope(c, id, s.now(), s.evaluator)
	if err != nil {
		return core.OpenResult{}, fmt.Errorf("open envelope %s/%d: %w", code, id, err)
	}
	if !res.Opened {
		s.logger.DebugContext(ctx, "Envelope already open", log.FieldSyncCode, code, log.FieldEnvelopeID, id)
		return res, nil
	}

	if err := s.local.Save(ctx, code, c); err != nil {
		s.cache.Delete(code)
		return core.OpenResult{}, fmt.Errorf("save challenge %s: %w", code, err)
	}
	s.cache.Set(code, c.Clone())

	metrics.EnvelopesOpened.Inc()
	for _, a := range res.NewAchievements {
		metrics.AchievementsUnlocked.WithLabelValues(a).Inc()
	}
	s.logger.InfoContext(ctx, "Envelope opened",
		log.FieldSyncCode, code,
		log.FieldEnvelopeID, id,
		log.FieldAmount, res.Envelope.Amount,
		log.FieldAchievement, res.NewAchievements,
		"day_number", res.Envelope.DayNumber)

	s.propagate(ctx, code, amqp.KindUpsert)
	return res, nil
}

// Reset deletes the challenge locally and remotely.
func (s *ChallengeService) Reset(ctx context.Context, code string) error {
	code, err := core.NormalizeSyncCode(code)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(code)
	defer unlock()

	if _, err := s.load(ctx, code); err != nil {
		return err
	}
	if err := s.local.Delete(ctx, code); err != nil {
		return fmt.Errorf("delete challenge %s: %w", code, err)
	}
	s.cache.Delete(code)
	metrics.ChallengesReset.Inc()
	s.logger.InfoContext(ctx, "Challenge reset", log.FieldSyncCode, code)

	s.propagate(ctx, code, amqp.KindDelete)
	return nil
}

// SetCurrency changes the display currency of the challenge under code.
// Amounts keep their values. Setting the current currency saves nothing.
func (s *ChallengeService) SetCurrency(ctx context.Context, code, currency string) (ChallengeView, error) {
	code, err := core.NormalizeSyncCode(code)
	if err != nil {
		return ChallengeView{}, err
	}
	unlock := s.locks.Lock(code)
	defer unlock()

	c, err := s.load(ctx, code)
	if err != nil {
		return ChallengeView{}, err
	}
	changed, err := c.SetCurrency(currency)
	if err != nil {
		return ChallengeView{}, err
	}
	view := ChallengeView{Code: code, Challenge: c, Progress: core.ComputeProgress(c.Envelopes)}
	if !changed {
		return view, nil
	}

	if err := s.local.Save(ctx, code, c); err != nil {
		s.cache.Delete(code)
		return ChallengeView{}, fmt.Errorf("save challenge %s: %w", code, err)
	}
	s.cache.Set(code, c.Clone())
	s.logger.InfoContext(ctx, "Challenge currency changed", log.FieldSyncCode, code, "currency", c.Currency)

	s.propagate(ctx, code, amqp.KindUpsert)
	return view, nil
}

// Catalog lists the achievement definitions, localized for the best match
// of lang, with amount goals written in currency. Relative amount goals
// stay fractions of the target.
func (s *ChallengeService) Catalog(lang, currency string) []i18n.Achievement {
	defs := s.evaluator.Definitions()
	statuses := make([]core.AchievementStatus, len(defs))
	for i, d := range defs {
		statuses[i] = core.AchievementStatus{AchievementDefinition: d, Goal: d.Threshold}
	}
	return i18n.New(i18n.Match(lang), currency).Achievements(statuses)
}

// Progress returns the derived totals for code.
func (s *ChallengeService) Progress(ctx context.Context, code string) (core.Progress, error) {
	v, err := s.Get(ctx, code)
	if err != nil {
		return core.Progress{}, err
	}
	return v.Progress, nil
}

// Achievements lists every achievement with its status, localized for the
// best match of lang.
func (s *ChallengeService) Achievements(ctx context.Context, code, lang string) ([]i18n.Achievement, error) {
	v, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	loc := i18n.New(i18n.Match(lang), v.Challenge.Currency)
	return loc.Achievements(s.evaluator.Status(v.Challenge)), nil
}

// Envelopes lists the envelopes of code filtered and sorted.
func (s *ChallengeService) Envelopes(ctx context.Context, code string, f core.EnvelopeFilter, by core.EnvelopeSort) ([]core.Envelope, error) {
	v, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	envs := core.FilterEnvelopes(v.Challenge.Envelopes, f)
	core.SortEnvelopes(envs, by)
	return envs, nil
}

// Timeline returns the cumulative savings curve of code.
func (s *ChallengeService) Timeline(ctx context.Context, code string) ([]core.TimelinePoint, error) {
	v, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return core.Timeline(v.Challenge.Envelopes), nil
}

// Join replaces the local copy of code with the remote one.
func (s *ChallengeService) Join(ctx context.Context, code string) (ChallengeView, error) {
	code, err := core.NormalizeSyncCode(code)
	if err != nil {
		return ChallengeView{}, err
	}
	if s.remote == nil {
		return ChallengeView{}, ErrNoRemote
	}
	unlock := s.locks.Lock(code)
	defer unlock()

	c, err := s.remote.Load(ctx, code)
	if err != nil {
		return ChallengeView{}, fmt.Errorf("load remote challenge %s: %w", code, err)
	}
	if err := s.local.Save(ctx, code, c); err != nil {
		return ChallengeView{}, fmt.Errorf("save joined challenge %s: %w", code, err)
	}
	s.cache.Set(code, c.Clone())
	if s.debouncer != nil {
		s.debouncer.Cancel(code)
	}

	s.logger.InfoContext(ctx, "Joined remote challenge",
		log.FieldSyncCode, code,
		"opened", c.OpenedCount(),
		log.FieldDays, c.Days)
	return ChallengeView{Code: code, Challenge: c, Progress: core.ComputeProgress(c.Envelopes)}, nil
}

// Preview generates an envelope set without saving it.
func (s *ChallengeService) Preview(target int64, days int, d core.Distribution) (Preview, error) {
	if err := core.ValidateShape(target, days, d); err != nil {
		return Preview{}, err
	}
	s.genMu.Lock()
	envs, stats := s.gen.GenerateWithStats(target, days, d)
	s.genMu.Unlock()
	return Preview{Envelopes: envs, Stats: stats}, nil
}

// propagate announces a local change. A publisher takes precedence over a
// direct remote push; failures are logged and counted only.
func (s *ChallengeService) propagate(ctx context.Context, code string, kind amqp.SyncKind) {
	switch {
	case s.publisher != nil:
		version := s.version(ctx, code)
		err := s.publisher.PublishChallengeSync(ctx, code, version, kind)
		metrics.RecordSync("amqp", err)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish sync message",
				log.FieldSyncCode, code, log.FieldVersion, version, log.FieldError, err)
		}
	case s.remote != nil && kind == amqp.KindDelete:
		s.debouncer.Cancel(code)
		err := s.remote.Delete(ctx, code)
		metrics.RecordSync("remote", err)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to delete remote challenge",
				log.FieldSyncCode, code, log.FieldError, err)
		}
	case s.remote != nil:
		s.debouncer.Trigger(code)
	}
}

func (s *ChallengeService) version(ctx context.Context, code string) int64 {
	if v, ok := s.local.(Versioner); ok {
		n, err := v.Version(ctx, code)
		if err == nil {
			return n
		}
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.WarnContext(ctx, "Failed to read challenge version", log.FieldSyncCode, code, log.FieldError, err)
		}
	}
	return s.now().UnixNano()
}

// pushRemote copies the current local state of code to the remote store.
// It may run inline from propagate, so it must not take the code lock.
func (s *ChallengeService) pushRemote(ctx context.Context, code string) error {
	c, err := s.local.Load(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load challenge %s: %w", code, err)
	}
	err = s.remote.Save(ctx, code, c)
	metrics.RecordSync("remote", err)
	if err != nil {
		return fmt.Errorf("push challenge %s: %w", code, err)
	}
	s.logger.DebugContext(ctx, "Challenge pushed to remote", log.FieldSyncCode, code, "opened", c.OpenedCount())
	return nil
}

// Close flushes pending remote pushes.
func (s *ChallengeService) Close() error {
	if s.debouncer != nil {
		s.debouncer.Close()
	}
	return nil
}
