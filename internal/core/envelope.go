package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

// MaxDays bounds the duration of a single challenge.
const MaxDays = 3650

type (
	// Envelope is one day's savings unit. It is opened at most once.
	Envelope struct {
		ID        int        `json:"id"`
		Amount    int64      `json:"amount"`
		IsOpen    bool       `json:"isOpen"`
		OpenedAt  *time.Time `json:"openedAt,omitempty"`
		DayNumber int        `json:"dayNumber,omitempty"` // open-order rank, 1-based
	}

	// Challenge is one complete savings goal run.
	Challenge struct {
		TargetAmount         int64        `json:"targetAmount"`
		Days                 int          `json:"days"`
		Currency             string       `json:"currency"`
		Distribution         Distribution `json:"distribution,omitempty"`
		StartDate            time.Time    `json:"startDate"`
		Envelopes            []Envelope   `json:"envelopes"`
		UnlockedAchievements []string     `json:"unlockedAchievements"`
	}

	// NewChallengeParams are the user inputs for a new challenge.
	NewChallengeParams struct {
		Target       int64
		Days         int
		Currency     string
		Distribution Distribution
		Now          time.Time
	}
)

var (
	ErrInvalidDays         = errors.New("invalid number of days")
	ErrInvalidTarget       = errors.New("invalid target amount")
	ErrInvalidCurrency     = errors.New("invalid currency code")
	ErrUnknownDistribution = errors.New("unknown distribution")
	ErrEnvelopeNotFound    = errors.New("envelope not found")
	ErrCorruptChallenge    = errors.New("corrupt challenge")
)

// Validate checks user inputs before generation.
func (p NewChallengeParams) Validate() error {
	if err := ValidateShape(p.Target, p.Days, p.Distribution); err != nil {
		return err
	}
	if !ValidCurrency(p.Currency) {
		return fmt.Errorf("%w: %q", ErrInvalidCurrency, p.Currency)
	}
	return nil
}

// ValidateShape checks the generation inputs that do not depend on a currency.
func ValidateShape(target int64, days int, d Distribution) error {
	if days < 1 || days > MaxDays {
		return fmt.Errorf("%w: %d (must be between 1 and %d)", ErrInvalidDays, days, MaxDays)
	}
	if target < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidTarget, target)
	}
	if !d.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownDistribution, d)
	}
	return nil
}

// NewChallenge validates params and generates the envelope set. A target
// below the number of days is raised to it, and the stored target is the
// generated sum.
func NewChallenge(p NewChallengeParams, gen *Generator) (*Challenge, error) {
	c, _, err := NewChallengeWithStats(p, gen)
	return c, err
}

// NewChallengeWithStats is NewChallenge that also reports how the
// generator reconciled the amounts.
func NewChallengeWithStats(p NewChallengeParams, gen *Generator) (*Challenge, GenerationStats, error) {
	p.Currency = strings.ToUpper(strings.TrimSpace(p.Currency))
	if err := p.Validate(); err != nil {
		return nil, GenerationStats{}, err
	}
	envs, stats := gen.GenerateWithStats(p.Target, p.Days, p.Distribution)
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Challenge{
		TargetAmount:         stats.Total,
		Days:                 p.Days,
		Currency:             p.Currency,
		Distribution:         p.Distribution,
		StartDate:            now.UTC(),
		Envelopes:            envs,
		UnlockedAchievements: []string{},
	}, stats, nil
}

// ValidCurrency reports whether code is an upper-case ISO 4217 currency.
// The XXX "no currency" unit is rejected.
func ValidCurrency(code string) bool {
	u, err := currency.ParseISO(code)
	return err == nil && u != (currency.Unit{}) && u.String() == code
}

// Envelope returns the envelope with the given id.
func (c *Challenge) Envelope(id int) (Envelope, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c.Envelopes[i], true
	}
	return Envelope{}, false
}

// Open marks envelope id as opened at now. Opening an already open
// envelope changes nothing and reports false.
func (c *Challenge) Open(id int, now time.Time) (Envelope, bool, error) {
	i := c.indexOf(id)
	if i < 0 {
		return Envelope{}, false, fmt.Errorf("%w: %d", ErrEnvelopeNotFound, id)
	}
	if c.Envelopes[i].IsOpen {
		return c.Envelopes[i], false, nil
	}

	openedAt := now.UTC()
	env := c.Envelopes[i]
	env.IsOpen = true
	env.OpenedAt = &openedAt
	env.DayNumber = c.OpenedCount() + 1
	c.Envelopes[i] = env
	return env, true, nil
}

// OpenedCount returns how many envelopes are open.
func (c *Challenge) OpenedCount() int {
	n := 0
	for _, e := range c.Envelopes {
		if e.IsOpen {
			n++
		}
	}
	return n
}

// Unlock merges ids into the unlocked set and returns the ids that were
// actually added. The set never shrinks.
func (c *Challenge) Unlock(ids []string) []string {
	seen := make(map[string]struct{}, len(c.UnlockedAchievements)+len(ids))
	for _, id := range c.UnlockedAchievements {
		seen[id] = struct{}{}
	}
	var added []string
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		c.UnlockedAchievements = append(c.UnlockedAchievements, id)
		added = append(added, id)
	}
	return added
}

// IsUnlocked reports whether achievement id is unlocked.
func (c *Challenge) IsUnlocked(id string) bool {
	for _, u := range c.UnlockedAchievements {
		if u == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c *Challenge) Clone() *Challenge {
	out := *c
	out.Envelopes = make([]Envelope, len(c.Envelopes))
	for i, e := range c.Envelopes {
		if e.OpenedAt != nil {
			t := *e.OpenedAt
			e.OpenedAt = &t
		}
		out.Envelopes[i] = e
	}
	out.UnlockedAchievements = append([]string{}, c.UnlockedAchievements...)
	return &out
}

// SetCurrency changes the display currency. Amounts are whole units and
// are not converted. It reports whether the currency changed.
func (c *Challenge) SetCurrency(code string) (bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !ValidCurrency(code) {
		return false, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	if c.Currency == code {
		return false, nil
	}
	c.Currency = code
	return true, nil
}

// Validate checks the invariants of a stored challenge.
func (c *Challenge) Validate() error {
	if c.Days < 1 || len(c.Envelopes) != c.Days {
		return fmt.Errorf("%w: %d envelopes for %d days", ErrCorruptChallenge, len(c.Envelopes), c.Days)
	}
	ids := make(map[int]struct{}, len(c.Envelopes))
	ranks := make(map[int]struct{})
	var sum int64
	for _, e := range c.Envelopes {
		if e.ID < 1 || e.ID > c.Days {
			return fmt.Errorf("%w: envelope id %d out of range", ErrCorruptChallenge, e.ID)
		}
		if _, dup := ids[e.ID]; dup {
			return fmt.Errorf("%w: duplicate envelope id %d", ErrCorruptChallenge, e.ID)
		}
		ids[e.ID] = struct{}{}
		if e.Amount < 1 {
			return fmt.Errorf("%w: envelope %d amount %d", ErrCorruptChallenge, e.ID, e.Amount)
		}
		// Older records may lack openedAt on open envelopes; the reverse is never valid.
		if !e.IsOpen && (e.OpenedAt != nil || e.DayNumber != 0) {
			return fmt.Errorf("%w: closed envelope %d has open metadata", ErrCorruptChallenge, e.ID)
		}
		if e.IsOpen && e.DayNumber > 0 {
			if _, dup := ranks[e.DayNumber]; dup {
				return fmt.Errorf("%w: duplicate day number %d", ErrCorruptChallenge, e.DayNumber)
			}
			ranks[e.DayNumber] = struct{}{}
		}
		sum += e.Amount
	}
	if sum != c.TargetAmount {
		return fmt.Errorf("%w: amounts sum to %d, target is %d", ErrCorruptChallenge, sum, c.TargetAmount)
	}
	return nil
}

func (c *Challenge) indexOf(id int) int {
	// Ids are 1..days; try the positional slot before scanning.
	if id >= 1 && id <= len(c.Envelopes) && c.Envelopes[id-1].ID == id {
		return id - 1
	}
	for i, e := range c.Envelopes {
		if e.ID == id {
			return i
		}
	}
	return -1
}
