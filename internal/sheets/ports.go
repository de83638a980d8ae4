// Package sheets declares the spreadsheet ledger port: one summary row per
// challenge, kept in step by the sync worker.
package sheets

import (
	"context"
	"strings"
	"time"

	"envelopes/internal/core"
)

// Summary is one ledger row.
type Summary struct {
	Code          string
	Currency      string
	Distribution  string
	Target        int64
	Saved         int64
	DaysCompleted int
	Days          int
	Percentage    float64
	Achievements  []string
	UpdatedAt     time.Time
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		// Upsert writes the row for s.Code, replacing an existing one.
		Upsert(ctx context.Context, s Summary) (rowRef string, err error)
		// Remove deletes the row for code if present.
		Remove(ctx context.Context, code string) error
	}

	LedgerReader interface {
		// Rows returns every ledger row, in sheet order.
		Rows(ctx context.Context) ([]Summary, error)
	}
)

// Summarize builds the ledger row for a challenge.
func Summarize(code string, c *core.Challenge, now time.Time) Summary {
	p := core.ComputeProgress(c.Envelopes)
	return Summary{
		Code:          code,
		Currency:      c.Currency,
		Distribution:  string(c.Distribution),
		Target:        c.TargetAmount,
		Saved:         p.Saved,
		DaysCompleted: p.DaysCompleted,
		Days:          p.DaysTotal,
		Percentage:    p.Percentage,
		Achievements:  append([]string(nil), c.UnlockedAchievements...),
		UpdatedAt:     now.UTC(),
	}
}

// Header is the ledger's first row.
var Header = []string{"Code", "Currency", "Distribution", "Target", "Saved", "Opened", "Days", "Percent", "Achievements", "Updated"}

// ToRow renders s in Header order.
func (s Summary) ToRow() []any {
	return []any{
		s.Code,
		s.Currency,
		s.Distribution,
		s.Target,
		s.Saved,
		s.DaysCompleted,
		s.Days,
		float64(int64(s.Percentage*100+0.5)) / 100,
		strings.Join(s.Achievements, ","),
		s.UpdatedAt.Format(time.RFC3339),
	}
}
