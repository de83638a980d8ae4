// Package memory is an in-process ledger for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "envelopes/internal/sheets"
)

type Ledger struct {
	mu   sync.Mutex
	rows []ports.Summary
}

var (
	_ ports.LedgerWriter = (*Ledger)(nil)
	_ ports.LedgerReader = (*Ledger)(nil)
)

func New() *Ledger {
	return &Ledger{}
}

// Upsert replaces the row for s.Code or appends a new one.
func (l *Ledger) Upsert(_ context.Context, s ports.Summary) (string, error) {
	if s.Code == "" {
		return "", fmt.Errorf("ledger upsert: empty code")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	s.Achievements = append([]string(nil), s.Achievements...)
	for i := range l.rows {
		if l.rows[i].Code == s.Code {
			l.rows[i] = s
			return fmt.Sprintf("mem:%d", i+1), nil
		}
	}
	l.rows = append(l.rows, s)
	return fmt.Sprintf("mem:%d", len(l.rows)), nil
}

// Remove deletes the row for code.
func (l *Ledger) Remove(_ context.Context, code string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.rows {
		if l.rows[i].Code == code {
			l.rows = append(l.rows[:i], l.rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Rows returns a copy of every row.
func (l *Ledger) Rows(_ context.Context) ([]ports.Summary, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ports.Summary(nil), l.rows...), nil
}
