// Package store declares the persistence ports for challenges.
package store

import (
	"context"
	"errors"

	"envelopes/internal/core"
)

// ErrNotFound is returned when no challenge is stored under a code.
var ErrNotFound = errors.New("challenge not found")

// Ports for challenge persistence, keyed by sync code.
type (
	// ChallengeStore saves whole challenge values. Implementations must not
	// retain the pointer passed to Save or hand out shared state from Load.
	ChallengeStore interface {
		Save(ctx context.Context, code string, c *core.Challenge) error
		Load(ctx context.Context, code string) (*core.Challenge, error)
		Delete(ctx context.Context, code string) error
	}

	// CodeLister enumerates stored codes for batch resync.
	CodeLister interface {
		Codes(ctx context.Context) ([]string, error)
	}

	// Pinger reports backend readiness.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)
