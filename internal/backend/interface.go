package backend

import (
	"context"
	"errors"

	"envelopes/internal/amqp"
	"envelopes/internal/sheets"
	"envelopes/internal/store"
)

// CleanupFunc releases one resource.
type CleanupFunc func() error

// Role selects which components a process needs.
type Role string

const (
	// RoleServer wires the local store, the optional remote copy and the
	// optional AMQP publisher.
	RoleServer Role = "server"
	// RoleWorker additionally requires AMQP and wires the optional ledger.
	RoleWorker Role = "worker"
	// RoleCLI wires the local store only.
	RoleCLI Role = "cli"
)

// Result holds the components built for one process. Remote, AMQP and
// Ledger are nil when not configured for the role.
type Result struct {
	Local  store.ChallengeStore
	Remote store.ChallengeStore
	AMQP   *amqp.Client
	Ledger sheets.LedgerWriter

	cleanups []CleanupFunc
}

func (r *Result) addCleanup(fn CleanupFunc) {
	r.cleanups = append(r.cleanups, fn)
}

// Cleanup releases resources in reverse creation order.
func (r *Result) Cleanup() error {
	var errs []error
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		if err := r.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.cleanups = nil
	return errors.Join(errs...)
}

// Pinger returns the local store's readiness check, if it has one.
func (r *Result) Pinger() store.Pinger {
	p, _ := r.Local.(store.Pinger)
	return p
}

// Factory creates backends based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config, role Role) (*Result, error)
}

// Config holds configuration for backend creation.
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	FirestoreProjectID  string
	FirestoreCollection string

	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// BackendType is the local store implementation.
type BackendType string

const (
	SQLiteBackend    BackendType = "sqlite"
	FirestoreBackend BackendType = "firestore"
	MemoryBackend    BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid.
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, FirestoreBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
