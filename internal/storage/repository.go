package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"envelopes/internal/core"
	"envelopes/internal/store"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var (
	_ store.ChallengeStore = (*SQLiteRepository)(nil)
	_ store.CodeLister     = (*SQLiteRepository)(nil)
	_ store.Pinger         = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the save transaction and reads.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: NewQueries(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Save replaces the stored challenge for code in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, code string, c *core.Challenge) error {
	if c == nil {
		return fmt.Errorf("save %s: nil challenge", code)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	version, err := q.UpsertChallenge(ctx, ChallengeRow{
		Code:         code,
		TargetAmount: c.TargetAmount,
		Days:         int64(c.Days),
		Currency:     c.Currency,
		Distribution: string(c.Distribution),
		StartDate:    formatTime(c.StartDate),
		UpdatedAt:    formatTime(r.now()),
	})
	if err != nil {
		return fmt.Errorf("upsert challenge %s: %w", code, err)
	}

	if err := q.DeleteEnvelopes(ctx, code); err != nil {
		return fmt.Errorf("clear envelopes %s: %w", code, err)
	}
	for _, e := range c.Envelopes {
		row := EnvelopeRow{Code: code, ID: int64(e.ID), Amount: e.Amount, IsOpen: e.IsOpen}
		if e.OpenedAt != nil {
			row.OpenedAt = sql.NullString{String: formatTime(*e.OpenedAt), Valid: true}
		}
		if e.DayNumber > 0 {
			row.DayNumber = sql.NullInt64{Int64: int64(e.DayNumber), Valid: true}
		}
		if err := q.InsertEnvelope(ctx, row); err != nil {
			return fmt.Errorf("insert envelope %s/%d: %w", code, e.ID, err)
		}
	}

	if err := q.DeleteAchievements(ctx, code); err != nil {
		return fmt.Errorf("clear achievements %s: %w", code, err)
	}
	for i, id := range c.UnlockedAchievements {
		if err := q.InsertAchievement(ctx, code, id, i); err != nil {
			return fmt.Errorf("insert achievement %s/%s: %w", code, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Challenge saved to SQLite",
		"sync_code", code,
		"version", version,
		"envelopes", len(c.Envelopes),
		"opened", c.OpenedCount())
	return nil
}

// Load reads the challenge for code and checks its invariants.
func (r *SQLiteRepository) Load(ctx context.Context, code string) (*core.Challenge, error) {
	row, err := r.queries.GetChallenge(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load %s: %w", code, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge %s: %w", code, err)
	}

	start, err := parseTime(row.StartDate)
	if err != nil {
		return nil, fmt.Errorf("challenge %s start date: %w", code, err)
	}
	c := &core.Challenge{
		TargetAmount: row.TargetAmount,
		Days:         int(row.Days),
		Currency:     row.Currency,
		Distribution: core.Distribution(row.Distribution),
		StartDate:    start,
	}

	envs, err := r.queries.ListEnvelopes(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("list envelopes %s: %w", code, err)
	}
	c.Envelopes = make([]core.Envelope, 0, len(envs))
	for _, er := range envs {
		e := core.Envelope{ID: int(er.ID), Amount: er.Amount, IsOpen: er.IsOpen}
		if er.OpenedAt.Valid {
			t, err := parseTime(er.OpenedAt.String)
			if err != nil {
				return nil, fmt.Errorf("envelope %s/%d opened_at: %w", code, er.ID, err)
			}
			e.OpenedAt = &t
		}
		if er.DayNumber.Valid {
			e.DayNumber = int(er.DayNumber.Int64)
		}
		c.Envelopes = append(c.Envelopes, e)
	}

	if c.UnlockedAchievements, err = r.queries.ListAchievements(ctx, code); err != nil {
		return nil, fmt.Errorf("list achievements %s: %w", code, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("load %s: %w", code, err)
	}
	return c, nil
}

// Delete removes the challenge and its child rows.
func (r *SQLiteRepository) Delete(ctx context.Context, code string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	if err := q.DeleteEnvelopes(ctx, code); err != nil {
		return fmt.Errorf("delete envelopes %s: %w", code, err)
	}
	if err := q.DeleteAchievements(ctx, code); err != nil {
		return fmt.Errorf("delete achievements %s: %w", code, err)
	}
	if err := q.DeleteChallenge(ctx, code); err != nil {
		return fmt.Errorf("delete challenge %s: %w", code, err)
	}
	return tx.Commit()
}

// Codes lists stored codes, most recently updated first.
func (r *SQLiteRepository) Codes(ctx context.Context) ([]string, error) {
	codes, err := r.queries.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list codes: %w", err)
	}
	return codes, nil
}

// Version returns the number of times code has been saved.
func (r *SQLiteRepository) Version(ctx context.Context, code string) (int64, error) {
	row, err := r.queries.GetChallenge(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("version %s: %w", code, store.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get challenge %s: %w", code, err)
	}
	return row.Version, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
