package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the SQL for the challenge tables.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type (
	ChallengeRow struct {
		Code         string
		TargetAmount int64
		Days         int64
		Currency     string
		Distribution string
		StartDate    string
		Version      int64
		UpdatedAt    string
	}

	EnvelopeRow struct {
		Code      string
		ID        int64
		Amount    int64
		IsOpen    bool
		OpenedAt  sql.NullString
		DayNumber sql.NullInt64
	}
)

const upsertChallenge = `
INSERT INTO challenges (code, target_amount, days, currency, distribution, start_date, version, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 1, ?)
ON CONFLICT(code) DO UPDATE SET
    target_amount = excluded.target_amount,
    days          = excluded.days,
    currency      = excluded.currency,
    distribution  = excluded.distribution,
    start_date    = excluded.start_date,
    version       = challenges.version + 1,
    updated_at    = excluded.updated_at
RETURNING version`

func (q *Queries) UpsertChallenge(ctx context.Context, r ChallengeRow) (int64, error) {
	var version int64
	err := q.db.QueryRowContext(ctx, upsertChallenge,
		r.Code, r.TargetAmount, r.Days, r.Currency, r.Distribution, r.StartDate, r.UpdatedAt,
	).Scan(&version)
	return version, err
}

const getChallenge = `
SELECT code, target_amount, days, currency, distribution, start_date, version, updated_at
FROM challenges WHERE code = ?`

func (q *Queries) GetChallenge(ctx context.Context, code string) (ChallengeRow, error) {
	var r ChallengeRow
	err := q.db.QueryRowContext(ctx, getChallenge, code).Scan(
		&r.Code, &r.TargetAmount, &r.Days, &r.Currency, &r.Distribution, &r.StartDate, &r.Version, &r.UpdatedAt,
	)
	return r, err
}

const deleteChallenge = `DELETE FROM challenges WHERE code = ?`

func (q *Queries) DeleteChallenge(ctx context.Context, code string) error {
	_, err := q.db.ExecContext(ctx, deleteChallenge, code)
	return err
}

const listCodes = `SELECT code FROM challenges ORDER BY updated_at DESC, code`

func (q *Queries) ListCodes(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listCodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

const deleteEnvelopes = `DELETE FROM envelopes WHERE code = ?`

func (q *Queries) DeleteEnvelopes(ctx context.Context, code string) error {
	_, err := q.db.ExecContext(ctx, deleteEnvelopes, code)
	return err
}

const insertEnvelope = `
INSERT INTO envelopes (code, id, amount, is_open, opened_at, day_number)
VALUES (?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertEnvelope(ctx context.Context, r EnvelopeRow) error {
	_, err := q.db.ExecContext(ctx, insertEnvelope, r.Code, r.ID, r.Amount, r.IsOpen, r.OpenedAt, r.DayNumber)
	return err
}

const listEnvelopes = `
SELECT code, id, amount, is_open, opened_at, day_number
FROM envelopes WHERE code = ? ORDER BY id`

func (q *Queries) ListEnvelopes(ctx context.Context, code string) ([]EnvelopeRow, error) {
	rows, err := q.db.QueryContext(ctx, listEnvelopes, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EnvelopeRow
	for rows.Next() {
		var r EnvelopeRow
		if err := rows.Scan(&r.Code, &r.ID, &r.Amount, &r.IsOpen, &r.OpenedAt, &r.DayNumber); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

const deleteAchievements = `DELETE FROM achievements WHERE code = ?`

func (q *Queries) DeleteAchievements(ctx context.Context, code string) error {
	_, err := q.db.ExecContext(ctx, deleteAchievements, code)
	return err
}

const insertAchievement = `
INSERT INTO achievements (code, achievement_id, position) VALUES (?, ?, ?)`

func (q *Queries) InsertAchievement(ctx context.Context, code, id string, position int) error {
	_, err := q.db.ExecContext(ctx, insertAchievement, code, id, position)
	return err
}

const listAchievements = `
SELECT achievement_id FROM achievements WHERE code = ? ORDER BY position`

func (q *Queries) ListAchievements(ctx context.Context, code string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listAchievements, code)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
