package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"callqa/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This repository assumes the following table exists:
//
//	CREATE TABLE call_records (
//	  call_id    TEXT PRIMARY KEY,
//	  agent_id   TEXT NOT NULL,
//	  audio_ref  TEXT NOT NULL,
//	  status     TEXT NOT NULL,
//	  transcript JSONB,
//	  scores     JSONB,
//	  metrics    JSONB,
//	  error      TEXT,
//	  created_at TIMESTAMPTZ NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX call_records_status_created ON call_records (status, created_at DESC);
//	CREATE INDEX call_records_agent_created ON call_records (agent_id, created_at DESC);

const uniqueViolation = "23505"

const selectColumns = `call_id, agent_id, audio_ref, status, transcript, scores, metrics, error, created_at, updated_at`

// PostgresRepo is the Store backed by Postgres through database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(s rowScanner) (Call, error) {
	var (
		c                          Call
		transcript, scores, metric []byte
		errText                    sql.NullString
	)
	if err := s.Scan(
		&c.CallID,
		&c.AgentID,
		&c.AudioRef,
		&c.Status,
		&transcript,
		&scores,
		&metric,
		&errText,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Call{}, err
	}
	if err := decodeJSON(transcript, &c.Transcript); err != nil {
		return Call{}, err
	}
	if err := decodeJSON(scores, &c.Scores); err != nil {
		return Call{}, err
	}
	if err := decodeJSON(metric, &c.Metrics); err != nil {
		return Call{}, err
	}
	c.Error = errText.String
	return c, nil
}

func decodeJSON[T any](b []byte, dst **T) error {
	if len(b) == 0 {
		*dst = nil
		return nil
	}
	v := new(T)
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: decode jsonb: %v", ErrPersistence, err)
	}
	*dst = v
	return nil
}

func encodeJSON[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}

func (r *PostgresRepo) Create(ctx context.Context, c Call) error {
	if err := validateNew(c); err != nil {
		return err
	}
	transcript, err := encodeJSON(c.Transcript)
	if err != nil {
		return wrap(err)
	}
	scores, err := encodeJSON(c.Scores)
	if err != nil {
		return wrap(err)
	}
	metric, err := encodeJSON(c.Metrics)
	if err != nil {
		return wrap(err)
	}

	const q = `
INSERT INTO call_records (call_id, agent_id, audio_ref, status, transcript, scores, metrics, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`
	_, err = r.db.ExecContext(ctx, q,
		c.CallID,
		c.AgentID,
		c.AudioRef,
		c.Status,
		transcript,
		scores,
		metric,
		nullString(c.Error),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateCallID
		}
		return wrap(err)
	}
	return nil
}

// Update locks the row, applies u and writes it back in one transaction.
func (r *PostgresRepo) Update(ctx context.Context, callID string, u Update) (Call, error) {
	var out Call
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + selectColumns + ` FROM call_records WHERE call_id = $1 FOR UPDATE`
		cur, err := scanCall(tx.QueryRowContext(ctx, q, callID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		next, err := apply(cur, u)
		if err != nil {
			return err
		}

		transcript, err := encodeJSON(next.Transcript)
		if err != nil {
			return err
		}
		scores, err := encodeJSON(next.Scores)
		if err != nil {
			return err
		}
		metric, err := encodeJSON(next.Metrics)
		if err != nil {
			return err
		}

		const uq = `
UPDATE call_records
SET status = $2, transcript = $3, scores = $4, metrics = $5, error = $6, updated_at = $7
WHERE call_id = $1
`
		if _, err := tx.ExecContext(ctx, uq,
			callID,
			next.Status,
			transcript,
			scores,
			metric,
			nullString(next.Error),
			next.UpdatedAt,
		); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidStatus) || errors.Is(err, ErrPersistence) {
			return Call{}, err
		}
		return Call{}, wrap(err)
	}
	return out, nil
}

func (r *PostgresRepo) Find(ctx context.Context, callID string) (Call, error) {
	q := `SELECT ` + selectColumns + ` FROM call_records WHERE call_id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		if errors.Is(err, ErrPersistence) {
			return Call{}, err
		}
		return Call{}, wrap(err)
	}
	return c, nil
}

// whereClause renders f as a SQL predicate with positional args.
func whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.AgentID != "" {
		add("agent_id = $%d", f.AgentID)
	}
	if !f.CreatedAfter.IsZero() {
		add("created_at >= $%d", f.CreatedAfter)
	}
	if f.ScoredOnly {
		conds = append(conds, "scores IS NOT NULL")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *PostgresRepo) List(ctx context.Context, f Filter) ([]Call, error) {
	where, args := whereClause(f)
	q := `SELECT ` + selectColumns + ` FROM call_records` + where
	if f.Order == OldestFirst {
		q += ` ORDER BY created_at ASC`
	} else {
		q += ` ORDER BY created_at DESC`
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			if errors.Is(err, ErrPersistence) {
				return nil, err
			}
			return nil, wrap(err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap(err)
	}
	return out, nil
}

func (r *PostgresRepo) Count(ctx context.Context, f Filter) (int, error) {
	where, args := whereClause(f)
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_records`+where, args...).Scan(&n); err != nil {
		return 0, wrap(err)
	}
	return n, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, callID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM call_records WHERE call_id = $1`, callID)
	if err != nil {
		return wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
