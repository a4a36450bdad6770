package audit

import (
	"context"
	"database/sql"
)

// NOTE: assumes
//
//	CREATE TABLE call_events (
//	  id         TEXT PRIMARY KEY,
//	  call_id    TEXT NOT NULL,
//	  type       TEXT NOT NULL,
//	  message    TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX call_events_call ON call_events (call_id, created_at);
//
// call_events deliberately has no foreign key to call_records so the history
// survives record deletion.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, call_id, type, message, created_at)
VALUES ($1, $2, $3, $4, $5)
`
	_, err := r.db.ExecContext(ctx, q, e.ID, e.CallID, e.Type, e.Message, e.CreatedAt)
	return err
}

func (r *PostgresRepo) ListByCall(ctx context.Context, callID string) ([]Event, error) {
	const q = `
SELECT id, call_id, type, message, created_at
FROM call_events
WHERE call_id = $1
ORDER BY created_at ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.CallID, &e.Type, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
