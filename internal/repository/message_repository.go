package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/arcanalabs/piminder/internal/model"
)

// MessageRepo implements the message store on the `messages` table. The
// name and message columns carry a binary collation so the dedup key
// compares byte-equal and case-sensitive.
type MessageRepo struct {
	tx *sql.Tx
}

const messageColumns = "id, name, message, errorlevel, time_raised, read_flag"

func scanMessage(row *sql.Row) (model.Message, bool, error) {
	var (
		m     model.Message
		level string
	)
	err := row.Scan(&m.ID, &m.Name, &m.Body, &level, &m.TimeRaised, &m.Read)
	if err == sql.ErrNoRows {
		return model.Message{}, false, nil
	}
	if err != nil {
		return model.Message{}, false, err
	}
	m.ErrorLevel = model.Severity(level)
	return m, true, nil
}

// Insert adds a fresh message row.
func (r *MessageRepo) Insert(ctx context.Context, m model.Message) error {
	_, err := r.tx.ExecContext(ctx,
		"INSERT INTO messages (id, name, message, errorlevel, time_raised, read_flag) VALUES (?,?,?,?,?,?)",
		m.ID, m.Name, m.Body, string(m.ErrorLevel), m.TimeRaised.UTC(), m.Read)
	return err
}

// ByID fetches one message and locks its row for the rest of the
// transaction, since callers mutate or delete it next.
func (r *MessageRepo) ByID(ctx context.Context, id string) (model.Message, bool, error) {
	row := r.tx.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id=? FOR UPDATE", id)
	return scanMessage(row)
}

// ByDedupKey fetches the row matching (name, message) exactly, locking
// it so concurrent upserts on the same key serialize.
func (r *MessageRepo) ByDedupKey(ctx context.Context, name, body string) (model.Message, bool, error) {
	row := r.tx.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE name=? AND message=? LIMIT 1 FOR UPDATE",
		name, body)
	return scanMessage(row)
}

// MarkRead flips the read flag to true.
func (r *MessageRepo) MarkRead(ctx context.Context, id string) error {
	_, err := r.tx.ExecContext(ctx, "UPDATE messages SET read_flag=TRUE WHERE id=?", id)
	return err
}

// ResetDedup clears the read flag and optionally refreshes the raise
// time on the existing row of a dedup key.
func (r *MessageRepo) ResetDedup(ctx context.Context, id string, raisedAt time.Time, updateTimestamp bool) error {
	if updateTimestamp {
		_, err := r.tx.ExecContext(ctx,
			"UPDATE messages SET read_flag=FALSE, time_raised=? WHERE id=?", raisedAt.UTC(), id)
		return err
	}
	_, err := r.tx.ExecContext(ctx, "UPDATE messages SET read_flag=FALSE WHERE id=?", id)
	return err
}

// Delete removes a message row permanently.
func (r *MessageRepo) Delete(ctx context.Context, id string) error {
	_, err := r.tx.ExecContext(ctx, "DELETE FROM messages WHERE id=?", id)
	return err
}

// List returns every message, newest raise time first.
func (r *MessageRepo) List(ctx context.Context) ([]model.Message, error) {
	rows, err := r.tx.QueryContext(ctx,
		"SELECT "+messageColumns+" FROM messages ORDER BY time_raised DESC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		var (
			m     model.Message
			level string
		)
		if err := rows.Scan(&m.ID, &m.Name, &m.Body, &level, &m.TimeRaised, &m.Read); err != nil {
			return nil, err
		}
		m.ErrorLevel = model.Severity(level)
		out = append(out, m)
	}
	return out, rows.Err()
}
