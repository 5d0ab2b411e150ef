package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/arcanalabs/piminder/internal/auth"
)

// SessionRepo persists token slots directly on the subject rows. Lookup
// locks the row so two requests racing on the same slot serialize; the
// loser re-reads the rotated key and its presented token no longer
// verifies.
type SessionRepo struct {
	tx *sql.Tx
}

// Lookup fetches the current signing key and expiry for one slot,
// locking the subject row until the enclosing transaction resolves. A
// subject with a never-issued slot is reported found with a zero
// session, which fails the expiry check upstream.
func (r *SessionRepo) Lookup(ctx context.Context, aud auth.Audience, subjectID string, slot auth.Slot) (auth.Session, bool, error) {
	table, idCol := subjectTable(aud)
	keyCol, expCol := slotColumns(slot)
	q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s=? FOR UPDATE", keyCol, expCol, table, idCol)

	var (
		key    []byte
		expiry sql.NullTime
	)
	err := r.tx.QueryRowContext(ctx, q, subjectID).Scan(&key, &expiry)
	if err == sql.ErrNoRows {
		return auth.Session{}, false, nil
	}
	if err != nil {
		return auth.Session{}, false, err
	}
	s := auth.Session{Key: key}
	if expiry.Valid {
		s.Expiry = expiry.Time
	}
	return s, true, nil
}

// Rotate replaces a slot's key and expiry. This is the single write a
// successful validation performs.
func (r *SessionRepo) Rotate(ctx context.Context, aud auth.Audience, subjectID string, slot auth.Slot, key []byte, expiry time.Time) error {
	table, idCol := subjectTable(aud)
	keyCol, expCol := slotColumns(slot)
	q := fmt.Sprintf("UPDATE %s SET %s=?, %s=? WHERE %s=?", table, keyCol, expCol, idCol)
	_, err := r.tx.ExecContext(ctx, q, key, expiry.UTC(), subjectID)
	return err
}

// SubjectRepo resolves permission fields across both partitions.
type SubjectRepo struct {
	tx *sql.Tx
}

// Permissions loads and decodes a subject's five-bit access field.
func (r *SubjectRepo) Permissions(ctx context.Context, aud auth.Audience, subjectID string) (auth.Permissions, bool, error) {
	table, idCol := subjectTable(aud)
	q := fmt.Sprintf("SELECT access FROM %s WHERE %s=?", table, idCol)

	var access uint8
	err := r.tx.QueryRowContext(ctx, q, subjectID).Scan(&access)
	if err == sql.ErrNoRows {
		return auth.Permissions{}, false, nil
	}
	if err != nil {
		return auth.Permissions{}, false, err
	}
	return auth.DecodePermissions(access), true, nil
}
