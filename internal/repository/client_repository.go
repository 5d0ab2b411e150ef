package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/arcanalabs/piminder/internal/model"
)

// ClientRepo implements the client-grant store on the `client_grants`
// table.
type ClientRepo struct {
	tx *sql.Tx
}

// Insert adds a new client grant.
func (r *ClientRepo) Insert(ctx context.Context, c model.ClientGrant) error {
	_, err := r.tx.ExecContext(ctx,
		"INSERT INTO client_grants (client_id, name, memo, access) VALUES (?,?,?,?)",
		c.ID, c.Name, c.Memo, c.Access)
	return err
}

// ByID fetches a grant by client id.
func (r *ClientRepo) ByID(ctx context.Context, id string) (model.ClientGrant, bool, error) {
	var (
		c    model.ClientGrant
		memo sql.NullString
	)
	err := r.tx.QueryRowContext(ctx,
		"SELECT client_id, name, memo, access FROM client_grants WHERE client_id=?", id).
		Scan(&c.ID, &c.Name, &memo, &c.Access)
	if err == sql.ErrNoRows {
		return model.ClientGrant{}, false, nil
	}
	if err != nil {
		return model.ClientGrant{}, false, err
	}
	c.Memo = memo.String
	return c, true, nil
}

// List returns all grants ordered by name.
func (r *ClientRepo) List(ctx context.Context) ([]model.ClientGrant, error) {
	rows, err := r.tx.QueryContext(ctx,
		"SELECT client_id, name, memo, access FROM client_grants ORDER BY name ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ClientGrant
	for rows.Next() {
		var (
			c    model.ClientGrant
			memo sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &memo, &c.Access); err != nil {
			return nil, err
		}
		c.Memo = memo.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// Revoke expires both token slots. The row is locked first so the
// revocation cannot race a concurrent rotation.
func (r *ClientRepo) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	var exists int
	err := r.tx.QueryRowContext(ctx,
		"SELECT 1 FROM client_grants WHERE client_id=? FOR UPDATE", id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	_, err = r.tx.ExecContext(ctx,
		"UPDATE client_grants SET bearer_token_expiry=?, refresh_token_expiry=? WHERE client_id=?",
		at.UTC(), at.UTC(), id)
	if err != nil {
		return false, err
	}
	return true, nil
}
