package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/arcanalabs/piminder/internal/model"
	"github.com/arcanalabs/piminder/internal/service"
)

// UserRepo implements the user store on the `users` table.
type UserRepo struct {
	tx *sql.Tx
}

const userColumns = "user_id, username, password, access, memo, last_active"

func scanUser(scan func(dest ...any) error) (model.User, error) {
	var (
		u          model.User
		memo       sql.NullString
		lastActive sql.NullTime
	)
	if err := scan(&u.ID, &u.Username, &u.Password, &u.Access, &memo, &lastActive); err != nil {
		return model.User{}, err
	}
	u.Memo = memo.String
	if lastActive.Valid {
		u.LastActive = lastActive.Time
	}
	return u, nil
}

// Insert adds a new user row. A duplicate username surfaces as the
// service sentinel so handlers can answer with a conflict.
func (r *UserRepo) Insert(ctx context.Context, u model.User) error {
	_, err := r.tx.ExecContext(ctx,
		"INSERT INTO users (user_id, username, password, access, memo) VALUES (?,?,?,?,?)",
		u.ID, u.Username, u.Password, u.Access, u.Memo)
	if err != nil && strings.Contains(err.Error(), "1062") {
		return service.ErrUsernameExists
	}
	return err
}

// ByUsername fetches a user and locks the row; login rotates both token
// slots on it and patches rewrite it.
func (r *UserRepo) ByUsername(ctx context.Context, username string) (model.User, bool, error) {
	row := r.tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? FOR UPDATE", username)
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

// ByID fetches a user by id without locking.
func (r *UserRepo) ByID(ctx context.Context, id string) (model.User, bool, error) {
	row := r.tx.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE user_id=?", id)
	u, err := scanUser(row.Scan)
	if err == sql.ErrNoRows {
		return model.User{}, false, nil
	}
	if err != nil {
		return model.User{}, false, err
	}
	return u, true, nil
}

// Update rewrites a user's mutable fields. Token slots are owned by the
// session repository and untouched here.
func (r *UserRepo) Update(ctx context.Context, u model.User) error {
	_, err := r.tx.ExecContext(ctx,
		"UPDATE users SET password=?, access=?, memo=? WHERE user_id=?",
		u.Password, u.Access, u.Memo, u.ID)
	return err
}

// List returns all users ordered by username.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.tx.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY username ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// TouchLastActive stamps the user's last-active time.
func (r *UserRepo) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	_, err := r.tx.ExecContext(ctx,
		"UPDATE users SET last_active=? WHERE user_id=?", at.UTC(), id)
	return err
}
