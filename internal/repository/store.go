// Package repository implements the service store interfaces on MySQL.
// All repositories are bound to one *sql.Tx; the service gate owns the
// transaction boundary and every read that precedes a conditional write
// takes a row lock with SELECT ... FOR UPDATE.
package repository

import (
	"context"
	"database/sql"

	"github.com/arcanalabs/piminder/internal/auth"
	"github.com/arcanalabs/piminder/internal/service"
)

// Store wraps the connection pool and opens transactions.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Begin starts a transaction. The default isolation level (MySQL
// REPEATABLE READ) together with the FOR UPDATE reads below gives the
// serialization the token-rotation and dedup-upsert paths require.
func (s *Store) Begin(ctx context.Context) (service.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

// Tx is one transaction's view of the store.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

func (t *Tx) Sessions() auth.SessionStore    { return &SessionRepo{tx: t.tx} }
func (t *Tx) Subjects() service.SubjectStore { return &SubjectRepo{tx: t.tx} }
func (t *Tx) Messages() service.MessageStore { return &MessageRepo{tx: t.tx} }
func (t *Tx) Users() service.UserStore       { return &UserRepo{tx: t.tx} }
func (t *Tx) Clients() service.ClientStore   { return &ClientRepo{tx: t.tx} }

// subjectTable resolves the partition a subject lives in.
func subjectTable(aud auth.Audience) (table, idColumn string) {
	if aud == auth.AudienceClient {
		return "client_grants", "client_id"
	}
	return "users", "user_id"
}

// slotColumns resolves the key/expiry column pair for a token slot. The
// column names are fixed at compile time; nothing caller-supplied is
// ever interpolated into SQL.
func slotColumns(slot auth.Slot) (keyColumn, expiryColumn string) {
	if slot == auth.SlotRefresh {
		return "refresh_token_key", "refresh_token_expiry"
	}
	return "bearer_token_key", "bearer_token_expiry"
}
