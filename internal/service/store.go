package service

import (
	"context"
	"time"

	"github.com/arcanalabs/piminder/internal/auth"
	"github.com/arcanalabs/piminder/internal/model"
)

// Store opens transactions against the relational store. The SQL
// implementation lives in internal/repository; tests substitute an
// in-memory fake.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one transaction's view of the store. Commit is the single
// terminal step after all validation succeeds; every other exit path
// must Rollback. Row lookups that precede a conditional write
// (token-slot reads, dedup-key reads, id-keyed message mutations) lock
// the matched row for the remainder of the transaction.
type Tx interface {
	Commit() error
	Rollback() error

	Sessions() auth.SessionStore
	Subjects() SubjectStore
	Messages() MessageStore
	Users() UserStore
	Clients() ClientStore
}

// SubjectStore resolves a subject's permission field across both store
// partitions.
type SubjectStore interface {
	Permissions(ctx context.Context, aud auth.Audience, subjectID string) (auth.Permissions, bool, error)
}

// MessageStore is the persistence surface of the message lifecycle.
// ByID and ByDedupKey acquire a row lock on the match.
type MessageStore interface {
	Insert(ctx context.Context, m model.Message) error
	ByID(ctx context.Context, id string) (model.Message, bool, error)
	ByDedupKey(ctx context.Context, name, body string) (model.Message, bool, error)
	MarkRead(ctx context.Context, id string) error
	// ResetDedup clears the read flag on an existing row and, when
	// updateTimestamp is set, overwrites its raise time.
	ResetDedup(ctx context.Context, id string, raisedAt time.Time, updateTimestamp bool) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]model.Message, error)
}

// UserStore is the persistence surface for user rows. ByUsername locks
// the row because login rotates both token slots on it.
type UserStore interface {
	Insert(ctx context.Context, u model.User) error
	ByUsername(ctx context.Context, username string) (model.User, bool, error)
	ByID(ctx context.Context, id string) (model.User, bool, error)
	Update(ctx context.Context, u model.User) error
	List(ctx context.Context) ([]model.User, error)
	TouchLastActive(ctx context.Context, id string, at time.Time) error
}

// ClientStore is the persistence surface for client grants.
type ClientStore interface {
	Insert(ctx context.Context, c model.ClientGrant) error
	ByID(ctx context.Context, id string) (model.ClientGrant, bool, error)
	List(ctx context.Context) ([]model.ClientGrant, error)
	// Revoke expires both token slots immediately. It reports whether
	// the grant existed.
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
}
