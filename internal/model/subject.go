package model

import "time"

// TokenSlots holds the per-subject session state for both token slots.
// Each slot has its own signing key and expiry; rotation replaces a
// slot's key and pushes its expiry forward. A zero expiry means the slot
// has never been issued.
type TokenSlots struct {
	BearerKey     []byte    // *_token_key for the bearer slot
	BearerExpiry  time.Time // *_token_expiry for the bearer slot
	RefreshKey    []byte    // *_token_key for the refresh slot
	RefreshExpiry time.Time // *_token_expiry for the refresh slot
}

// User mirrors the `users` table. Users are never hard-deleted;
// deactivation clears the active permission bit and leaves the row.
type User struct {
	ID         string    // users.user_id (uuid)
	Username   string    // users.username (unique)
	Password   string    // users.password (bcrypt hash)
	Access     uint8     // users.access (five-bit permission field)
	Memo       string    // users.memo
	LastActive time.Time // users.last_active
	Slots      TokenSlots
}

// ClientGrant mirrors the `client_grants` table: a machine identity
// with the same token-rotation shape as a user, keyed by client id.
type ClientGrant struct {
	ID     string // client_grants.client_id (uuid)
	Name   string // client_grants.name
	Memo   string // client_grants.memo
	Access uint8  // client_grants.access
	Slots  TokenSlots
}
