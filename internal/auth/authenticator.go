package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"fmt"
	"time"
)

// Session is the persisted state of one token slot: the current signing
// key plus its expiry.
type Session struct {
	Key    []byte
	Expiry time.Time
}

// SessionStore abstracts the persisted token slots per subject. The
// authenticator only ever reads-then-replaces a slot; persistence and
// row locking belong to the implementation. Lookup must lock the
// subject's row for the remainder of the enclosing transaction so two
// concurrent rotations on the same slot serialize.
type SessionStore interface {
	Lookup(ctx context.Context, aud Audience, subjectID string, slot Slot) (Session, bool, error)
	Rotate(ctx context.Context, aud Audience, subjectID string, slot Slot, key []byte, expiry time.Time) error
}

// KeySize is the length of freshly minted signing keys.
const KeySize = 64

// Authenticator validates presented tokens against a SessionStore and
// issues rotated replacements. Now and NewKey default to wall clock and
// crypto/rand; tests substitute both.
type Authenticator struct {
	Issuer     string
	BearerTTL  time.Duration
	RefreshTTL time.Duration
	Now        func() time.Time
	NewKey     func() ([]byte, error)
}

func NewAuthenticator(issuer string, bearerTTL, refreshTTL time.Duration) *Authenticator {
	return &Authenticator{Issuer: issuer, BearerTTL: bearerTTL, RefreshTTL: refreshTTL}
}

func (a *Authenticator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *Authenticator) newKey() ([]byte, error) {
	if a.NewKey != nil {
		return a.NewKey()
	}
	return RandomKey()
}

// RandomKey returns KeySize bytes of fresh entropy for a token slot.
func RandomKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("mint signing key: %w", err)
	}
	return key, nil
}

// TTL returns the configured time to live for a slot.
func (a *Authenticator) TTL(slot Slot) time.Duration {
	if slot == SlotRefresh {
		return a.RefreshTTL
	}
	return a.BearerTTL
}

// Validate checks a presented token against the store and, on success,
// rotates the matching slot and returns the subject id plus the
// replacement token. Every rejection path returns ok=false with no
// detail: a malformed token, an unknown subject, an expired slot, and a
// bad signature are indistinguishable to the caller. A non-nil error is
// returned only for store failures; err != nil implies ok == false.
//
// The slot is the caller's intent (bearer for API calls, refresh for the
// token exchange); the audience partition comes from the token body.
// Successful validation performs exactly one write, committed as part of
// the transaction the store handle is scoped to.
func (a *Authenticator) Validate(ctx context.Context, store SessionStore, token string, slot Slot) (subjectID, rotated string, ok bool, err error) {
	parts, perr := ParseToken(token)
	if perr != nil {
		return "", "", false, nil
	}
	aud := parts.Body.Audience
	if aud != AudienceUser && aud != AudienceClient {
		return "", "", false, nil
	}

	session, found, err := store.Lookup(ctx, aud, parts.Body.Subject, slot)
	if err != nil {
		return "", "", false, err
	}
	// Unknown subject fails exactly like a bad signature so callers
	// cannot probe for which subjects exist.
	if !found {
		return "", "", false, nil
	}

	// The store's recorded expiry is authoritative; the exp claim in the
	// token body is never trusted.
	if !a.now().Before(session.Expiry) {
		return "", "", false, nil
	}

	expected := Sign(session.Key, parts.SigningInput)
	if !hmac.Equal([]byte(expected), []byte(parts.Signature)) {
		return "", "", false, nil
	}

	key, err := a.newKey()
	if err != nil {
		return "", "", false, err
	}
	newToken, expiry, err := BuildToken(a.now(), a.TTL(slot), key, parts.Body.Subject, a.Issuer, aud)
	if err != nil {
		return "", "", false, err
	}
	if err := store.Rotate(ctx, aud, parts.Body.Subject, slot, key, expiry); err != nil {
		return "", "", false, err
	}
	return parts.Body.Subject, newToken, true, nil
}

// Issue mints a brand-new token for a slot without validating a prior
// one. It is used by login and by client-grant creation, after the
// caller has authenticated the subject by other means. The fresh key and
// expiry are persisted through the store.
func (a *Authenticator) Issue(ctx context.Context, store SessionStore, aud Audience, subjectID string, slot Slot) (string, time.Time, error) {
	key, err := a.newKey()
	if err != nil {
		return "", time.Time{}, err
	}
	token, expiry, err := BuildToken(a.now(), a.TTL(slot), key, subjectID, a.Issuer, aud)
	if err != nil {
		return "", time.Time{}, err
	}
	if err := store.Rotate(ctx, aud, subjectID, slot, key, expiry); err != nil {
		return "", time.Time{}, err
	}
	return token, expiry, nil
}
