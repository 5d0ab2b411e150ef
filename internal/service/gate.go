package service

import (
	"context"
	"time"

	"github.com/arcanalabs/piminder/internal/auth"
)

// Action is the unit of work the gate runs once the caller is
// authorized. It receives the transaction the gate owns; the gate
// commits on a nil or domain error return and the action's result is
// propagated verbatim.
type Action func(ctx context.Context, tx Tx) (any, error)

// Gate resolves a caller's identity and permission set and conditionally
// executes a requested action inside a transaction it owns. Token
// validation runs inside the same transaction so the rotation write and
// the action commit or roll back together.
type Gate struct {
	Store   Store
	Auth    *auth.Authenticator
	Timeout time.Duration
}

func NewGate(store Store, a *auth.Authenticator, timeout time.Duration) *Gate {
	return &Gate{Store: store, Auth: a, Timeout: timeout}
}

// WithCapability validates the bearer token, checks the named capability
// flag, and runs the action. On success the rotated replacement token is
// returned alongside the action's result.
func (g *Gate) WithCapability(ctx context.Context, token string, required auth.Capability, action Action) (any, string, error) {
	return g.run(ctx, token, func(p auth.Permissions) bool {
		return p.Has(required)
	}, action)
}

// WithLevel validates the bearer token and checks the subject's coarse
// permission level against a minimum threshold.
func (g *Gate) WithLevel(ctx context.Context, token string, minLevel int, action Action) (any, string, error) {
	return g.run(ctx, token, func(p auth.Permissions) bool {
		return p.Level() >= minLevel
	}, action)
}

func (g *Gate) run(ctx context.Context, token string, allow func(auth.Permissions) bool, action Action) (any, string, error) {
	parts, perr := auth.ParseToken(token)
	if perr != nil {
		// A token that does not even parse is rejected identically to
		// one that fails validation.
		return nil, "", ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	tx, err := g.Store.Begin(ctx)
	if err != nil {
		return nil, "", err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	subjectID, rotated, ok, err := g.Auth.Validate(ctx, tx.Sessions(), token, auth.SlotBearer)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, "", ErrUnauthorized
	}

	result, err := g.authorized(ctx, tx, parts.Body.Audience, subjectID, allow, action)
	if err != nil {
		return nil, "", err
	}
	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	committed = true
	return result, rotated, nil
}

// ExecuteIfAuthorized runs an action for an already-identified subject,
// owning its own transaction. It is the subject-id flavor of the gate,
// used where identity was established outside a bearer token.
func (g *Gate) ExecuteIfAuthorized(ctx context.Context, aud auth.Audience, subjectID string, required auth.Capability, action Action) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	tx, err := g.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	result, err := g.authorized(ctx, tx, aud, subjectID, func(p auth.Permissions) bool {
		return p.Has(required)
	}, action)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return result, nil
}

// authorized loads the subject's permission field, applies the allow
// predicate (the active bit is always required), and invokes the action.
// Validation and state-conflict errors from the action pass through
// unmodified.
func (g *Gate) authorized(ctx context.Context, tx Tx, aud auth.Audience, subjectID string, allow func(auth.Permissions) bool, action Action) (any, error) {
	perms, found, err := tx.Subjects().Permissions(ctx, aud, subjectID)
	if err != nil {
		return nil, err
	}
	if !found || !perms.Active || !allow(perms) {
		return nil, ErrUnauthorized
	}
	if aud == auth.AudienceUser {
		if err := tx.Users().TouchLastActive(ctx, subjectID, time.Now().UTC()); err != nil {
			return nil, err
		}
	}
	return action(ctx, tx)
}
