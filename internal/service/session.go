package service

import (
	"context"
	"time"

	"github.com/arcanalabs/piminder/internal/auth"
	"github.com/arcanalabs/piminder/internal/utils"
)

// TokenPair is a freshly issued bearer/refresh pair for one subject.
type TokenPair struct {
	Bearer        string
	BearerExpiry  time.Time
	Refresh       string
	RefreshExpiry time.Time
}

// Login verifies a username/password pair and, on success, issues a
// fresh token pair, replacing whatever keys the subject's slots held.
// Unknown username, wrong password, and an inactive account all fail as
// the same ErrUnauthorized.
func (g *Gate) Login(ctx context.Context, username, password string) (TokenPair, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	tx, err := g.Store.Begin(ctx)
	if err != nil {
		return TokenPair{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	u, found, err := tx.Users().ByUsername(ctx, username)
	if err != nil {
		return TokenPair{}, err
	}
	if !found || !utils.VerifyPassword(u.Password, password) {
		return TokenPair{}, ErrUnauthorized
	}
	if !auth.DecodePermissions(u.Access).Active {
		return TokenPair{}, ErrUnauthorized
	}

	pair, err := g.IssuePair(ctx, tx, auth.AudienceUser, u.ID)
	if err != nil {
		return TokenPair{}, err
	}
	if err := tx.Users().TouchLastActive(ctx, u.ID, time.Now().UTC()); err != nil {
		return TokenPair{}, err
	}
	if err := tx.Commit(); err != nil {
		return TokenPair{}, err
	}
	committed = true
	return pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. The refresh
// slot rotates through the authenticator (invalidating the presented
// token) and a fresh bearer token is minted for the same subject.
func (g *Gate) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	parts, perr := auth.ParseToken(refreshToken)
	if perr != nil {
		return TokenPair{}, ErrUnauthorized
	}

	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	tx, err := g.Store.Begin(ctx)
	if err != nil {
		return TokenPair{}, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	subjectID, rotated, ok, err := g.Auth.Validate(ctx, tx.Sessions(), refreshToken, auth.SlotRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	if !ok {
		return TokenPair{}, ErrUnauthorized
	}

	bearer, bearerExp, err := g.Auth.Issue(ctx, tx.Sessions(), parts.Body.Audience, subjectID, auth.SlotBearer)
	if err != nil {
		return TokenPair{}, err
	}
	if err := tx.Commit(); err != nil {
		return TokenPair{}, err
	}
	committed = true
	return TokenPair{
		Bearer:        bearer,
		BearerExpiry:  bearerExp,
		Refresh:       rotated,
		RefreshExpiry: tokenExpiry(rotated),
	}, nil
}

// IssuePair mints both slots for a subject inside an existing
// transaction. Client-grant creation uses it to hand the new machine
// identity its first pair.
func (g *Gate) IssuePair(ctx context.Context, tx Tx, aud auth.Audience, subjectID string) (TokenPair, error) {
	bearer, bearerExp, err := g.Auth.Issue(ctx, tx.Sessions(), aud, subjectID, auth.SlotBearer)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := g.Auth.Issue(ctx, tx.Sessions(), aud, subjectID, auth.SlotRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		Bearer:        bearer,
		BearerExpiry:  bearerExp,
		Refresh:       refresh,
		RefreshExpiry: refreshExp,
	}, nil
}

// tokenExpiry reads the exp claim out of a token this service just
// built. It returns the zero time on a token that does not parse.
func tokenExpiry(token string) time.Time {
	parts, err := auth.ParseToken(token)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(int64(parts.Body.Expiry), 0).UTC()
}
