package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/arcanalabs/piminder/internal/auth"
)

// slotKey addresses one token slot in the fake store.
type slotKey struct {
	aud  auth.Audience
	id   string
	slot auth.Slot
}

// fakeSessionStore keeps token slots in a map and counts writes.
type fakeSessionStore struct {
	sessions  map[slotKey]auth.Session
	rotations int
	lookupErr error
	rotateErr error
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[slotKey]auth.Session{}}
}

func (s *fakeSessionStore) Lookup(_ context.Context, aud auth.Audience, id string, slot auth.Slot) (auth.Session, bool, error) {
	if s.lookupErr != nil {
		return auth.Session{}, false, s.lookupErr
	}
	sess, ok := s.sessions[slotKey{aud, id, slot}]
	return sess, ok, nil
}

func (s *fakeSessionStore) Rotate(_ context.Context, aud auth.Audience, id string, slot auth.Slot, key []byte, expiry time.Time) error {
	if s.rotateErr != nil {
		return s.rotateErr
	}
	s.rotations++
	s.sessions[slotKey{aud, id, slot}] = auth.Session{Key: key, Expiry: expiry}
	return nil
}

func testAuthenticator(now time.Time) *auth.Authenticator {
	a := auth.NewAuthenticator("test-net", 30*time.Minute, 12*time.Hour)
	a.Now = func() time.Time { return now }
	counter := byte(0)
	a.NewKey = func() ([]byte, error) {
		counter++
		key := make([]byte, auth.KeySize)
		for i := range key {
			key[i] = counter
		}
		return key, nil
	}
	return a
}

// issueFor seeds a slot in the store and returns a valid token for it.
func issueFor(c *qt.C, a *auth.Authenticator, store *fakeSessionStore, aud auth.Audience, id string, slot auth.Slot) string {
	token, _, err := a.Issue(context.Background(), store, aud, id, slot)
	c.Assert(err, qt.IsNil)
	store.rotations = 0 // only count writes made by the code under test
	return token
}

func TestValidateAcceptsAndRotates(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := testAuthenticator(now)
	store := newFakeSessionStore()
	token := issueFor(c, a, store, auth.AudienceUser, "alice", auth.SlotBearer)

	subject, rotated, ok, err := a.Validate(context.Background(), store, token, auth.SlotBearer)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(subject, qt.Equals, "alice")
	c.Assert(rotated, qt.Not(qt.Equals), token)
	c.Assert(store.rotations, qt.Equals, 1)

	// The replacement is immediately valid for the same slot.
	subject, _, ok, err = a.Validate(context.Background(), store, rotated, auth.SlotBearer)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(subject, qt.Equals, "alice")
}

func TestValidateRejectsReplayedToken(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := testAuthenticator(now)
	store := newFakeSessionStore()
	token := issueFor(c, a, store, auth.AudienceUser, "alice", auth.SlotBearer)

	_, _, ok, err := a.Validate(context.Background(), store, token, auth.SlotBearer)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	// Rotation replaced the slot key, so the original token is dead.
	_, _, ok, err = a.Validate(context.Background(), store, token, auth.SlotBearer)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func TestValidateRejectsExpiredSlot(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := testAuthenticator(now)
	store := newFakeSessionStore()
	token := issueFor(c, a, store, auth.AudienceUser, "alice", auth.SlotBearer)

	// Jump past the bearer TTL. The store expiry governs, whatever the
	// token's own exp claim says.
	a.Now = func() time.Time { return now.Add(31 * time.Minute) }
	_, _, ok, err := a.Validate(context.Background(), store, token, auth.SlotBearer)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	c.Assert(store.rotations, qt.Equals, 0)
}

func TestValidateExpiryBoundaryIsExclusive(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := testAuthenticator(now)
	store := newFakeSessionStore()
	token := issueFor(c, a, store, auth.AudienceUser, "alice", auth.SlotBearer)

	// A token presented exactly at its expiry instant is already dead.
	a.Now = func() time.Time { return now.Add(30 * time.Minute) }
	_, _, ok, err := a.Validate(context.Background(), store, token, auth.SlotBearer)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func TestValidateRejectsForgedSignature(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := testAuthenticator(now)
	store := newFakeSessionStore()
	token := issueFor(c, a, store, auth.AudienceUser, "alice", auth.SlotBearer)

	parts, err := auth.ParseToken(token)
	c.Assert(err, qt.IsNil)
	forged := parts.SigningInput + "." + auth.Sign([]byte("wrong key"), parts.SigningInput)

	_, _, ok, err := a.Validate(context.Background(), store, forged, auth.SlotBearer)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	c.Assert(store.rotations, qt.Equals, 0)
}

func TestValidateUniformRejection(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := testAuthenticator(now)
	store := newFakeSessionStore()
	valid := issueFor(c, a, store, auth.AudienceUser, "alice", auth.SlotBearer)

	// Token for a subject the store has never seen.
	otherKey := make([]byte, auth.KeySize)
	unknown, _, err := auth.BuildToken(now, time.Hour, otherKey, "ghost", "test-net", auth.AudienceUser)
	c.Assert(err, qt.IsNil)

	// Token with an audience outside the two partitions.
	badAud, _, err := auth.BuildToken(now, time.Hour, otherKey, "alice", "test-net", auth.Audience("robot"))
	c.Assert(err, qt.IsNil)

	// Valid bearer token presented on the refresh slot.
	wrongSlot := valid

	for _, token := range []string{"garbage", unknown, badAud} {
		_, _, ok, err := a.Validate(context.Background(), store, token, auth.SlotBearer)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)
	}
	_, _, ok, err := a.Validate(context.Background(), store, wrongSlot, auth.SlotRefresh)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	c.Assert(store.rotations, qt.Equals, 0)
}

func TestValidateSurfacesStoreErrors(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := testAuthenticator(now)
	store := newFakeSessionStore()
	token := issueFor(c, a, store, auth.AudienceUser, "alice", auth.SlotBearer)

	boom := errors.New("connection lost")
	store.lookupErr = boom
	_, _, ok, err := a.Validate(context.Background(), store, token, auth.SlotBearer)
	c.Assert(err, qt.Equals, boom)
	c.Assert(ok, qt.IsFalse)

	store.lookupErr = nil
	store.rotateErr = boom
	_, _, ok, err = a.Validate(context.Background(), store, token, auth.SlotBearer)
	c.Assert(err, qt.Equals, boom)
	c.Assert(ok, qt.IsFalse)
}

func TestSlotsAreIndependent(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := testAuthenticator(now)
	store := newFakeSessionStore()

	bearer := issueFor(c, a, store, auth.AudienceClient, "svc-1", auth.SlotBearer)
	refresh, _, err := a.Issue(context.Background(), store, auth.AudienceClient, "svc-1", auth.SlotRefresh)
	c.Assert(err, qt.IsNil)

	// Rotating the bearer slot leaves the refresh slot untouched.
	_, _, ok, err := a.Validate(context.Background(), store, bearer, auth.SlotBearer)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)

	_, _, ok, err = a.Validate(context.Background(), store, refresh, auth.SlotRefresh)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
}

func TestIssueUsesSlotTTL(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a := testAuthenticator(now)
	store := newFakeSessionStore()

	_, bearerExp, err := a.Issue(context.Background(), store, auth.AudienceUser, "alice", auth.SlotBearer)
	c.Assert(err, qt.IsNil)
	c.Assert(bearerExp, qt.Equals, now.Add(30*time.Minute))

	_, refreshExp, err := a.Issue(context.Background(), store, auth.AudienceUser, "alice", auth.SlotRefresh)
	c.Assert(err, qt.IsNil)
	c.Assert(refreshExp, qt.Equals, now.Add(12*time.Hour))
}
