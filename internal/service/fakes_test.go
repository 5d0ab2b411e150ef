package service_test

import (
	"context"
	"sort"
	"time"

	"github.com/arcanalabs/piminder/internal/auth"
	"github.com/arcanalabs/piminder/internal/model"
	"github.com/arcanalabs/piminder/internal/service"
)

// The fakes below give the service layer an in-memory store. They
// implement the same interfaces as internal/repository but keep rows in
// maps and count commits, rollbacks, and slot rotations so tests can
// assert on transaction behavior.

type subjectKey struct {
	aud auth.Audience
	id  string
}

type sessionKey struct {
	aud  auth.Audience
	id   string
	slot auth.Slot
}

type memStore struct {
	messages map[string]model.Message
	order    []string // message insertion order
	users    map[string]model.User
	clients  map[string]model.ClientGrant
	perms    map[subjectKey]auth.Permissions
	sessions map[sessionKey]auth.Session

	rotations int
	begins    int
	commits   int
	rollbacks int
	beginErr  error
}

func newMemStore() *memStore {
	return &memStore{
		messages: map[string]model.Message{},
		users:    map[string]model.User{},
		clients:  map[string]model.ClientGrant{},
		perms:    map[subjectKey]auth.Permissions{},
		sessions: map[sessionKey]auth.Session{},
	}
}

func (s *memStore) Begin(context.Context) (service.Tx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	s.begins++
	return &memTx{s: s}, nil
}

// addUser registers a user with the given access field and returns it.
func (s *memStore) addUser(id, username, passwordHash string, perms auth.Permissions) model.User {
	u := model.User{ID: id, Username: username, Password: passwordHash, Access: perms.Encode()}
	s.users[id] = u
	s.perms[subjectKey{auth.AudienceUser, id}] = perms
	return u
}

func (s *memStore) addClient(id, name string, perms auth.Permissions) model.ClientGrant {
	c := model.ClientGrant{ID: id, Name: name, Access: perms.Encode()}
	s.clients[id] = c
	s.perms[subjectKey{auth.AudienceClient, id}] = perms
	return c
}

type memTx struct {
	s *memStore
}

func (t *memTx) Commit() error   { t.s.commits++; return nil }
func (t *memTx) Rollback() error { t.s.rollbacks++; return nil }

func (t *memTx) Sessions() auth.SessionStore    { return (*memSessions)(t) }
func (t *memTx) Subjects() service.SubjectStore { return (*memSubjects)(t) }
func (t *memTx) Messages() service.MessageStore { return (*memMessages)(t) }
func (t *memTx) Users() service.UserStore       { return (*memUsers)(t) }
func (t *memTx) Clients() service.ClientStore   { return (*memClients)(t) }

// ----- sessions -----

type memSessions memTx

func (m *memSessions) Lookup(_ context.Context, aud auth.Audience, id string, slot auth.Slot) (auth.Session, bool, error) {
	sess, ok := m.s.sessions[sessionKey{aud, id, slot}]
	return sess, ok, nil
}

func (m *memSessions) Rotate(_ context.Context, aud auth.Audience, id string, slot auth.Slot, key []byte, expiry time.Time) error {
	m.s.rotations++
	m.s.sessions[sessionKey{aud, id, slot}] = auth.Session{Key: key, Expiry: expiry}
	return nil
}

// ----- subjects -----

type memSubjects memTx

func (m *memSubjects) Permissions(_ context.Context, aud auth.Audience, id string) (auth.Permissions, bool, error) {
	p, ok := m.s.perms[subjectKey{aud, id}]
	return p, ok, nil
}

// ----- messages -----

type memMessages memTx

func (m *memMessages) Insert(_ context.Context, msg model.Message) error {
	m.s.messages[msg.ID] = msg
	m.s.order = append(m.s.order, msg.ID)
	return nil
}

func (m *memMessages) ByID(_ context.Context, id string) (model.Message, bool, error) {
	msg, ok := m.s.messages[id]
	return msg, ok, nil
}

func (m *memMessages) ByDedupKey(_ context.Context, name, body string) (model.Message, bool, error) {
	for _, id := range m.s.order {
		msg := m.s.messages[id]
		if msg.Name == name && msg.Body == body {
			return msg, true, nil
		}
	}
	return model.Message{}, false, nil
}

func (m *memMessages) MarkRead(_ context.Context, id string) error {
	msg := m.s.messages[id]
	msg.Read = true
	m.s.messages[id] = msg
	return nil
}

func (m *memMessages) ResetDedup(_ context.Context, id string, raisedAt time.Time, updateTimestamp bool) error {
	msg := m.s.messages[id]
	msg.Read = false
	if updateTimestamp {
		msg.TimeRaised = raisedAt
	}
	m.s.messages[id] = msg
	return nil
}

func (m *memMessages) Delete(_ context.Context, id string) error {
	delete(m.s.messages, id)
	return nil
}

func (m *memMessages) List(_ context.Context) ([]model.Message, error) {
	out := make([]model.Message, 0, len(m.s.messages))
	for _, id := range m.s.order {
		if msg, ok := m.s.messages[id]; ok {
			out = append(out, msg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TimeRaised.After(out[j].TimeRaised) })
	return out, nil
}

// ----- users -----

type memUsers memTx

func (m *memUsers) Insert(_ context.Context, u model.User) error {
	m.s.users[u.ID] = u
	m.s.perms[subjectKey{auth.AudienceUser, u.ID}] = auth.DecodePermissions(u.Access)
	return nil
}

func (m *memUsers) ByUsername(_ context.Context, username string) (model.User, bool, error) {
	for _, u := range m.s.users {
		if u.Username == username {
			return u, true, nil
		}
	}
	return model.User{}, false, nil
}

func (m *memUsers) ByID(_ context.Context, id string) (model.User, bool, error) {
	u, ok := m.s.users[id]
	return u, ok, nil
}

func (m *memUsers) Update(_ context.Context, u model.User) error {
	m.s.users[u.ID] = u
	m.s.perms[subjectKey{auth.AudienceUser, u.ID}] = auth.DecodePermissions(u.Access)
	return nil
}

func (m *memUsers) List(_ context.Context) ([]model.User, error) {
	out := make([]model.User, 0, len(m.s.users))
	for _, u := range m.s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memUsers) TouchLastActive(_ context.Context, id string, at time.Time) error {
	u, ok := m.s.users[id]
	if !ok {
		return nil
	}
	u.LastActive = at
	m.s.users[id] = u
	return nil
}

// ----- clients -----

type memClients memTx

func (m *memClients) Insert(_ context.Context, c model.ClientGrant) error {
	m.s.clients[c.ID] = c
	m.s.perms[subjectKey{auth.AudienceClient, c.ID}] = auth.DecodePermissions(c.Access)
	return nil
}

func (m *memClients) ByID(_ context.Context, id string) (model.ClientGrant, bool, error) {
	c, ok := m.s.clients[id]
	return c, ok, nil
}

func (m *memClients) List(_ context.Context) ([]model.ClientGrant, error) {
	out := make([]model.ClientGrant, 0, len(m.s.clients))
	for _, c := range m.s.clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memClients) Revoke(_ context.Context, id string, at time.Time) (bool, error) {
	if _, ok := m.s.clients[id]; !ok {
		return false, nil
	}
	for _, slot := range []auth.Slot{auth.SlotBearer, auth.SlotRefresh} {
		key := sessionKey{auth.AudienceClient, id, slot}
		if sess, ok := m.s.sessions[key]; ok {
			sess.Expiry = at
			m.s.sessions[key] = sess
		}
	}
	return true, nil
}
