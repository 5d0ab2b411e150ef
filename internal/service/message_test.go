package service_test

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/arcanalabs/piminder/internal/model"
	"github.com/arcanalabs/piminder/internal/service"
)

func messages(s *memStore) service.MessageStore {
	tx, _ := s.Begin(context.Background())
	return tx.Messages()
}

func validInput() service.MessageInput {
	return service.MessageInput{
		Name:       "disk-watcher",
		Body:       "root volume above 90%",
		ErrorLevel: "major",
		Timestamp:  "2025-06-01T09:30:00Z",
	}
}

func TestCreateMessage(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()

	m, err := service.CreateMessage(context.Background(), messages(s), validInput())
	c.Assert(err, qt.IsNil)
	c.Assert(m.ID, qt.Not(qt.Equals), "")
	c.Assert(m.Name, qt.Equals, "disk-watcher")
	c.Assert(m.Body, qt.Equals, "root volume above 90%")
	c.Assert(m.ErrorLevel, qt.Equals, model.SeverityMajor)
	c.Assert(m.TimeRaised, qt.Equals, time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC))
	c.Assert(m.Read, qt.IsFalse)
	c.Assert(s.messages, qt.HasLen, 1)
}

func TestCreateMessageAllowsDuplicates(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()
	store := messages(s)

	first, err := service.CreateMessage(context.Background(), store, validInput())
	c.Assert(err, qt.IsNil)
	second, err := service.CreateMessage(context.Background(), store, validInput())
	c.Assert(err, qt.IsNil)
	c.Assert(second.ID, qt.Not(qt.Equals), first.ID)
	c.Assert(s.messages, qt.HasLen, 2)
}

func TestCreateMessageValidation(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()
	store := messages(s)

	cases := []struct {
		name   string
		mutate func(*service.MessageInput)
		field  string
		detail string
	}{
		{"missing name", func(in *service.MessageInput) { in.Name = "" }, "name", "Field missing from request"},
		{"missing body", func(in *service.MessageInput) { in.Body = "" }, "message", "Field missing from request"},
		{"bad severity", func(in *service.MessageInput) { in.ErrorLevel = "critical" }, "errorlevel", "Error level not one of info, minor, or major."},
		{"missing severity", func(in *service.MessageInput) { in.ErrorLevel = "" }, "errorlevel", "Error level not one of info, minor, or major."},
		{"missing timestamp", func(in *service.MessageInput) { in.Timestamp = "" }, "timestamp", "Field missing from request"},
		{"bad timestamp", func(in *service.MessageInput) { in.Timestamp = "June 1st" }, "timestamp", "Timestamp not in YYYY-MM-DDTHH:MM:SSZ form."},
	}
	for _, tc := range cases {
		in := validInput()
		tc.mutate(&in)
		_, err := service.CreateMessage(context.Background(), store, in)
		verr, ok := err.(*service.ValidationError)
		c.Assert(ok, qt.IsTrue, qt.Commentf("%s: %v", tc.name, err))
		c.Assert(verr.Fields[tc.field], qt.Equals, tc.detail, qt.Commentf("%s", tc.name))
	}

	// No rows are written on a rejected payload.
	c.Assert(s.messages, qt.HasLen, 0)
}

func TestCreateMessageCollectsAllProblems(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()

	_, err := service.CreateMessage(context.Background(), messages(s), service.MessageInput{})
	verr, ok := err.(*service.ValidationError)
	c.Assert(ok, qt.IsTrue)
	c.Assert(verr.Fields, qt.HasLen, 4)
	c.Assert(verr.Error(), qt.Equals, "validation failed: errorlevel, message, name, timestamp")
}

func TestUpsertMessageInsertsFreshKey(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()

	m, err := service.UpsertMessage(context.Background(), messages(s), validInput(), false)
	c.Assert(err, qt.IsNil)
	c.Assert(m.Read, qt.IsFalse)
	c.Assert(s.messages, qt.HasLen, 1)
}

func TestUpsertMessageSuppressesDuplicate(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()
	store := messages(s)

	first, err := service.UpsertMessage(context.Background(), store, validInput(), false)
	c.Assert(err, qt.IsNil)

	again := validInput()
	again.Timestamp = "2025-06-01T10:00:00Z"
	m, err := service.UpsertMessage(context.Background(), store, again, false)
	c.Assert(err, qt.IsNil)

	// Same row, original raise time kept.
	c.Assert(m.ID, qt.Equals, first.ID)
	c.Assert(m.TimeRaised, qt.Equals, first.TimeRaised)
	c.Assert(s.messages, qt.HasLen, 1)
}

func TestUpsertMessageUpdateTimestamp(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()
	store := messages(s)

	first, err := service.UpsertMessage(context.Background(), store, validInput(), false)
	c.Assert(err, qt.IsNil)

	again := validInput()
	again.Timestamp = "2025-06-01T10:00:00Z"
	m, err := service.UpsertMessage(context.Background(), store, again, true)
	c.Assert(err, qt.IsNil)

	c.Assert(m.ID, qt.Equals, first.ID)
	c.Assert(m.TimeRaised, qt.Equals, time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	c.Assert(s.messages[first.ID].TimeRaised, qt.Equals, m.TimeRaised)
}

func TestUpsertMessageReopensAcknowledged(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()
	store := messages(s)

	first, err := service.UpsertMessage(context.Background(), store, validInput(), false)
	c.Assert(err, qt.IsNil)
	c.Assert(service.AcknowledgeMessage(context.Background(), store, first.ID), qt.IsNil)
	c.Assert(s.messages[first.ID].Read, qt.IsTrue)

	// A repeat raise of an acknowledged alert makes it unread again.
	m, err := service.UpsertMessage(context.Background(), store, validInput(), false)
	c.Assert(err, qt.IsNil)
	c.Assert(m.ID, qt.Equals, first.ID)
	c.Assert(m.Read, qt.IsFalse)
	c.Assert(s.messages[first.ID].Read, qt.IsFalse)
}

func TestUpsertMessageKeyIsExactMatch(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()
	store := messages(s)

	_, err := service.UpsertMessage(context.Background(), store, validInput(), false)
	c.Assert(err, qt.IsNil)

	// A different body under the same name is a different alert.
	other := validInput()
	other.Body = "root volume above 95%"
	_, err = service.UpsertMessage(context.Background(), store, other, false)
	c.Assert(err, qt.IsNil)
	c.Assert(s.messages, qt.HasLen, 2)
}

func TestAcknowledgeMessage(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()
	store := messages(s)

	m, err := service.CreateMessage(context.Background(), store, validInput())
	c.Assert(err, qt.IsNil)

	c.Assert(service.AcknowledgeMessage(context.Background(), store, m.ID), qt.IsNil)
	c.Assert(s.messages[m.ID].Read, qt.IsTrue)

	// Second acknowledgement is a state conflict.
	err = service.AcknowledgeMessage(context.Background(), store, m.ID)
	c.Assert(err, qt.Equals, service.ErrAlreadyProcessed)

	err = service.AcknowledgeMessage(context.Background(), store, "no-such-id")
	c.Assert(err, qt.Equals, service.ErrNotFound)
}

func TestDeleteMessage(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()
	store := messages(s)

	m, err := service.CreateMessage(context.Background(), store, validInput())
	c.Assert(err, qt.IsNil)

	c.Assert(service.DeleteMessage(context.Background(), store, m.ID), qt.IsNil)
	c.Assert(s.messages, qt.HasLen, 0)

	err = service.DeleteMessage(context.Background(), store, m.ID)
	c.Assert(err, qt.Equals, service.ErrNotFound)
}

func TestListMessagesNewestFirst(t *testing.T) {
	c := qt.New(t)
	s := newMemStore()
	store := messages(s)

	older := validInput()
	older.Body = "older"
	older.Timestamp = "2025-06-01T08:00:00Z"
	newer := validInput()
	newer.Body = "newer"
	newer.Timestamp = "2025-06-01T11:00:00Z"

	_, err := service.CreateMessage(context.Background(), store, older)
	c.Assert(err, qt.IsNil)
	_, err = service.CreateMessage(context.Background(), store, newer)
	c.Assert(err, qt.IsNil)

	list, err := service.ListMessages(context.Background(), store)
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 2)
	c.Assert(list[0].Body, qt.Equals, "newer")
	c.Assert(list[1].Body, qt.Equals, "older")
}
