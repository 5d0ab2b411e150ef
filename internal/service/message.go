package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arcanalabs/piminder/internal/model"
)

// MessageInput is the raw producer payload before validation. Field
// names in validation errors use the external JSON spelling.
type MessageInput struct {
	Name       string
	Body       string
	ErrorLevel string
	Timestamp  string
}

// validateMessageInput checks the producer payload and returns the
// parsed severity and raise time. All problems are collected into a
// single field-error map so the producer sees everything at once.
func validateMessageInput(in MessageInput) (model.Severity, time.Time, *ValidationError) {
	fields := map[string]string{}
	if in.Name == "" {
		fields["name"] = "Field missing from request"
	}
	if in.Body == "" {
		fields["message"] = "Field missing from request"
	}
	severity, ok := model.ParseSeverity(in.ErrorLevel)
	if !ok {
		fields["errorlevel"] = "Error level not one of info, minor, or major."
	}
	var raisedAt time.Time
	if in.Timestamp == "" {
		fields["timestamp"] = "Field missing from request"
	} else {
		t, err := time.Parse(model.TimestampLayout, in.Timestamp)
		if err != nil {
			fields["timestamp"] = "Timestamp not in YYYY-MM-DDTHH:MM:SSZ form."
		} else {
			raisedAt = t.UTC()
		}
	}
	if len(fields) > 0 {
		return "", time.Time{}, &ValidationError{Fields: fields}
	}
	return severity, raisedAt, nil
}

// CreateMessage inserts a new message row unconditionally. Duplicate
// (name, message) pairs are allowed on this path.
func CreateMessage(ctx context.Context, store MessageStore, in MessageInput) (model.Message, error) {
	severity, raisedAt, verr := validateMessageInput(in)
	if verr != nil {
		return model.Message{}, verr
	}
	m := model.Message{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Body:       in.Body,
		ErrorLevel: severity,
		TimeRaised: raisedAt,
		Read:       false,
	}
	if err := store.Insert(ctx, m); err != nil {
		return model.Message{}, err
	}
	return m, nil
}

// UpsertMessage is the unique-message protocol: at most one row per
// (name, message) key. A fresh key inserts; an existing row has its
// read flag cleared (a repeat of an unresolved alert is new again) and,
// when updateTimestamp is set, its raise time overwritten. The dedup
// lookup locks the matched row, so concurrent producers racing on the
// same key serialize rather than double-insert or lost-update.
func UpsertMessage(ctx context.Context, store MessageStore, in MessageInput, updateTimestamp bool) (model.Message, error) {
	severity, raisedAt, verr := validateMessageInput(in)
	if verr != nil {
		return model.Message{}, verr
	}

	existing, found, err := store.ByDedupKey(ctx, in.Name, in.Body)
	if err != nil {
		return model.Message{}, err
	}
	if !found {
		m := model.Message{
			ID:         uuid.NewString(),
			Name:       in.Name,
			Body:       in.Body,
			ErrorLevel: severity,
			TimeRaised: raisedAt,
			Read:       false,
		}
		if err := store.Insert(ctx, m); err != nil {
			return model.Message{}, err
		}
		return m, nil
	}

	if err := store.ResetDedup(ctx, existing.ID, raisedAt, updateTimestamp); err != nil {
		return model.Message{}, err
	}
	existing.Read = false
	if updateTimestamp {
		existing.TimeRaised = raisedAt
	}
	return existing, nil
}

// AcknowledgeMessage flips a message's read flag. Acknowledging an
// already-read message is a state conflict and leaves the row alone.
func AcknowledgeMessage(ctx context.Context, store MessageStore, id string) error {
	m, found, err := store.ByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	if m.Read {
		return ErrAlreadyProcessed
	}
	return store.MarkRead(ctx, id)
}

// DeleteMessage removes a message row permanently.
func DeleteMessage(ctx context.Context, store MessageStore, id string) error {
	_, found, err := store.ByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ErrNotFound
	}
	return store.Delete(ctx, id)
}

// ListMessages returns all messages newest first.
func ListMessages(ctx context.Context, store MessageStore) ([]model.Message, error) {
	return store.List(ctx)
}
