// Package service holds the transactional core of piminder: the
// authorization gate, the message lifecycle including the unique-message
// upsert protocol, and subject administration. It talks to persistence
// only through the Store interfaces so the check-then-act logic is
// exercisable without a live database.
package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnauthorized is the uniform rejection for every failed token,
// capability, or level check. It deliberately carries no detail about
// which check failed.
var ErrUnauthorized = errors.New("unauthorized")

// ErrNotFound signals an operation against a row that does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyProcessed signals a state conflict such as acknowledging a
// message that is already marked read.
var ErrAlreadyProcessed = errors.New("already processed")

// ErrUsernameExists signals a duplicate username on user creation.
var ErrUsernameExists = errors.New("username already exists")

// ValidationError collects field-level problems with a request body.
// The map is keyed by field name in its external JSON spelling.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		names = append(names, f)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

// invalid builds a ValidationError for a single field.
func invalid(field, problem string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: problem}}
}
