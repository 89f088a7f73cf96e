package tracker

import (
	"errors"
	"fmt"

	"agency-tracker/pkg/datastore"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
)

// ValidationError names the field a request got wrong. It matches ErrValidation
// under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func forbidden(action string) error {
	return fmt.Errorf("%w: %s requires an admin", ErrForbidden, action)
}

// classified tags a store error with a tracker sentinel while keeping the
// store's message.
type classified struct {
	kind error
	err  error
}

func (e *classified) Error() string   { return e.err.Error() }
func (e *classified) Unwrap() []error { return []error{e.kind, e.err} }

// storeErr maps datastore sentinels onto the tracker's taxonomy and leaves
// every other failure as is.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		err = &classified{kind: ErrNotFound, err: err}
	case errors.Is(err, datastore.ErrConstraint), errors.Is(err, datastore.ErrInvalidValue):
		err = &classified{kind: ErrValidation, err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
