package store

import (
	"errors"
	"fmt"

	"github.com/roach88/idmap/internal/model"
)

// ErrorCode categorizes store errors.
type ErrorCode string

const (
	// ErrCodeEmptySourceKey indicates an operation that needs a source key
	// was called without one.
	ErrCodeEmptySourceKey ErrorCode = "EMPTY_SOURCE_KEY"

	// ErrCodeIncompleteSourceKey indicates a full source key was required
	// but one or more declared fields were missing or null.
	ErrCodeIncompleteSourceKey ErrorCode = "INCOMPLETE_SOURCE_KEY"

	// ErrCodeUnknownKeyFields indicates the input carried values for fields
	// that are not declared source id fields.
	ErrCodeUnknownKeyFields ErrorCode = "UNKNOWN_KEY_FIELDS"

	// ErrCodeNonIntegerDestination indicates HighestID was called for a
	// migration whose first destination id field is not an integer.
	ErrCodeNonIntegerDestination ErrorCode = "NON_INTEGER_DESTINATION"

	// ErrCodeSchemaFailure indicates the backing tables could not be
	// created or upgraded.
	ErrCodeSchemaFailure ErrorCode = "SCHEMA_FAILURE"

	// ErrCodeStorageFailure indicates a query or statement failed.
	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"

	// ErrCodeInvalidIdentity indicates the migration identity is malformed.
	ErrCodeInvalidIdentity ErrorCode = "INVALID_IDENTITY"
)

// Error is a fatal store failure. It names the migration and the operation
// that failed so batch logs can be traced back to a definition.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// MigrationID identifies the affected migration.
	MigrationID string

	// Op is the store operation that failed, e.g. "save id mapping".
	Op string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s: %s (migration=%s, op=%s)", e.Code, msg, e.MigrationID, e.Op)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsEmptySourceKey reports whether err is an empty source key error.
func IsEmptySourceKey(err error) bool {
	return CodeOf(err) == ErrCodeEmptySourceKey
}

// IsUnknownKeyFields reports whether err is an unknown key fields error.
func IsUnknownKeyFields(err error) bool {
	return CodeOf(err) == ErrCodeUnknownKeyFields
}

// IsNonIntegerDestination reports whether err is a non-integer destination error.
func IsNonIntegerDestination(err error) bool {
	return CodeOf(err) == ErrCodeNonIntegerDestination
}

// IsSchemaFailure reports whether err is a schema failure.
func IsSchemaFailure(err error) bool {
	return CodeOf(err) == ErrCodeSchemaFailure
}

func (s *Store) fail(code ErrorCode, op string, err error) *Error {
	return &Error{Code: code, MigrationID: s.id.ID, Op: op, Err: err}
}

func (s *Store) failf(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Code: code, MigrationID: s.id.ID, Op: op, Message: fmt.Sprintf(format, args...)}
}

// storageErr wraps a driver error as a storage failure.
func (s *Store) storageErr(op string, err error) error {
	return s.fail(ErrCodeStorageFailure, op, err)
}

// keyErr converts a codec key error into a store error.
func (s *Store) keyErr(op string, err error) error {
	var ke *model.KeyError
	if errors.As(err, &ke) && ke.Reason == model.ReasonUndeclared {
		return s.fail(ErrCodeUnknownKeyFields, op, err)
	}
	return s.fail(ErrCodeIncompleteSourceKey, op, err)
}
