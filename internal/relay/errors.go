package relay

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed submission or query.
type ErrorKind string

const (
	// KindValidation means the input was rejected; nothing was stored or
	// pushed. Retrying the same input fails again.
	KindValidation ErrorKind = "validation"
	// KindStorage means the store could not durably record or read; the
	// caller may retry.
	KindStorage ErrorKind = "storage"
)

// Error is returned by Relay operations.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("relay: %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("relay: %s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func validationError(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

func storageError(reason string, err error) *Error {
	return &Error{Kind: KindStorage, Reason: reason, Err: err}
}

// IsValidation reports whether err is a relay validation error.
func IsValidation(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindValidation
}

// IsRetryable reports whether err is a transient storage failure.
func IsRetryable(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == KindStorage
}
