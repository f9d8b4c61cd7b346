package repo

import (
	"context"
	"errors"

	"LanChat/internal/apperror"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict means a uniqueness rule or a precondition on the row did not hold.
	ErrConflict = errors.New("record conflict")
	// ErrContention means optimistic retries were exhausted.
	ErrContention = errors.New("too much contention on record")
	// ErrTransient marks timeouts and network failures of the backing store.
	ErrTransient = errors.New("transient store failure")
)

type transientError struct{ cause error }

func (e *transientError) Error() string        { return "transient store failure: " + e.cause.Error() }
func (e *transientError) Unwrap() error        { return e.cause }
func (e *transientError) Is(target error) bool { return target == ErrTransient }

// Transient tags err so Translate reports it as unavailable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{cause: err}
}

// Translate maps storage errors into the application taxonomy. Transient
// failures become unavailable and are never retried by callers.
func Translate(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return notFound
	case errors.Is(err, ErrTransient),
		errors.Is(err, ErrContention),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return apperror.Unavailable(err)
	}

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Internal(err)
}
