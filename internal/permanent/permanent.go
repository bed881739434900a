// Package permanent tags errors that must not be retried.
package permanent

import "errors"

type permanentError struct {
	err error
}

func (e permanentError) Error() string {
	if e.err == nil {
		return "permanent error"
	}
	return e.err.Error()
}

func (e permanentError) Unwrap() error {
	return e.err
}

// Mark wraps err so that Is reports it as non-retryable. Mark(nil) is nil.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	if Is(err) {
		return err
	}
	return permanentError{err: err}
}

// Is reports whether err, or anything it wraps, was marked permanent.
func Is(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
