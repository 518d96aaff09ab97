package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoSession is returned by operations that need a signed-in user.
var ErrNoSession = errors.New("not signed in")

// ValidationError is a client-side precondition failure detected before any
// backend call was issued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Invalid builds a ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// BackendError is any failure reported by the auth, listing or object
// backends. Status is the HTTP status when the failure came from the wire
// and zero for transport errors.
type BackendError struct {
	Status  int
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	case e.Status != 0:
		return http.StatusText(e.Status)
	default:
		return "backend error"
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

// AsBackendError wraps err in a BackendError unless it already is one (or is
// a ValidationError or ErrNoSession, which keep their identity).
func AsBackendError(err error) error {
	if err == nil {
		return nil
	}
	var be *BackendError
	var ve *ValidationError
	if errors.As(err, &be) || errors.As(err, &ve) || errors.Is(err, ErrNoSession) {
		return err
	}
	return &BackendError{Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StatusOf returns the HTTP status carried by a BackendError in err's chain,
// or zero.
func StatusOf(err error) int {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Status
	}
	return 0
}
