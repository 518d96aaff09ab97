// Package repository defines the data access layer and the error values
// shared by its repositories. These sentinel values allow handlers to
// distinguish failure scenarios without inspecting driver errors.
package repository

import (
	"errors"
	"strings"
)

// ErrForbidden is returned when the caller attempts an operation on a
// listing whose seller email differs from the caller's. Handlers should
// translate this into an HTTP 403 response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write collides with existing state.
// Handlers should translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrListingNotFound is returned when no listing has the requested id.
var ErrListingNotFound = errors.New("listing not found")

// ErrEmailExists is returned when signing up with an address already in use.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid covers unknown, expired, revoked and already used tokens.
var ErrTokenInvalid = errors.New("token invalid or expired")

// isDuplicateKey reports MySQL error 1062 (duplicate entry).
func isDuplicateKey(err error) bool {
	return err != nil && strings.Contains(err.Error(), "1062")
}
