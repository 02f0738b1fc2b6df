package models

import "errors"

var (
	// ErrNotFound is returned when a referenced question or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated is returned for writes without an identity.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the identity lacks the role for a write.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument is returned for malformed input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDraftExists aborts a draft insertion that lost the race to another draft.
	ErrDraftExists = errors.New("draft answer already exists")
)
