package domain

import "errors"

// Sentinel errors shared by the core and its boundaries.
var (
	// ErrInvalidInput marks malformed or missing request fields. Nothing was attempted.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a referenced profile, section or conversation that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidSnapshot is returned when a snapshot is attached to the wrong document version.
	ErrInvalidSnapshot = errors.New("snapshot does not match current document version")
	// ErrStoreUnavailable wraps session store failures; callers may retry.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrCollaboratorTransient marks LLM or network failures worth retrying.
	ErrCollaboratorTransient = errors.New("transient collaborator failure")
	// ErrContextTooLong marks an LLM rejection caused by an oversized prompt.
	ErrContextTooLong = errors.New("prompt exceeds model context")
)
