package domain

import "errors"

// Domain-level errors. They are recoverable at the use-case level and never
// dead-letter a request; infrastructure errors are wrapped separately by the
// packages that produce them.
var (
	// ErrUserNotFound indicates the user has no record in the queue store.
	ErrUserNotFound = errors.New("domain: user not found")

	// ErrIncompatibleUsers indicates two users failed the base compatibility check.
	ErrIncompatibleUsers = errors.New("domain: users are not compatible")

	// ErrInvalidCriteria indicates search criteria that fail validation.
	ErrInvalidCriteria = errors.New("domain: invalid match criteria")

	// ErrAlreadyInSearch indicates a user tried to enter the queue while
	// already searching.
	ErrAlreadyInSearch = errors.New("domain: user already in search")

	// ErrDuplicateMatch indicates a match session with the same match_id was
	// already persisted.
	ErrDuplicateMatch = errors.New("domain: duplicate match")
)
