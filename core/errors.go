package core

import "errors"

var (
	// ErrValidation is returned for malformed or missing input
	ErrValidation = errors.New("validation failed")

	// ErrSecretMismatch covers both a wrong challenge response and wrong credentials.
	// Callers never learn which of the two failed.
	ErrSecretMismatch = errors.New("invalid credentials or challenge")

	// ErrSourceBlocked is returned while a source is over its failure threshold
	ErrSourceBlocked = errors.New("source blocked")

	// ErrRateLimited is returned when a request exceeds its fixed window
	ErrRateLimited = errors.New("rate limited")

	// ErrStoreUnavailable wraps shared store failures and timeouts
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrConfiguration is fatal at startup
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNotFound is returned by stores for a missing or expired key
	ErrNotFound = errors.New("not found")

	// ErrIdentityTaken is returned when registering an existing username
	ErrIdentityTaken = errors.New("identity already exists")

	// ErrInvalidToken is returned for unparseable, expired or foreign tokens
	ErrInvalidToken = errors.New("invalid token")
)
