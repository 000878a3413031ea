// Package apperrors defines the error taxonomy shared by the credential
// and sync subsystems.
package apperrors

import "errors"

// Credential errors.
var (
	// ErrAuthenticationRequired means there is no usable session: the
	// user has never logged in, the token was rejected by the server,
	// or the persisted session expired.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrAuthenticationTimeout means an interactive login gave up
	// waiting for the browser callback.
	ErrAuthenticationTimeout = errors.New("authentication timeout")

	// ErrInvalidToken means a bearer token string could not be parsed.
	ErrInvalidToken = errors.New("invalid token")
)

// Configuration errors.
var (
	// ErrInvalidConfiguration means the agent is missing required
	// configuration, such as the recipes directory.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// TransientError wraps an error that is likely temporary and safe to
// retry, typically a transport-level failure.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError, meaning the caller should retry after a backoff.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
