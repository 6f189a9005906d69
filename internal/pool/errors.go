package pool

import (
	"errors"
	"fmt"
)

// ErrPoolFull is returned by Acquire when the session cap is reached.
var ErrPoolFull = errors.New("pool: session limit reached")

// AuthError wraps a failed portal login. Stable code: auth_failed.
type AuthError struct {
	Identity string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Identity, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// Code returns the stable error code for callers.
func (e *AuthError) Code() string { return "auth_failed" }

// SessionExpiredError reports that a pooled session's driver lost its
// authenticated state. Stable code: session_expired.
type SessionExpiredError struct {
	SessionID string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session %s expired on the portal", e.SessionID)
}

// Code returns the stable error code for callers.
func (e *SessionExpiredError) Code() string { return "session_expired" }

// SessionInvalidError reports a session id that is not (or no longer) pooled.
// Stable code: session_invalid.
type SessionInvalidError struct {
	SessionID string
}

func (e *SessionInvalidError) Error() string {
	return fmt.Sprintf("unknown session: %s", e.SessionID)
}

// Code returns the stable error code for callers.
func (e *SessionInvalidError) Code() string { return "session_invalid" }
