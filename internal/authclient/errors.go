package authclient

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCredentials indicates the login endpoint rejected the supplied
// credentials. Never retried.
var ErrInvalidCredentials = errors.New("invalid credentials")

// RefreshError is returned when a refresh call fails.
//
// Terminal refresh errors mean the refresh token itself was rejected; the
// session must be cleared and the user has to authenticate again. Transient
// errors (network failures, timeouts, server-side 5xx) leave the session
// intact so a later caller may try again.
type RefreshError struct {
	// Terminal reports whether the stored session is no longer viable.
	Terminal bool

	// Err is the underlying cause.
	Err error
}

func (e *RefreshError) Error() string {
	kind := "transient"
	if e.Terminal {
		kind = "terminal"
	}
	return fmt.Sprintf("token refresh failed (%s): %v", kind, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// MalformedResponseError indicates the endpoint returned success but the body
// was missing required fields. Treated as terminal: partial credentials
// cannot be trusted.
type MalformedResponseError struct {
	Missing []string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed token response: missing %s", strings.Join(e.Missing, ", "))
}

// IsTerminal reports whether err ends the current session, requiring a fresh
// login. Malformed responses and terminal refresh failures qualify; transient
// refresh failures do not.
func IsTerminal(err error) bool {
	var re *RefreshError
	if errors.As(err, &re) {
		return re.Terminal
	}
	var me *MalformedResponseError
	return errors.As(err, &me)
}
