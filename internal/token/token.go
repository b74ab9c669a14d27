package token

import (
	"fmt"
	"time"
)

// DefaultType is the token type assumed when the issuing server omits one.
const DefaultType = "Bearer"

// StoredToken is the credential pair produced by a login or refresh call.
// Values are immutable; a refresh produces a new StoredToken rather than
// mutating the current one.
type StoredToken struct {
	// AccessToken is the short-lived credential attached to outgoing calls.
	AccessToken string `json:"access_token"`

	// RefreshToken is the longer-lived credential used to obtain a new
	// access token. Empty when the server issued none.
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is the Authorization scheme, typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// ExpiresAt is the absolute expiry instant of the access token as
	// reported by the issuing server.
	ExpiresAt time.Time `json:"expires_at"`
}

// Type returns the Authorization scheme, defaulting to "Bearer" when unset.
func (t *StoredToken) Type() string {
	if t.TokenType == "" {
		return DefaultType
	}
	return t.TokenType
}

// AuthorizationHeader formats the token for an Authorization header value.
func (t *StoredToken) AuthorizationHeader() string {
	return fmt.Sprintf("%s %s", t.Type(), t.AccessToken)
}

// ExpiredWithin reports whether the token is expired relative to now once the
// safety buffer is subtracted from the expiry. The boundary is inclusive: at
// exactly expiresAt-buffer the token is already considered expired.
func (t *StoredToken) ExpiredWithin(now time.Time, buffer time.Duration) bool {
	return !now.Before(t.ExpiresAt.Add(-buffer))
}
