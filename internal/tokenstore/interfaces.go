package tokenstore

import (
	"context"
	"errors"

	"github.com/florianilch/tokengate/internal/token"
)

// ErrNotFound is returned by Read when no token pair is stored.
var ErrNotFound = errors.New("no stored token")

// TokenStore reads and writes the current token pair.
//
// Implementations must make Write atomic with respect to Read: concurrent
// readers observe either the previous pair or the new one, never a mix.
type TokenStore interface {
	// Read returns the stored token pair. Returns ErrNotFound when no pair
	// is stored.
	Read(ctx context.Context) (*token.StoredToken, error)

	// Write replaces the stored token pair.
	Write(ctx context.Context, tok *token.StoredToken) error

	// Clear removes the stored token pair. Clearing an empty store is not
	// an error.
	Clear(ctx context.Context) error
}
