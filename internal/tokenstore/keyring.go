package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"

	"github.com/florianilch/tokengate/internal/token"
)

// KeyringStore provides OS-native secure credential storage for the token
// pair. Uses macOS Keychain, Windows Credential Manager, or Linux Secret
// Service.
type KeyringStore struct {
	service string
	user    string
}

// Compile-time check to ensure KeyringStore implements TokenStore
var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore for the OS-native credential storage
// (macOS Keychain, Windows Credential Manager, etc.) using the given service
// and user identifiers.
func NewKeyringStore(service, user string) (*KeyringStore, error) {
	if service == "" {
		return nil, fmt.Errorf("service cannot be empty")
	}
	if user == "" {
		return nil, fmt.Errorf("user cannot be empty")
	}

	return &KeyringStore{
		service: service,
		user:    user,
	}, nil
}

// Read returns the token pair from the system keyring.
func (k *KeyringStore) Read(ctx context.Context) (*token.StoredToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := keyring.Get(k.service, k.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return decode([]byte(data))
}

// Write persists the token pair to the system keyring, overwriting any
// existing value.
func (k *KeyringStore) Write(ctx context.Context, tok *token.StoredToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encode(tok)
	if err != nil {
		return err
	}

	return keyring.Set(k.service, k.user, string(data))
}

// Clear removes the token pair from the system keyring. A missing entry is
// not an error.
func (k *KeyringStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Delete(k.service, k.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
