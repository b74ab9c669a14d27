package tokenstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/florianilch/tokengate/internal/token"
)

// MemoryStore holds the token pair in process memory only. Its lifetime is
// bounded by the hosting process; nothing survives a restart. Suitable for
// server-rendered multi-tenant sessions where persisting credentials is
// undesirable.
type MemoryStore struct {
	mu  sync.RWMutex
	tok *token.StoredToken
}

// Compile-time check to ensure MemoryStore implements TokenStore
var _ TokenStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty volatile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Read returns the stored token pair, or ErrNotFound when empty.
func (m *MemoryStore) Read(ctx context.Context) (*token.StoredToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.tok == nil {
		return nil, ErrNotFound
	}
	cp := *m.tok
	return &cp, nil
}

// Write replaces the stored token pair.
func (m *MemoryStore) Write(ctx context.Context, tok *token.StoredToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tok == nil {
		return fmt.Errorf("cannot store nil token")
	}

	cp := *tok
	m.mu.Lock()
	m.tok = &cp
	m.mu.Unlock()
	return nil
}

// Clear removes the stored token pair.
func (m *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	m.tok = nil
	m.mu.Unlock()
	return nil
}
