package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/florianilch/tokengate/internal/token"
	"github.com/florianilch/tokengate/internal/tokenstore"
)

// tokenCache is the process-local authoritative view of the active token.
// It is seeded lazily from the backing store on first access and updated
// before every store write is acknowledged, so readers in this process see a
// new token immediately even when the store itself is slow or failing.
type tokenCache struct {
	store  tokenstore.TokenStore
	logger *slog.Logger

	mu     sync.RWMutex
	tok    *token.StoredToken
	loaded bool
	gen    uint64
}

func newTokenCache(store tokenstore.TokenStore, logger *slog.Logger) *tokenCache {
	return &tokenCache{
		store:  store,
		logger: logger,
	}
}

// current returns the cached token, seeding from the store on first use.
// Storage read failures are reported but treated as an absent token; they
// must not fail the in-memory flow.
func (c *tokenCache) current(ctx context.Context) *token.StoredToken {
	c.mu.RLock()
	if c.loaded {
		tok := c.tok
		c.mu.RUnlock()
		return tok
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.tok
	}

	tok, err := c.store.Read(ctx)
	if err != nil && !errors.Is(err, tokenstore.ErrNotFound) {
		c.logger.WarnContext(ctx, "failed to read token from store", "error", err)
	}
	c.tok = tok
	c.loaded = true
	return c.tok
}

// generation returns the current clear-generation. A refresh captures it
// before the network call so a logout that lands mid-refresh cannot be
// overwritten by the refresh result.
func (c *tokenCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// set installs a new token, cache first, then the backing store. The store
// write failing does not undo the in-memory update; the cache is
// authoritative and the error is reported to the logger instead.
//
// The update is skipped entirely when the cache was cleared or replaced
// after gen was captured, so a stale refresh can neither resurrect a closed
// session nor clobber a newer login.
func (c *tokenCache) set(ctx context.Context, tok *token.StoredToken, gen uint64) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	c.tok = tok
	c.loaded = true
	c.mu.Unlock()

	if err := c.store.Write(ctx, tok); err != nil {
		c.logger.ErrorContext(ctx, "failed to persist token to store", "error", err)
	}
	return true
}

// replace installs a new token unconditionally (login path). It bumps the
// generation so a refresh already in flight cannot overwrite the fresher
// login token when it lands.
func (c *tokenCache) replace(ctx context.Context, tok *token.StoredToken) {
	c.mu.Lock()
	c.tok = tok
	c.loaded = true
	c.gen++
	c.mu.Unlock()

	if err := c.store.Write(ctx, tok); err != nil {
		c.logger.ErrorContext(ctx, "failed to persist token to store", "error", err)
	}
}

// clear removes the token from cache and store and bumps the generation so
// in-flight refreshes cannot write their result back.
func (c *tokenCache) clear(ctx context.Context) error {
	c.mu.Lock()
	c.tok = nil
	c.loaded = true
	c.gen++
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		c.logger.ErrorContext(ctx, "failed to clear token store", "error", err)
		return err
	}
	return nil
}
