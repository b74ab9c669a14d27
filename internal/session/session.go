package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/tokengate/internal/authclient"
	"github.com/florianilch/tokengate/internal/token"
	"github.com/florianilch/tokengate/internal/tokenstore"
)

// Default lifecycle knobs. The buffer is the safety margin after which a
// token is no longer trusted; the threshold is the remaining lifetime at
// which proactive refresh starts.
const (
	DefaultExpirationBuffer = 60 * time.Second
	DefaultRefreshThreshold = 300 * time.Second
)

// refreshKey is the singleflight key; one session has exactly one refresh
// slot.
const refreshKey = "refresh"

// Authenticator performs the login and refresh wire calls.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*token.StoredToken, error)
	Refresh(ctx context.Context, refreshToken string) (*token.StoredToken, error)
}

// Compile-time check that the wire client satisfies Authenticator
var _ Authenticator = (*authclient.Client)(nil)

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for expiry decisions. Defaults to the system
// clock.
func WithClock(clock token.Clock) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithExpirationBuffer sets the safety margin subtracted from expiry before a
// token is declared unusable.
func WithExpirationBuffer(d time.Duration) Option {
	return func(s *Session) {
		s.buffer = d
	}
}

// WithRefreshThreshold sets the remaining-lifetime floor that triggers
// proactive refresh.
func WithRefreshThreshold(d time.Duration) Option {
	return func(s *Session) {
		s.threshold = d
	}
}

// WithAutoRefresh enables or disables the proactive refresh path. Defaults to
// enabled.
func WithAutoRefresh(enabled bool) Option {
	return func(s *Session) {
		s.autoRefresh = enabled
	}
}

// WithLogger sets the logger for storage failures and lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// Session is the serialization point for one authenticated session: it owns
// the token cache and collapses concurrent refresh attempts into a single
// network call.
type Session struct {
	id          string
	auth        Authenticator
	cache       *tokenCache
	clock       token.Clock
	logger      *slog.Logger
	buffer      time.Duration
	threshold   time.Duration
	autoRefresh bool

	sf singleflight.Group
}

// New creates a Session backed by the given store. No I/O is performed until
// the first token access.
func New(auth Authenticator, store tokenstore.TokenStore, opts ...Option) (*Session, error) {
	if auth == nil {
		return nil, fmt.Errorf("missing authenticator")
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	s := &Session{
		id:          uuid.NewString(),
		auth:        auth,
		clock:       token.SystemClock,
		logger:      slog.Default(),
		buffer:      DefaultExpirationBuffer,
		threshold:   DefaultRefreshThreshold,
		autoRefresh: true,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("session_id", s.id)
	s.cache = newTokenCache(store, s.logger)

	return s, nil
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// Current returns the active token, or nil when the session holds none.
func (s *Session) Current(ctx context.Context) *token.StoredToken {
	return s.cache.current(ctx)
}

// Usable reports whether the active token can still be trusted: it exists
// and is not within the expiration buffer of its expiry.
func (s *Session) Usable(ctx context.Context) bool {
	tok := s.cache.current(ctx)
	return tok != nil && !tok.ExpiredWithin(s.clock.Now(), s.buffer)
}

// NeedsRefresh reports whether the proactive refresh path should run: auto
// refresh is enabled, a token exists, and its remaining lifetime is at or
// below the refresh threshold.
func (s *Session) NeedsRefresh(ctx context.Context) bool {
	if !s.autoRefresh {
		return false
	}
	tok := s.cache.current(ctx)
	return tok != nil && tok.ExpiredWithin(s.clock.Now(), s.threshold)
}

// HasRefreshToken reports whether a refresh token is available.
func (s *Session) HasRefreshToken(ctx context.Context) bool {
	tok := s.cache.current(ctx)
	return tok != nil && tok.RefreshToken != ""
}

// Login exchanges credentials for a fresh token pair and installs it,
// replacing whatever the session held before.
func (s *Session) Login(ctx context.Context, username, password string) (*token.StoredToken, error) {
	tok, err := s.auth.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	s.cache.replace(ctx, tok)
	s.logger.InfoContext(ctx, "session authenticated", "expires_at", tok.ExpiresAt)
	return tok, nil
}

// Refresh obtains a new token pair using the stored refresh token.
//
// Concurrent callers share a single network call: whoever arrives while a
// refresh is in flight waits for that refresh and receives its outcome.
// Cancelling ctx abandons only this caller's wait; the shared refresh runs to
// completion for the benefit of the other waiters.
//
// On a terminal failure (refresh token rejected, malformed response) the
// stored state is cleared and the caller must re-authenticate. On a transient
// failure the stored state is kept so a later caller may retry.
func (s *Session) Refresh(ctx context.Context) (*token.StoredToken, error) {
	ch := s.sf.DoChan(refreshKey, func() (any, error) {
		// Detach from the initiating caller so its cancellation cannot kill
		// the refresh other waiters are attached to.
		return s.doRefresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*token.StoredToken), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// doRefresh performs the actual refresh call. Runs at most once per
// singleflight round.
func (s *Session) doRefresh(ctx context.Context) (*token.StoredToken, error) {
	current := s.cache.current(ctx)
	if current == nil || current.RefreshToken == "" {
		return nil, &authclient.RefreshError{
			Terminal: true,
			Err:      fmt.Errorf("no refresh token available"),
		}
	}

	gen := s.cache.generation()

	tok, err := s.auth.Refresh(ctx, current.RefreshToken)
	if err != nil {
		if authclient.IsTerminal(err) {
			s.logger.WarnContext(ctx, "terminal refresh failure, clearing session", "error", err)
			_ = s.cache.clear(ctx)
		} else {
			s.logger.WarnContext(ctx, "transient refresh failure", "error", err)
		}
		return nil, err
	}

	if !s.cache.set(ctx, tok, gen) {
		// A logout or a fresh login landed while the refresh was in flight;
		// its result must not replace the newer state.
		return nil, &authclient.RefreshError{
			Terminal: true,
			Err:      fmt.Errorf("session state changed during refresh"),
		}
	}

	s.logger.DebugContext(ctx, "token refreshed", "expires_at", tok.ExpiresAt)
	return tok, nil
}

// Logout clears the stored token pair and returns the session to the
// unauthenticated state. An in-flight refresh finishes but its result is
// discarded.
func (s *Session) Logout(ctx context.Context) error {
	s.sf.Forget(refreshKey)
	if err := s.cache.clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	s.logger.InfoContext(ctx, "session logged out")
	return nil
}
