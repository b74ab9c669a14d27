package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/tokengate/internal/authclient"
	"github.com/florianilch/tokengate/internal/token"
	"github.com/florianilch/tokengate/internal/tokenstore"
)

// fakeAuth is a scriptable Authenticator that counts wire calls.
type fakeAuth struct {
	mu           sync.Mutex
	refreshCalls int
	loginCalls   int

	refreshFunc func(refreshToken string) (*token.StoredToken, error)
	loginFunc   func(username, password string) (*token.StoredToken, error)

	// entered receives one value per refresh call; release gates completion.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeAuth) Login(ctx context.Context, username, password string) (*token.StoredToken, error) {
	f.mu.Lock()
	f.loginCalls++
	f.mu.Unlock()
	if f.loginFunc != nil {
		return f.loginFunc(username, password)
	}
	return nil, errors.New("login not scripted")
}

func (f *fakeAuth) Refresh(ctx context.Context, refreshToken string) (*token.StoredToken, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	return f.refreshFunc(refreshToken)
}

func (f *fakeAuth) calls() (login, refresh int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.refreshCalls
}

func freshToken(access string, expiresIn time.Duration, now time.Time) *token.StoredToken {
	return &token.StoredToken{
		AccessToken:  access,
		RefreshToken: "rt-" + access,
		TokenType:    "Bearer",
		ExpiresAt:    now.Add(expiresIn),
	}
}

func newSessionWithToken(t *testing.T, auth Authenticator, now time.Time, tok *token.StoredToken, opts ...Option) (*Session, *tokenstore.MemoryStore) {
	t.Helper()
	store := tokenstore.NewMemoryStore()
	if tok != nil {
		if err := store.Write(context.Background(), tok); err != nil {
			t.Fatalf("seeding store failed: %v", err)
		}
	}

	opts = append([]Option{WithClock(token.ClockFunc(func() time.Time { return now }))}, opts...)
	s, err := New(auth, store, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s, store
}

func TestSingleFlightRefresh(t *testing.T) {
	const callers = 8
	now := time.Now()
	refreshed := freshToken("new", time.Hour, now)

	auth := &fakeAuth{
		refreshFunc: func(string) (*token.StoredToken, error) { return refreshed, nil },
		entered:     make(chan struct{}, callers),
		release:     make(chan struct{}),
	}
	s, _ := newSessionWithToken(t, auth, now, freshToken("old", 2*time.Minute, now))

	var g errgroup.Group
	ready := make(chan struct{})
	results := make([]*token.StoredToken, callers)

	for i := range callers {
		g.Go(func() error {
			<-ready
			tok, err := s.Refresh(context.Background())
			if err != nil {
				return err
			}
			results[i] = tok
			return nil
		})
	}

	close(ready)
	// Wait until the one shared refresh is actually on the wire, give the
	// remaining callers time to attach to it, then let it complete.
	<-auth.entered
	time.Sleep(50 * time.Millisecond)
	close(auth.release)

	if err := g.Wait(); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if _, refreshCalls := auth.calls(); refreshCalls != 1 {
		t.Errorf("refresh network calls = %d, want 1", refreshCalls)
	}
	for i, tok := range results {
		if tok == nil || tok.AccessToken != "new" {
			t.Errorf("caller %d got %+v, want the refreshed token", i, tok)
		}
	}
}

func TestRefreshUpdatesCacheAndStore(t *testing.T) {
	now := time.Now()
	refreshed := freshToken("new", time.Hour, now)
	auth := &fakeAuth{
		refreshFunc: func(rt string) (*token.StoredToken, error) {
			if rt != "rt-old" {
				return nil, fmt.Errorf("unexpected refresh token %q", rt)
			}
			return refreshed, nil
		},
	}
	s, store := newSessionWithToken(t, auth, now, freshToken("old", 2*time.Minute, now))

	ctx := context.Background()
	if _, err := s.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	if got := s.Current(ctx); got == nil || got.AccessToken != "new" {
		t.Errorf("cache holds %+v, want refreshed token", got)
	}
	stored, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("store Read failed: %v", err)
	}
	if stored.AccessToken != "new" {
		t.Errorf("store holds %q, want %q", stored.AccessToken, "new")
	}
}

func TestTerminalRefreshFailureClearsSession(t *testing.T) {
	now := time.Now()
	auth := &fakeAuth{
		refreshFunc: func(string) (*token.StoredToken, error) {
			return nil, &authclient.RefreshError{Terminal: true, Err: errors.New("refresh token expired")}
		},
	}
	s, store := newSessionWithToken(t, auth, now, freshToken("old", 2*time.Minute, now))

	ctx := context.Background()
	_, err := s.Refresh(ctx)
	if !authclient.IsTerminal(err) {
		t.Fatalf("Refresh error = %v, want terminal", err)
	}

	if got := s.Current(ctx); got != nil {
		t.Errorf("cache still holds %+v after terminal failure", got)
	}
	if _, err := store.Read(ctx); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("store Read = %v, want ErrNotFound", err)
	}
}

func TestTransientRefreshFailureKeepsSession(t *testing.T) {
	now := time.Now()
	auth := &fakeAuth{
		refreshFunc: func(string) (*token.StoredToken, error) {
			return nil, &authclient.RefreshError{Terminal: false, Err: errors.New("connection timed out")}
		},
	}
	s, store := newSessionWithToken(t, auth, now, freshToken("old", 2*time.Minute, now))

	ctx := context.Background()
	_, err := s.Refresh(ctx)
	if err == nil || authclient.IsTerminal(err) {
		t.Fatalf("Refresh error = %v, want transient", err)
	}

	if got := s.Current(ctx); got == nil || got.AccessToken != "old" {
		t.Errorf("cache holds %+v, want the previous token", got)
	}
	if _, err := store.Read(ctx); err != nil {
		t.Errorf("store Read failed after transient failure: %v", err)
	}

	// Next caller triggers a new attempt
	if _, err := s.Refresh(ctx); err == nil {
		t.Fatal("second Refresh unexpectedly succeeded")
	}
	if _, refreshCalls := auth.calls(); refreshCalls != 2 {
		t.Errorf("refresh network calls = %d, want 2", refreshCalls)
	}
}

// failingStore wraps a TokenStore with an injectable write failure.
type failingStore struct {
	tokenstore.TokenStore
	failWrites atomic.Bool
}

func (f *failingStore) Write(ctx context.Context, tok *token.StoredToken) error {
	if f.failWrites.Load() {
		return errors.New("disk full")
	}
	return f.TokenStore.Write(ctx, tok)
}

func TestStoreWriteFailureDoesNotFailRefresh(t *testing.T) {
	now := time.Now()
	refreshed := freshToken("new", time.Hour, now)
	auth := &fakeAuth{
		refreshFunc: func(string) (*token.StoredToken, error) { return refreshed, nil },
	}

	store := &failingStore{TokenStore: tokenstore.NewMemoryStore()}
	ctx := context.Background()
	if err := store.TokenStore.Write(ctx, freshToken("old", 2*time.Minute, now)); err != nil {
		t.Fatalf("seeding store failed: %v", err)
	}
	store.failWrites.Store(true)

	s, err := New(auth, store, WithClock(token.ClockFunc(func() time.Time { return now })))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	tok, err := s.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed despite cache being authoritative: %v", err)
	}
	if tok.AccessToken != "new" {
		t.Errorf("Refresh returned %q, want %q", tok.AccessToken, "new")
	}
	if got := s.Current(ctx); got == nil || got.AccessToken != "new" {
		t.Errorf("cache holds %+v, want the refreshed token", got)
	}
}

func TestCallerCancellationDoesNotCancelSharedRefresh(t *testing.T) {
	now := time.Now()
	refreshed := freshToken("new", time.Hour, now)
	auth := &fakeAuth{
		refreshFunc: func(string) (*token.StoredToken, error) { return refreshed, nil },
		entered:     make(chan struct{}, 2),
		release:     make(chan struct{}),
	}
	s, _ := newSessionWithToken(t, auth, now, freshToken("old", 2*time.Minute, now))

	cancelCtx, cancel := context.WithCancel(context.Background())

	cancelled := make(chan error, 1)
	survivor := make(chan error, 1)

	go func() {
		_, err := s.Refresh(cancelCtx)
		cancelled <- err
	}()
	<-auth.entered // the shared refresh is on the wire

	go func() {
		tok, err := s.Refresh(context.Background())
		if err == nil && tok.AccessToken != "new" {
			err = fmt.Errorf("got token %q", tok.AccessToken)
		}
		survivor <- err
	}()
	time.Sleep(50 * time.Millisecond) // let the second caller attach

	cancel()
	if err := <-cancelled; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller got %v, want context.Canceled", err)
	}

	// The shared refresh must still complete for the surviving waiter
	close(auth.release)
	if err := <-survivor; err != nil {
		t.Fatalf("surviving waiter failed: %v", err)
	}

	if _, refreshCalls := auth.calls(); refreshCalls != 1 {
		t.Errorf("refresh network calls = %d, want 1", refreshCalls)
	}
}

func TestRefreshWithoutRefreshTokenIsTerminal(t *testing.T) {
	now := time.Now()
	tok := freshToken("old", 2*time.Minute, now)
	tok.RefreshToken = ""
	auth := &fakeAuth{}
	s, _ := newSessionWithToken(t, auth, now, tok)

	_, err := s.Refresh(context.Background())
	if !authclient.IsTerminal(err) {
		t.Errorf("Refresh error = %v, want terminal", err)
	}
	if _, refreshCalls := auth.calls(); refreshCalls != 0 {
		t.Errorf("refresh network calls = %d, want 0", refreshCalls)
	}
}

func TestExpiryWindows(t *testing.T) {
	now := time.Now()
	auth := &fakeAuth{}

	tests := []struct {
		name         string
		expiresIn    time.Duration
		usable       bool
		needsRefresh bool
	}{
		{"fresh token", time.Hour, true, false},
		{"inside refresh threshold, still usable", 250 * time.Second, true, true},
		{"inside expiration buffer", 30 * time.Second, false, true},
		{"already expired", -time.Minute, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSessionWithToken(t, auth, now, freshToken("a", tt.expiresIn, now),
				WithExpirationBuffer(60*time.Second),
				WithRefreshThreshold(300*time.Second),
			)

			ctx := context.Background()
			if got := s.Usable(ctx); got != tt.usable {
				t.Errorf("Usable() = %v, want %v", got, tt.usable)
			}
			if got := s.NeedsRefresh(ctx); got != tt.needsRefresh {
				t.Errorf("NeedsRefresh() = %v, want %v", got, tt.needsRefresh)
			}
		})
	}
}

func TestNeedsRefreshDisabled(t *testing.T) {
	now := time.Now()
	s, _ := newSessionWithToken(t, &fakeAuth{}, now, freshToken("a", time.Minute, now),
		WithAutoRefresh(false))

	if s.NeedsRefresh(context.Background()) {
		t.Error("NeedsRefresh() = true with auto refresh disabled")
	}
}

func TestEmptySession(t *testing.T) {
	now := time.Now()
	s, _ := newSessionWithToken(t, &fakeAuth{}, now, nil)

	ctx := context.Background()
	if s.Current(ctx) != nil {
		t.Error("Current() != nil for empty session")
	}
	if s.Usable(ctx) {
		t.Error("Usable() = true for empty session")
	}
	if s.NeedsRefresh(ctx) {
		t.Error("NeedsRefresh() = true for empty session")
	}
	if s.HasRefreshToken(ctx) {
		t.Error("HasRefreshToken() = true for empty session")
	}
}

func TestLoginInstallsToken(t *testing.T) {
	now := time.Now()
	issued := freshToken("fresh", time.Hour, now)
	auth := &fakeAuth{
		loginFunc: func(username, password string) (*token.StoredToken, error) {
			if username != "alice" || password != "s3cret" {
				return nil, authclient.ErrInvalidCredentials
			}
			return issued, nil
		},
	}
	s, store := newSessionWithToken(t, auth, now, nil)

	ctx := context.Background()
	if _, err := s.Login(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if got := s.Current(ctx); got == nil || got.AccessToken != "fresh" {
		t.Errorf("cache holds %+v after login", got)
	}
	stored, err := store.Read(ctx)
	if err != nil || stored.AccessToken != "fresh" {
		t.Errorf("store holds (%+v, %v) after login", stored, err)
	}
}

func TestFailedLoginLeavesStoreUntouched(t *testing.T) {
	now := time.Now()
	auth := &fakeAuth{
		loginFunc: func(string, string) (*token.StoredToken, error) {
			return nil, authclient.ErrInvalidCredentials
		},
	}
	existing := freshToken("old", time.Hour, now)
	s, store := newSessionWithToken(t, auth, now, existing)

	ctx := context.Background()
	if _, err := s.Login(ctx, "alice", "wrong"); !errors.Is(err, authclient.ErrInvalidCredentials) {
		t.Fatalf("Login error = %v, want ErrInvalidCredentials", err)
	}

	stored, err := store.Read(ctx)
	if err != nil || stored.AccessToken != "old" {
		t.Errorf("store changed by failed login: (%+v, %v)", stored, err)
	}
}

func TestLogout(t *testing.T) {
	now := time.Now()
	s, store := newSessionWithToken(t, &fakeAuth{}, now, freshToken("old", time.Hour, now))

	ctx := context.Background()
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}

	if s.Current(ctx) != nil {
		t.Error("Current() != nil after logout")
	}
	if _, err := store.Read(ctx); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("store Read = %v after logout, want ErrNotFound", err)
	}
}

func TestLogoutDuringRefreshDiscardsResult(t *testing.T) {
	now := time.Now()
	refreshed := freshToken("new", time.Hour, now)
	auth := &fakeAuth{
		refreshFunc: func(string) (*token.StoredToken, error) { return refreshed, nil },
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	s, store := newSessionWithToken(t, auth, now, freshToken("old", 2*time.Minute, now))

	ctx := context.Background()
	result := make(chan error, 1)
	go func() {
		_, err := s.Refresh(ctx)
		result <- err
	}()
	<-auth.entered

	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	close(auth.release)

	if err := <-result; !authclient.IsTerminal(err) {
		t.Errorf("refresh racing logout returned %v, want terminal error", err)
	}
	if s.Current(ctx) != nil {
		t.Error("logout session resurrected by in-flight refresh")
	}
	if _, err := store.Read(ctx); !errors.Is(err, tokenstore.ErrNotFound) {
		t.Errorf("store Read = %v after logout, want ErrNotFound", err)
	}
}

func TestLoginDuringRefreshDiscardsResult(t *testing.T) {
	now := time.Now()
	refreshed := freshToken("refreshed", time.Hour, now)
	issued := freshToken("login", 2*time.Hour, now)
	auth := &fakeAuth{
		refreshFunc: func(string) (*token.StoredToken, error) { return refreshed, nil },
		loginFunc:   func(string, string) (*token.StoredToken, error) { return issued, nil },
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	s, store := newSessionWithToken(t, auth, now, freshToken("old", 2*time.Minute, now))

	ctx := context.Background()
	result := make(chan error, 1)
	go func() {
		_, err := s.Refresh(ctx)
		result <- err
	}()
	<-auth.entered

	// A fresh login lands while the refresh is on the wire. The login token
	// is newer state; the refresh result must not clobber it.
	if _, err := s.Login(ctx, "alice", "s3cret"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	close(auth.release)

	if err := <-result; !authclient.IsTerminal(err) {
		t.Errorf("refresh racing login returned %v, want terminal error", err)
	}
	if got := s.Current(ctx); got == nil || got.AccessToken != "login" {
		t.Errorf("cache holds %+v, want the login token", got)
	}
	stored, err := store.Read(ctx)
	if err != nil || stored.AccessToken != "login" {
		t.Errorf("store holds (%+v, %v), want the login token", stored, err)
	}
}

func TestTokenSourceAdapter(t *testing.T) {
	now := time.Now()
	s, _ := newSessionWithToken(t, &fakeAuth{}, now, freshToken("a", time.Hour, now))

	tok, err := s.TokenSource().Token()
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if tok.AccessToken != "a" || tok.TokenType != "Bearer" {
		t.Errorf("unexpected oauth2 token: %+v", tok)
	}

	empty, _ := newSessionWithToken(t, &fakeAuth{}, now, nil)
	if _, err := empty.TokenSource().Token(); err == nil {
		t.Error("Token succeeded for empty session, want error")
	}
}
