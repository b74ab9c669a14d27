package session

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// tokenSource adapts a Session to oauth2.TokenSource so it can be consumed
// by oauth2.Transport-based clients.
type tokenSource struct {
	session *Session
}

// Compile-time check that tokenSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*tokenSource)(nil)

// TokenSource returns an oauth2.TokenSource view of the session. The source
// applies the same proactive refresh policy as the HTTP transport; it fails
// when the session holds no usable token, since oauth2.Transport has no
// unauthenticated pass-through.
func (s *Session) TokenSource() oauth2.TokenSource {
	return &tokenSource{session: s}
}

// Token returns a usable access token, refreshing when due.
// oauth2.TokenSource carries no context (legacy interface), so the session's
// background behavior applies.
func (ts *tokenSource) Token() (*oauth2.Token, error) {
	ctx := context.Background()
	s := ts.session

	if s.NeedsRefresh(ctx) || !s.Usable(ctx) {
		if _, err := s.Refresh(ctx); err != nil {
			// Transient failure with a still-usable token degrades gracefully
			if !s.Usable(ctx) {
				return nil, fmt.Errorf("getting token: %w", err)
			}
		}
	}

	tok := s.Current(ctx)
	if tok == nil {
		return nil, fmt.Errorf("no token available, login required")
	}

	return &oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.ExpiresAt,
	}, nil
}
