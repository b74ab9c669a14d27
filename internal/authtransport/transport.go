package authtransport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/florianilch/tokengate/internal/session"
)

// DefaultRefreshTimeout bounds how long a request waits on a proactive
// refresh before giving up on it.
const DefaultRefreshTimeout = 30 * time.Second

// Option configures a Transport.
type Option func(*Transport)

// WithBase sets the underlying transport. Defaults to http.DefaultTransport.
func WithBase(base http.RoundTripper) Option {
	return func(t *Transport) {
		t.base = base
	}
}

// WithAttachToken enables or disables header attachment entirely. When
// disabled the transport is a pass-through. Defaults to enabled.
func WithAttachToken(enabled bool) Option {
	return func(t *Transport) {
		t.attach = enabled
	}
}

// WithRefreshTimeout bounds the wait on a proactive refresh.
func WithRefreshTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.refreshTimeout = d
	}
}

// Transport attaches the session's credentials to outgoing requests and
// coordinates proactive and reactive token refresh around them.
type Transport struct {
	session        *session.Session
	base           http.RoundTripper
	attach         bool
	refreshTimeout time.Duration
}

// Compile-time check that Transport implements http.RoundTripper
var _ http.RoundTripper = (*Transport)(nil)

// New creates a Transport bound to the given session.
func New(s *session.Session, opts ...Option) (*Transport, error) {
	if s == nil {
		return nil, fmt.Errorf("missing session")
	}

	t := &Transport{
		session:        s,
		base:           http.DefaultTransport,
		attach:         true,
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.attach {
		return t.base.RoundTrip(req)
	}

	ctx := req.Context()
	t.refreshIfDue(ctx)

	tok := t.session.Current(ctx)
	if tok == nil || (!t.session.Usable(ctx) && !t.session.HasRefreshToken(ctx)) {
		// Deliberate unauthenticated pass-through: with no trusted token to
		// attach and nothing to refresh, the downstream authorization error
		// is the caller's to handle. A token expired past the buffer is
		// never attached.
		return t.base.RoundTrip(req)
	}

	resp, err := t.base.RoundTrip(t.withAuthorization(req, tok.AuthorizationHeader()))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || !t.session.HasRefreshToken(ctx) {
		return resp, nil
	}

	return t.retryOnce(req, resp)
}

// refreshIfDue runs the proactive refresh path. Failures degrade gracefully:
// the request proceeds with whatever the session still holds, deferring the
// authorization decision to the server.
func (t *Transport) refreshIfDue(ctx context.Context) {
	if !t.session.NeedsRefresh(ctx) {
		return
	}

	refreshCtx, cancel := context.WithTimeout(ctx, t.refreshTimeout)
	defer cancel()
	_, _ = t.session.Refresh(refreshCtx)
}

// retryOnce handles a 401 rejection: one refresh, one retry, and whatever
// comes back from the retry is final. A request whose body cannot be replayed
// is never retried.
func (t *Transport) retryOnce(req *http.Request, rejected *http.Response) (*http.Response, error) {
	if req.Body != nil && req.GetBody == nil {
		return rejected, nil
	}

	ctx := req.Context()
	tok, err := t.session.Refresh(ctx)
	if err != nil {
		// Refresh failed; the original rejection stands.
		return rejected, nil
	}

	retry := req.Clone(ctx)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return rejected, nil
		}
		retry.Body = body
	}
	retry.Header.Set("Authorization", tok.AuthorizationHeader())

	// The rejected response is replaced by the retry's outcome.
	drain(rejected)

	return t.base.RoundTrip(retry)
}

// withAuthorization returns a clone of req with the Authorization header set.
// The original request is never mutated, per the RoundTripper contract.
func (t *Transport) withAuthorization(req *http.Request, value string) *http.Request {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", value)
	return clone
}

// drain consumes and closes a response body so the underlying connection can
// be reused.
func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	_ = resp.Body.Close()
}
