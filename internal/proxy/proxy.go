package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/florianilch/tokengate/internal/session"
)

// Proxy is the local forward proxy: it relays requests to the upstream API
// through the session's auth transport and exposes a small management
// surface for the session lifecycle.
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*config)

type config struct {
	baseURL string
}

// WithBaseURL sets the upstream API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// New creates a forward proxy relaying to the configured upstream through
// the given transport. The transport is expected to handle credential
// attachment and refresh; the proxy itself is credential-agnostic.
func New(transport http.RoundTripper, s *session.Session, opts ...Option) (*Proxy, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	upstream, err := url.Parse(cfg.baseURL)
	if err != nil || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", cfg.baseURL)
	}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = upstream.Scheme
			pr.Out.URL.Host = upstream.Host
			pr.Out.Host = upstream.Host
		},
		// FlushInterval: -1 disables automatic periodic flushing, flushing only
		// when the backend flushes, so streamed upstream responses reach the
		// client without buffering delay.
		FlushInterval: -1,
		Transport:     transport,
	}

	logger := slog.Default()

	mux := http.NewServeMux()

	// Session management surface, served locally
	auth := &authHandlers{session: s}
	mux.Handle("POST /-/auth/login", applyMiddlewares(http.HandlerFunc(auth.login), Logging(logger), Recovery))
	mux.Handle("POST /-/auth/logout", applyMiddlewares(http.HandlerFunc(auth.logout), Logging(logger), Recovery))
	mux.Handle("GET /-/auth/status", applyMiddlewares(http.HandlerFunc(auth.status), Logging(logger), Recovery))

	// Everything else is relayed upstream
	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		Logging(logger),
		Recovery,
	))

	return &Proxy{mux: mux}, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request (DoS protection against slow clients)
		WriteTimeout: 15 * time.Minute, // Inbound: Write entire response to client (allows long streams, still bounded)
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
