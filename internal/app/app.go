package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/tokengate/internal/authclient"
	"github.com/florianilch/tokengate/internal/authtransport"
	"github.com/florianilch/tokengate/internal/proxy"
	"github.com/florianilch/tokengate/internal/session"
)

// App orchestrates the lifecycle of the proxy server and the session it
// relays credentials for.
type App struct {
	cfg     *Config
	session *session.Session
	proxy   *proxy.Proxy
}

// New creates a new App instance. No token I/O is performed; the session
// seeds itself from the store on first use.
func New(cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	sess, err := NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	transport, err := authtransport.New(sess,
		authtransport.WithAttachToken(cfg.Auth.AttachToken()),
		authtransport.WithRefreshTimeout(cfg.Auth.RefreshTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth transport: %w", err)
	}

	proxyServer, err := proxy.New(transport, sess, proxy.WithBaseURL(cfg.Upstream.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		cfg:     cfg,
		session: sess,
		proxy:   proxyServer,
	}, nil
}

// Session returns the session the app relays credentials for.
func (a *App) Session() *session.Session {
	return a.session
}

// Start starts all services and blocks until shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting proxy server", "address", address)
	proxyErrCh, err := a.proxy.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// NewSession wires the token store, wire client, and lifecycle knobs from
// configuration into a Session. Used both by the proxy app and by the
// one-shot CLI commands.
func NewSession(cfg *Config) (*session.Session, error) {
	store, err := cfg.Auth.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	client, err := authclient.New(cfg.Auth.BaseURL,
		authclient.WithEndpoints(cfg.Auth.LoginEndpoint, cfg.Auth.RefreshEndpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth client: %w", err)
	}

	return session.New(client, store,
		session.WithExpirationBuffer(cfg.Auth.ExpirationBuffer),
		session.WithRefreshThreshold(cfg.Auth.RefreshThreshold),
		session.WithAutoRefresh(cfg.Auth.RefreshEnabled()),
	)
}
