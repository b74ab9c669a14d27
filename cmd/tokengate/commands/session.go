package commands

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/tokengate/internal/app"
	"github.com/florianilch/tokengate/internal/session"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Authenticate and persist the session token",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "username to authenticate as",
			},
		},
		Action: loginAction,
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Clear the persisted session token",
		Action: logoutAction,
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the persisted session state",
		Action: statusAction,
	}
}

// newCLISession builds a one-shot session from configuration. The CLI
// commands only make sense against a durable store; a memory store would be
// gone the moment the command exits.
func newCLISession(cmd *cli.Command) (*session.Session, error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Auth.Storage == app.TokenStorageTypeMemory {
		fmt.Fprintln(os.Stderr, "warning: auth.storage is 'memory'; the session will not outlive this command")
	}

	return app.NewSession(cfg)
}

func loginAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newCLISession(cmd)
	if err != nil {
		return err
	}

	username := cmd.String("username")
	if username == "" {
		fmt.Print("Username: ")
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("reading username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	tok, err := s.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	fmt.Printf("Logged in as %s; token valid until %s\n", username, tok.ExpiresAt.Local())
	return nil
}

func logoutAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newCLISession(cmd)
	if err != nil {
		return err
	}

	if err := s.Logout(ctx); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}

	fmt.Println("Logged out")
	return nil
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newCLISession(cmd)
	if err != nil {
		return err
	}

	tok := s.Current(ctx)
	if tok == nil {
		fmt.Println("Not authenticated")
		return nil
	}

	fmt.Printf("Authenticated (session %s)\n", s.ID())
	fmt.Printf("  expires:       %s\n", tok.ExpiresAt.Local())
	fmt.Printf("  usable:        %v\n", s.Usable(ctx))
	fmt.Printf("  needs refresh: %v\n", s.NeedsRefresh(ctx))
	return nil
}

// readPassword reads a password without echo when stdin is a terminal,
// falling back to a plain line read (e.g. piped input).
func readPassword() (string, error) {
	fmt.Print("Password: ")

	if term.IsTerminal(int(syscall.Stdin)) {
		defer fmt.Println()
		raw, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(raw), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
