package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func loginCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the chat server and remember the token",
		Long:  "Exchanges a username and password for a bearer token. The token is stored in the credential database and reused by later commands until it expires or you log out.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			if username == "" {
				if username, err = promptLine("Username: "); err != nil {
					return err
				}
			}
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			if err := a.client.Login(ctx, username, password); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			logger.Info("logged in", "server", a.cfg.Server.BaseURL, "user", username)
			fmt.Printf("Logged in to %s as %s.\n", a.cfg.Server.BaseURL, username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account name (prompted when empty)")
	return cmd
}

func registerCmd() *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account on the chat server and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			if username == "" {
				if username, err = promptLine("Username: "); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = promptLine("Email: "); err != nil {
					return err
				}
			}
			password, err := promptPassword("Password: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassword("Repeat password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return fmt.Errorf("passwords do not match")
			}
			if err := a.client.Register(ctx, username, email, password); err != nil {
				return fmt.Errorf("register: %w", err)
			}
			fmt.Printf("Registered and logged in to %s as %s.\n", a.cfg.Server.BaseURL, username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account name (prompted when empty)")
	cmd.Flags().StringVar(&email, "email", "", "email address (prompted when empty)")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored token for the current server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.client.Logout(ctx); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			fmt.Printf("Logged out of %s.\n", a.cfg.Server.BaseURL)
			return nil
		},
	}
}

var stdin = bufio.NewReader(os.Stdin)

func promptLine(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s is required", strings.TrimSuffix(strings.TrimSpace(label), ":"))
	}
	return line, nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return promptLine(label)
	}
	fmt.Fprint(os.Stderr, label)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(b) == 0 {
		return "", fmt.Errorf("password is required")
	}
	return string(b), nil
}
