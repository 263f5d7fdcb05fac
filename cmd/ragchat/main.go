package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"ragchat/internal/client"
	"ragchat/internal/config"
	"ragchat/internal/credstore"
	"ragchat/internal/domain"
	"ragchat/internal/render"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
	serverURL  string // overridable via --server flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	root := &cobra.Command{
		Use:           "ragchat",
		Short:         "ragchat: terminal client for a document-grounded chat server",
		Long:          "ragchat streams answers from a RAG chat server, keeps your conversation history and manages the documents attached to each conversation.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.ragchat/config.json)")
	root.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "chat server base URL (overrides server.baseURL)")

	root.AddCommand(initCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(registerCmd())
	root.AddCommand(logoutCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(docsCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the ragchat version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("ragchat", version)
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return config.ExpandPath(configPath)
	}
	return config.DefaultConfigPath()
}

// readConfig loads the config file, falling back to defaults when it does
// not exist yet, and applies --server.
func readConfig() (*config.Config, error) {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Defaults()
		cfg.Resolve()
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if serverURL != "" {
		cfg.Server.BaseURL = strings.TrimRight(serverURL, "/")
		if err := config.Validate(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadConfig reads the config and rebuilds the global logger from
// general.logLevel and general.logFile.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, nil, err
	}
	closeLog, err := setupLogger(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}

func setupLogger(g config.GeneralConfig) (func(), error) {
	opts := &slog.HandlerOptions{Level: parseLevel(g.LogLevel)}
	if g.LogFile == "" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger = slog.New(slog.NewJSONHandler(f, opts))
	return func() { f.Close() }, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// app bundles what every server-facing command needs.
type app struct {
	cfg    *config.Config
	client *client.Client
	term   *render.Terminal
	store  *credstore.Store
	close  func()
}

type appOptions struct {
	renderer domain.Renderer
	term     *render.Terminal
	restore  bool
}

// openApp loads config, opens the credential store and wires a client.
// With restore set, it fails unless a token is available.
func openApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return nil, err
	}

	store, err := credstore.Open(ctx, cfg.CredentialsPath(), logger)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("credential store: %w", err)
	}

	term := opts.term
	if term == nil {
		term = render.NewTerminal(render.TerminalConfig{Out: os.Stdout, EchoUser: true, Compact: true})
	}
	renderer := opts.renderer
	if renderer == nil {
		renderer = term
	}

	c := client.New(client.Options{
		Config:   cfg,
		Store:    store,
		Renderer: renderer,
		Logger:   logger,
	})
	a := &app{
		cfg:    cfg,
		client: c,
		term:   term,
		store:  store,
		close: func() {
			store.Close()
			closeLog()
		},
	}

	if opts.restore {
		ok, err := c.Restore(ctx)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("restore session: %w", err)
		}
		if !ok {
			a.close()
			return nil, fmt.Errorf("not logged in to %s; run 'ragchat login' first", cfg.Server.BaseURL)
		}
	}
	return a, nil
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// switchIfSet makes the conversation from a --conversation flag active.
func switchIfSet(ctx context.Context, c *client.Client, conversationID string) error {
	if conversationID == "" {
		return nil
	}
	return c.SwitchTo(ctx, conversationID)
}
