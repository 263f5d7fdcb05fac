package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"ragchat/internal/metrics"
	"ragchat/internal/render"
	"ragchat/internal/repl"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func chatCmd() *cobra.Command {
	var (
		conversationID string
		dumpMetrics    bool
		metricsAddr    string
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long:  "Opens a chat shell. Type a message to send it; answers stream in as they are generated. Type /help for commands.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			tty := term.IsTerminal(int(os.Stdout.Fd()))
			terminal := render.NewTerminal(render.TerminalConfig{Out: os.Stdout, Spinner: tty})
			a, err := openApp(ctx, appOptions{term: terminal, restore: true})
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Metrics.DumpOnExit {
				dumpMetrics = true
			}
			if dumpMetrics {
				defer func() {
					fmt.Fprintln(os.Stderr)
					if err := a.client.Metrics().WriteText(os.Stderr); err != nil {
						logger.Warn("write metrics", "err", err)
					}
				}()
			}
			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			if metricsAddr != "" {
				shutdown := serveMetrics(metricsAddr, a.client.Metrics())
				defer shutdown()
			}

			if err := switchIfSet(ctx, a.client, conversationID); err != nil {
				return fmt.Errorf("switch conversation: %w", err)
			}

			terminal.Info("Connected to %s", a.client.Describe())
			shell := repl.New(repl.Config{
				Backend: a.client,
				Printer: terminal,
				In:      os.Stdin,
				Out:     os.Stdout,
				Logger:  logger,
			})
			return shell.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().BoolVar(&dumpMetrics, "metrics", false, "print client metrics on exit")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve client metrics over HTTP on this address (e.g. 127.0.0.1:9464)")
	return cmd
}

// serveMetrics exposes /metrics until the returned function is called.
func serveMetrics(addr string, c *metrics.Collector) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "addr", addr, "err", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
