package main

import (
	"fmt"
	"os"
	"strings"

	"ragchat/internal/stream"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var conversationID string
	var dumpMetrics bool
	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one message and stream the answer",
		Long:  "Sends a single message (to a new conversation unless --conversation is given) and prints the answer as it streams. The conversation id is printed afterwards so you can continue it.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx, appOptions{restore: true})
			if err != nil {
				return err
			}
			defer a.close()
			if dumpMetrics || a.cfg.Metrics.DumpOnExit {
				defer a.client.Metrics().WriteText(os.Stderr)
			}

			if err := switchIfSet(ctx, a.client, conversationID); err != nil {
				return fmt.Errorf("switch conversation: %w", err)
			}

			out, err := a.client.Send(ctx, strings.Join(args, " "))
			if out != nil && out.ConversationID != "" {
				a.term.Info("conversation: %s", out.ConversationID)
			}
			if err != nil {
				if out != nil && out.State == stream.StateFailed {
					// Already shown on the message.
					return fmt.Errorf("message failed")
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().BoolVar(&dumpMetrics, "metrics", false, "print client metrics on exit")
	return cmd
}
