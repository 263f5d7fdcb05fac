package main

import (
	"encoding/json"
	"fmt"
	"os"

	"ragchat/internal/render"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var asJSON bool
	var show string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your conversations",
		Long:  "Lists your conversations, most recent first. With --show, prints the transcript of one conversation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			opts := appOptions{restore: true}
			if show != "" {
				opts.term = render.NewTerminal(render.TerminalConfig{Out: os.Stdout})
			}
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()

			sums, err := a.client.History(ctx)
			if err != nil {
				return fmt.Errorf("load history: %w", err)
			}

			if show != "" {
				// Switching prints the full transcript.
				return a.client.SwitchTo(ctx, show)
			}
			if asJSON {
				data, _ := json.MarshalIndent(sums, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			a.term.History(sums)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print summaries as JSON")
	cmd.Flags().StringVar(&show, "show", "", "print the transcript of this conversation id")
	return cmd
}
