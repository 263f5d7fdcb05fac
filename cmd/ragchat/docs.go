package main

import (
	"context"
	"errors"
	"fmt"

	"ragchat/internal/domain"

	"github.com/spf13/cobra"
)

func docsCmd() *cobra.Command {
	var conversationID string
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage documents attached to a conversation",
		Long:  "List, upload, remove and clear the documents a conversation answers from. Without --conversation, upload starts a new conversation and the other subcommands fail.",
	}
	cmd.PersistentFlags().StringVar(&conversationID, "conversation", "", "conversation id to operate on")

	// withApp opens a logged-in client on the selected conversation.
	withApp := func(run func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := openApp(ctx, appOptions{restore: true})
			if err != nil {
				return err
			}
			defer a.close()
			if err := switchIfSet(ctx, a.client, conversationID); err != nil {
				return fmt.Errorf("switch conversation: %w", err)
			}
			return run(ctx, a)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List attached documents",
		RunE: withApp(func(ctx context.Context, a *app) error {
			atts, err := a.client.Documents(ctx)
			if err != nil {
				return err
			}
			a.term.Documents(atts)
			return nil
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "upload [file...]",
		Short: "Upload documents (5 MiB limit per file by default)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				report, err := a.client.Upload(ctx, args)
				if err != nil {
					return err
				}
				for _, r := range report.Results {
					if r.Err == nil {
						continue
					}
					var verr *domain.ValidationError
					if errors.As(r.Err, &verr) {
						a.term.Error(r.Err)
					} else {
						a.term.Error(fmt.Errorf("%s: %w", r.Attachment.Filename, r.Err))
					}
				}
				if report.ConversationID != "" {
					a.term.Info("conversation: %s", report.ConversationID)
				}
				if report.Succeeded < report.Total {
					return fmt.Errorf("%d of %d file(s) failed", report.Total-report.Succeeded, report.Total)
				}
				return nil
			})(cmd, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm [document id]",
		Short: "Remove one attached document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				if err := a.client.RemoveDocument(ctx, args[0]); err != nil {
					return err
				}
				a.term.Info("Removed document %s.", args[0])
				return nil
			})(cmd, args)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every attached document",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if err := a.client.ClearDocuments(ctx); err != nil {
				return err
			}
			a.term.Info("Removed all documents.")
			return nil
		}),
	})

	return cmd
}
