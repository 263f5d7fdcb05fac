// Package repl is the interactive chat shell.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"ragchat/internal/attachment"
	"ragchat/internal/domain"
	"ragchat/internal/stream"
)

// Backend is the chat engine the shell drives.
type Backend interface {
	Send(ctx context.Context, text string) (*stream.Outcome, error)
	History(ctx context.Context) ([]domain.ConversationSummary, error)
	SwitchTo(ctx context.Context, conversationID string) error
	NewConversation()
	ActiveConversation() string
	Upload(ctx context.Context, paths []string) (*attachment.Report, error)
	Documents(ctx context.Context) ([]domain.Attachment, error)
	RemoveDocument(ctx context.Context, documentID string) error
	ClearDocuments(ctx context.Context) error
	Logout(ctx context.Context) error
	Authenticated() bool
}

// Printer shows command results. *render.Terminal implements it.
type Printer interface {
	History(summaries []domain.ConversationSummary)
	Documents(atts []domain.Attachment)
	Info(format string, args ...any)
	Error(err error)
}

// Config configures a Shell.
type Config struct {
	Backend Backend
	Printer Printer
	In      io.Reader
	Out     io.Writer
	Logger  *slog.Logger
}

// Shell reads lines, runs slash commands and sends everything else as
// a chat message.
type Shell struct {
	backend Backend
	printer Printer
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	history []domain.ConversationSummary // last /history listing, for /switch N
}

func New(cfg Config) *Shell {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Shell{
		backend: cfg.Backend,
		printer: cfg.Printer,
		in:      cfg.In,
		out:     cfg.Out,
		logger:  cfg.Logger,
	}
}

var errQuit = errors.New("quit")

// Run blocks until the input ends, the user quits, the session ends or
// ctx is cancelled.
func (s *Shell) Run(ctx context.Context) error {
	_, _ = fmt.Fprintln(s.out, "ragchat. Type a message and press Enter. /help lists commands, /quit exits.")

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		_, _ = fmt.Fprint(s.out, "You> ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := s.Handle(ctx, line); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			s.printer.Error(err)
		}
		if !s.backend.Authenticated() {
			s.printer.Info("Session ended.")
			return nil
		}
	}
}

// Handle runs one input line.
func (s *Shell) Handle(ctx context.Context, line string) error {
	cmd := ParseCommand(line)
	if cmd == nil {
		return s.send(ctx, line)
	}

	switch cmd.Name {
	case "help", "?":
		_, _ = fmt.Fprintln(s.out, helpText())

	case "quit", "exit", "q":
		s.logger.Info("user requested quit")
		return errQuit

	case "new":
		s.backend.NewConversation()

	case "history":
		sums, err := s.backend.History(ctx)
		if err != nil {
			return err
		}
		s.history = sums
		s.printer.History(sums)

	case "switch":
		if len(cmd.Args) != 1 {
			return fmt.Errorf("usage: /switch <number|conversation id>")
		}
		return s.backend.SwitchTo(ctx, s.resolveConversation(cmd.Args[0]))

	case "upload":
		if len(cmd.Args) == 0 {
			return fmt.Errorf("usage: /upload <file> [file...]")
		}
		_, err := s.backend.Upload(ctx, cmd.Args)
		return err

	case "docs":
		atts, err := s.backend.Documents(ctx)
		if err != nil {
			return err
		}
		s.printer.Documents(atts)

	case "rm":
		if len(cmd.Args) != 1 {
			return fmt.Errorf("usage: /rm <document id>")
		}
		if err := s.backend.RemoveDocument(ctx, cmd.Args[0]); err != nil {
			return err
		}
		s.printer.Info("Removed document %s.", cmd.Args[0])

	case "clear-docs":
		if err := s.backend.ClearDocuments(ctx); err != nil {
			return err
		}
		s.printer.Info("Removed all documents.")

	case "status":
		if id := s.backend.ActiveConversation(); id != "" {
			s.printer.Info("Active conversation: %s", id)
		} else {
			s.printer.Info("No active conversation; the next message starts one.")
		}

	case "logout":
		if err := s.backend.Logout(ctx); err != nil {
			return err
		}
		s.printer.Info("Logged out.")

	default:
		return fmt.Errorf("unknown command /%s (try /help)", cmd.Name)
	}
	return nil
}

func (s *Shell) send(ctx context.Context, text string) error {
	out, err := s.backend.Send(ctx, text)
	// Failed sessions were already rendered on their message.
	if err != nil && (out == nil || out.State != stream.StateFailed) {
		return err
	}
	return nil
}

// resolveConversation maps a 1-based /history index to its id. Anything
// else is taken as an id.
func (s *Shell) resolveConversation(arg string) string {
	if n, err := strconv.Atoi(arg); err == nil && n >= 1 && n <= len(s.history) {
		return s.history[n-1].ConversationID
	}
	return arg
}
