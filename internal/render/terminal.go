// Package render prints render commands to a terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"ragchat/internal/domain"
)

// Terminal implements domain.Renderer on a line-oriented writer. Streamed
// text is printed incrementally: when the republished full text extends
// what is already on screen only the new suffix is written.
type Terminal struct {
	mu  sync.Mutex
	out io.Writer

	echoUser bool
	spinner  bool
	compact  bool

	streams  map[domain.MessageHandle]*streamState
	docs     map[string][]string // succeeded filenames last printed, per conversation
	thinking bool
	stop     chan struct{}

	user, assistant, dim, failed, warn, notice, header lipgloss.Style
}

type streamState struct {
	printed  string
	grounded bool
	started  bool
}

// TerminalConfig configures a Terminal.
type TerminalConfig struct {
	Out io.Writer
	// EchoUser prints user messages as they are sent. Interactive shells
	// leave it off since the user just typed the line.
	EchoUser bool
	// Spinner animates a "Thinking..." line until the first text arrives.
	Spinner bool
	// Compact prints only the header when a transcript is replaced.
	Compact bool
}

var (
	brandPrimary = lipgloss.Color("#7C3AED")
	brandAccent  = lipgloss.Color("#10B981")
	brandWarning = lipgloss.Color("#F59E0B")
	brandError   = lipgloss.Color("#EF4444")
	textMuted    = lipgloss.Color("#6B7280")
	brandSecond  = lipgloss.Color("#06B6D4")
)

func NewTerminal(cfg TerminalConfig) *Terminal {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	r := lipgloss.NewRenderer(cfg.Out)
	return &Terminal{
		out:       cfg.Out,
		echoUser:  cfg.EchoUser,
		spinner:   cfg.Spinner,
		compact:   cfg.Compact,
		streams:   make(map[domain.MessageHandle]*streamState),
		docs:      make(map[string][]string),
		user:      r.NewStyle().Foreground(brandSecond).Bold(true),
		assistant: r.NewStyle().Foreground(brandPrimary).Bold(true),
		dim:       r.NewStyle().Foreground(textMuted),
		failed:    r.NewStyle().Foreground(brandError).Bold(true),
		warn:      r.NewStyle().Foreground(brandWarning),
		notice:    r.NewStyle().Foreground(brandAccent),
		header:    r.NewStyle().Foreground(brandPrimary).Bold(true).MarginTop(1),
	}
}

var _ domain.Renderer = (*Terminal)(nil)

func (t *Terminal) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(t.out, format, args...)
}

func (t *Terminal) AppendMessage(h domain.MessageHandle, msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.Role == domain.RoleUser {
		if t.echoUser {
			t.printf("%s %s\n", t.user.Render("You>"), msg.Content)
		}
		return
	}
	t.streams[h] = &streamState{}
	t.startThinking()
}

func (t *Terminal) UpdateMessageText(h domain.MessageHandle, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.streams[h]
	if !ok {
		return
	}
	t.stopThinking()
	if !st.started {
		t.printf("%s ", t.assistant.Render("Assistant>"))
		st.started = true
	}
	if strings.HasPrefix(text, st.printed) {
		t.printf("%s", text[len(st.printed):])
	} else {
		// Replacement that does not extend the visible text: start over.
		t.printf("\n%s", text)
	}
	st.printed = text
}

func (t *Terminal) MarkGrounded(h domain.MessageHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.streams[h]; ok {
		st.grounded = true
	}
}

func (t *Terminal) MarkFailed(h domain.MessageHandle, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.streams[h]
	if !ok {
		return
	}
	t.stopThinking()
	if st.started {
		t.printf("\n")
	}
	t.printf("%s\n", t.failed.Render("✗ "+reason))
	delete(t.streams, h)
}

func (t *Terminal) CompleteMessage(h domain.MessageHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.streams[h]
	if !ok {
		return
	}
	t.stopThinking()
	if !st.started {
		t.printf("%s %s", t.assistant.Render("Assistant>"), t.dim.Render("(empty reply)"))
	}
	t.printf("\n")
	if st.grounded {
		t.printf("%s\n", t.dim.Render("[answer grounded in attached documents]"))
	}
	delete(t.streams, h)
}

func (t *Terminal) ReplaceTranscript(conversationID string, msgs []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopThinking()
	clear(t.streams)
	if conversationID == "" {
		t.printf("%s\n", t.header.Render("── New conversation ──"))
		return
	}
	t.printf("%s\n", t.header.Render("── Conversation "+conversationID+" ──"))
	if t.compact {
		return
	}
	for _, m := range msgs {
		label := t.assistant.Render("Assistant>")
		if m.Role == domain.RoleUser {
			label = t.user.Render("You>")
		}
		t.printf("%s %s\n", label, m.Content)
	}
}

// SetAttachmentList prints the conversation's documents when the set of
// uploaded files changed since it was last printed. Pending entries are
// not shown.
func (t *Terminal) SetAttachmentList(conversationID string, atts []domain.Attachment) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var names []string
	for _, a := range atts {
		if a.UploadState == domain.UploadSucceeded {
			names = append(names, a.Filename)
		}
	}
	prev, seen := t.docs[conversationID]
	if seen && slices.Equal(prev, names) {
		return
	}
	t.docs[conversationID] = names
	if !seen && len(names) == 0 {
		return
	}
	if len(names) == 0 {
		t.printf("%s\n", t.dim.Render("No documents attached."))
		return
	}
	t.printf("%s\n", t.dim.Render(fmt.Sprintf("Documents (%d): %s", len(names), strings.Join(names, ", "))))
}

func (t *Terminal) Notice(_ domain.MessageHandle, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printf("%s\n", t.notice.Render("· "+text))
}

func (t *Terminal) SessionExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopThinking()
	clear(t.streams)
	clear(t.docs)
	t.printf("%s\n", t.warn.Render("Session expired. Please log in again with `ragchat login`."))
}

// History prints conversation summaries, numbered from 1.
func (t *Terminal) History(summaries []domain.ConversationSummary) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(summaries) == 0 {
		t.printf("%s\n", t.dim.Render("No conversations yet."))
		return
	}
	for i, s := range summaries {
		when := "unknown time"
		if !s.CreatedAt.IsZero() {
			when = humanize.Time(s.CreatedAt)
		}
		t.printf("%3d. %-24s %s\n", i+1, s.Label,
			t.dim.Render(fmt.Sprintf("%s · %d messages · %s", when, s.MessageCount, s.ConversationID)))
	}
}

// Documents prints an attachment listing with ids, for removal commands.
func (t *Terminal) Documents(atts []domain.Attachment) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(atts) == 0 {
		t.printf("%s\n", t.dim.Render("No documents attached."))
		return
	}
	for _, a := range atts {
		t.printf("  %-10s %s\n", a.ID, a.Filename)
	}
}

// Info prints a dimmed informational line.
func (t *Terminal) Info(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printf("%s\n", t.dim.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (t *Terminal) Error(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopThinking()
	t.printf("%s\n", t.failed.Render("Error: "+err.Error()))
}

// startThinking must be called with t.mu held.
func (t *Terminal) startThinking() {
	if !t.spinner || t.thinking {
		return
	}
	t.thinking = true
	stop := make(chan struct{})
	t.stop = stop
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.mu.Lock()
				select {
				case <-stop:
				default:
					t.printf("\r%s Thinking...", frames[i%len(frames)])
				}
				t.mu.Unlock()
				i++
			}
		}
	}()
}

// stopThinking must be called with t.mu held.
func (t *Terminal) stopThinking() {
	if !t.thinking {
		return
	}
	t.thinking = false
	close(t.stop)
	t.printf("\r\033[K")
}
