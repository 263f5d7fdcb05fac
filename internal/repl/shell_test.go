package repl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/attachment"
	"ragchat/internal/domain"
	"ragchat/internal/stream"
)

type fakeBackend struct {
	calls    []string
	active   string
	loggedIn bool
	sendErr  error
	sendOut  *stream.Outcome
}

func (f *fakeBackend) record(format string, args ...any) { f.calls = append(f.calls, fmt.Sprintf(format, args...)) }

func (f *fakeBackend) Send(_ context.Context, text string) (*stream.Outcome, error) {
	f.record("send %s", text)
	if f.sendOut != nil {
		return f.sendOut, f.sendErr
	}
	return &stream.Outcome{State: stream.StateCompleted}, f.sendErr
}

func (f *fakeBackend) History(context.Context) ([]domain.ConversationSummary, error) {
	f.record("history")
	return []domain.ConversationSummary{
		{ConversationID: "c2", Label: "second"},
		{ConversationID: "c1", Label: "first"},
	}, nil
}

func (f *fakeBackend) SwitchTo(_ context.Context, id string) error {
	f.record("switch %s", id)
	f.active = id
	return nil
}

func (f *fakeBackend) NewConversation() {
	f.record("new")
	f.active = ""
}

func (f *fakeBackend) ActiveConversation() string { return f.active }

func (f *fakeBackend) Upload(_ context.Context, paths []string) (*attachment.Report, error) {
	f.record("upload %s", strings.Join(paths, ","))
	return &attachment.Report{Total: len(paths), Succeeded: len(paths)}, nil
}

func (f *fakeBackend) Documents(context.Context) ([]domain.Attachment, error) {
	f.record("docs")
	return []domain.Attachment{{ID: "7", Filename: "a.pdf"}}, nil
}

func (f *fakeBackend) RemoveDocument(_ context.Context, id string) error {
	f.record("rm %s", id)
	return nil
}

func (f *fakeBackend) ClearDocuments(context.Context) error {
	f.record("clear")
	return nil
}

func (f *fakeBackend) Logout(context.Context) error {
	f.record("logout")
	f.loggedIn = false
	return nil
}

func (f *fakeBackend) Authenticated() bool { return f.loggedIn }

type fakePrinter struct {
	lines  []string
	errors []error
}

func (p *fakePrinter) History(sums []domain.ConversationSummary) {
	for _, s := range sums {
		p.lines = append(p.lines, "history:"+s.Label)
	}
}

func (p *fakePrinter) Documents(atts []domain.Attachment) {
	for _, a := range atts {
		p.lines = append(p.lines, "doc:"+a.Filename)
	}
}

func (p *fakePrinter) Info(format string, args ...any) { p.lines = append(p.lines, fmt.Sprintf(format, args...)) }
func (p *fakePrinter) Error(err error)                 { p.errors = append(p.errors, err) }

func runShell(t *testing.T, b *fakeBackend, input string) (*fakePrinter, string) {
	t.Helper()
	p := &fakePrinter{}
	var out bytes.Buffer
	sh := New(Config{Backend: b, Printer: p, In: strings.NewReader(input), Out: &out})
	require.NoError(t, sh.Run(context.Background()))
	return p, out.String()
}

func TestParseCommand(t *testing.T) {
	assert.Nil(t, ParseCommand("hello"))
	assert.Nil(t, ParseCommand("/"))

	cmd := ParseCommand("  /UPLOAD a.pdf  b.txt ")
	require.NotNil(t, cmd)
	assert.Equal(t, "upload", cmd.Name)
	assert.Equal(t, []string{"a.pdf", "b.txt"}, cmd.Args)
	assert.Equal(t, "/UPLOAD a.pdf  b.txt", cmd.Raw)
}

func TestShell_DispatchesCommandsAndMessages(t *testing.T) {
	b := &fakeBackend{loggedIn: true}
	p, _ := runShell(t, b, strings.Join([]string{
		"hello there",
		"",
		"/history",
		"/switch 2",
		"/upload a.pdf b.txt",
		"/docs",
		"/rm 7",
		"/clear-docs",
		"/new",
		"/switch c9",
		"/quit",
		"never sent",
	}, "\n"))

	assert.Equal(t, []string{
		"send hello there",
		"history",
		"switch c1",
		"upload a.pdf,b.txt",
		"docs",
		"rm 7",
		"clear",
		"new",
		"switch c9",
	}, b.calls)
	assert.Contains(t, p.lines, "history:second")
	assert.Contains(t, p.lines, "doc:a.pdf")
	assert.Empty(t, p.errors)
}

func TestShell_UsageAndUnknownCommands(t *testing.T) {
	b := &fakeBackend{loggedIn: true}
	p, _ := runShell(t, b, "/rm\n/switch\n/bogus\n")

	require.Len(t, p.errors, 3)
	assert.Contains(t, p.errors[2].Error(), "unknown command /bogus")
	assert.Empty(t, b.calls)
}

func TestShell_FailedSendIsNotReportedTwice(t *testing.T) {
	b := &fakeBackend{loggedIn: true,
		sendOut: &stream.Outcome{State: stream.StateFailed},
		sendErr: &domain.ServerError{Message: "boom"},
	}
	p, _ := runShell(t, b, "hello\n")
	assert.Empty(t, p.errors)

	b = &fakeBackend{loggedIn: true, sendOut: &stream.Outcome{State: stream.StateIdle}, sendErr: domain.ErrNotAuthenticated}
	p, _ = runShell(t, b, "hello\n")
	require.Len(t, p.errors, 1)
	assert.True(t, errors.Is(p.errors[0], domain.ErrNotAuthenticated))
}

func TestShell_LogoutEndsShell(t *testing.T) {
	b := &fakeBackend{loggedIn: true}
	p, _ := runShell(t, b, "/logout\nhello\n")

	assert.Equal(t, []string{"logout"}, b.calls)
	assert.Contains(t, p.lines, "Logged out.")
	assert.Contains(t, p.lines, "Session ended.")
}

func TestShell_Help(t *testing.T) {
	_, out := runShell(t, &fakeBackend{loggedIn: true}, "/help\n")
	assert.Contains(t, out, "/upload <files>")
}
