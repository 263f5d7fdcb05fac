// Package domaintest provides in-memory doubles for the domain
// collaborators, for use in tests of the core packages.
package domaintest

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"ragchat/internal/domain"
)

// Gateway is a scriptable domain.Gateway. Unset funcs succeed with zero
// values. Every call is recorded.
type Gateway struct {
	StreamFunc  func(ctx context.Context, req domain.MessageRequest) (io.ReadCloser, error)
	ListFunc    func(ctx context.Context, conversationID string) ([]domain.Attachment, error)
	ClearFunc   func(ctx context.Context, conversationID string) error
	RemoveFunc  func(ctx context.Context, conversationID, documentID string) error
	UploadFunc  func(ctx context.Context, conversationID, filename string, content io.Reader) error
	HistoryFunc func(ctx context.Context) ([]domain.Conversation, error)

	mu    sync.Mutex
	calls []Call
}

// Call is one recorded gateway invocation.
type Call struct {
	Method         string
	ConversationID string
	Arg            string // message text, filename or document id
	Request        domain.MessageRequest
}

func (g *Gateway) record(c Call) {
	g.mu.Lock()
	g.calls = append(g.calls, c)
	g.mu.Unlock()
}

// Calls returns every recorded call, optionally filtered by method.
func (g *Gateway) Calls(method string) []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	if method == "" {
		return slices.Clone(g.calls)
	}
	var out []Call
	for _, c := range g.calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (g *Gateway) StreamMessage(ctx context.Context, req domain.MessageRequest) (io.ReadCloser, error) {
	g.record(Call{Method: "StreamMessage", ConversationID: req.ConversationID, Arg: req.Message, Request: req})
	if g.StreamFunc == nil {
		return io.NopCloser(strings.NewReader("")), nil
	}
	return g.StreamFunc(ctx, req)
}

func (g *Gateway) ListDocuments(ctx context.Context, conversationID string) ([]domain.Attachment, error) {
	g.record(Call{Method: "ListDocuments", ConversationID: conversationID})
	if g.ListFunc == nil {
		return nil, nil
	}
	return g.ListFunc(ctx, conversationID)
}

func (g *Gateway) ClearDocuments(ctx context.Context, conversationID string) error {
	g.record(Call{Method: "ClearDocuments", ConversationID: conversationID})
	if g.ClearFunc == nil {
		return nil
	}
	return g.ClearFunc(ctx, conversationID)
}

func (g *Gateway) RemoveDocument(ctx context.Context, conversationID, documentID string) error {
	g.record(Call{Method: "RemoveDocument", ConversationID: conversationID, Arg: documentID})
	if g.RemoveFunc == nil {
		return nil
	}
	return g.RemoveFunc(ctx, conversationID, documentID)
}

func (g *Gateway) UploadDocument(ctx context.Context, conversationID, filename string, content io.Reader) error {
	g.record(Call{Method: "UploadDocument", ConversationID: conversationID, Arg: filename})
	if g.UploadFunc == nil {
		_, err := io.Copy(io.Discard, content)
		return err
	}
	return g.UploadFunc(ctx, conversationID, filename, content)
}

func (g *Gateway) History(ctx context.Context) ([]domain.Conversation, error) {
	g.record(Call{Method: "History"})
	if g.HistoryFunc == nil {
		return nil, nil
	}
	return g.HistoryFunc(ctx)
}

// Body returns a stream body made of the given lines, each terminated by
// a newline.
func Body(lines ...string) io.ReadCloser {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return io.NopCloser(strings.NewReader(b.String()))
}

// Command is one recorded render command.
type Command struct {
	Name           string
	Handle         domain.MessageHandle
	Text           string
	ConversationID string
	Message        domain.Message
	Messages       []domain.Message
	Attachments    []domain.Attachment
}

// Renderer records every render command it receives.
type Renderer struct {
	mu       sync.Mutex
	commands []Command
}

var _ domain.Renderer = (*Renderer)(nil)

func (r *Renderer) add(c Command) {
	r.mu.Lock()
	r.commands = append(r.commands, c)
	r.mu.Unlock()
}

// Commands returns recorded commands, optionally filtered by name.
func (r *Renderer) Commands(name string) []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name == "" {
		return slices.Clone(r.commands)
	}
	var out []Command
	for _, c := range r.commands {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the successive UpdateMessageText payloads for h.
func (r *Renderer) Texts(h domain.MessageHandle) []string {
	var out []string
	for _, c := range r.Commands("UpdateMessageText") {
		if c.Handle == h {
			out = append(out, c.Text)
		}
	}
	return out
}

func (r *Renderer) AppendMessage(h domain.MessageHandle, msg domain.Message) {
	r.add(Command{Name: "AppendMessage", Handle: h, Message: msg, Text: msg.Content})
}

func (r *Renderer) UpdateMessageText(h domain.MessageHandle, text string) {
	r.add(Command{Name: "UpdateMessageText", Handle: h, Text: text})
}

func (r *Renderer) MarkGrounded(h domain.MessageHandle) {
	r.add(Command{Name: "MarkGrounded", Handle: h})
}

func (r *Renderer) MarkFailed(h domain.MessageHandle, reason string) {
	r.add(Command{Name: "MarkFailed", Handle: h, Text: reason})
}

func (r *Renderer) CompleteMessage(h domain.MessageHandle) {
	r.add(Command{Name: "CompleteMessage", Handle: h})
}

func (r *Renderer) ReplaceTranscript(conversationID string, msgs []domain.Message) {
	r.add(Command{Name: "ReplaceTranscript", ConversationID: conversationID, Messages: slices.Clone(msgs)})
}

func (r *Renderer) SetAttachmentList(conversationID string, atts []domain.Attachment) {
	r.add(Command{Name: "SetAttachmentList", ConversationID: conversationID, Attachments: slices.Clone(atts)})
}

func (r *Renderer) Notice(h domain.MessageHandle, text string) {
	r.add(Command{Name: "Notice", Handle: h, Text: text})
}

func (r *Renderer) SessionExpired() {
	r.add(Command{Name: "SessionExpired"})
}

// Expirer counts Expire calls.
type Expirer struct {
	mu    sync.Mutex
	count int
}

func (e *Expirer) Expire(context.Context) {
	e.mu.Lock()
	e.count++
	e.mu.Unlock()
}

// Count returns how many times Expire was called.
func (e *Expirer) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}
