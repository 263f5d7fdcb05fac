// Package client assembles the chat engine: session context, gateway,
// conversation state, stream controller and attachment manager.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"ragchat/internal/attachment"
	"ragchat/internal/auth"
	"ragchat/internal/config"
	"ragchat/internal/conversation"
	"ragchat/internal/domain"
	"ragchat/internal/events"
	"ragchat/internal/metrics"
	"ragchat/internal/stream"
	"ragchat/internal/transport"
)

// RAG modes for chat.rag.
const (
	RAGAuto   = "auto"
	RAGAlways = "always"
	RAGNever  = "never"
)

// Options configures a Client.
type Options struct {
	Config     *config.Config
	Store      auth.TokenStore // nil keeps tokens in memory only
	Renderer   domain.Renderer
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is the engine facade used by the CLI.
type Client struct {
	cfg         *config.Config
	session     *auth.Session
	gateway     *transport.Client
	convs       *conversation.Synchronizer
	streams     *stream.Controller
	attachments *attachment.Manager
	renderer    domain.Renderer
	bus         *events.Bus
	collector   *metrics.Collector
	logger      *slog.Logger
}

// New wires a client. No network call is made.
func New(opts Options) *Client {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = domain.NopRenderer{}
	}

	bus := events.New(logger)
	collector := metrics.NewCollector()
	metrics.Register(collector).Subscribe(bus)

	session := auth.NewSession(auth.SessionConfig{
		Server: cfg.Server.BaseURL,
		Store:  opts.Store,
		Events: bus,
		Logger: logger,
	})
	gateway := transport.New(transport.Config{
		BaseURL:       cfg.Server.BaseURL,
		Tokens:        session,
		HTTPClient:    opts.HTTPClient,
		Timeout:       time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		RatePerMinute: cfg.Server.RatePerMinute,
		RateBurst:     cfg.Server.RateBurst,
		Logger:        logger,
	})
	convs := conversation.New(conversation.Config{
		Gateway:       gateway,
		Renderer:      renderer,
		Expirer:       session,
		Events:        bus,
		Logger:        logger,
		SummaryLength: cfg.Chat.SummaryLength,
		EmptyLabel:    cfg.Chat.EmptyLabel,
	})
	streams := stream.NewController(stream.Config{
		Gateway:       gateway,
		Conversations: convs,
		Renderer:      renderer,
		Expirer:       session,
		Events:        bus,
		Logger:        logger,
	})
	attachments := attachment.NewManager(attachment.Config{
		Gateway:       gateway,
		Conversations: convs,
		Provisioner:   streams,
		Renderer:      renderer,
		Expirer:       session,
		Events:        bus,
		Logger:        logger,
		MaxSize:       cfg.Attachments.MaxSizeBytes,
		Placeholder:   cfg.Chat.PlaceholderMessage,
	})

	c := &Client{
		cfg:         cfg,
		session:     session,
		gateway:     gateway,
		convs:       convs,
		streams:     streams,
		attachments: attachments,
		renderer:    renderer,
		bus:         bus,
		collector:   collector,
		logger:      logger,
	}
	session.OnLogout(c.onLogout)
	return c
}

func (c *Client) onLogout(reason auth.LogoutReason) {
	c.convs.Reset()
	if reason == auth.LogoutExpired {
		c.renderer.SessionExpired()
	}
}

// Restore picks up a configured or stored token. It reports whether the
// client is authenticated afterwards.
func (c *Client) Restore(ctx context.Context) (bool, error) {
	if tok := c.cfg.Server.Token; tok != "" {
		c.session.Adopt("", tok)
		return true, nil
	}
	return c.session.Restore(ctx)
}

// Login exchanges credentials for a token and starts the session.
func (c *Client) Login(ctx context.Context, username, password string) error {
	tok, err := c.gateway.Login(ctx, username, password)
	if err != nil {
		return err
	}
	return c.session.Begin(ctx, username, tok.AccessToken)
}

// Register creates an account and starts the session with its token.
func (c *Client) Register(ctx context.Context, username, email, password string) error {
	tok, err := c.gateway.Register(ctx, username, email, password)
	if err != nil {
		return err
	}
	return c.session.Begin(ctx, username, tok.AccessToken)
}

// Logout ends the session and forgets the stored token.
func (c *Client) Logout(ctx context.Context) error {
	return c.session.Logout(ctx)
}

func (c *Client) Authenticated() bool { return c.session.Authenticated() }
func (c *Client) Username() string    { return c.session.Username() }
func (c *Client) BaseURL() string     { return c.gateway.BaseURL() }

// Send posts a message to the active conversation.
func (c *Client) Send(ctx context.Context, text string) (*stream.Outcome, error) {
	if !c.session.Authenticated() {
		return &stream.Outcome{State: stream.StateIdle}, domain.ErrNotAuthenticated
	}
	return c.streams.Send(ctx, text, c.useRAG(ctx))
}

// useRAG resolves chat.rag. In auto mode retrieval is requested iff the
// active conversation has documents on the server; a failed check means
// no retrieval.
func (c *Client) useRAG(ctx context.Context) bool {
	switch c.cfg.Chat.RAG {
	case RAGAlways:
		return true
	case RAGNever:
		return false
	}
	id := c.convs.ActiveID()
	if id == "" {
		return false
	}
	docs, err := c.gateway.ListDocuments(ctx, id)
	if err != nil {
		c.logger.Debug("document check failed, sending without retrieval", "error", err)
		return false
	}
	return len(docs) > 0
}

// History loads the user's conversations.
func (c *Client) History(ctx context.Context) ([]domain.ConversationSummary, error) {
	return c.convs.LoadHistory(ctx)
}

// SwitchTo makes the conversation with the given id active.
func (c *Client) SwitchTo(ctx context.Context, conversationID string) error {
	return c.convs.SwitchToID(ctx, conversationID)
}

// NewConversation clears the active conversation.
func (c *Client) NewConversation() { c.convs.NewConversation() }

// ActiveConversation returns the active conversation id.
func (c *Client) ActiveConversation() string { return c.convs.ActiveID() }

// Transcript returns the visible transcript.
func (c *Client) Transcript() []domain.Message { return c.convs.Transcript() }

// Upload uploads local files. Files that cannot be read are reported as
// failed entries in the batch.
func (c *Client) Upload(ctx context.Context, paths []string) (*attachment.Report, error) {
	files := make([]attachment.File, 0, len(paths))
	for _, p := range paths {
		f, err := attachment.LocalFile(p)
		if err != nil {
			statErr := err
			f = attachment.File{Name: p, Open: func() (io.ReadCloser, error) { return nil, statErr }}
		}
		files = append(files, f)
	}
	return c.attachments.UploadFiles(ctx, files)
}

// Documents lists the active conversation's attachments.
func (c *Client) Documents(ctx context.Context) ([]domain.Attachment, error) {
	id, err := c.requireConversation()
	if err != nil {
		return nil, err
	}
	return c.attachments.List(ctx, id)
}

// RemoveDocument removes one attachment from the active conversation.
func (c *Client) RemoveDocument(ctx context.Context, documentID string) error {
	id, err := c.requireConversation()
	if err != nil {
		return err
	}
	return c.attachments.Remove(ctx, id, documentID)
}

// ClearDocuments removes every attachment from the active conversation.
func (c *Client) ClearDocuments(ctx context.Context) error {
	id, err := c.requireConversation()
	if err != nil {
		return err
	}
	return c.attachments.ClearAll(ctx, id)
}

// ErrNoConversation is returned by document operations when no
// conversation is active.
var ErrNoConversation = errors.New("no active conversation")

func (c *Client) requireConversation() (string, error) {
	id := c.convs.ActiveID()
	if id == "" {
		return "", ErrNoConversation
	}
	return id, nil
}

// Events returns the lifecycle event bus.
func (c *Client) Events() *events.Bus { return c.bus }

// Metrics returns the client's metrics collector.
func (c *Client) Metrics() *metrics.Collector { return c.collector }

// Describe summarizes the client for diagnostics.
func (c *Client) Describe() string {
	state := "logged out"
	if c.Authenticated() {
		state = "logged in"
		if u := c.Username(); u != "" {
			state += " as " + u
		}
	}
	return fmt.Sprintf("%s (%s)", c.BaseURL(), state)
}
