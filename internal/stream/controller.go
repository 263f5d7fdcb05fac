// Package stream drives one message exchange: it posts the message, feeds
// the streamed body through the decoder and turns the decoded events into
// render commands and conversation updates.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ragchat/internal/conversation"
	"ragchat/internal/domain"
	"ragchat/internal/events"
	"ragchat/internal/sse"
)

const defaultChunkSize = 4096

// State is the lifecycle of one stream session.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Conversations is the view of the active conversation a session needs.
type Conversations interface {
	Snapshot() conversation.Snapshot
	Generation() uint64
	Assign(start conversation.Snapshot, id string) bool
	AppendMessage(generation uint64, msg domain.Message) bool
}

// Outcome is the result of one session.
type Outcome struct {
	Handle         domain.MessageHandle
	State          State
	Text           string // accumulated assistant text
	ConversationID string
	Grounded       bool
	// Detached is set when the user switched away while the session ran;
	// its output was then neither rendered nor added to the transcript.
	Detached bool
	Err      error
}

// Config configures a Controller.
type Config struct {
	Gateway       domain.Gateway
	Conversations Conversations
	Renderer      domain.Renderer
	Expirer       domain.SessionExpirer
	Events        *events.Bus
	Logger        *slog.Logger
	ChunkSize     int // read buffer size (default 4096)
}

// Controller runs stream sessions. Sessions against the same conversation
// are serialized; sessions against different conversations run
// independently, each with its own message handle.
type Controller struct {
	gateway       domain.Gateway
	conversations Conversations
	renderer      domain.Renderer
	expirer       domain.SessionExpirer
	events        *events.Bus
	logger        *slog.Logger
	chunkSize     int
	locks         *keyLocks
}

// NewController creates a controller.
func NewController(cfg Config) *Controller {
	if cfg.Renderer == nil {
		cfg.Renderer = domain.NopRenderer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	return &Controller{
		gateway:       cfg.Gateway,
		conversations: cfg.Conversations,
		renderer:      cfg.Renderer,
		expirer:       cfg.Expirer,
		events:        cfg.Events,
		logger:        cfg.Logger,
		chunkSize:     cfg.ChunkSize,
		locks:         newKeyLocks(),
	}
}

// Send posts text to the active conversation and streams the reply into
// the renderer. Blank text is a no-op. A reply body that ends before its
// first byte fails the session with a NetworkError. The returned error is
// the one in Outcome.Err; the controller is ready for the next Send either
// way.
func (c *Controller) Send(ctx context.Context, text string, useRAG bool) (*Outcome, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return &Outcome{State: StateIdle}, nil
	}

	start, unlock, err := c.acquire(ctx)
	if err != nil {
		return &Outcome{State: StateIdle, Err: err}, err
	}
	defer unlock()

	s := &session{
		c:         c,
		start:     start,
		handle:    domain.MessageHandle(uuid.NewString()),
		render:    true,
		startedAt: time.Now(),
	}
	defer s.release()
	userMsg := domain.Message{Role: domain.RoleUser, Content: text, CreatedAt: s.startedAt}
	c.conversations.AppendMessage(start.Generation, userMsg)
	c.renderer.AppendMessage(domain.MessageHandle(uuid.NewString()), userMsg)
	c.renderer.AppendMessage(s.handle, domain.Message{Role: domain.RoleAssistant})

	s.run(ctx, domain.MessageRequest{Message: text, ConversationID: start.ID, UseRAG: useRAG})
	return s.outcome(), s.err
}

// Provision creates a conversation by sending placeholder and waiting only
// for the service to assign an id. Nothing is rendered and the reply text
// is discarded. If a conversation is already active its id is returned
// without a call.
func (c *Controller) Provision(ctx context.Context, placeholder string) (string, error) {
	start, unlock, err := c.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer unlock()
	if start.ID != "" {
		return start.ID, nil
	}

	s := &session{
		c:         c,
		start:     start,
		handle:    domain.MessageHandle(uuid.NewString()),
		untilID:   true,
		startedAt: time.Now(),
	}
	defer s.release()
	s.run(ctx, domain.MessageRequest{Message: placeholder})
	if s.err != nil {
		return "", s.err
	}
	if s.assigned == "" {
		return "", domain.ErrNoConversationAssigned
	}
	return s.assigned, nil
}

// acquire locks the active conversation. If the active conversation
// changed while waiting, the lock is dropped and taken again for the new
// one.
func (c *Controller) acquire(ctx context.Context) (conversation.Snapshot, func(), error) {
	for {
		snap := c.conversations.Snapshot()
		unlock, err := c.locks.Lock(ctx, snap.ID)
		if err != nil {
			return snap, nil, err
		}
		if c.conversations.Snapshot() == snap {
			return snap, unlock, nil
		}
		unlock()
	}
}

// session is the state of one exchange. It is confined to the goroutine
// running Send or Provision.
type session struct {
	c         *Controller
	start     conversation.Snapshot
	handle    domain.MessageHandle
	render    bool // false for provisioning
	untilID   bool // stop once a conversation id arrives
	startedAt time.Time

	state    State
	text     strings.Builder
	assigned string
	grounded bool
	detached bool
	err      error

	// unlockAssigned releases the lock taken on the conversation this
	// session created.
	unlockAssigned func()
}

func (s *session) release() {
	if s.unlockAssigned != nil {
		s.unlockAssigned()
	}
}

func (s *session) outcome() *Outcome {
	id := s.assigned
	if id == "" {
		id = s.start.ID
	}
	return &Outcome{
		Handle:         s.handle,
		State:          s.state,
		Text:           s.text.String(),
		ConversationID: id,
		Grounded:       s.grounded,
		Detached:       s.detached,
		Err:            s.err,
	}
}

func (s *session) run(ctx context.Context, req domain.MessageRequest) {
	c := s.c
	s.state = StateSending
	c.events.Emit(events.Event{Type: events.StreamStarted, Source: "stream",
		Payload: map[string]any{"conversation_id": req.ConversationID, "rag": req.UseRAG}})

	body, err := c.gateway.StreamMessage(ctx, req)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	defer body.Close()

	dec := sse.NewDecoder(func(me *domain.MalformedEventError) {
		c.logger.Warn("skipping malformed stream line", "line", truncate(me.Line, 120), "error", me.Err)
		c.events.Emit(events.Event{Type: events.StreamMalformed, Source: "stream",
			Payload: map[string]any{"line": me.Line}})
	})

	buf := make([]byte, c.chunkSize)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if s.state == StateSending {
				s.state = StateStreaming
			}
			for _, ev := range dec.Feed(buf[:n]) {
				if s.apply(ctx, ev) {
					return
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			if s.state == StateSending {
				s.fail(ctx, &domain.NetworkError{Op: "read stream", Err: io.ErrUnexpectedEOF})
				return
			}
			if rest := dec.End(); rest != "" {
				c.logger.Debug("discarding unterminated final line", "line", rest)
			}
			s.complete()
			return
		}
		if rerr != nil {
			s.fail(ctx, &domain.NetworkError{Op: "read stream", Err: rerr})
			return
		}
	}
}

// apply handles one decoded event and reports whether the session ended.
func (s *session) apply(ctx context.Context, ev domain.StreamEvent) bool {
	switch ev.Type {
	case domain.StreamTextDelta:
		s.text.WriteString(ev.Content)
		if s.visible() {
			s.c.renderer.UpdateMessageText(s.handle, s.text.String())
		}

	case domain.StreamConversationAssigned:
		if err := s.assign(ctx, ev.ConversationID); err != nil {
			s.fail(ctx, err)
			return true
		}
		if s.untilID {
			s.complete()
			return true
		}

	case domain.StreamRagAnnotation:
		if !s.grounded {
			s.grounded = true
			if s.visible() {
				s.c.renderer.MarkGrounded(s.handle)
			}
		}

	case domain.StreamServerError:
		s.fail(ctx, &domain.ServerError{Message: ev.Content})
		return true
	}
	return false
}

// assign records the conversation id reported by the service. The first
// id of a session started without a conversation becomes the active
// conversation unless the user has switched since. The lock on the new id
// is taken before it is published and held until the session ends, so a
// later Send to that conversation waits for this stream.
func (s *session) assign(ctx context.Context, id string) error {
	switch {
	case id == "":
		return nil
	case s.assigned == id:
		return nil
	case s.assigned != "":
		return fmt.Errorf("%w: conversation %s reassigned to %s", domain.ErrProtocolViolation, s.assigned, id)
	case s.start.ID != "" && s.start.ID != id:
		return fmt.Errorf("%w: conversation %s reassigned to %s", domain.ErrProtocolViolation, s.start.ID, id)
	}
	s.assigned = id
	if s.start.ID != "" {
		return nil
	}
	if s.c.conversations.Generation() != s.start.Generation {
		s.c.conversations.Assign(s.start, id)
		return nil
	}
	unlock, err := s.c.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	if s.c.conversations.Assign(s.start, id) {
		s.unlockAssigned = unlock
	} else {
		unlock()
	}
	return nil
}

// visible reports whether the session still owns what is on screen.
func (s *session) visible() bool {
	if !s.render || s.detached {
		return false
	}
	if s.c.conversations.Generation() != s.start.Generation {
		s.detached = true
		s.c.logger.Debug("stream detached from view", "handle", s.handle)
		return false
	}
	return true
}

func (s *session) complete() {
	s.state = StateCompleted
	if s.render {
		msg := domain.Message{Role: domain.RoleAssistant, Content: s.text.String(), CreatedAt: time.Now()}
		if !s.c.conversations.AppendMessage(s.start.Generation, msg) {
			s.detached = true
		}
		if s.visible() {
			s.c.renderer.CompleteMessage(s.handle)
		}
	}
	s.c.events.Emit(events.Event{Type: events.StreamCompleted, Source: "stream", Payload: map[string]any{
		"conversation_id": s.outcome().ConversationID,
		"duration":        time.Since(s.startedAt),
		"grounded":        s.grounded,
		"chars":           s.text.Len(),
	}})
}

func (s *session) fail(ctx context.Context, err error) {
	s.state = StateFailed
	s.err = err

	reason := err.Error()
	var serverErr *domain.ServerError
	if errors.As(err, &serverErr) {
		reason = serverErr.Message
	}
	expired := errors.Is(err, domain.ErrAuthExpired)
	if expired {
		reason = "Session expired. Please log in again."
	}

	s.c.logger.Warn("stream failed", "handle", s.handle, "error", err)
	// Expiry resets the conversation, so mark the message first.
	if s.visible() {
		s.c.renderer.MarkFailed(s.handle, reason)
	}
	if expired && s.c.expirer != nil {
		s.c.expirer.Expire(ctx)
	}
	s.c.events.Emit(events.Event{Type: events.StreamFailed, Source: "stream", Payload: map[string]any{
		"conversation_id": s.outcome().ConversationID,
		"duration":        time.Since(s.startedAt),
		"error":           reason,
	}})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
