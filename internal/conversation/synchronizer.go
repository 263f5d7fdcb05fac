// Package conversation owns the active conversation: its id, its visible
// transcript and its attachment list.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"ragchat/internal/domain"
	"ragchat/internal/events"
)

// Snapshot identifies the active conversation at one instant. Generation
// changes on every explicit switch, so two snapshots with the same ID but
// different generations belong to different views.
type Snapshot struct {
	ID         string
	Generation uint64
}

// Config configures a Synchronizer.
type Config struct {
	Gateway       domain.Gateway
	Renderer      domain.Renderer
	Expirer       domain.SessionExpirer
	Events        *events.Bus
	Logger        *slog.Logger
	SummaryLength int    // runes kept in history labels (default 20)
	EmptyLabel    string // label of a conversation without messages
}

// Synchronizer is the single owner of the active conversation. Writes to
// the active id come only from SwitchTo/NewConversation/Reset and from a
// stream session's first assignment through Assign.
type Synchronizer struct {
	mu         sync.RWMutex
	active     domain.Conversation
	generation uint64
	history    []domain.Conversation

	gateway       domain.Gateway
	renderer      domain.Renderer
	expirer       domain.SessionExpirer
	events        *events.Bus
	logger        *slog.Logger
	summaryLength int
	emptyLabel    string
}

// New creates a synchronizer with no active conversation.
func New(cfg Config) *Synchronizer {
	if cfg.Renderer == nil {
		cfg.Renderer = domain.NopRenderer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SummaryLength <= 0 {
		cfg.SummaryLength = defaultSummaryLength
	}
	if cfg.EmptyLabel == "" {
		cfg.EmptyLabel = defaultEmptyLabel
	}
	return &Synchronizer{
		gateway:       cfg.Gateway,
		renderer:      cfg.Renderer,
		expirer:       cfg.Expirer,
		events:        cfg.Events,
		logger:        cfg.Logger,
		summaryLength: cfg.SummaryLength,
		emptyLabel:    cfg.EmptyLabel,
	}
}

// ActiveID returns the active conversation id, "" when none is assigned.
func (s *Synchronizer) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.ID
}

// Snapshot returns the active id together with the current generation.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{ID: s.active.ID, Generation: s.generation}
}

// Generation returns the current view generation.
func (s *Synchronizer) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Transcript returns a copy of the visible transcript.
func (s *Synchronizer) Transcript() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.active.Messages)
}

// Attachments returns a copy of the active conversation's attachments.
func (s *Synchronizer) Attachments() []domain.Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.active.Attachments)
}

// Assign applies a stream session's conversation id. It succeeds only if
// the view the session started from is still the active one; a later
// explicit switch always wins. It reports whether id is now active.
func (s *Synchronizer) Assign(start Snapshot, id string) bool {
	s.mu.Lock()
	if s.generation != start.Generation || s.active.ID != start.ID {
		current := s.active.ID
		s.mu.Unlock()
		s.logger.Debug("discarding stale conversation assignment", "assigned", id, "active", current)
		s.events.Emit(events.Event{Type: events.ConversationStale, Source: "conversation",
			Payload: map[string]any{"assigned": id, "active": current}})
		return false
	}
	if s.active.ID == id {
		s.mu.Unlock()
		return true
	}
	s.active.ID = id
	s.mu.Unlock()

	s.logger.Info("conversation assigned", "conversation_id", id)
	s.events.Emit(events.Event{Type: events.ConversationAssigned, Source: "conversation",
		Payload: map[string]any{"conversation_id": id}})
	return true
}

// AppendMessage adds a finished message to the transcript if the view of
// generation is still active.
func (s *Synchronizer) AppendMessage(generation uint64, msg domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	s.active.Messages = append(s.active.Messages, msg)
	return true
}

// SwitchTo makes conv the active conversation, replaces the visible
// transcript with its messages and re-fetches its attachment list. The
// switch itself always happens; a failed attachment refresh is returned.
func (s *Synchronizer) SwitchTo(ctx context.Context, conv domain.Conversation) error {
	s.mu.Lock()
	s.generation++
	s.active = domain.Conversation{
		ID:        conv.ID,
		CreatedAt: conv.CreatedAt,
		Messages:  slices.Clone(conv.Messages),
	}
	msgs := slices.Clone(s.active.Messages)
	s.mu.Unlock()

	s.renderer.ReplaceTranscript(conv.ID, msgs)
	s.events.Emit(events.Event{Type: events.ConversationSwitched, Source: "conversation",
		Payload: map[string]any{"conversation_id": conv.ID}})

	if conv.ID == "" {
		s.renderer.SetAttachmentList("", nil)
		return nil
	}
	if _, err := s.RefreshAttachments(ctx, conv.ID); err != nil {
		return fmt.Errorf("switch to %s: %w", conv.ID, err)
	}
	return nil
}

// SwitchToID switches to a conversation from the last loaded history,
// loading it first if needed.
func (s *Synchronizer) SwitchToID(ctx context.Context, id string) error {
	conv, ok := s.findHistory(id)
	if !ok {
		if _, err := s.LoadHistory(ctx); err != nil {
			return err
		}
		if conv, ok = s.findHistory(id); !ok {
			return fmt.Errorf("conversation %s not found in history", id)
		}
	}
	return s.SwitchTo(ctx, conv)
}

// NewConversation clears the active id and transcript so the next send
// starts a new conversation.
func (s *Synchronizer) NewConversation() {
	s.mu.Lock()
	s.generation++
	s.active = domain.Conversation{}
	s.mu.Unlock()

	s.renderer.ReplaceTranscript("", nil)
	s.renderer.SetAttachmentList("", nil)
	s.events.Emit(events.Event{Type: events.ConversationSwitched, Source: "conversation",
		Payload: map[string]any{"conversation_id": ""}})
}

// Reset drops all state. Called when the session ends.
func (s *Synchronizer) Reset() {
	s.mu.Lock()
	s.generation++
	s.active = domain.Conversation{}
	s.history = nil
	s.mu.Unlock()
}

// LoadHistory fetches the user's conversations and returns their
// summaries in service order.
func (s *Synchronizer) LoadHistory(ctx context.Context) ([]domain.ConversationSummary, error) {
	convs, err := s.gateway.History(ctx)
	if err != nil {
		s.checkAuth(ctx, err)
		return nil, fmt.Errorf("load history: %w", err)
	}

	s.mu.Lock()
	s.history = convs
	s.mu.Unlock()

	summaries := make([]domain.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summaries = append(summaries, domain.ConversationSummary{
			ConversationID: c.ID,
			Label:          Summarize(c, s.summaryLength, s.emptyLabel),
			CreatedAt:      c.CreatedAt,
			MessageCount:   len(c.Messages),
		})
	}
	return summaries, nil
}

// RefreshAttachments fetches the attachment list of conversationID. If it
// is still the active conversation the local list is replaced and
// rendered.
func (s *Synchronizer) RefreshAttachments(ctx context.Context, conversationID string) ([]domain.Attachment, error) {
	atts, err := s.gateway.ListDocuments(ctx, conversationID)
	if err != nil {
		s.checkAuth(ctx, err)
		return nil, fmt.Errorf("list attachments: %w", err)
	}

	s.mu.Lock()
	active := s.active.ID == conversationID
	if active {
		s.active.Attachments = slices.Clone(atts)
	}
	s.mu.Unlock()

	if active {
		s.renderer.SetAttachmentList(conversationID, atts)
	}
	return atts, nil
}

// UpsertAttachment records an attachment state change for the active
// conversation. It is a no-op when conversationID is no longer active.
func (s *Synchronizer) UpsertAttachment(conversationID string, att domain.Attachment) {
	s.mu.Lock()
	if s.active.ID != conversationID {
		s.mu.Unlock()
		return
	}
	idx := slices.IndexFunc(s.active.Attachments, func(a domain.Attachment) bool { return a.ID == att.ID })
	if idx >= 0 {
		s.active.Attachments[idx] = att
	} else {
		s.active.Attachments = append(s.active.Attachments, att)
	}
	atts := slices.Clone(s.active.Attachments)
	s.mu.Unlock()

	s.renderer.SetAttachmentList(conversationID, atts)
}

// ClearAttachments empties the local attachment list of conversationID.
func (s *Synchronizer) ClearAttachments(conversationID string) {
	s.mu.Lock()
	if s.active.ID != conversationID {
		s.mu.Unlock()
		return
	}
	s.active.Attachments = nil
	s.mu.Unlock()

	s.renderer.SetAttachmentList(conversationID, nil)
}

func (s *Synchronizer) findHistory(id string) (domain.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.history {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Conversation{}, false
}

func (s *Synchronizer) checkAuth(ctx context.Context, err error) {
	if errors.Is(err, domain.ErrAuthExpired) && s.expirer != nil {
		s.expirer.Expire(ctx)
	}
}
