// Package events is the in-process observability bus. Core components
// publish lifecycle events here; metrics and debug logging subscribe.
package events

import (
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// Event is one lifecycle notification.
type Event struct {
	Type      string         // e.g. "stream.completed", "attachment.rejected"
	Source    string         // publishing component
	Payload   map[string]any // event-specific data
	Timestamp time.Time
}

// Handler receives events.
type Handler func(Event)

// Bus is a topic-based publish/subscribe bus with a bounded history
// buffer. Handlers run synchronously on the publishing goroutine.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[string][]namedHandler
	nextID     int
	history    []Event
	maxHistory int
	logger     *slog.Logger
}

type namedHandler struct {
	id      string
	handler Handler
}

// New creates a bus that keeps the last 1000 events for Replay.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		handlers:   make(map[string][]namedHandler),
		maxHistory: 1000,
		logger:     logger,
	}
}

// On registers a handler for eventType ("*" receives everything) and
// returns an id for Off.
func (b *Bus) On(eventType string, h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := eventType + "-" + strconv.Itoa(b.nextID)
	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{id: id, handler: h})
	return id
}

// Off removes a handler.
func (b *Bus) Off(eventType, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hs := b.handlers[eventType]
	for i, h := range hs {
		if h.id == id {
			b.handlers[eventType] = append(hs[:i:i], hs[i+1:]...)
			return
		}
	}
}

// Emit records the event and calls every matching handler in
// registration order. A panicking handler is logged and skipped.
// Emit on a nil bus is a no-op.
func (b *Bus) Emit(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	if len(b.history) >= b.maxHistory {
		b.history = b.history[1:]
	}
	b.history = append(b.history, e)
	var hs []namedHandler
	hs = append(hs, b.handlers[e.Type]...)
	hs = append(hs, b.handlers["*"]...)
	b.mu.Unlock()

	for _, h := range hs {
		b.call(h, e)
	}
}

func (b *Bus) call(h namedHandler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic", "event", e.Type, "handler", h.id, "panic", r)
		}
	}()
	h.handler(e)
}

// Replay returns recorded events of eventType ("*" for all) at or after
// since.
func (b *Bus) Replay(eventType string, since time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []Event
	for _, e := range b.history {
		if e.Timestamp.Before(since) {
			continue
		}
		if eventType == "*" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Well-known event types.
const (
	StreamStarted        = "stream.started"
	StreamCompleted      = "stream.completed"
	StreamFailed         = "stream.failed"
	StreamMalformed      = "stream.malformed"
	AuthExpired          = "auth.expired"
	AuthLoggedIn         = "auth.logged_in"
	AuthLoggedOut        = "auth.logged_out"
	ConversationSwitched = "conversation.switched"
	ConversationAssigned = "conversation.assigned"
	ConversationStale    = "conversation.stale_assignment"
	AttachmentUploaded   = "attachment.uploaded"
	AttachmentRejected   = "attachment.rejected"
	AttachmentFailed     = "attachment.failed"
	AttachmentRemoved    = "attachment.removed"
	AttachmentsCleared   = "attachment.cleared"
)
