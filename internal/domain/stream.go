package domain

// StreamEventType classifies a decoded stream event.
type StreamEventType string

const (
	StreamTextDelta            StreamEventType = "text_delta"
	StreamConversationAssigned StreamEventType = "conversation_assigned"
	StreamRagAnnotation        StreamEventType = "rag_annotation"
	StreamServerError          StreamEventType = "server_error"
)

// StreamEvent is one event decoded from a `data:` record of a message stream.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	Content        string          `json:"content,omitempty"`         // delta text or server error message
	ConversationID string          `json:"conversation_id,omitempty"` // set for conversation_assigned
}

// Terminal reports whether the event ends the stream session.
func (e StreamEvent) Terminal() bool { return e.Type == StreamServerError }

// MessageRequest is the body of one outbound chat message.
// An empty ConversationID asks the service to start a new conversation.
type MessageRequest struct {
	Message        string
	ConversationID string
	UseRAG         bool
}
