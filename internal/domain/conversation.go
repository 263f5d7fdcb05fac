package domain

import "time"

// Role identifies the author of a transcript message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Conversation is the client-side view of one remote conversation.
// ID stays empty until the remote service assigns one.
type Conversation struct {
	ID          string       `json:"conversation_id"`
	CreatedAt   time.Time    `json:"created_at,omitzero"`
	Messages    []Message    `json:"messages"`
	Attachments []Attachment `json:"-"`
}

// HasID reports whether the remote service has assigned an identifier yet.
func (c Conversation) HasID() bool { return c.ID != "" }

// Message is a single transcript entry. A zero CreatedAt means the
// timestamp is unknown (locally composed messages).
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// UploadState tracks where an attachment is in its upload lifecycle.
type UploadState string

const (
	UploadPending   UploadState = "pending"
	UploadSucceeded UploadState = "succeeded"
	UploadFailed    UploadState = "failed"
)

// Attachment is a document associated with a conversation for
// retrieval-augmented replies.
type Attachment struct {
	ID          string      `json:"id"`
	Filename    string      `json:"filename"`
	UploadState UploadState `json:"upload_state"`
	ErrorReason string      `json:"error_reason,omitempty"`
}

// ConversationSummary is one entry of the history selection list.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	Label          string    `json:"label"`
	CreatedAt      time.Time `json:"created_at"`
	MessageCount   int       `json:"message_count"`
}
