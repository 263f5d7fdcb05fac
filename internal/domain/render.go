package domain

// MessageHandle identifies one rendered message. Each stream session owns
// the handle of the assistant message it is filling in.
type MessageHandle string

// Renderer is the presentation collaborator. The core never touches a
// concrete UI; it issues these commands and the renderer decides how to
// show them.
type Renderer interface {
	// AppendMessage adds a message to the visible transcript. An assistant
	// message with empty content marks an in-progress reply.
	AppendMessage(h MessageHandle, msg Message)
	// UpdateMessageText replaces the full text of an in-progress message.
	UpdateMessageText(h MessageHandle, text string)
	// MarkGrounded flags a message as backed by conversation documents.
	MarkGrounded(h MessageHandle)
	// MarkFailed puts a message into the failed state.
	MarkFailed(h MessageHandle, reason string)
	// CompleteMessage signals that no more updates follow for h.
	CompleteMessage(h MessageHandle)
	// ReplaceTranscript swaps the visible transcript wholesale.
	ReplaceTranscript(conversationID string, msgs []Message)
	SetAttachmentList(conversationID string, atts []Attachment)
	// Notice creates or replaces a status line identified by h.
	Notice(h MessageHandle, text string)
	SessionExpired()
}

// NopRenderer discards every command.
type NopRenderer struct{}

func (NopRenderer) AppendMessage(MessageHandle, Message)    {}
func (NopRenderer) UpdateMessageText(MessageHandle, string) {}
func (NopRenderer) MarkGrounded(MessageHandle)              {}
func (NopRenderer) MarkFailed(MessageHandle, string)        {}
func (NopRenderer) CompleteMessage(MessageHandle)           {}
func (NopRenderer) ReplaceTranscript(string, []Message)     {}
func (NopRenderer) SetAttachmentList(string, []Attachment)  {}
func (NopRenderer) Notice(MessageHandle, string)            {}
func (NopRenderer) SessionExpired()                         {}
