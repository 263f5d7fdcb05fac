package domain

import (
	"context"
	"io"
)

// Gateway performs authenticated calls against the remote chat service.
// Every method maps a 401 response to ErrAuthExpired.
type Gateway interface {
	// StreamMessage posts a message and returns the raw response body.
	// The caller owns the returned stream and must close it.
	StreamMessage(ctx context.Context, req MessageRequest) (io.ReadCloser, error)

	ListDocuments(ctx context.Context, conversationID string) ([]Attachment, error)
	ClearDocuments(ctx context.Context, conversationID string) error
	RemoveDocument(ctx context.Context, conversationID, documentID string) error
	UploadDocument(ctx context.Context, conversationID, filename string, content io.Reader) error

	History(ctx context.Context) ([]Conversation, error)
}

// TokenSource hands out the current bearer token. An empty token means
// the session is not authenticated.
type TokenSource interface {
	Token() string
}

// SessionExpirer tears down the authenticated session after the remote
// service rejected the token.
type SessionExpirer interface {
	Expire(ctx context.Context)
}
