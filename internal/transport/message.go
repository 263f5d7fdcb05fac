package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"ragchat/internal/domain"
)

type messageBody struct {
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
	UseRAG         bool    `json:"use_rag"`
}

// StreamMessage posts a chat message and hands back the streamed body.
// Only ctx bounds the stream; no client-side deadline applies once headers
// have arrived.
func (c *Client) StreamMessage(ctx context.Context, req domain.MessageRequest) (io.ReadCloser, error) {
	body := messageBody{Message: req.Message, UseRAG: req.UseRAG}
	if req.ConversationID != "" {
		id := req.ConversationID
		body.ConversationID = &id
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("send message: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/message"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("send message: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(httpReq, "send message")
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
