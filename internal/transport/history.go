package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ragchat/internal/domain"
)

type historyResponse struct {
	History []historyConversation `json:"history"`
}

type historyConversation struct {
	ConversationID flexID           `json:"conversation_id"`
	CreatedAt      timestamp        `json:"created_at"`
	Messages       []historyMessage `json:"messages"`
}

type historyMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt timestamp `json:"created_at"`
}

// timestampLayouts covers RFC 3339 and the zone-less ISO form Python's
// datetime.isoformat produces.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// timestamp leaves the time zero when the value is absent or unparsable
// instead of failing the whole response.
type timestamp struct{ time.Time }

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}

// History fetches every conversation of the current user, most recent
// first as ordered by the service.
func (c *Client) History(ctx context.Context) ([]domain.Conversation, error) {
	var resp historyResponse
	err := c.doJSON(ctx, "load history", func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/history"), nil)
	}, &resp)
	if err != nil {
		return nil, err
	}

	convs := make([]domain.Conversation, 0, len(resp.History))
	for _, h := range resp.History {
		conv := domain.Conversation{
			ID:        string(h.ConversationID),
			CreatedAt: h.CreatedAt.Time,
			Messages:  make([]domain.Message, 0, len(h.Messages)),
		}
		for _, m := range h.Messages {
			conv.Messages = append(conv.Messages, domain.Message{
				Role:      domain.Role(m.Role),
				Content:   m.Content,
				CreatedAt: m.CreatedAt.Time,
			})
		}
		convs = append(convs, conv)
	}
	return convs, nil
}
