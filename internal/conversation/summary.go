package conversation

import (
	"strings"

	"ragchat/internal/domain"
)

const (
	defaultSummaryLength = 20
	defaultEmptyLabel    = "Empty conversation"
	ellipsis             = "..."
)

// Summarize labels a conversation by the first line of its first message,
// cut to maxRunes runes. The label ends in an ellipsis whenever any of the
// message was left out. A conversation without messages gets emptyLabel.
func Summarize(conv domain.Conversation, maxRunes int, emptyLabel string) string {
	if len(conv.Messages) == 0 {
		return emptyLabel
	}
	text := strings.TrimSpace(conv.Messages[0].Content)
	cut := false
	if idx := strings.IndexAny(text, "\r\n"); idx >= 0 {
		text = strings.TrimSpace(text[:idx])
		cut = true
	}
	runes := []rune(text)
	if len(runes) > maxRunes {
		return string(runes[:maxRunes]) + ellipsis
	}
	if cut {
		return text + ellipsis
	}
	return text
}
