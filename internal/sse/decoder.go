package sse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ragchat/internal/domain"
)

// DataPrefix marks a line that carries a JSON record.
const DataPrefix = "data: "

// MalformedFunc receives lines whose payload could not be decoded.
type MalformedFunc func(err *domain.MalformedEventError)

// Decoder turns byte chunks into stream events. One Decoder serves exactly
// one stream; it is not safe for concurrent use.
type Decoder struct {
	lines       LineSplitter
	onMalformed MalformedFunc
}

// NewDecoder creates a decoder. onMalformed may be nil.
func NewDecoder(onMalformed MalformedFunc) *Decoder {
	return &Decoder{onMalformed: onMalformed}
}

// Feed consumes one chunk and returns the events of every line it
// completed, in arrival order. Malformed lines are reported and skipped.
func (d *Decoder) Feed(chunk []byte) []domain.StreamEvent {
	var events []domain.StreamEvent
	for _, line := range d.lines.Feed(chunk) {
		evs, err := ParseLine(line)
		if err != nil {
			if d.onMalformed != nil {
				d.onMalformed(&domain.MalformedEventError{Line: line, Err: err})
			}
			continue
		}
		events = append(events, evs...)
	}
	return events
}

// End finishes the stream and returns the discarded partial line, if any.
func (d *Decoder) End() string { return d.lines.End() }

// ParseLine decodes a single complete line. Lines without the data prefix
// (keep-alives, comments, blank separators) yield no events and no error.
//
// Within one record the events come out in a fixed order: text first,
// then the conversation id, the RAG marker and finally a server error.
func ParseLine(line string) ([]domain.StreamEvent, error) {
	payload, ok := strings.CutPrefix(line, DataPrefix)
	if !ok {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &fields); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	var events []domain.StreamEvent

	if raw, ok := fields["text"]; ok && !isNull(raw) {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("decode text: %w", err)
		}
		if text != "" {
			events = append(events, domain.StreamEvent{Type: domain.StreamTextDelta, Content: text})
		}
	}

	if raw, ok := fields["conversation_id"]; ok && !isNull(raw) {
		id, err := flexString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode conversation_id: %w", err)
		}
		if id != "" {
			events = append(events, domain.StreamEvent{Type: domain.StreamConversationAssigned, ConversationID: id})
		}
	}

	if raw, ok := fields["rag_sources"]; ok && !isNull(raw) {
		events = append(events, domain.StreamEvent{Type: domain.StreamRagAnnotation})
	}

	if raw, ok := fields["error"]; ok && !isNull(raw) {
		msg, err := flexString(raw)
		if err != nil {
			msg = string(raw)
		}
		if msg == "" {
			msg = "unknown server error"
		}
		events = append(events, domain.StreamEvent{Type: domain.StreamServerError, Content: msg})
	}

	return events, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// flexString accepts a JSON string or number and returns it as a string.
func flexString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
		return n.String(), nil
	}
	return "", fmt.Errorf("expected string or number, got %s", raw)
}
