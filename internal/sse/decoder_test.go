package sse

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

const sampleStream = "data: {\"text\": \"你好\", \"conversation_id\": \"c-1\"}\n" +
	": keep-alive\n" +
	"\n" +
	"data: {\"text\": \", world\"}\r\n" +
	"data: {\"rag_sources\": [{\"id\": 1}]}\n" +
	"data: {\"text\": \"!\"}\n"

func splitAt(data []byte, cuts []int) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, c := range cuts {
		chunks = append(chunks, data[prev:c])
		prev = c
	}
	return append(chunks, data[prev:])
}

func feedAll(s *LineSplitter, chunks [][]byte) []string {
	var lines []string
	for _, c := range chunks {
		lines = append(lines, s.Feed(c)...)
	}
	return lines
}

func TestLineSplitter_ChunkBoundaryInvariance(t *testing.T) {
	data := []byte(sampleStream)

	var whole LineSplitter
	want := whole.Feed(data)
	require.Len(t, want, 6)

	// Every fixed chunk size, including 1 byte which cuts through the
	// multi-byte characters and the CRLF pair.
	for size := 1; size <= len(data); size++ {
		var cuts []int
		for c := size; c < len(data); c += size {
			cuts = append(cuts, c)
		}
		var s LineSplitter
		got := feedAll(&s, splitAt(data, cuts))
		assert.Equal(t, want, got, "chunk size %d", size)
		assert.Empty(t, s.Pending(), "chunk size %d", size)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for n := 2; n <= 20; n++ {
		cuts := make(map[int]bool)
		for len(cuts) < n-1 && len(cuts) < len(data)-1 {
			cuts[1+rng.IntN(len(data)-1)] = true
		}
		var sorted []int
		for i := 1; i < len(data); i++ {
			if cuts[i] {
				sorted = append(sorted, i)
			}
		}
		var s LineSplitter
		assert.Equal(t, want, feedAll(&s, splitAt(data, sorted)), "%d random chunks", n)
	}
}

func TestLineSplitter_EmptyChunks(t *testing.T) {
	var s LineSplitter
	assert.Empty(t, s.Feed(nil))
	assert.Empty(t, s.Feed([]byte("data: x")))
	assert.Empty(t, s.Feed([]byte{}))
	assert.Equal(t, []string{"data: x"}, s.Feed([]byte("\n")))
}

func TestLineSplitter_CleanTrailingNewline(t *testing.T) {
	var s LineSplitter
	lines := s.Feed([]byte("a\nb\n"))
	assert.Equal(t, []string{"a", "b"}, lines)
	assert.Equal(t, "", s.End())
}

func TestLineSplitter_TruncatedFinalLineDiscarded(t *testing.T) {
	var s LineSplitter
	lines := s.Feed([]byte("a\ndata: {\"text\": \"lost\"}"))
	assert.Equal(t, []string{"a"}, lines)
	assert.Equal(t, "data: {\"text\": \"lost\"}", s.End())
	assert.Empty(t, s.Pending())
}

func TestLineSplitter_BareCarriageReturn(t *testing.T) {
	data := []byte("a\rb\r\nc\n\rd\r")
	want := []string{"a", "b", "c", "", "d"}

	var whole LineSplitter
	assert.Equal(t, want[:4], whole.Feed(data))
	assert.Equal(t, "d\r", whole.Pending())
	assert.Equal(t, []string{"d"}, whole.Feed([]byte("x"))[:1])

	for size := 1; size <= len(data); size++ {
		var s LineSplitter
		var got []string
		for i := 0; i < len(data); i += size {
			got = append(got, s.Feed(data[i:min(i+size, len(data))])...)
		}
		got = append(got, s.Feed([]byte("\n"))...)
		assert.Equal(t, want, got, "chunk size %d", size)
	}
}

func TestParseLine_Fields(t *testing.T) {
	evs, err := ParseLine(`data: {"text": "hi", "conversation_id": "abc", "rag_sources": []}`)
	require.NoError(t, err)
	assert.Equal(t, []domain.StreamEvent{
		{Type: domain.StreamTextDelta, Content: "hi"},
		{Type: domain.StreamConversationAssigned, ConversationID: "abc"},
		{Type: domain.StreamRagAnnotation},
	}, evs)
}

func TestParseLine_ServerError(t *testing.T) {
	evs, err := ParseLine(`data: {"error": "model unavailable"}`)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.StreamServerError, evs[0].Type)
	assert.Equal(t, "model unavailable", evs[0].Content)
	assert.True(t, evs[0].Terminal())
}

func TestParseLine_NumericConversationID(t *testing.T) {
	evs, err := ParseLine(`data: {"conversation_id": 42}`)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, "42", evs[0].ConversationID)
}

func TestParseLine_NullAndEmptyFieldsIgnored(t *testing.T) {
	evs, err := ParseLine(`data: {"text": "", "conversation_id": null, "rag_sources": null, "error": null}`)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestParseLine_NonDataLinesIgnored(t *testing.T) {
	for _, line := range []string{"", ": ping", "event: message", "data:{\"text\":\"no space\"}", "id: 7"} {
		evs, err := ParseLine(line)
		assert.NoError(t, err, line)
		assert.Empty(t, evs, line)
	}
}

func TestParseLine_Malformed(t *testing.T) {
	for _, line := range []string{"data: {not json", "data: [DONE]", `data: {"text": 5}`, "data: "} {
		_, err := ParseLine(line)
		assert.Error(t, err, line)
	}
}

func TestDecoder_MalformedLineIsolation(t *testing.T) {
	var malformed []*domain.MalformedEventError
	d := NewDecoder(func(err *domain.MalformedEventError) { malformed = append(malformed, err) })

	stream := "data: {\"text\": \"a\"}\n" +
		"data: {\"text\": \"b\"\n" +
		"data: {\"text\": \"c\"}\n"

	var got []domain.StreamEvent
	for i := 0; i < len(stream); i += 7 {
		end := min(i+7, len(stream))
		got = append(got, d.Feed([]byte(stream[i:end]))...)
	}

	assert.Equal(t, []domain.StreamEvent{
		{Type: domain.StreamTextDelta, Content: "a"},
		{Type: domain.StreamTextDelta, Content: "c"},
	}, got)
	require.Len(t, malformed, 1)
	assert.Equal(t, `data: {"text": "b"`, malformed[0].Line)
	assert.Empty(t, d.End())
}

func TestDecoder_TruncatedFinalRecordProducesNoEvent(t *testing.T) {
	d := NewDecoder(nil)
	evs := d.Feed([]byte("data: {\"text\": \"kept\"}\ndata: {\"text\": \"dropped\"}"))
	assert.Equal(t, []domain.StreamEvent{{Type: domain.StreamTextDelta, Content: "kept"}}, evs)
	assert.Equal(t, `data: {"text": "dropped"}`, d.End())
}
