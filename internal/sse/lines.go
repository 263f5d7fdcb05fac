// Package sse decodes the newline-delimited `data: <json>` stream returned
// by the chat service's message endpoint.
package sse

// LineSplitter reassembles complete lines from byte chunks of any size.
// Bytes after the last line break are carried over to the next Feed.
//
// Splitting happens on raw bytes, so a multi-byte UTF-8 sequence cut by a
// chunk boundary is rejoined before any line is turned into a string.
type LineSplitter struct {
	carry []byte
}

// Feed appends chunk to the carry buffer and returns every line it
// completes, without the line terminator. LF, CRLF and a lone CR all end
// a line. A CR at the very end of the buffer is held back until the next
// byte shows whether it starts a CRLF pair; if the stream ends first, End
// discards it with the rest of the unterminated line.
func (s *LineSplitter) Feed(chunk []byte) []string {
	s.carry = append(s.carry, chunk...)

	var lines []string
	start := 0
	for i := 0; i < len(s.carry); i++ {
		switch s.carry[i] {
		case '\n':
			lines = append(lines, string(s.carry[start:i]))
			start = i + 1
		case '\r':
			if i+1 == len(s.carry) {
				break
			}
			lines = append(lines, string(s.carry[start:i]))
			if s.carry[i+1] == '\n' {
				i++
			}
			start = i + 1
		}
	}

	if start > 0 {
		n := copy(s.carry, s.carry[start:])
		s.carry = s.carry[:n]
	}
	return lines
}

// Pending returns the bytes waiting for a line break.
func (s *LineSplitter) Pending() string { return string(s.carry) }

// End finishes the stream. A dangling partial line is discarded, not
// flushed; it is returned so callers can log it.
func (s *LineSplitter) End() string {
	rest := string(s.carry)
	s.carry = s.carry[:0]
	return rest
}
