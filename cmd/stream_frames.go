package cmd

import "strings"

// The chatbot's answer stream is a line-delimited event stream: each event
// line carries the "data:" marker, the payload "[DONE]" marks normal end of
// stream, and a payload starting with "ERROR:" carries a server-reported
// failure. Lines without the marker are ignored.
const (
	framePrefix        = "data:"
	terminatorSentinel = "[DONE]"
	errorTag           = "ERROR:"

	defaultStreamErrorMessage = "The assistant reported an error."
)

// FrameKind identifies the type of a parsed stream frame.
type FrameKind int

const (
	FrameContent FrameKind = iota
	FrameError
	FrameTerminator
)

// StreamFrame is one parsed unit from the wire. Transient: it exists only
// within the parsing loop and is never persisted.
type StreamFrame struct {
	Kind FrameKind
	Text string
}

// FrameScanner turns successive raw deliveries into an ordered sequence of
// frames. Deliveries need not align with line boundaries; a partial line is
// buffered until its newline arrives. A scanner is single-use: once it has
// seen the terminator (or been flushed) it emits nothing further, and a new
// stream needs a new scanner.
type FrameScanner struct {
	pending string
	done    bool
}

func NewFrameScanner() *FrameScanner { return &FrameScanner{} }

// Feed appends a delivery to the scanner and returns all frames completed by
// it, in arrival order. After a terminator frame the remainder of the
// delivery is discarded.
func (s *FrameScanner) Feed(delivery string) []StreamFrame {
	if s.done {
		return nil
	}
	s.pending += delivery
	segments := strings.Split(s.pending, "\n")
	s.pending = segments[len(segments)-1]

	var frames []StreamFrame
	for _, segment := range segments[:len(segments)-1] {
		frame, ok := classifyFrameLine(segment)
		if !ok {
			continue
		}
		frames = append(frames, frame)
		if frame.Kind == FrameTerminator {
			s.done = true
			s.pending = ""
			break
		}
	}
	return frames
}

// Flush parses whatever remains in the buffer after the transport closed
// without a terminator; the last frame may not have been newline-terminated.
// The scanner is finished afterwards.
func (s *FrameScanner) Flush() (StreamFrame, bool) {
	if s.done {
		return StreamFrame{}, false
	}
	s.done = true
	line := s.pending
	s.pending = ""
	if strings.TrimSpace(line) == "" {
		return StreamFrame{}, false
	}
	return classifyFrameLine(line)
}

// classifyFrameLine applies the three-way classification to one segment.
// Malformed lines are dropped, never an error: upstream framing is lossy,
// not adversarial.
func classifyFrameLine(line string) (StreamFrame, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, framePrefix) {
		return StreamFrame{}, false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, framePrefix))
	switch {
	case payload == terminatorSentinel:
		return StreamFrame{Kind: FrameTerminator}, true
	case strings.HasPrefix(payload, errorTag):
		msg := strings.TrimSpace(strings.TrimPrefix(payload, errorTag))
		if msg == "" {
			msg = defaultStreamErrorMessage
		}
		return StreamFrame{Kind: FrameError, Text: msg}, true
	default:
		return StreamFrame{Kind: FrameContent, Text: payload}, true
	}
}
