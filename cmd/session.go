package cmd

import (
	"context"
	"fmt"
	"io"
)

// SessionState tracks where a stream session is in its lifecycle.
type SessionState int

const (
	StateOpening SessionState = iota
	StateAwaitingFirstContent
	StateReceiving
	StateFinalizing
	StateDone
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateAwaitingFirstContent:
		return "awaiting_first_content"
	case StateReceiving:
		return "receiving"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// SessionEvent is one ordered notification from a stream session to its host.
type SessionEvent interface{ sessionEvent() }

// EventFirstContent reports that the first visible content arrived; the host
// hides its waiting indicator.
type EventFirstContent struct{}

// EventChunk carries the running reassembled text after a content frame was
// applied. The host receives one per frame, in arrival order.
type EventChunk struct{ Text string }

// EventCompleted reports clean termination. Final carries the finalized,
// repair-passed text; it is empty for a no-content success.
type EventCompleted struct{ Final string }

// EventStreamError reports a server-sent error frame. Terminal for the
// session; it never triggers the fallback path.
type EventStreamError struct{ Message string }

// EventTransportFailure reports a transport-level failure before the session
// reached finalizing. This is the only event that hands control to the
// fallback controller.
type EventTransportFailure struct{ Err error }

func (EventFirstContent) sessionEvent()     {}
func (EventChunk) sessionEvent()            {}
func (EventCompleted) sessionEvent()        {}
func (EventStreamError) sessionEvent()      {}
func (EventTransportFailure) sessionEvent() {}

// StreamOpener opens the streaming transport for a question. Injected so the
// state machine is testable without a live server.
type StreamOpener func(ctx context.Context, question string) (io.ReadCloser, error)

// StreamSession owns the lifecycle of one streaming request. One instance
// per submitted input; not reusable.
type StreamSession struct {
	question string
	open     StreamOpener
	events   chan SessionEvent
	state    SessionState
}

func NewStreamSession(question string, open StreamOpener) *StreamSession {
	return &StreamSession{
		question: question,
		open:     open,
		events:   make(chan SessionEvent, 16),
		state:    StateOpening,
	}
}

// Events returns the ordered event stream. The channel is closed once the
// session reaches done or failed. Draining one event at a time is the host's
// yield point between chunks.
func (s *StreamSession) Events() <-chan SessionEvent { return s.events }

// State reports the current lifecycle state. Meaningful to read after the
// events channel closes.
func (s *StreamSession) State() SessionState { return s.state }

// Run drives the session to completion. It blocks; hosts run it in a
// goroutine and drain Events.
func (s *StreamSession) Run(ctx context.Context) {
	defer close(s.events)

	body, err := s.open(ctx, s.question)
	if err != nil {
		s.state = StateFailed
		logDebug(fmt.Sprintf("stream open failed: %v", err))
		s.events <- EventTransportFailure{Err: err}
		return
	}
	defer body.Close()

	s.state = StateAwaitingFirstContent
	scanner := NewFrameScanner()
	reassembler := NewReassembler()
	var streamErr string
	terminated := false

	buf := make([]byte, 4096)
	for !terminated {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, frame := range scanner.Feed(string(buf[:n])) {
				if s.apply(frame, reassembler, &streamErr) {
					terminated = true
					break
				}
			}
		}
		if readErr != nil && !terminated {
			if readErr != io.EOF {
				// Mid-flight transport failure: hand off to fallback.
				s.state = StateFailed
				logDebug(fmt.Sprintf("stream read failed: %v", readErr))
				s.events <- EventTransportFailure{Err: readErr}
				return
			}
			// Transport closed without a terminator; the last frame may not
			// have been newline-terminated.
			if frame, ok := scanner.Flush(); ok {
				s.apply(frame, reassembler, &streamErr)
			}
			break
		}
	}

	s.state = StateFinalizing
	if streamErr != "" {
		s.state = StateFailed
		s.events <- EventStreamError{Message: streamErr}
		return
	}
	// A terminator with zero preceding content is a no-content success.
	s.state = StateDone
	s.events <- EventCompleted{Final: reassembler.Finalize()}
}

// apply feeds one frame through the state machine. It returns true when the
// frame ends the receive loop.
func (s *StreamSession) apply(frame StreamFrame, reassembler *Reassembler, streamErr *string) bool {
	switch frame.Kind {
	case FrameContent:
		if frame.Text == "" {
			return false
		}
		if s.state == StateAwaitingFirstContent {
			s.state = StateReceiving
			s.events <- EventFirstContent{}
		}
		reassembler.Push(frame.Text)
		s.events <- EventChunk{Text: reassembler.Text()}
		return false
	case FrameError:
		*streamErr = frame.Text
		return true
	case FrameTerminator:
		return true
	}
	return false
}
