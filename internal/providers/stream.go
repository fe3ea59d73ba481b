package providers

import (
	"errors"
	"io"
	"sync"

	"streamgate/internal/core"
	"streamgate/internal/pkg/sse"
)

// FrameDecoder maps one SSE event to at most one token.
// Returning done ends the stream after tok (if non-empty) has been delivered.
type FrameDecoder func(ev sse.Event) (tok core.Token, done bool)

// eventStream adapts an SSE response body to core.TokenStream.
type eventStream struct {
	body      io.ReadCloser
	reader    *sse.Reader
	decode    FrameDecoder
	finished  bool
	closeOnce sync.Once
	closeErr  error
}

// NewEventStream wraps an open SSE body. The stream owns body and closes it
// when the backend signals completion, the body ends, or Close is called.
func NewEventStream(body io.ReadCloser, decode FrameDecoder) core.TokenStream {
	return &eventStream{
		body:   body,
		reader: sse.NewReader(body),
		decode: decode,
	}
}

// Recv returns the next non-empty token. Events that decode to nothing are skipped.
func (s *eventStream) Recv() (core.Token, error) {
	for !s.finished {
		ev, err := s.reader.Next()
		if err != nil {
			s.finish()
			if errors.Is(err, io.EOF) {
				return core.Token{}, io.EOF
			}
			return core.ErrorToken("stream interrupted: " + err.Error()), nil
		}

		tok, done := s.decode(ev)
		if done {
			s.finish()
		}
		if !tok.IsEmpty() {
			return tok, nil
		}
	}
	return core.Token{}, io.EOF
}

func (s *eventStream) finish() {
	s.finished = true
	_ = s.Close()
}

// Close releases the response body. Safe to call more than once.
func (s *eventStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
