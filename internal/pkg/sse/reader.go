// Package sse reads server-sent-event framing from a chunked HTTP body.
//
// Only the parts LLM backends use are handled: "data:" lines carry one payload
// each, "event:" lines name the next payload, comments and blank lines are skipped.
package sse

import (
	"bufio"
	"bytes"
	"io"
)

// maxLineSize bounds a single SSE line. Reasoning models can emit large frames.
const maxLineSize = 4 * 1024 * 1024

// DoneSentinel is the payload OpenAI-compatible APIs send as the last event.
const DoneSentinel = "[DONE]"

// Event is one decoded SSE data line.
type Event struct {
	// Name is the value of the most recent "event:" line, if any.
	Name string
	// Data is the payload after "data:" with surrounding whitespace removed.
	Data []byte
	// Raw is the complete trimmed line as received.
	Raw string
}

// IsDone reports whether the event is the [DONE] sentinel.
func (e Event) IsDone() bool {
	return string(e.Data) == DoneSentinel
}

// Reader pulls events from an SSE body one at a time.
type Reader struct {
	scanner *bufio.Scanner
	event   string
}

// NewReader wraps r. The caller keeps ownership of r and must close it.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: scanner}
}

// Next returns the next data event. It returns io.EOF when the body ends.
func (r *Reader) Next() (Event, error) {
	for r.scanner.Scan() {
		line := bytes.TrimSpace(r.scanner.Bytes())
		switch {
		case len(line) == 0:
			r.event = ""
		case line[0] == ':':
			// comment / keep-alive
		case bytes.HasPrefix(line, []byte("event:")):
			r.event = string(bytes.TrimSpace(line[len("event:"):]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := bytes.TrimSpace(line[len("data:"):])
			return Event{
				Name: r.event,
				Data: append([]byte(nil), data...),
				Raw:  string(line),
			}, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
