// Package stream relays provider tokens onto a client byte stream.
package stream

import (
	"errors"
	"fmt"
	"io"

	"streamgate/internal/core"
)

// ErrClientGone is returned when writing to the client fails.
var ErrClientGone = errors.New("client connection lost")

// Flusher is implemented by buffered writers that must be flushed after each token.
type Flusher interface {
	Flush() error
}

// Stats summarises one relayed stream.
type Stats struct {
	ContentTokens   int
	ReasoningTokens int
	ErrorTokens     int
	Bytes           int64
}

// Pump pulls tokens from ts and writes them to w until the stream ends.
//
// For every token the content is written first, then the reasoning; an error
// token is written as a single marker line. Output is flushed after every
// write so the client sees tokens as they arrive. If a write fails Pump stops
// pulling and returns an error wrapping ErrClientGone. ts is always closed.
func Pump(w io.Writer, ts core.TokenStream) (Stats, error) {
	defer ts.Close()

	p := &pump{w: w}
	if f, ok := w.(Flusher); ok {
		p.flusher = f
	}

	for {
		tok, err := ts.Recv()
		if errors.Is(err, io.EOF) {
			return p.stats, nil
		}
		if err != nil {
			p.stats.ErrorTokens++
			if werr := p.write(core.ErrorMarker + err.Error() + "\n"); werr != nil {
				return p.stats, werr
			}
			return p.stats, fmt.Errorf("receive token: %w", err)
		}
		if err := p.token(tok); err != nil {
			return p.stats, err
		}
	}
}

type pump struct {
	w       io.Writer
	flusher Flusher
	stats   Stats
}

func (p *pump) token(tok core.Token) error {
	if tok.Content != "" {
		p.stats.ContentTokens++
		if err := p.write(tok.Content); err != nil {
			return err
		}
	}
	if tok.Reasoning != "" {
		p.stats.ReasoningTokens++
		if err := p.write(tok.Reasoning); err != nil {
			return err
		}
	}
	if tok.Err != "" {
		p.stats.ErrorTokens++
		if err := p.write(core.ErrorMarker + tok.Err + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func (p *pump) write(s string) error {
	n, err := io.WriteString(p.w, s)
	p.stats.Bytes += int64(n)
	if err == nil && p.flusher != nil {
		err = p.flusher.Flush()
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
	return nil
}
