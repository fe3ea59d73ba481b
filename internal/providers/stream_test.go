package providers

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamgate/internal/core"
	"streamgate/internal/pkg/sse"
)

type trackingBody struct {
	io.Reader
	closes int
}

func (b *trackingBody) Close() error {
	b.closes++
	return nil
}

type failingReader struct {
	data string
	read bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.read {
		r.read = true
		return copy(p, r.data), nil
	}
	return 0, errors.New("connection reset")
}

func textDecoder(ev sse.Event) (core.Token, bool) {
	if ev.IsDone() {
		return core.Token{}, true
	}
	return core.Token{Content: string(ev.Data)}, false
}

func drain(t *testing.T, s core.TokenStream) []core.Token {
	t.Helper()
	var out []core.Token
	for {
		tok, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, tok)
	}
}

func TestEventStream_DeliversUntilDone(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: a\n\ndata: \n\ndata: b\n\ndata: [DONE]\n\ndata: late\n\n")}
	s := NewEventStream(body, textDecoder)

	toks := drain(t, s)
	assert.Equal(t, []core.Token{{Content: "a"}, {Content: "b"}}, toks)
	assert.Equal(t, 1, body.closes)

	// Further reads keep reporting the end.
	_, err := s.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, s.Close())
	assert.Equal(t, 1, body.closes)
}

func TestEventStream_EndsAtBodyEOF(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: only\n\n")}
	toks := drain(t, NewEventStream(body, textDecoder))
	assert.Equal(t, []core.Token{{Content: "only"}}, toks)
	assert.Equal(t, 1, body.closes)
}

func TestEventStream_TokenOnFinalFrame(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: boom\n\ndata: never\n\n")}
	s := NewEventStream(body, func(ev sse.Event) (core.Token, bool) {
		return core.ErrorToken("API error: " + string(ev.Data)), true
	})

	toks := drain(t, s)
	assert.Equal(t, []core.Token{{Err: "API error: boom"}}, toks)
}

func TestEventStream_TransportFailureBecomesErrorToken(t *testing.T) {
	body := &trackingBody{Reader: &failingReader{data: "data: partial\n\n"}}
	toks := drain(t, NewEventStream(body, textDecoder))

	require.Len(t, toks, 2)
	assert.Equal(t, "partial", toks[0].Content)
	assert.Contains(t, toks[1].Err, "connection reset")
	assert.Equal(t, 1, body.closes)
}

func TestEventStream_CloseBeforeDrain(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: a\n\n")}
	s := NewEventStream(body, textDecoder)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, body.closes)
}
