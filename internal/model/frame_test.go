package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	req := require.New(t)

	f, err := DecodeFrame([]byte(`{"type":"subscribe","id":"1","payload":{"stream":"messageCreated"}}`))
	req.NoError(err)
	req.Equal(FrameSubscribe, f.Type)
	req.Equal("1", f.ID)

	p, err := f.DecodeSubscribe()
	req.NoError(err)
	req.Equal(StreamMessageCreated, p.Stream)
}

func TestDecodeFrame_Malformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"id":"1"}`, `[]`} {
		_, err := DecodeFrame([]byte(raw))
		require.ErrorIs(t, err, ErrMalformedFrame, raw)
	}
}

func TestDecodeSubscribe_Query(t *testing.T) {
	cases := map[string]struct{ stream, field string }{
		`subscription { messageCreated { id } }`:          {StreamMessageCreated, "messageCreated"},
		`subscription OnSent { messageSent { id user } }`: {StreamMessageCreated, "messageSent"},
		`subscription { messageSentAt }`:                  {"", ""},
	}
	for query, want := range cases {
		f, err := NewFrame(FrameSubscribe, "1", SubscribePayload{Query: query})
		require.NoError(t, err)
		p, err := f.DecodeSubscribe()
		require.NoError(t, err)
		require.Equal(t, want.stream, p.Stream, query)
		require.Equal(t, want.field, p.Field, query)
	}
}

func TestSubscribePayloadResult(t *testing.T) {
	req := require.New(t)
	msg := Message{ID: "1", Author: "alice", Content: "hi"}

	bare, err := json.Marshal(SubscribePayload{Stream: StreamMessageCreated}.Result(msg))
	req.NoError(err)
	req.JSONEq(`{"id":"1","author":"alice","content":"hi","created_at":"0001-01-01T00:00:00Z"}`, string(bare))

	wrapped, err := json.Marshal(SubscribePayload{Stream: StreamMessageCreated, Field: "messageSent"}.Result(msg))
	req.NoError(err)
	req.JSONEq(`{"data":{"messageSent":{"id":"1","author":"alice","content":"hi","created_at":"0001-01-01T00:00:00Z"}}}`, string(wrapped))
}

func TestDecodeSubscribe_MissingPayload(t *testing.T) {
	_, err := Frame{Type: FrameSubscribe, ID: "1"}.DecodeSubscribe()
	require.ErrorIs(t, err, ErrMalformedFrame)
}

func TestFrameEncode(t *testing.T) {
	req := require.New(t)

	ack, err := Frame{Type: FrameConnectionAck}.Encode()
	req.NoError(err)
	req.JSONEq(`{"type":"connection_ack"}`, string(ack))

	next, err := NewFrame(FrameNext, "7", Message{ID: "1", Author: "alice", Content: "hi"})
	req.NoError(err)
	data, err := next.Encode()
	req.NoError(err)
	req.JSONEq(`{"type":"next","id":"7","payload":{"id":"1","author":"alice","content":"hi","created_at":"0001-01-01T00:00:00Z"}}`, string(data))
}
