package model

import (
	"errors"
	"fmt"
	"regexp"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Subprotocol is the websocket subprotocol negotiated for subscriptions.
const Subprotocol = "graphql-transport-ws"

// StreamMessageCreated is the only stream a client may subscribe to.
const StreamMessageCreated = "messageCreated"

// FrameType identifies a subscription protocol message.
type FrameType string

const (
	FrameConnectionInit FrameType = "connection_init"
	FrameConnectionAck  FrameType = "connection_ack"
	FramePing           FrameType = "ping"
	FramePong           FrameType = "pong"
	FrameSubscribe      FrameType = "subscribe"
	FrameNext           FrameType = "next"
	FrameError          FrameType = "error"
	FrameComplete       FrameType = "complete"
)

// Close codes sent when the protocol is violated.
const (
	CloseBadRequest         = 4400
	CloseUnauthorized       = 4401
	CloseInitTimeout        = 4408
	CloseSubscriberExists   = 4409
	CloseTooManyInitRequest = 4429
)

// ErrMalformedFrame is returned for frames that are not valid protocol JSON.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is a single message exchanged on the subscription connection.
type Frame struct {
	Type    FrameType           `json:"type"`
	ID      string              `json:"id,omitempty"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

// SubscribePayload is the payload of a subscribe frame.
type SubscribePayload struct {
	Stream string `json:"stream"`
	// Query is accepted for clients speaking the GraphQL flavour of the protocol.
	Query string `json:"query,omitempty"`

	// Field is the subscription field named in Query, empty for stream subscribes.
	Field string `json:"-"`
}

// Result is the next payload for msg. Query subscribes get a GraphQL
// execution result keyed by the requested field, stream subscribes the bare message.
func (p SubscribePayload) Result(msg Message) any {
	if p.Field == "" {
		return msg
	}
	return ExecutionResult{Data: map[string]Message{p.Field: msg}}
}

// ExecutionResult is the payload shape GraphQL clients expect in next frames.
type ExecutionResult struct {
	Data map[string]Message `json:"data"`
}

// ErrorEntry is a single entry of an error frame payload.
type ErrorEntry struct {
	Message string `json:"message"`
}

// DecodeFrame parses a text frame. The type field is mandatory.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return f, nil
}

// DecodeSubscribe extracts the requested stream from a subscribe frame.
func (f Frame) DecodeSubscribe() (SubscribePayload, error) {
	var p SubscribePayload
	if len(f.Payload) == 0 {
		return p, fmt.Errorf("%w: subscribe without payload", ErrMalformedFrame)
	}
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if p.Stream == "" && p.Query != "" {
		if field := subscriptionField.FindString(p.Query); field != "" {
			p.Stream = StreamMessageCreated
			p.Field = field
		}
	}
	return p, nil
}

// subscriptionField matches the single subscription field of the GraphQL schema.
var subscriptionField = regexp.MustCompile(`\bmessage(Created|Sent)\b`)

// Encode serialises the frame for a websocket text message.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// NewFrame builds a frame with a JSON-encoded payload.
func NewFrame(t FrameType, id string, payload any) (Frame, error) {
	f := Frame{Type: t, ID: id}
	if payload == nil {
		return f, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	f.Payload = raw
	return f, nil
}
