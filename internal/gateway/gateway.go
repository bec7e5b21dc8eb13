package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"chatline/internal/broker"
	"chatline/internal/model"
)

// MessageLog is the history the gateway reads and appends to.
type MessageLog interface {
	Append(msg model.Message)
	All() []model.Message
}

// PubSub is the broker the gateway publishes new messages on.
type PubSub interface {
	Publish(topic string, msg model.Message) int
	Subscribe(topic string) (*broker.Subscription, error)
}

// Gateway serves the read and write operations on the message log.
type Gateway struct {
	// mu serialises append+publish so history order equals delivery order
	mu sync.Mutex

	log    MessageLog
	pubsub PubSub
	ids    IDGenerator
	logger zerolog.Logger

	maxContentLength int
	now              func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithMaxContentLength rejects content longer than n characters. 0 disables the check.
func WithMaxContentLength(n int) Option {
	return func(g *Gateway) { g.maxContentLength = n }
}

// WithClock replaces time.Now for message timestamps and IDs.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New creates a gateway over the given history and broker.
func New(log MessageLog, pubsub PubSub, logger zerolog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		log:    log,
		pubsub: pubsub,
		logger: logger.With().Str("component", "gateway").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ListMessages returns the whole history, oldest first.
func (g *Gateway) ListMessages() []model.Message {
	return g.log.All()
}

// SendMessage validates, stores and publishes a new message. The message is
// handed to the broker before SendMessage returns.
func (g *Gateway) SendMessage(ctx context.Context, author, content string) (model.Message, error) {
	if err := validateSend(sendRequest{Author: author, Content: content}, g.maxContentLength); err != nil {
		return model.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}

	g.mu.Lock()
	now := g.now()
	msg := model.Message{
		ID:        g.ids.Next(now),
		Author:    author,
		Content:   content,
		CreatedAt: now,
	}
	g.log.Append(msg)
	delivered := g.pubsub.Publish(broker.TopicMessageCreated, msg)
	g.mu.Unlock()

	g.logger.Debug().Str("message_id", msg.ID).Str("author", msg.Author).Int("delivered", delivered).Msg("message sent")
	return msg, nil
}

// Subscribe registers a listener for messages created from now on.
func (g *Gateway) Subscribe() (*broker.Subscription, error) {
	return g.pubsub.Subscribe(broker.TopicMessageCreated)
}
