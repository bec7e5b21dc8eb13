package broker

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"chatline/internal/model"
)

// TopicMessageCreated carries every message accepted by the gateway.
const TopicMessageCreated = "MESSAGE_CREATED"

// DefaultBuffer is the per-subscription queue length used when none is given.
const DefaultBuffer = 64

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("broker closed")

// Subscription is one live listener on one topic. Events arrive on C in
// publish order; C is closed once the subscription ends, whether by
// Cancel, by the broker dropping a stalled listener, or by Broker.Close.
type Subscription struct {
	id     uuid.UUID
	topic  string
	ch     chan model.Message
	broker *Broker
}

// ID returns the subscription's unique identifier.
func (s *Subscription) ID() string { return s.id.String() }

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() string { return s.topic }

// C returns the event channel. It is closed when the subscription ends.
func (s *Subscription) C() <-chan model.Message { return s.ch }

// Cancel unsubscribes. Calling it more than once is safe.
func (s *Subscription) Cancel() { s.broker.Unsubscribe(s) }

// Broker fans published messages out to the subscriptions of a topic.
// It keeps no history: a subscription only sees what is published after it
// was registered.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[uuid.UUID]*Subscription
	buffer int
	closed bool
	log    zerolog.Logger
}

// New creates a broker whose subscriptions queue up to buffer events each.
func New(buffer int, log zerolog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		subs:   make(map[string]map[uuid.UUID]*Subscription),
		buffer: buffer,
		log:    log.With().Str("component", "broker").Logger(),
	}
}

// Subscribe registers a new listener on topic.
func (b *Broker) Subscribe(topic string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	sub := &Subscription{
		id:     uuid.New(),
		topic:  topic,
		ch:     make(chan model.Message, b.buffer),
		broker: b,
	}
	if _, ok := b.subs[topic]; !ok {
		b.subs[topic] = make(map[uuid.UUID]*Subscription)
	}
	b.subs[topic][sub.id] = sub

	b.log.Debug().Str("topic", topic).Str("subscription", sub.ID()).Int("subscribers", len(b.subs[topic])).Msg("subscribed")
	return sub, nil
}

// Unsubscribe removes sub. Removing a subscription that is already gone is a no-op.
func (b *Broker) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.remove(sub) {
		b.log.Debug().Str("topic", sub.topic).Str("subscription", sub.ID()).Msg("unsubscribed")
	}
}

// remove must be called with b.mu held.
func (b *Broker) remove(sub *Subscription) bool {
	byTopic, ok := b.subs[sub.topic]
	if !ok {
		return false
	}
	if _, exists := byTopic[sub.id]; !exists {
		return false
	}
	delete(byTopic, sub.id)
	close(sub.ch)
	if len(byTopic) == 0 {
		delete(b.subs, sub.topic)
	}
	return true
}

// Publish hands msg to every subscription on topic and returns how many
// accepted it. It never blocks: a subscription whose queue is full is
// dropped as if it had unsubscribed, and the failure stays inside the broker.
func (b *Broker) Publish(topic string, msg model.Message) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			b.remove(sub)
			b.log.Debug().Str("topic", topic).Str("subscription", sub.ID()).Str("message_id", msg.ID).Msg("delivery failed, subscription dropped")
		}
	}
	return delivered
}

// Subscribers returns the number of live subscriptions on topic.
func (b *Broker) Subscribers(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[topic])
}

// Stats returns the live subscription count of every topic that has one.
func (b *Broker) Stats() map[string]int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return lo.MapValues(b.subs, func(byTopic map[uuid.UUID]*Subscription, _ string) int {
		return len(byTopic)
	})
}

// Close ends every subscription. Later Subscribe calls fail with ErrClosed
// and later publishes reach nobody.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	n := 0
	for _, byTopic := range b.subs {
		for _, sub := range byTopic {
			b.remove(sub)
			n++
		}
	}
	b.log.Info().Int("subscriptions", n).Msg("broker closed")
}
