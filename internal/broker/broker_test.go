package broker

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatline/internal/model"
)

func newTestBroker(buffer int) *Broker {
	return New(buffer, zerolog.Nop())
}

func recv(t *testing.T, sub *Subscription) model.Message {
	t.Helper()
	select {
	case m, ok := <-sub.C():
		require.True(t, ok, "subscription closed unexpectedly")
		return m
	case <-time.After(time.Second):
		require.FailNow(t, "timed out waiting for event")
	}
	return model.Message{}
}

func requireNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case m, ok := <-sub.C():
		if ok {
			require.FailNow(t, "unexpected event", "%+v", m)
		}
	default:
	}
}

func TestPublish_FansOutToAllSubscribers(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(8)

	a, err := b.Subscribe(TopicMessageCreated)
	req.NoError(err)
	c, err := b.Subscribe(TopicMessageCreated)
	req.NoError(err)
	req.NotEqual(a.ID(), c.ID())

	m := model.Message{ID: "1", Author: "alice", Content: "hi"}
	req.Equal(2, b.Publish(TopicMessageCreated, m))

	req.Equal(m, recv(t, a))
	req.Equal(m, recv(t, c))
}

func TestPublish_PreservesOrderPerSubscriber(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(16)
	sub, err := b.Subscribe(TopicMessageCreated)
	req.NoError(err)

	for i := 0; i < 10; i++ {
		b.Publish(TopicMessageCreated, model.Message{ID: fmt.Sprint(i)})
	}
	for i := 0; i < 10; i++ {
		req.Equal(fmt.Sprint(i), recv(t, sub).ID)
	}
}

func TestPublish_OtherTopicNotDelivered(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(8)
	sub, err := b.Subscribe("OTHER")
	req.NoError(err)

	req.Zero(b.Publish(TopicMessageCreated, model.Message{ID: "1"}))
	requireNoEvent(t, sub)
}

func TestSubscribe_NoBacklog(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(8)

	b.Publish(TopicMessageCreated, model.Message{ID: "m1"})
	late, err := b.Subscribe(TopicMessageCreated)
	req.NoError(err)
	b.Publish(TopicMessageCreated, model.Message{ID: "m2"})

	req.Equal("m2", recv(t, late).ID)
	requireNoEvent(t, late)
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(8)
	sub, err := b.Subscribe(TopicMessageCreated)
	req.NoError(err)

	b.Unsubscribe(sub)
	req.NotPanics(func() { b.Unsubscribe(sub) })
	req.NotPanics(func() { sub.Cancel() })
	req.NotPanics(func() { b.Unsubscribe(nil) })

	_, ok := <-sub.C()
	req.False(ok)
	req.Zero(b.Subscribers(TopicMessageCreated))
	req.Zero(b.Publish(TopicMessageCreated, model.Message{ID: "1"}))
}

func TestPublish_DropsStalledSubscriber(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(1)
	slow, err := b.Subscribe(TopicMessageCreated)
	req.NoError(err)
	fast, err := b.Subscribe(TopicMessageCreated)
	req.NoError(err)

	req.Equal(2, b.Publish(TopicMessageCreated, model.Message{ID: "1"}))
	req.Equal("1", recv(t, fast).ID)

	// slow never drained its single slot
	req.Equal(1, b.Publish(TopicMessageCreated, model.Message{ID: "2"}))
	req.Equal("2", recv(t, fast).ID)
	req.Equal(1, b.Subscribers(TopicMessageCreated))

	req.Equal("1", recv(t, slow).ID)
	_, ok := <-slow.C()
	req.False(ok, "dropped subscription must be closed")
}

func TestStats(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(8)
	_, err := b.Subscribe(TopicMessageCreated)
	req.NoError(err)
	_, err = b.Subscribe(TopicMessageCreated)
	req.NoError(err)
	_, err = b.Subscribe("OTHER")
	req.NoError(err)

	req.Equal(map[string]int{TopicMessageCreated: 2, "OTHER": 1}, b.Stats())
}

func TestClose_EndsSubscriptions(t *testing.T) {
	req := require.New(t)
	b := newTestBroker(8)
	sub, err := b.Subscribe(TopicMessageCreated)
	req.NoError(err)

	b.Close()
	b.Close()

	_, ok := <-sub.C()
	req.False(ok)
	req.NotPanics(func() { sub.Cancel() })

	_, err = b.Subscribe(TopicMessageCreated)
	req.ErrorIs(err, ErrClosed)
	req.Zero(b.Publish(TopicMessageCreated, model.Message{ID: "1"}))
}
