package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case e := <-sub:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	all := b.Subscribe()
	pages := b.Subscribe(EventPageUpdated, EventPageDeleted)
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventContentCommitted, Metadata: map[string]string{"content_uid": "c1"}})
	b.Publish(&Event{Type: EventPageUpdated})

	first := receive(t, all)
	assert.Equal(t, EventContentCommitted, first.Type)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.Timestamp.IsZero())
	assert.Equal(t, EventPageUpdated, receive(t, all).Type)

	assert.Equal(t, EventPageUpdated, receive(t, pages).Type, "filtered subscriber skips other types")
	select {
	case e := <-pages:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
}

func TestBrokerUnsubscribe(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)
}

func TestBrokerStop(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	b.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			b.Publish(&Event{Type: EventThemeChanged})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		require.Fail(t, "publish blocked after stop")
	}
}
