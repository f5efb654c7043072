package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBroadcaster_PublishToMatchingSubscribers(t *testing.T) {
	b := NewBroadcaster(8, zap.NewNop())

	convSub := b.Subscribe("conv-1")
	defer convSub.Close()
	allSub := b.Subscribe("")
	defer allSub.Close()
	otherSub := b.Subscribe("conv-2")
	defer otherSub.Close()

	b.Publish(&Entry{ConversationID: "conv-1", Kind: KindAgentMessage})

	select {
	case e := <-convSub.C:
		assert.Equal(t, KindAgentMessage, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("conversation subscriber did not receive event")
	}
	select {
	case e := <-allSub.C:
		assert.Equal(t, "conv-1", e.ConversationID)
	case <-time.After(time.Second):
		t.Fatal("wildcard subscriber did not receive event")
	}
	select {
	case <-otherSub.C:
		t.Fatal("subscriber for another conversation received event")
	default:
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster(1, zap.NewNop())

	sub := b.Subscribe("conv-1")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			b.Publish(&Entry{ConversationID: "conv-1", StepIndex: i, Kind: KindAgentMessage})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}

	// The buffer holds the first event; later ones were dropped.
	e := <-sub.C
	assert.Equal(t, 0, e.StepIndex)
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(0, zap.NewNop())

	sub := b.Subscribe("conv-1")
	require.Equal(t, 1, b.SubscriberCount())

	sub.Close()
	sub.Close() // idempotent
	assert.Equal(t, 0, b.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open)
}
