package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"program-chat-service/internal/models"
)

func recvOne(t *testing.T, sub *Subscription) models.Message {
	t.Helper()
	select {
	case msg, ok := <-sub.C():
		require.True(t, ok)
		return msg
	case <-time.After(time.Second):
		t.Fatal("no delivery")
		return models.Message{}
	}
}

func TestSubscriptionReceivesBroadcasts(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("c1")
	defer sub.Cancel()

	hub.BroadcastMessage("c1", models.Message{ID: 1, ChatID: "c1", Text: "hi"})

	msg := recvOne(t, sub)
	assert.EqualValues(t, 1, msg.ID)
}

func TestBroadcastScopedToChat(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("c1")
	defer sub.Cancel()

	hub.BroadcastMessage("c2", models.Message{ID: 9, ChatID: "c2"})

	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected delivery: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelIsIdempotentAndClosesChannel(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("c1")

	sub.Cancel()
	sub.Cancel()

	_, ok := <-sub.C()
	assert.False(t, ok)

	// Broadcasting after cancel must not panic on the closed channel.
	hub.BroadcastMessage("c1", models.Message{ID: 2, ChatID: "c1"})
}

func TestSubscriptionDropsWhenConsumerStalls(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("c1")
	defer sub.Cancel()

	// Overfill the buffer without reading; deliveries past capacity drop
	// instead of blocking the broadcaster.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 64; i++ {
			hub.BroadcastMessage("c1", models.Message{ID: int64(i), ChatID: "c1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on stalled subscriber")
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("c1")
	b := hub.Subscribe("c1")
	defer a.Cancel()
	defer b.Cancel()

	hub.BroadcastMessage("c1", models.Message{ID: 7, ChatID: "c1"})

	assert.EqualValues(t, 7, recvOne(t, a).ID)
	assert.EqualValues(t, 7, recvOne(t, b).ID)
}
