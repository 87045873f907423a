package inbox_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clementraoulgithub/gui-tcp-server/internal/inbox"
	"github.com/clementraoulgithub/gui-tcp-server/internal/presence"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
	"github.com/clementraoulgithub/gui-tcp-server/internal/router"
)

func TestSlotMerges(t *testing.T) {
	wake := make(chan struct{}, 1)
	s := inbox.NewSlot[int](func(a, b int) int { return a + b }, wake)

	_, ok := s.Take()
	assert.False(t, ok)

	s.Put(1)
	s.Put(2)
	s.Put(3)
	assert.Len(t, wake, 1)

	v, ok := s.Take()
	require.True(t, ok)
	assert.Equal(t, 6, v)

	_, ok = s.Take()
	assert.False(t, ok)
}

func TestThreeRapidPutsOneDelivery(t *testing.T) {
	in := inbox.New(0)
	in.PutMessages(router.StoredMessage{ID: 1, Body: "a"})
	in.PutMessages(router.StoredMessage{ID: 2, Body: "b"})
	in.PutMessages(router.StoredMessage{ID: 3, Body: "c"})

	var deliveries [][]router.StoredMessage
	in.Flush(inbox.Handlers{
		OnMessages: func(msgs []router.StoredMessage) { deliveries = append(deliveries, msgs) },
	})

	require.Len(t, deliveries, 1)
	require.Len(t, deliveries[0], 3)
	assert.Equal(t, int64(1), deliveries[0][0].ID)
	assert.Equal(t, int64(3), deliveries[0][2].ID)
}

func TestMessagesBounded(t *testing.T) {
	in := inbox.New(2)
	for i := int64(1); i <= 5; i++ {
		in.PutMessages(router.StoredMessage{ID: i})
	}

	var got []router.StoredMessage
	in.Flush(inbox.Handlers{OnMessages: func(m []router.StoredMessage) { got = m }})
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].ID)
	assert.Equal(t, int64(3), in.Dropped())
}

func TestPresenceAndReactionMerge(t *testing.T) {
	in := inbox.New(0)
	in.PutConnected([]presence.Entry{{Username: "bob", Status: presence.StatusConnected}})
	in.PutDisconnected([]presence.Entry{{Username: "bob", Status: presence.StatusDisconnected}})
	in.PutConnected([]presence.Entry{{Username: "carol", Status: presence.StatusConnected}})

	in.PutReactions(inbox.ReactionUpdate{MessageID: 7, Count: 3, Op: protocol.ReactionAdd})
	in.PutReactions(inbox.ReactionUpdate{MessageID: 8, Count: 1, Op: protocol.ReactionAdd})
	in.PutReactions(inbox.ReactionUpdate{MessageID: 7, Count: 1, Op: protocol.ReactionRemove})

	in.PutConnCount(2)
	in.PutConnCount(3)

	var (
		connected, disconnected []presence.Entry
		reactions               []inbox.ReactionUpdate
		count                   int
	)
	in.Flush(inbox.Handlers{
		OnConnCount:    func(n int) { count = n },
		OnConnected:    func(e []presence.Entry) { connected = e },
		OnDisconnected: func(e []presence.Entry) { disconnected = e },
		OnReactions:    func(u []inbox.ReactionUpdate) { reactions = u },
	})

	assert.Equal(t, 3, count)
	require.Len(t, connected, 1)
	assert.Equal(t, "carol", connected[0].Username)
	require.Len(t, disconnected, 1)
	assert.Equal(t, "bob", disconnected[0].Username)
	require.Len(t, reactions, 2)
	assert.Equal(t, inbox.ReactionUpdate{MessageID: 7, Count: 1, Op: protocol.ReactionRemove}, reactions[0])
}

func TestRunDeliversAndClosesOnce(t *testing.T) {
	in := inbox.New(0)

	var (
		mu     sync.Mutex
		bodies []string
		closed atomic.Int32
	)
	done := make(chan error, 1)
	go func() {
		done <- in.Run(context.Background(), inbox.Handlers{
			OnMessages: func(msgs []router.StoredMessage) {
				mu.Lock()
				defer mu.Unlock()
				for _, m := range msgs {
					bodies = append(bodies, m.Body)
				}
			},
			OnClosed: func() { closed.Add(1) },
		})
	}()

	in.PutMessages(router.StoredMessage{ID: 1, Body: "first"})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	}, time.Second, 5*time.Millisecond)

	in.PutMessages(router.StoredMessage{ID: 2, Body: "last"})
	in.Close()
	in.Close()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}

	assert.Equal(t, int32(1), closed.Load())
	assert.Equal(t, []string{"first", "last"}, bodies)
}

func TestRunStopsOnContext(t *testing.T) {
	in := inbox.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, in.Run(ctx, inbox.Handlers{}), context.Canceled)
}
