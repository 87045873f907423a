package presence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clementraoulgithub/gui-tcp-server/internal/presence"
)

func names(entries []presence.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Username)
	}
	return out
}

func TestNeverInBothSets(t *testing.T) {
	tr := presence.NewTracker()

	tr.OnHello("bob", nil)
	tr.OnGoodBye("bob", nil)
	tr.OnWelcome("bob", nil)
	tr.OnGoodBye("bob", nil)
	tr.OnHello("bob", nil)

	connected := 0
	for _, e := range tr.Snapshot() {
		if e.Username == "bob" {
			connected++
			assert.Equal(t, presence.StatusConnected, e.Status)
		}
	}
	assert.Equal(t, 1, connected)
	assert.Equal(t, presence.StatusConnected, tr.Status("bob"))
}

func TestSecondDrainEmpty(t *testing.T) {
	tr := presence.NewTracker()
	tr.OnHello("carol", []byte("c"))
	tr.OnHello("alice", nil)
	tr.OnGoodBye("dave", nil)

	assert.Equal(t, []string{"alice", "carol"}, names(tr.DrainConnected()))
	assert.Empty(t, tr.DrainConnected())

	assert.Equal(t, []string{"dave"}, names(tr.DrainDisconnected()))
	assert.Empty(t, tr.DrainDisconnected())
}

func TestReHelloDoesNotRenotify(t *testing.T) {
	tr := presence.NewTracker()
	tr.OnHello("bob", nil)
	require.Len(t, tr.DrainConnected(), 1)

	tr.OnHello("bob", nil)
	tr.OnWelcome("bob", nil)
	assert.Empty(t, tr.DrainConnected())

	tr.OnGoodBye("bob", nil)
	tr.OnGoodBye("bob", nil)
	assert.Len(t, tr.DrainDisconnected(), 1)
	assert.Empty(t, tr.DrainDisconnected())
}

func TestGoodByeKeepsAvatar(t *testing.T) {
	tr := presence.NewTracker()
	tr.OnHello("bob", []byte{1, 2})
	tr.OnGoodBye("bob", nil)

	out := tr.DrainDisconnected()
	require.Len(t, out, 1)
	assert.Equal(t, []byte{1, 2}, out[0].Avatar)
	assert.True(t, tr.Known("bob"))
	assert.False(t, tr.Known("nobody"))
}

func TestSetAvatarRearmsNotification(t *testing.T) {
	tr := presence.NewTracker()
	tr.OnHello("bob", nil)
	tr.DrainConnected()

	assert.True(t, tr.SetAvatar("bob", []byte{9}))
	out := tr.DrainConnected()
	require.Len(t, out, 1)
	assert.Equal(t, []byte{9}, out[0].Avatar)

	assert.False(t, tr.SetAvatar("ghost", []byte{1}))
}

func TestResetAndConnCount(t *testing.T) {
	tr := presence.NewTracker()
	tr.OnHello("bob", nil)
	tr.OnConnCount(4)
	assert.Equal(t, 4, tr.ConnCount())

	tr.Reset()
	assert.Empty(t, tr.Snapshot())
	assert.Zero(t, tr.ConnCount())
	assert.Equal(t, presence.StatusUnknown, tr.Status("bob"))
}

func TestSeedThenHello(t *testing.T) {
	tr := presence.NewTracker()
	tr.Seed("bob", []byte("png"))
	tr.Seed("carol", nil)
	tr.OnHello("dave", nil)
	tr.Seed("dave", []byte("late"))

	assert.Equal(t, []string{"bob", "carol"}, names(tr.DrainDisconnected()))
	assert.Equal(t, presence.StatusConnected, tr.Status("dave"))

	tr.OnHello("bob", nil)
	connected := tr.DrainConnected()
	require.Len(t, connected, 2)
	assert.Equal(t, "bob", connected[0].Username)
	assert.Equal(t, []byte("png"), connected[0].Avatar)
	assert.Equal(t, []byte("late"), connected[1].Avatar)
	assert.Empty(t, tr.DrainDisconnected())
}
