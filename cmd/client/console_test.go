package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/inbox"
	"github.com/clementraoulgithub/gui-tcp-server/internal/presence"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
	"github.com/clementraoulgithub/gui-tcp-server/internal/router"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"hello there", command{kind: cmdSay, text: "hello there"}},
		{"/to bob", command{kind: cmdTo, target: "bob"}},
		{"/dm bob  see: you", command{kind: cmdDM, target: "bob", text: "see: you"}},
		{"/reply 12 ok", command{kind: cmdReply, id: 12, text: "ok"}},
		{"/react 3 2", command{kind: cmdReact, id: 3, count: 2, op: protocol.ReactionAdd}},
		{"/unreact 3 1", command{kind: cmdReact, id: 3, count: 1, op: protocol.ReactionRemove}},
		{"/older", command{kind: cmdOlder}},
		{"/icon me.png", command{kind: cmdIcon, target: "me.png"}},
		{"/exit", command{kind: cmdQuit}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	for _, line := range []string{"", "   ", "/dm bob", "/reply x hi", "/react 1", "/react 1 -2", "/to", "/nope"} {
		_, err := parseCommand(line)
		assert.Error(t, err, line)
	}
}

func TestFormatMessage(t *testing.T) {
	reply := int64(1)
	assert.Equal(t, "[home] #2 bob: hi  (re #1 alice)  +3", formatMessage(router.StoredMessage{
		ID: 2, Sender: "bob", Receiver: domain.HomeRoom, Body: "hi", ReactionCount: 3,
		ResponseID: &reply, Response: &router.StoredMessage{ID: 1, Sender: "alice"},
	}))
	assert.Equal(t, "[dm] #5 bob: psst  (re #1)", formatMessage(router.StoredMessage{
		ID: 5, Sender: "bob", Receiver: "alice", Body: "psst", ResponseID: &reply,
	}))
	assert.Equal(t, "[home] -- restarting", formatMessage(router.StoredMessage{
		Sender: domain.ServerSender, Receiver: domain.HomeRoom, Body: "restarting", System: true,
	}))
}

func TestConsoleHandlers(t *testing.T) {
	var buf bytes.Buffer
	closed := false
	h := newConsole(&buf).handlers(func() { closed = true })

	h.OnConnCount(2)
	h.OnConnected([]presence.Entry{{Username: "bob", Avatar: []byte("xx")}})
	h.OnDisconnected([]presence.Entry{{Username: "carol"}})
	h.OnReactions([]inbox.ReactionUpdate{{MessageID: 4, Thread: "home", Count: 1}})
	h.OnClosed()

	assert.Equal(t, "* 2 connection(s)\n"+
		"* bob is online (picture, 2 bytes)\n"+
		"* carol is offline\n"+
		"* [home] #4 now has 1 reaction(s)\n", buf.String())
	assert.True(t, closed)
}
