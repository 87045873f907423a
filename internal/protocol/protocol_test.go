package protocol_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
)

func ptr(v int64) *int64 { return &v }

func TestEscapeRoundTrip(t *testing.T) {
	bodies := []string{
		"",
		"plain",
		"time is 12:30",
		":::",
		"emoji 😀 and : colon",
	}
	for _, body := range bodies {
		escaped := protocol.EscapeBody(body)
		assert.NotContains(t, escaped, ":")
		assert.Equal(t, body, protocol.UnescapeBody(escaped))
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		header  protocol.Command
		payload string
		want    protocol.Event
	}{
		{
			name:    "home message",
			header:  protocol.CmdMessage,
			payload: "alice:home:hi there",
			want:    protocol.Message{Sender: "alice", Receiver: "home", Body: "hi there"},
		},
		{
			name:    "escaped body",
			header:  protocol.CmdMessage,
			payload: "alice: bob :see you at 10$replaced$30",
			want:    protocol.Message{Sender: "alice", Receiver: "bob", Body: "see you at 10:30"},
		},
		{
			name:    "reply",
			header:  protocol.CmdMessage,
			payload: "alice:home:yes:42",
			want:    protocol.Message{Sender: "alice", Receiver: "home", Body: "yes", ResponseID: ptr(42)},
		},
		{
			name:    "unescaped colon drops trailing fields",
			header:  protocol.CmdMessage,
			payload: "alice:home:a:b:c",
			want:    protocol.Message{Sender: "alice", Receiver: "home", Body: "a"},
		},
		{
			name:    "hello",
			header:  protocol.CmdHelloWorld,
			payload: "bob:HELLO_WORLD",
			want:    protocol.Presence{Kind: protocol.PresenceHello, UserID: "bob"},
		},
		{
			name:    "welcome",
			header:  protocol.CmdWelcome,
			payload: " carol :WELCOME",
			want:    protocol.Presence{Kind: protocol.PresenceWelcome, UserID: "carol"},
		},
		{
			name:    "goodbye",
			header:  protocol.CmdGoodBye,
			payload: "dave:GOOD_BYE",
			want:    protocol.Presence{Kind: protocol.PresenceGoodBye, UserID: "dave"},
		},
		{
			name:    "conn count",
			header:  protocol.CmdConnCount,
			payload: "CONN_NB: 3 ",
			want:    protocol.ConnCount{Count: 3},
		},
		{
			name:    "add reaction",
			header:  protocol.CmdAddReaction,
			payload: "ADD_REACT: 17 ; 4",
			want:    protocol.Reaction{MessageID: 17, Count: 4, Op: protocol.ReactionAdd},
		},
		{
			name:    "remove reaction",
			header:  protocol.CmdRemoveReaction,
			payload: "RM_REACT:17;1",
			want:    protocol.Reaction{MessageID: 17, Count: 1, Op: protocol.ReactionRemove},
		},
		{
			name:    "last id",
			header:  protocol.CmdLastID,
			payload: "LAST_ID",
			want:    protocol.LastID{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := protocol.Decode(uint16(tt.header), tt.payload)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeUnknown(t *testing.T) {
	cases := map[string]struct {
		header  protocol.Command
		payload string
	}{
		"no separator":       {protocol.CmdMessage, "garbage"},
		"two fields":         {protocol.CmdMessage, "alice:home"},
		"empty sender":       {protocol.CmdMessage, " :home:hi"},
		"bad count":          {protocol.CmdConnCount, "CONN_NB:many"},
		"reaction no split":  {protocol.CmdAddReaction, "ADD_REACT:17"},
		"reaction bad id":    {protocol.CmdAddReaction, "ADD_REACT:x;1"},
		"empty presence id":  {protocol.CmdHelloWorld, ":HELLO_WORLD"},
		"last id with colon": {protocol.CmdLastID, "LAST_ID:1"},
		"empty payload":      {protocol.CmdMessage, ""},
	}

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			ev := protocol.Decode(uint16(c.header), c.payload)
			u, ok := ev.(protocol.Unknown)
			require.True(t, ok, "expected Unknown, got %T", ev)
			assert.Equal(t, c.payload, u.Payload)
			assert.NotEmpty(t, u.Reason)
			assert.Equal(t, "unknown", protocol.EventName(ev))
		})
	}
}

func TestEncodeDecodeAgree(t *testing.T) {
	f := protocol.EncodeMessage("alice", "bob", "at 9:00", ptr(7))
	assert.Equal(t, protocol.Message{Sender: "alice", Receiver: "bob", Body: "at 9:00", ResponseID: ptr(7)}, protocol.DecodeFrame(f))

	f = protocol.EncodePresence(protocol.PresenceGoodBye, "bob")
	assert.Equal(t, protocol.CmdGoodBye, f.Command())
	assert.Equal(t, protocol.Presence{Kind: protocol.PresenceGoodBye, UserID: "bob"}, protocol.DecodeFrame(f))

	assert.Equal(t, protocol.ConnCount{Count: 5}, protocol.DecodeFrame(protocol.EncodeConnCount(5)))
	assert.Equal(t, protocol.Reaction{MessageID: 3, Count: 0, Op: protocol.ReactionRemove},
		protocol.DecodeFrame(protocol.EncodeReaction(protocol.ReactionRemove, 3, 0)))
	assert.Equal(t, protocol.LastID{}, protocol.DecodeFrame(protocol.EncodeLastID()))
}

func TestFrameCodec(t *testing.T) {
	in := protocol.Frame{Header: uint16(protocol.CmdAddReaction), Payload: "ADD_REACT:1;2"}
	buf := protocol.MarshalFrame(in)
	assert.Equal(t, []byte{0x00, 0x05}, buf[:2])

	out, err := protocol.UnmarshalFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = protocol.UnmarshalFrame([]byte{0x01})
	assert.ErrorIs(t, err, protocol.ErrShortFrame)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "CONN_NB", protocol.CmdConnCount.String())
	assert.Equal(t, "UNKNOWN(0x00ff)", protocol.Command(0xff).String())
}
