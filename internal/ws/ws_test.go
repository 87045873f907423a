package ws_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
	"github.com/clementraoulgithub/gui-tcp-server/internal/security"
	"github.com/clementraoulgithub/gui-tcp-server/internal/service"
	"github.com/clementraoulgithub/gui-tcp-server/internal/store/sqlite"
	"github.com/clementraoulgithub/gui-tcp-server/internal/ws"
)

type relayFixture struct {
	url    string
	auth   *service.AuthService
	msgs   *service.MessageService
	hub    *ws.Hub
	tokens map[string]string
}

func newRelay(t *testing.T, users ...string) *relayFixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })

	userRepo := sqlite.NewUserRepo(db)
	auth := service.NewAuthService(userRepo, security.NewTokenService("secret", time.Hour), security.NewPasswordHasher(4))
	msgs := service.NewMessageService(sqlite.NewMessageRepo(db))
	hub := ws.NewHub(zerolog.Nop())

	f := &relayFixture{auth: auth, msgs: msgs, hub: hub, tokens: map[string]string{}}
	for _, u := range users {
		resp, err := auth.Register(context.Background(), service.Credentials{Username: u, Password: "pw"})
		require.NoError(t, err)
		f.tokens[u] = resp.AccessToken
	}

	srv := httptest.NewServer(ws.MakeHandler(ws.Relay{
		Hub:      hub,
		Auth:     auth,
		Users:    service.NewUserService(userRepo),
		Messages: msgs,
		Logger:   zerolog.Nop(),
	}))
	t.Cleanup(srv.Close)
	f.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return f
}

func (f *relayFixture) dial(t *testing.T, user string) *ws.Conn {
	t.Helper()
	conn, err := ws.Dial(context.Background(), f.url, f.tokens[user], zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// expect reads frames until one decodes to want, failing after a timeout.
func expect(t *testing.T, conn *ws.Conn, want protocol.Event) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		f, err := conn.ReadFrame(ctx)
		require.NoError(t, err, "waiting for %#v", want)
		if assert.ObjectsAreEqual(want, protocol.DecodeFrame(f)) {
			return
		}
	}
}

func TestRejectsMissingToken(t *testing.T) {
	f := newRelay(t)
	_, resp, err := websocket.DefaultDialer.Dial(f.url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = ws.Dial(context.Background(), f.url, "bogus", zerolog.Nop())
	assert.Error(t, err)
}

func TestPresenceAndConnCount(t *testing.T) {
	f := newRelay(t, "alice", "bob")

	alice := f.dial(t, "alice")
	expect(t, alice, protocol.ConnCount{Count: 1})

	bob := f.dial(t, "bob")
	expect(t, alice, protocol.Presence{Kind: protocol.PresenceHello, UserID: "bob"})
	expect(t, alice, protocol.ConnCount{Count: 2})
	expect(t, bob, protocol.ConnCount{Count: 2})

	require.NoError(t, alice.WriteFrame(protocol.EncodePresence(protocol.PresenceWelcome, "alice")))
	expect(t, bob, protocol.Presence{Kind: protocol.PresenceWelcome, UserID: "alice"})

	assert.Equal(t, []string{"alice", "bob"}, f.hub.Usernames())

	require.NoError(t, bob.Close())
	expect(t, alice, protocol.Presence{Kind: protocol.PresenceGoodBye, UserID: "bob"})
	expect(t, alice, protocol.ConnCount{Count: 1})
}

func TestMessageRouting(t *testing.T) {
	f := newRelay(t, "alice", "bob", "carol")

	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")
	carol := f.dial(t, "carol")
	expect(t, alice, protocol.ConnCount{Count: 3})
	expect(t, bob, protocol.ConnCount{Count: 3})
	expect(t, carol, protocol.ConnCount{Count: 3})

	require.NoError(t, alice.WriteFrame(protocol.EncodeMessage("alice", domain.HomeRoom, "hi: all", nil)))
	home := protocol.Message{Sender: "alice", Receiver: domain.HomeRoom, Body: "hi: all"}
	expect(t, bob, home)
	expect(t, carol, home)

	reply := int64(1)
	require.NoError(t, alice.WriteFrame(protocol.EncodeMessage("alice", "bob", "psst", &reply)))
	expect(t, bob, protocol.Message{Sender: "alice", Receiver: "bob", Body: "psst", ResponseID: &reply})
	expect(t, carol, protocol.LastID{})

	require.NoError(t, carol.WriteFrame(protocol.EncodeReaction(protocol.ReactionAdd, 1, 2)))
	expect(t, alice, protocol.Reaction{MessageID: 1, Count: 2, Op: protocol.ReactionAdd})
	expect(t, carol, protocol.Reaction{MessageID: 1, Count: 2, Op: protocol.ReactionAdd})

	// spoofed sender is dropped
	require.NoError(t, carol.WriteFrame(protocol.EncodeMessage("alice", domain.HomeRoom, "fake", nil)))

	require.Eventually(t, func() bool {
		last, err := f.msgs.LastID(context.Background())
		return err == nil && last == 2
	}, time.Second, 10*time.Millisecond)

	page, err := f.msgs.Older(context.Background(), 0, 10, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 2, page[0].ReactionNb)
}
