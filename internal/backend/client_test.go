package backend_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clementraoulgithub/gui-tcp-server/internal/backend"
	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Username, Password string }
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Password != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-` + body.Username + `","token_type":"bearer","user":{"username":"` + body.Username + `"}}`))
	})

	mux.HandleFunc("GET /api/messages/older", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-alice" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		assert.Equal(t, "12", q.Get("start"))
		assert.Equal(t, "2", q.Get("count"))
		assert.Equal(t, "alice", q.Get("user1"))
		assert.Equal(t, "bob", q.Get("user2"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[
			{"message_id":10,"sender":"bob","receiver":"alice","message":"hey","reaction_nb":2,"created_at":"2024-01-01 10:00:00","is_readed":false,"response_id":null},
			{"message_id":11,"sender":"alice","receiver":"bob","message":"yo","reaction_nb":0,"created_at":"2024-01-01 10:01:00","is_readed":true,"response_id":10}
		]}`))
	})

	mux.HandleFunc("GET /api/messages/last-id", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"last_id":42}`))
	})

	mux.HandleFunc("POST /api/messages/read", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bob", body["sender"])
		assert.Equal(t, true, body["is_readed"])
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/users", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"users":["alice","bob","carol"]}`))
	})

	mux.HandleFunc("GET /api/users/{username}/icon", func(w http.ResponseWriter, r *http.Request) {
		switch r.PathValue("username") {
		case "bob":
			_, _ = w.Write([]byte{0x89, 0x50, 0x4e, 0x47})
		case "carol":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"user not found"}`))
		}
	})

	mux.HandleFunc("PUT /api/users/{username}/icon", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{1, 2, 3}, b)
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(url string) *backend.Client {
	return backend.New(backend.Options{BaseURL: url, RPS: 100, Burst: 10, Logger: zerolog.Nop()})
}

func TestLoginAndHistory(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL)
	ctx := context.Background()

	_, err := c.GetOlderMessages(ctx, 12, 2, "alice", "bob")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	resp, err := c.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok-alice", resp.AccessToken)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "tok-alice", c.Token())

	msgs, err := c.GetOlderMessages(ctx, 12, 2, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(10), msgs[0].MessageID)
	assert.Equal(t, 2, msgs[0].ReactionNb)
	assert.Nil(t, msgs[0].ResponseID)
	require.NotNil(t, msgs[1].ResponseID)
	assert.Equal(t, int64(10), *msgs[1].ResponseID)
}

func TestLoginRejected(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL)

	_, err := c.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.Empty(t, c.Token())
}

func TestLastIDAndReadStatus(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL)
	ctx := context.Background()

	id, err := c.GetLastMessageID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	require.NoError(t, c.UpdateIsReadStatus(ctx, "bob", "alice", true))
}

func TestUserIcons(t *testing.T) {
	srv := newServer(t)
	c := newClient(srv.URL)
	ctx := context.Background()

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, users)

	icon, err := c.GetUserIcon(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 0x50, 0x4e, 0x47}, icon)

	icon, err = c.GetUserIcon(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, icon)

	_, err = c.GetUserIcon(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.SetUserIcon(ctx, "alice", []byte{1, 2, 3}))
}
