package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
	"github.com/clementraoulgithub/gui-tcp-server/internal/service"
)

type wsAuthError struct {
	status int
	msg    string
}

func (e wsAuthError) Error() string {
	return e.msg
}

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

// makeCheckOrigin accepts requests without an Origin header, which is what
// native clients send, and browser origins from the allow list.
func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	_, wildcard := allowed["*"]

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" || wildcard {
			return true
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		_, ok := allowed[strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))]
		return ok
	}
}

func extractTokenFromWSRequest(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token := strings.TrimSpace(authHeader[len("Bearer "):])
		if token != "" {
			return token, nil
		}
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") && parts[1] != "" {
			return parts[1], nil
		}
	}

	return "", wsAuthError{status: http.StatusUnauthorized, msg: "missing bearer token"}
}

// Relay bundles what the websocket endpoint needs.
type Relay struct {
	Hub            *Hub
	Auth           *service.AuthService
	Users          *service.UserService
	Messages       *service.MessageService
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// MakeHandler returns the /ws endpoint. After a bearer token check the
// connection joins the hub; peers get a hello and the new connection count.
// Incoming frames are handled as follows:
//   - message: stored, then sent to the home room or to the receiver; users
//     that cannot see a direct message get a last-id bump instead
//   - add/remove reaction: stored, then sent to everyone
//   - welcome: forwarded to the other users
//
// On disconnect the others get a goodbye and the new connection count.
func MakeHandler(relay Relay) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(relay.AllowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin:  checkOrigin,
		Subprotocols: []string{"bearer"},
	}
	log := relay.Logger.With().Str("component", "ws").Logger()

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		tokenStr, err := extractTokenFromWSRequest(r)
		if err != nil {
			var authErr wsAuthError
			if errors.As(err, &authErr) {
				http.Error(w, authErr.msg, authErr.status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := relay.Auth.Authenticate(ctx, tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ulog := log.With().Str("user", user.Username).Logger()
		conn := NewConn(raw, ulog)
		defer conn.Close()

		s := &session{relay: relay, user: user.Username, conn: conn, log: ulog}
		s.join(ctx)
		defer s.leave()

		for {
			f, err := conn.ReadFrame(ctx)
			if err != nil {
				ulog.Debug().Err(err).Msg("read ended")
				return
			}
			s.handle(ctx, f)
		}
	}
}

type session struct {
	relay Relay
	user  string
	conn  *Conn
	id    uuid.UUID
	log   zerolog.Logger
}

func (s *session) join(ctx context.Context) {
	if err := s.relay.Users.SetOnlineStatus(ctx, s.user, true); err != nil {
		s.log.Warn().Err(err).Msg("set online")
	}
	s.id = s.relay.Hub.Register(s.user, s.conn)
	s.relay.Hub.Broadcast(protocol.EncodePresence(protocol.PresenceHello, s.user), s.user)
	s.relay.Hub.Broadcast(protocol.EncodeConnCount(s.relay.Hub.Count()))
	s.log.Info().Int("connections", s.relay.Hub.Count()).Msg("joined")
}

func (s *session) leave() {
	last := s.relay.Hub.Unregister(s.user, s.id)
	if last {
		if err := s.relay.Users.SetOnlineStatus(context.Background(), s.user, false); err != nil {
			s.log.Warn().Err(err).Msg("set offline")
		}
		s.relay.Hub.Broadcast(protocol.EncodePresence(protocol.PresenceGoodBye, s.user), s.user)
	}
	s.relay.Hub.Broadcast(protocol.EncodeConnCount(s.relay.Hub.Count()))
	s.log.Info().Msg("left")
}

func (s *session) handle(ctx context.Context, f protocol.Frame) {
	switch ev := protocol.DecodeFrame(f).(type) {
	case protocol.Message:
		s.relayMessage(ctx, ev)
	case protocol.Reaction:
		if err := s.relay.Messages.SetReactions(ctx, ev.MessageID, ev.Count); err != nil {
			s.log.Warn().Err(err).Int64("message_id", ev.MessageID).Msg("store reaction")
			return
		}
		s.relay.Hub.Broadcast(protocol.EncodeReaction(ev.Op, ev.MessageID, ev.Count))
	case protocol.Presence:
		if ev.Kind == protocol.PresenceWelcome && ev.UserID == s.user {
			s.relay.Hub.Broadcast(f, s.user)
		}
	case protocol.Unknown:
		s.log.Debug().Str("reason", ev.Reason).Msg("dropping frame")
	default:
		s.log.Debug().Str("event", protocol.EventName(ev)).Msg("ignoring client frame")
	}
}

func (s *session) relayMessage(ctx context.Context, ev protocol.Message) {
	if ev.Sender != s.user {
		s.log.Warn().Str("claimed", ev.Sender).Msg("sender mismatch, dropping")
		return
	}
	if ev.Body == "" {
		return
	}

	m, err := s.relay.Messages.Create(ctx, service.MessageCreateInput{
		Sender:     s.user,
		Receiver:   ev.Receiver,
		Content:    ev.Body,
		ResponseID: ev.ResponseID,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrInvalidInput) {
			s.log.Error().Err(err).Msg("store message")
		}
		return
	}

	out := protocol.EncodeMessage(m.Sender, m.Receiver, m.Content, m.ResponseID)
	if m.Receiver == domain.HomeRoom {
		s.relay.Hub.Broadcast(out, s.user)
		return
	}
	s.relay.Hub.Send(m.Receiver, out)
	s.relay.Hub.Broadcast(protocol.EncodeLastID(), s.user, m.Receiver)
}
