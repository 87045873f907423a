// Package client ties the receiver, the shared state and the backend together
// for one logged-in user.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/inbox"
	"github.com/clementraoulgithub/gui-tcp-server/internal/presence"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
	"github.com/clementraoulgithub/gui-tcp-server/internal/receiver"
	"github.com/clementraoulgithub/gui-tcp-server/internal/router"
)

// Backend is the part of the relay's REST API a session uses.
type Backend interface {
	domain.HistorySource
	domain.AvatarFetcher
	GetLastMessageID(ctx context.Context) (int64, error)
	ListUsers(ctx context.Context) ([]string, error)
	UpdateIsReadStatus(ctx context.Context, sender, receiver string, isRead bool) error
}

// Transport carries frames both ways.
type Transport interface {
	receiver.FrameReader
	receiver.FrameWriter
}

// Options configures a Session.
type Options struct {
	User         string
	Transport    Transport
	Backend      Backend
	IdleDelay    time.Duration
	ReplyWelcome bool
	MaxPending   int
	Logger       zerolog.Logger
}

// Session is one user's view of the relay. State reads and writes go through
// the same lock the receiver holds while applying frames. Inbox puts happen
// under that lock too, so batches from different producers reach the
// consumer in the order the state changed.
type Session struct {
	user      string
	transport Transport
	backend   Backend
	log       zerolog.Logger

	mu      sync.Mutex
	tracker *presence.Tracker
	router  *router.Router
	inbox   *inbox.Inbox
	loop    *receiver.Loop

	startOnce sync.Once
	done      chan struct{}
}

// New builds a session. Nothing is read until Start.
func New(opts Options) *Session {
	s := &Session{
		user:      opts.User,
		transport: opts.Transport,
		backend:   opts.Backend,
		log:       opts.Logger.With().Str("component", "session").Str("user", opts.User).Logger(),
		tracker:   presence.NewTracker(),
		inbox:     inbox.New(opts.MaxPending),
		done:      make(chan struct{}),
	}

	var history domain.HistorySource
	deps := receiver.Deps{
		User:      opts.User,
		Transport: opts.Transport,
		Lock:      &s.mu,
		Tracker:   s.tracker,
		Inbox:     s.inbox,
		Logger:    opts.Logger,
	}
	if opts.Backend != nil {
		history = opts.Backend
		deps.Avatars = opts.Backend
	}
	s.router = router.New(opts.User, history, opts.Logger)
	deps.Router = s.router

	s.loop = receiver.New(deps, receiver.Config{
		IdleDelay:    opts.IdleDelay,
		ReplyWelcome: opts.ReplyWelcome,
	})
	return s
}

// User returns the logged-in username.
func (s *Session) User() string { return s.user }

// Inbox returns the stream the UI consumes.
func (s *Session) Inbox() *inbox.Inbox { return s.inbox }

// Done is closed once the receiver has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Cause reports why the receiver stopped, nil after a clean stop.
func (s *Session) Cause() error { return s.loop.Cause() }

// Start seeds the message counter and the list of registered users from the
// backend, then launches the receiver. A session starts at most once.
func (s *Session) Start(ctx context.Context) error {
	var err error
	started := false
	s.startOnce.Do(func() {
		started = true
		if s.backend != nil {
			var last int64
			last, err = s.backend.GetLastMessageID(ctx)
			if err != nil {
				err = fmt.Errorf("seed message counter: %w", err)
				close(s.done)
				return
			}
			s.mu.Lock()
			s.router.SetLastID(last)
			s.mu.Unlock()
			s.log.Debug().Int64("last_id", last).Msg("message counter seeded")

			s.seedUsers(ctx)
		}

		go func() {
			defer close(s.done)
			_ = s.loop.Run(ctx)
		}()
	})
	if !started {
		return fmt.Errorf("session already started")
	}
	return err
}

// Send writes a message to receiver, the home room or a username, and files
// it in the local thread.
func (s *Session) Send(receiverName, body string, replyTo *int64) (router.StoredMessage, error) {
	receiverName = strings.TrimSpace(receiverName)
	if receiverName == "" || body == "" {
		return router.StoredMessage{}, fmt.Errorf("send: %w", domain.ErrInvalidInput)
	}
	if err := s.transport.WriteFrame(protocol.EncodeMessage(s.user, receiverName, body, replyTo)); err != nil {
		return router.StoredMessage{}, fmt.Errorf("send: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.router.AppendOwn(receiverName, body, replyTo)
	if ok {
		s.inbox.PutMessages(m)
	}
	return m, nil
}

// React sends the new reaction total of a message. The local copy changes when
// the relay echoes it back.
func (s *Session) React(messageID int64, count int, op protocol.ReactionOp) error {
	if count < 0 {
		return fmt.Errorf("react: %w", domain.ErrInvalidInput)
	}
	if err := s.transport.WriteFrame(protocol.EncodeReaction(op, messageID, count)); err != nil {
		return fmt.Errorf("react: %w", err)
	}
	return nil
}

// LoadOlder fetches a history page of the home room and the conversation with
// peer, files it and publishes the new messages. start is exclusive; zero asks
// for the newest page.
func (s *Session) LoadOlder(ctx context.Context, start int64, count int, peer string) ([]router.StoredMessage, error) {
	if s.backend == nil {
		return nil, fmt.Errorf("load older: %w", domain.ErrNotConnected)
	}
	if peer == "" {
		peer = domain.HomeRoom
	}
	page, err := s.backend.GetOlderMessages(ctx, start, count, s.user, peer)
	if err != nil {
		return nil, fmt.Errorf("load older: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.router.ApplyHistory(page)
	s.inbox.PutMessages(msgs...)
	return msgs, nil
}

// OldestID returns the id of the first message of a thread, zero when the
// thread is empty. It is the start of the next LoadOlder call.
func (s *Session) OldestID(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.router.Thread(key)
	if !ok {
		return 0
	}
	for _, m := range t.Messages {
		if !m.System {
			return m.ID
		}
	}
	return 0
}

// MarkRead flags the messages peer sent to the user as read on the backend
// and locally.
func (s *Session) MarkRead(ctx context.Context, peer string) error {
	if s.backend != nil {
		if err := s.backend.UpdateIsReadStatus(ctx, peer, s.user, true); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
	}
	s.mu.Lock()
	s.router.MarkRead(peer)
	s.mu.Unlock()
	return nil
}

// RefreshAvatar fetches the picture of a known user again and republishes it.
func (s *Session) RefreshAvatar(ctx context.Context, user string) error {
	if s.backend == nil {
		return fmt.Errorf("refresh avatar: %w", domain.ErrNotConnected)
	}
	avatar, err := s.backend.GetUserIcon(ctx, user)
	if err != nil {
		return fmt.Errorf("refresh avatar: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.tracker.SetAvatar(user, avatar) {
		return fmt.Errorf("refresh avatar of %q: %w", user, domain.ErrNotFound)
	}
	s.publishPresence()
	return nil
}

// seedUsers registers every other user as disconnected until the relay says
// otherwise. Failures only cost the initial list.
func (s *Session) seedUsers(ctx context.Context) {
	users, err := s.backend.ListUsers(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("list users")
		return
	}

	avatars := make(map[string][]byte, len(users))
	for _, u := range users {
		if u == s.user {
			continue
		}
		avatar, err := s.backend.GetUserIcon(ctx, u)
		if err != nil {
			s.log.Warn().Err(err).Str("peer", u).Msg("avatar fetch failed")
		}
		avatars[u] = avatar
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		if u == s.user {
			continue
		}
		s.tracker.Seed(u, avatars[u])
	}
	s.publishPresence()
	s.log.Debug().Int("users", len(avatars)).Msg("users seeded")
}

// publishPresence hands pending presence transitions to the inbox. Callers
// hold s.mu.
func (s *Session) publishPresence() {
	s.inbox.PutConnected(s.tracker.DrainConnected())
	s.inbox.PutDisconnected(s.tracker.DrainDisconnected())
}

// Logout stops the receiver, waits for it when it was started, and clears the
// presence and thread state.
func (s *Session) Logout() {
	s.loop.Stop()
	s.startOnce.Do(func() { close(s.done) })
	<-s.done

	s.mu.Lock()
	s.tracker.Reset()
	s.router.Reset()
	s.mu.Unlock()
	s.inbox.Close()
	s.log.Info().Msg("logged out")
}

// Presence returns every known user, connected first.
func (s *Session) Presence() []presence.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.Snapshot()
}

// ConnCount returns the relay's last reported connection count.
func (s *Session) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracker.ConnCount()
}

// LastID returns the message counter.
func (s *Session) LastID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router.LastID()
}

// Thread returns a snapshot of one thread.
func (s *Session) Thread(key string) (router.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router.Thread(key)
}

// Threads returns a snapshot of every thread, the home room first.
func (s *Session) Threads() []router.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router.Threads()
}
