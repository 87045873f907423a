// Package receiver runs the background loop that reads frames from the
// transport, applies them to the session state and wakes the consumer.
package receiver

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/inbox"
	"github.com/clementraoulgithub/gui-tcp-server/internal/presence"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
	"github.com/clementraoulgithub/gui-tcp-server/internal/router"
)

// DefaultIdleDelay is the pause between two reads when nothing is buffered.
const DefaultIdleDelay = 10 * time.Millisecond

// State of the loop.
type State int32

const (
	StateIdle State = iota
	StatePolling
	StateDecoding
	StateUpdating
	StateSignaling
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateDecoding:
		return "decoding"
	case StateUpdating:
		return "updating"
	case StateSignaling:
		return "signaling"
	case StateStopped:
		return "stopped"
	default:
		return "invalid"
	}
}

// FrameReader is the transport side the loop reads from. A read that returns
// an error or an empty payload ends the loop.
type FrameReader interface {
	ReadFrame(ctx context.Context) (protocol.Frame, error)
}

// FrameWriter is implemented by transports that can also send.
type FrameWriter interface {
	WriteFrame(f protocol.Frame) error
}

// backlogger is implemented by transports that know how many frames are
// already buffered.
type backlogger interface {
	Backlog() int
}

// Config tunes the loop.
type Config struct {
	IdleDelay    time.Duration
	ReplyWelcome bool
}

// Deps are the collaborators shared with the session. Lock guards Tracker
// and Router, and is held while their changes are put into Inbox.
type Deps struct {
	User      string
	Transport FrameReader
	Lock      *sync.Mutex
	Tracker   *presence.Tracker
	Router    *router.Router
	Inbox     *inbox.Inbox
	Avatars   domain.AvatarFetcher
	Logger    zerolog.Logger
}

// Loop is a single-use receiver. Run must be called at most once.
type Loop struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger

	state     atomic.Int32
	stopFlag  atomic.Bool
	mu        sync.Mutex
	cancel    context.CancelFunc
	closeOnce sync.Once
	stopOnce  sync.Once
	cause     error
}

// New builds a loop. A zero IdleDelay uses DefaultIdleDelay.
func New(deps Deps, cfg Config) *Loop {
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = DefaultIdleDelay
	}
	if deps.Lock == nil {
		deps.Lock = &sync.Mutex{}
	}
	return &Loop{
		deps: deps,
		cfg:  cfg,
		log:  deps.Logger.With().Str("component", "receiver").Str("user", deps.User).Logger(),
	}
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// Cause returns why the loop stopped, nil while it runs or after a clean stop.
func (l *Loop) Cause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cause
}

// Stop asks the loop to end and unblocks a pending read by closing the
// transport when it is an io.Closer. Safe to call more than once and from
// any goroutine.
func (l *Loop) Stop() {
	l.stopFlag.Store(true)

	l.mu.Lock()
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	l.closeTransport()
}

// Run reads frames until the transport ends, Stop is called or ctx is done.
// It always returns nil; Cause tells an abnormal end apart.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()

	l.state.Store(int32(StateIdle))
	for {
		if l.stopFlag.Load() || ctx.Err() != nil {
			l.finish(nil, "stop requested")
			return nil
		}

		l.state.Store(int32(StatePolling))
		f, err := l.deps.Transport.ReadFrame(ctx)
		if err != nil {
			if l.stopFlag.Load() || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				l.finish(nil, "transport closed")
			} else {
				l.finish(err, "transport failed")
			}
			return nil
		}
		if f.Payload == "" {
			l.finish(nil, "empty frame")
			return nil
		}

		l.handle(ctx, f)
		l.idle(ctx)
	}
}

func (l *Loop) handle(ctx context.Context, f protocol.Frame) {
	l.state.Store(int32(StateDecoding))
	ev := protocol.DecodeFrame(f)
	if u, ok := ev.(protocol.Unknown); ok {
		l.log.Debug().Str("command", protocol.Command(u.Header).String()).Str("reason", u.Reason).Msg("dropping frame")
		return
	}

	var avatar []byte
	if p, ok := ev.(protocol.Presence); ok {
		avatar = l.avatarFor(ctx, p.UserID)
	}

	l.deps.Lock.Lock()
	l.state.Store(int32(StateUpdating))
	out := l.apply(ev, avatar)
	l.state.Store(int32(StateSignaling))
	l.publish(out)
	l.deps.Lock.Unlock()

	if p, ok := ev.(protocol.Presence); ok && p.Kind == protocol.PresenceHello {
		l.replyWelcome(p.UserID)
	}
}

// update is what one event produced. It is collected and published under the
// state lock, so the inbox never sees a half-applied event.
type update struct {
	connCount    *int
	connected    []presence.Entry
	disconnected []presence.Entry
	messages     []router.StoredMessage
	reactions    []inbox.ReactionUpdate
}

// apply runs with the state lock held.
func (l *Loop) apply(ev protocol.Event, avatar []byte) update {
	var out update
	switch e := ev.(type) {
	case protocol.Message:
		if m, ok := l.deps.Router.Route(e); ok {
			out.messages = append(out.messages, m)
		}
	case protocol.Reaction:
		if m, ok := l.deps.Router.ApplyReaction(e.MessageID, e.Count, e.Op); ok {
			out.reactions = append(out.reactions, inbox.ReactionUpdate{
				MessageID: e.MessageID,
				Thread:    l.deps.Router.ThreadKey(m.Sender, m.Receiver),
				Count:     m.ReactionCount,
				Op:        e.Op,
			})
		}
	case protocol.Presence:
		switch e.Kind {
		case protocol.PresenceHello:
			l.deps.Tracker.OnHello(e.UserID, avatar)
		case protocol.PresenceWelcome:
			l.deps.Tracker.OnWelcome(e.UserID, avatar)
		case protocol.PresenceGoodBye:
			l.deps.Tracker.OnGoodBye(e.UserID, avatar)
		}
	case protocol.ConnCount:
		l.deps.Tracker.OnConnCount(e.Count)
		n := e.Count
		out.connCount = &n
	case protocol.LastID:
		l.deps.Router.BumpLastID()
	}

	out.connected = l.deps.Tracker.DrainConnected()
	out.disconnected = l.deps.Tracker.DrainDisconnected()
	return out
}

func (l *Loop) publish(out update) {
	in := l.deps.Inbox
	if out.connCount != nil {
		in.PutConnCount(*out.connCount)
	}
	in.PutConnected(out.connected)
	in.PutDisconnected(out.disconnected)
	in.PutMessages(out.messages...)
	in.PutReactions(out.reactions...)
}

// avatarFor fetches the picture of a user the tracker has not seen yet. It
// runs outside the state lock; a failure yields an empty avatar.
func (l *Loop) avatarFor(ctx context.Context, user string) []byte {
	if l.deps.Avatars == nil {
		return nil
	}
	l.deps.Lock.Lock()
	known := l.deps.Tracker.Known(user)
	l.deps.Lock.Unlock()
	if known {
		return nil
	}

	avatar, err := l.deps.Avatars.GetUserIcon(ctx, user)
	if err != nil {
		l.log.Warn().Err(err).Str("peer", user).Msg("avatar fetch failed")
		return nil
	}
	return avatar
}

func (l *Loop) replyWelcome(peer string) {
	if !l.cfg.ReplyWelcome || peer == l.deps.User {
		return
	}
	w, ok := l.deps.Transport.(FrameWriter)
	if !ok {
		return
	}
	if err := w.WriteFrame(protocol.EncodePresence(protocol.PresenceWelcome, l.deps.User)); err != nil {
		l.log.Warn().Err(err).Str("peer", peer).Msg("welcome reply failed")
	}
}

func (l *Loop) idle(ctx context.Context) {
	if b, ok := l.deps.Transport.(backlogger); ok && b.Backlog() > 0 {
		return
	}
	t := time.NewTimer(l.cfg.IdleDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (l *Loop) finish(cause error, reason string) {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.cause = cause
		l.mu.Unlock()

		l.state.Store(int32(StateStopped))
		ev := l.log.Info()
		if cause != nil {
			ev = l.log.Warn().Err(cause)
		}
		ev.Str("reason", reason).Msg("receiver stopped")
		l.closeTransport()
		l.deps.Inbox.Close()
	})
}

func (l *Loop) closeTransport() {
	c, ok := l.deps.Transport.(io.Closer)
	if !ok {
		return
	}
	l.closeOnce.Do(func() {
		if err := c.Close(); err != nil {
			l.log.Debug().Err(err).Msg("transport close")
		}
	})
}
