// Package router assigns ids to incoming messages, files them into
// conversation threads and applies reactions.
package router

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
)

const timeLayout = "2006-01-02 15:04:05"

// StoredMessage is a message as kept in a thread.
type StoredMessage struct {
	ID            int64
	Sender        string
	Receiver      string
	Body          string
	ReactionCount int
	CreatedAt     string
	ResponseID    *int64
	Response      *StoredMessage
	IsRead        bool
	System        bool
}

// Thread is a snapshot of one conversation.
type Thread struct {
	Key      string
	Messages []StoredMessage
	Unread   int
}

type thread struct {
	key      string
	messages []*StoredMessage
	unread   int
}

func (t *thread) lastID() (int64, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if !t.messages[i].System {
			return t.messages[i].ID, true
		}
	}
	return 0, false
}

func (t *thread) firstID() (int64, bool) {
	for _, m := range t.messages {
		if !m.System {
			return m.ID, true
		}
	}
	return 0, false
}

// Router owns the message counter and every thread of the session. It is not
// safe for concurrent use; the session lock guards it together with the
// presence tracker.
type Router struct {
	user    string
	lastID  int64
	threads map[string]*thread
	byID    map[int64]*StoredMessage
	history domain.HistorySource
	log     zerolog.Logger
	now     func() time.Time
}

// New creates a router for the logged-in user. history may be nil when
// paging is not needed.
func New(user string, history domain.HistorySource, log zerolog.Logger) *Router {
	return &Router{
		user:    user,
		threads: make(map[string]*thread),
		byID:    make(map[int64]*StoredMessage),
		history: history,
		log:     log.With().Str("component", "router").Logger(),
		now:     time.Now,
	}
}

// User returns the username the router filters for.
func (r *Router) User() string { return r.user }

// LastID returns the current message counter.
func (r *Router) LastID() int64 { return r.lastID }

// SetLastID seeds the counter, typically from the backend at login.
func (r *Router) SetLastID(id int64) { r.lastID = id }

// BumpLastID advances the counter for a message the user will never see.
func (r *Router) BumpLastID() int64 {
	r.lastID++
	return r.lastID
}

// AssignID returns the id for ev. Server-issued ids are adopted and pull the
// counter forward; messages from the server sender are system messages and do
// not touch the counter; everything else takes the next counter value.
func (r *Router) AssignID(ev protocol.Message) (id int64, system bool) {
	switch {
	case ev.Sender == domain.ServerSender:
		return 0, true
	case ev.MessageID != nil:
		if *ev.MessageID > r.lastID {
			r.lastID = *ev.MessageID
		}
		return *ev.MessageID, false
	default:
		r.lastID++
		return r.lastID, false
	}
}

// ThreadKey returns the thread a message belongs to from the user's side.
func (r *Router) ThreadKey(sender, receiver string) string {
	if receiver == domain.HomeRoom {
		return domain.HomeRoom
	}
	if sender == r.user {
		return receiver
	}
	return sender
}

// Route files a live message. It reports false when the message is not shown
// to the user; the counter still advances for hidden messages. Messages with
// an empty body are ignored entirely. A direct message from a peer raises the
// unread count of its thread.
func (r *Router) Route(ev protocol.Message) (StoredMessage, bool) {
	if ev.Body == "" {
		return StoredMessage{}, false
	}

	id, system := r.AssignID(ev)
	if !domain.IsVisibleTo(ev.Sender, ev.Receiver, r.user) {
		r.log.Debug().Int64("id", id).Str("receiver", ev.Receiver).Msg("message not visible, counter advanced")
		return StoredMessage{}, false
	}

	m := &StoredMessage{
		ID:         id,
		Sender:     ev.Sender,
		Receiver:   ev.Receiver,
		Body:       ev.Body,
		CreatedAt:  r.now().Format(timeLayout),
		ResponseID: ev.ResponseID,
		System:     system,
	}
	key := r.ThreadKey(ev.Sender, ev.Receiver)
	t := r.thread(key)
	r.append(t, m)
	if key != domain.HomeRoom && m.Receiver == r.user && m.Sender != r.user {
		t.unread++
	}
	return snapshot(m), true
}

// AppendOwn stores a message the user just sent.
func (r *Router) AppendOwn(receiver, body string, responseID *int64) (StoredMessage, bool) {
	return r.Route(protocol.Message{
		Sender:     r.user,
		Receiver:   receiver,
		Body:       body,
		ResponseID: responseID,
	})
}

func (r *Router) append(t *thread, m *StoredMessage) {
	if m.ResponseID != nil {
		m.Response = r.resolve(t, *m.ResponseID)
	}
	if !m.System {
		if last, ok := t.lastID(); ok && m.ID <= last {
			r.log.Warn().Str("thread", t.key).Int64("id", m.ID).Int64("last", last).Msg("message id does not increase")
		}
		r.byID[m.ID] = m
	}
	t.messages = append(t.messages, m)
}

// ResolveResponse finds the message id replies to inside the thread. A
// missing target is not an error.
func (r *Router) ResolveResponse(threadKey string, id int64) *StoredMessage {
	t, ok := r.threads[threadKey]
	if !ok {
		return nil
	}
	if m := r.resolve(t, id); m != nil {
		s := snapshot(m)
		return &s
	}
	return nil
}

func (r *Router) resolve(t *thread, id int64) *StoredMessage {
	for i := len(t.messages) - 1; i >= 0; i-- {
		m := t.messages[i]
		if !m.System && m.ID == id {
			return m
		}
	}
	return nil
}

// ApplyReaction sets the absolute reaction total of a message. The op only
// matters to the consumer. It reports false for an unknown message.
func (r *Router) ApplyReaction(id int64, count int, op protocol.ReactionOp) (StoredMessage, bool) {
	m, ok := r.byID[id]
	if !ok {
		r.log.Debug().Int64("id", id).Str("op", op.String()).Msg("reaction for unknown message")
		return StoredMessage{}, false
	}
	m.ReactionCount = count
	return snapshot(m), true
}

// LoadOlderMessages fetches a history page and applies it.
func (r *Router) LoadOlderMessages(ctx context.Context, start int64, count int, peerA, peerB string) ([]StoredMessage, error) {
	if r.history == nil {
		return nil, fmt.Errorf("load older messages: %w", domain.ErrNotConnected)
	}
	page, err := r.history.GetOlderMessages(ctx, start, count, peerA, peerB)
	if err != nil {
		return nil, fmt.Errorf("load older messages: %w", err)
	}
	return r.ApplyHistory(page), nil
}

// ApplyHistory files a page returned by the backend. Messages the user may
// not see are dropped but still advance the counter. Unread direct messages
// addressed to the user raise the unread count of their thread. Messages keep
// the order of the page. A page whose ids are all older than a thread's first
// message is put in front of it.
func (r *Router) ApplyHistory(page []domain.HistoryMessage) []StoredMessage {
	grouped := make(map[string][]*StoredMessage)
	var order []string
	var out []StoredMessage

	for _, h := range page {
		id := h.MessageID
		if h.Sender == domain.ServerSender {
			id = 0
		} else if id > r.lastID {
			r.lastID = id
		}

		body := protocol.UnescapeBody(h.Message)
		if body == "" || !domain.IsVisibleTo(h.Sender, h.Receiver, r.user) {
			continue
		}
		if existing, ok := r.byID[id]; ok && id != 0 {
			existing.ReactionCount = h.ReactionNb
			continue
		}

		m := &StoredMessage{
			ID:            id,
			Sender:        h.Sender,
			Receiver:      h.Receiver,
			Body:          body,
			ReactionCount: h.ReactionNb,
			CreatedAt:     h.CreatedAt,
			ResponseID:    h.ResponseID,
			IsRead:        h.IsReaded,
			System:        h.Sender == domain.ServerSender,
		}
		key := r.ThreadKey(h.Sender, h.Receiver)
		if _, seen := grouped[key]; !seen {
			order = append(order, key)
		}
		grouped[key] = append(grouped[key], m)
	}

	for _, key := range order {
		t := r.thread(key)
		batch := grouped[key]
		first, hasFirst := t.firstID()
		prepend := hasFirst && newestID(batch) < first

		if prepend {
			merged := make([]*StoredMessage, 0, len(batch)+len(t.messages))
			merged = append(merged, batch...)
			t.messages = append(merged, t.messages...)
			for _, m := range batch {
				if m.ResponseID != nil {
					m.Response = r.resolve(t, *m.ResponseID)
				}
				if !m.System {
					r.byID[m.ID] = m
				}
			}
		} else {
			for _, m := range batch {
				r.append(t, m)
			}
		}

		for _, m := range batch {
			if !m.IsRead && m.Receiver == r.user && key != domain.HomeRoom {
				t.unread++
			}
			out = append(out, snapshot(m))
		}
	}
	return out
}

// MarkRead clears the unread count of a thread and flags its incoming
// messages as read.
func (r *Router) MarkRead(key string) {
	t, ok := r.threads[key]
	if !ok {
		return
	}
	t.unread = 0
	for _, m := range t.messages {
		if m.Receiver == r.user {
			m.IsRead = true
		}
	}
}

// Thread returns a snapshot of the thread with the given key.
func (r *Router) Thread(key string) (Thread, bool) {
	t, ok := r.threads[key]
	if !ok {
		return Thread{}, false
	}
	return t.snapshot(), true
}

// Threads returns a snapshot of every thread, the home room first.
func (r *Router) Threads() []Thread {
	keys := make([]string, 0, len(r.threads))
	for k := range r.threads {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == domain.HomeRoom || keys[j] == domain.HomeRoom {
			return keys[i] == domain.HomeRoom
		}
		return keys[i] < keys[j]
	})

	out := make([]Thread, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.threads[k].snapshot())
	}
	return out
}

// Reset drops every thread and zeroes the counter.
func (r *Router) Reset() {
	r.lastID = 0
	r.threads = make(map[string]*thread)
	r.byID = make(map[int64]*StoredMessage)
}

func newestID(batch []*StoredMessage) int64 {
	var n int64
	for _, m := range batch {
		if !m.System && m.ID > n {
			n = m.ID
		}
	}
	return n
}

func (r *Router) thread(key string) *thread {
	t, ok := r.threads[key]
	if !ok {
		t = &thread{key: key}
		r.threads[key] = t
	}
	return t
}

func (t *thread) snapshot() Thread {
	msgs := make([]StoredMessage, 0, len(t.messages))
	for _, m := range t.messages {
		msgs = append(msgs, snapshot(m))
	}
	return Thread{Key: t.key, Messages: msgs, Unread: t.unread}
}

func snapshot(m *StoredMessage) StoredMessage {
	s := *m
	if m.Response != nil {
		resp := *m.Response
		resp.Response = nil
		s.Response = &resp
	}
	return s
}
