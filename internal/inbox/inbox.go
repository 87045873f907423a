// Package inbox moves state changes from the receiver goroutine to the UI
// consumer through single-slot coalescing streams that share one wake token.
package inbox

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/clementraoulgithub/gui-tcp-server/internal/presence"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
	"github.com/clementraoulgithub/gui-tcp-server/internal/router"
)

// DefaultMaxPendingMessages bounds the message stream when no limit is given.
const DefaultMaxPendingMessages = 256

// ReactionUpdate is the reaction total of one message.
type ReactionUpdate struct {
	MessageID int64
	Thread    string
	Count     int
	Op        protocol.ReactionOp
}

// Handlers are invoked on the goroutine running Inbox.Run. Nil handlers are
// skipped.
type Handlers struct {
	OnConnCount    func(n int)
	OnConnected    func(entries []presence.Entry)
	OnDisconnected func(entries []presence.Entry)
	OnMessages     func(msgs []router.StoredMessage)
	OnReactions    func(updates []ReactionUpdate)
	OnClosed       func()
}

// Inbox groups the streams of one session.
type Inbox struct {
	wake   chan struct{}
	closed chan struct{}
	once   sync.Once

	maxPending int
	dropped    atomic.Int64

	connCount    *Slot[int]
	connected    *Slot[[]presence.Entry]
	disconnected *Slot[[]presence.Entry]
	messages     *Slot[[]router.StoredMessage]
	reactions    *Slot[[]ReactionUpdate]
}

// New creates an inbox. maxPending bounds the undelivered messages; the
// oldest are dropped beyond it.
func New(maxPending int) *Inbox {
	if maxPending <= 0 {
		maxPending = DefaultMaxPendingMessages
	}
	in := &Inbox{
		wake:       make(chan struct{}, 1),
		closed:     make(chan struct{}),
		maxPending: maxPending,
	}
	in.connCount = NewSlot[int](nil, in.wake)
	in.connected = NewSlot[[]presence.Entry](mergeEntries, in.wake)
	in.disconnected = NewSlot[[]presence.Entry](mergeEntries, in.wake)
	in.messages = NewSlot[[]router.StoredMessage](in.mergeMessages, in.wake)
	in.reactions = NewSlot[[]ReactionUpdate](mergeReactions, in.wake)
	return in
}

// PutConnCount publishes the latest connection count.
func (in *Inbox) PutConnCount(n int) {
	in.connCount.Put(n)
}

// PutConnected publishes users that just connected. A pending disconnect of
// the same user is withdrawn.
func (in *Inbox) PutConnected(entries []presence.Entry) {
	if len(entries) == 0 {
		return
	}
	in.disconnected.Modify(without(entries))
	in.connected.Put(entries)
}

// PutDisconnected publishes users that just left. A pending connect of the
// same user is withdrawn.
func (in *Inbox) PutDisconnected(entries []presence.Entry) {
	if len(entries) == 0 {
		return
	}
	in.connected.Modify(without(entries))
	in.disconnected.Put(entries)
}

// PutMessages publishes new messages in arrival order.
func (in *Inbox) PutMessages(msgs ...router.StoredMessage) {
	if len(msgs) == 0 {
		return
	}
	in.messages.Put(in.trim(append([]router.StoredMessage(nil), msgs...)))
}

// PutReactions publishes reaction totals.
func (in *Inbox) PutReactions(updates ...ReactionUpdate) {
	if len(updates) == 0 {
		return
	}
	in.reactions.Put(mergeReactions(nil, updates))
}

// Dropped returns how many messages were discarded because the consumer fell
// behind.
func (in *Inbox) Dropped() int64 {
	return in.dropped.Load()
}

// Close wakes the consumer for the last time. Only the first call has an
// effect.
func (in *Inbox) Close() {
	in.once.Do(func() { close(in.closed) })
}

// Closed is closed once Close has been called.
func (in *Inbox) Closed() <-chan struct{} {
	return in.closed
}

// Run delivers pending values to h until the inbox is closed or ctx ends.
// After Close it flushes what is left and calls OnClosed exactly once.
func (in *Inbox) Run(ctx context.Context, h Handlers) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-in.wake:
			in.Flush(h)
		case <-in.closed:
			in.Flush(h)
			if h.OnClosed != nil {
				h.OnClosed()
			}
			return nil
		}
	}
}

// Flush takes every slot once and hands non-empty values to h.
func (in *Inbox) Flush(h Handlers) {
	if n, ok := in.connCount.Take(); ok && h.OnConnCount != nil {
		h.OnConnCount(n)
	}
	if v, ok := in.connected.Take(); ok && len(v) > 0 && h.OnConnected != nil {
		h.OnConnected(v)
	}
	if v, ok := in.disconnected.Take(); ok && len(v) > 0 && h.OnDisconnected != nil {
		h.OnDisconnected(v)
	}
	if v, ok := in.messages.Take(); ok && len(v) > 0 && h.OnMessages != nil {
		h.OnMessages(v)
	}
	if v, ok := in.reactions.Take(); ok && len(v) > 0 && h.OnReactions != nil {
		h.OnReactions(v)
	}
}

func (in *Inbox) mergeMessages(pending, next []router.StoredMessage) []router.StoredMessage {
	return in.trim(append(pending, next...))
}

func (in *Inbox) trim(msgs []router.StoredMessage) []router.StoredMessage {
	if over := len(msgs) - in.maxPending; over > 0 {
		in.dropped.Add(int64(over))
		msgs = msgs[over:]
	}
	return msgs
}

func mergeEntries(pending, next []presence.Entry) []presence.Entry {
	byName := make(map[string]presence.Entry, len(pending)+len(next))
	for _, e := range pending {
		byName[e.Username] = e
	}
	for _, e := range next {
		byName[e.Username] = e
	}
	out := make([]presence.Entry, 0, len(byName))
	for _, e := range byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

func mergeReactions(pending, next []ReactionUpdate) []ReactionUpdate {
	out := make([]ReactionUpdate, 0, len(pending)+len(next))
	index := make(map[int64]int, len(pending)+len(next))
	for _, u := range append(append([]ReactionUpdate(nil), pending...), next...) {
		if i, ok := index[u.MessageID]; ok {
			out[i] = u
			continue
		}
		index[u.MessageID] = len(out)
		out = append(out, u)
	}
	return out
}

func without(entries []presence.Entry) func([]presence.Entry) []presence.Entry {
	drop := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		drop[e.Username] = struct{}{}
	}
	return func(pending []presence.Entry) []presence.Entry {
		out := pending[:0]
		for _, e := range pending {
			if _, ok := drop[e.Username]; !ok {
				out = append(out, e)
			}
		}
		return out
	}
}
