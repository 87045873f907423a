// Package presence tracks which peers are connected and which left, and hands
// out each transition exactly once.
package presence

import "sort"

// Status of a known user.
type Status int

const (
	StatusUnknown Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Entry is the state kept per username.
type Entry struct {
	Username string
	Status   Status
	Avatar   []byte
	Notified bool
}

// Tracker holds the connected and disconnected sets. It is not safe for
// concurrent use; callers guard it with the same lock that covers the
// message router.
type Tracker struct {
	connected    map[string]*Entry
	disconnected map[string]*Entry
	connCount    int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		connected:    make(map[string]*Entry),
		disconnected: make(map[string]*Entry),
	}
}

// Known reports whether user is in either set.
func (t *Tracker) Known(user string) bool {
	_, c := t.connected[user]
	_, d := t.disconnected[user]
	return c || d
}

// Status returns the current status of user.
func (t *Tracker) Status(user string) Status {
	if _, ok := t.connected[user]; ok {
		return StatusConnected
	}
	if _, ok := t.disconnected[user]; ok {
		return StatusDisconnected
	}
	return StatusUnknown
}

// OnHello records that user connected.
func (t *Tracker) OnHello(user string, avatar []byte) {
	t.connect(user, avatar)
}

// OnWelcome records a peer that answered our own hello.
func (t *Tracker) OnWelcome(user string, avatar []byte) {
	t.connect(user, avatar)
}

func (t *Tracker) connect(user string, avatar []byte) {
	prev, wasGone := t.disconnected[user]
	delete(t.disconnected, user)

	if e, ok := t.connected[user]; ok {
		if len(e.Avatar) == 0 && len(avatar) > 0 {
			e.Avatar = avatar
		}
		return
	}

	if len(avatar) == 0 && wasGone {
		avatar = prev.Avatar
	}
	t.connected[user] = &Entry{Username: user, Status: StatusConnected, Avatar: avatar}
}

// Seed registers a user known from the backend as disconnected. A user
// already tracked keeps its status and only gains the avatar when it had none.
func (t *Tracker) Seed(user string, avatar []byte) {
	if e, ok := t.connected[user]; ok {
		if len(e.Avatar) == 0 {
			e.Avatar = avatar
		}
		return
	}
	if e, ok := t.disconnected[user]; ok {
		if len(e.Avatar) == 0 {
			e.Avatar = avatar
		}
		return
	}
	t.disconnected[user] = &Entry{Username: user, Status: StatusDisconnected, Avatar: avatar}
}

// OnGoodBye moves user to the disconnected set, keeping the last avatar.
// A user never seen before still lands there.
func (t *Tracker) OnGoodBye(user string, avatar []byte) {
	if e, ok := t.connected[user]; ok {
		delete(t.connected, user)
		if len(e.Avatar) > 0 {
			avatar = e.Avatar
		}
	} else if e, ok := t.disconnected[user]; ok {
		if len(e.Avatar) == 0 {
			e.Avatar = avatar
		}
		return
	}
	t.disconnected[user] = &Entry{Username: user, Status: StatusDisconnected, Avatar: avatar}
}

// SetAvatar stores a picture for a known user and re-arms its notification
// so the consumer re-renders it.
func (t *Tracker) SetAvatar(user string, avatar []byte) bool {
	e, ok := t.connected[user]
	if !ok {
		e, ok = t.disconnected[user]
	}
	if !ok {
		return false
	}
	e.Avatar = avatar
	e.Notified = false
	return true
}

// OnConnCount stores the relay's connection count.
func (t *Tracker) OnConnCount(n int) {
	t.connCount = n
}

// ConnCount returns the last reported connection count.
func (t *Tracker) ConnCount() int {
	return t.connCount
}

// DrainConnected returns the connected entries not yet handed out, sorted by
// username, and marks them notified.
func (t *Tracker) DrainConnected() []Entry {
	return drain(t.connected)
}

// DrainDisconnected is DrainConnected for the disconnected set.
func (t *Tracker) DrainDisconnected() []Entry {
	return drain(t.disconnected)
}

func drain(set map[string]*Entry) []Entry {
	var out []Entry
	for _, e := range set {
		if e.Notified {
			continue
		}
		e.Notified = true
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Snapshot returns a copy of every entry, connected first, each group sorted
// by username.
func (t *Tracker) Snapshot() []Entry {
	out := make([]Entry, 0, len(t.connected)+len(t.disconnected))
	out = append(out, sorted(t.connected)...)
	out = append(out, sorted(t.disconnected)...)
	return out
}

func sorted(set map[string]*Entry) []Entry {
	out := make([]Entry, 0, len(set))
	for _, e := range set {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// Reset forgets everything. Used on logout.
func (t *Tracker) Reset() {
	t.connected = make(map[string]*Entry)
	t.disconnected = make(map[string]*Entry)
	t.connCount = 0
}
