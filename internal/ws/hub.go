package ws

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
)

// Hub manages active relay connections keyed by username and fans frames
// out to them. A user may hold several connections.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[uuid.UUID]*Conn
	log   zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		conns: make(map[string]map[uuid.UUID]*Conn),
		log:   log.With().Str("component", "hub").Logger(),
	}
}

// Register adds a connection for username and returns its id.
func (h *Hub) Register(username string, conn *Conn) uuid.UUID {
	id := uuid.New()

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[username] == nil {
		h.conns[username] = make(map[uuid.UUID]*Conn)
	}
	h.conns[username][id] = conn
	return id
}

// Unregister removes one connection. It reports whether it was the user's
// last one.
func (h *Hub) Unregister(username string, id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.conns[username]
	if !ok {
		return false
	}
	delete(conns, id)
	if len(conns) == 0 {
		delete(h.conns, username)
		return true
	}
	return false
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, conns := range h.conns {
		n += len(conns)
	}
	return n
}

// Usernames returns the connected users, sorted.
func (h *Hub) Usernames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.conns))
	for name := range h.conns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Send writes f to every connection of username.
func (h *Hub) Send(username string, f protocol.Frame) {
	h.write(h.targets(func(name string) bool { return name == username }), f)
}

// Broadcast writes f to every connection except those of the excluded users.
func (h *Hub) Broadcast(f protocol.Frame, except ...string) {
	skip := make(map[string]struct{}, len(except))
	for _, name := range except {
		skip[name] = struct{}{}
	}
	h.write(h.targets(func(name string) bool {
		_, ok := skip[name]
		return !ok
	}), f)
}

func (h *Hub) targets(match func(string) bool) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*Conn
	for name, conns := range h.conns {
		if !match(name) {
			continue
		}
		for _, c := range conns {
			out = append(out, c)
		}
	}
	return out
}

// write runs outside the hub lock. A failed connection is closed; its
// handler unregisters it when the read side ends.
func (h *Hub) write(conns []*Conn, f protocol.Frame) {
	for _, c := range conns {
		if err := c.WriteFrame(f); err != nil {
			h.log.Debug().Err(err).Str("command", f.Command().String()).Msg("write failed, closing")
			_ = c.Close()
		}
	}
}
