package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/inbox"
	"github.com/clementraoulgithub/gui-tcp-server/internal/presence"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
	"github.com/clementraoulgithub/gui-tcp-server/internal/router"
)

type commandKind int

const (
	cmdSay commandKind = iota
	cmdTo
	cmdDM
	cmdReply
	cmdReact
	cmdOlder
	cmdRead
	cmdWho
	cmdThreads
	cmdIcon
	cmdAvatar
	cmdHelp
	cmdQuit
)

// command is one parsed input line.
type command struct {
	kind   commandKind
	target string
	text   string
	id     int64
	count  int
	op     protocol.ReactionOp
}

const helpText = `commands:
  <text>               send to the current thread
  /to <user|home>      switch the current thread
  /dm <user> <text>    send a direct message
  /reply <id> <text>   reply to a message of the current thread
  /react <id> <n>      set the reaction total of a message
  /unreact <id> <n>    same, as a removal
  /older               load older messages of the current thread
  /read                mark the current thread as read
  /who                 list known users
  /threads             list threads
  /icon <file>         upload your picture
  /avatar <user>       refetch a user's picture
  /quit`

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, fmt.Errorf("empty input")
	}
	if !strings.HasPrefix(line, "/") {
		return command{kind: cmdSay, text: line}, nil
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch name {
	case "/to":
		if rest == "" {
			return command{}, fmt.Errorf("usage: /to <user|home>")
		}
		return command{kind: cmdTo, target: rest}, nil
	case "/dm":
		user, text, ok := strings.Cut(rest, " ")
		if !ok || user == "" || strings.TrimSpace(text) == "" {
			return command{}, fmt.Errorf("usage: /dm <user> <text>")
		}
		return command{kind: cmdDM, target: user, text: strings.TrimSpace(text)}, nil
	case "/reply":
		idStr, text, ok := strings.Cut(rest, " ")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if !ok || err != nil || strings.TrimSpace(text) == "" {
			return command{}, fmt.Errorf("usage: /reply <id> <text>")
		}
		return command{kind: cmdReply, id: id, text: strings.TrimSpace(text)}, nil
	case "/react", "/unreact":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return command{}, fmt.Errorf("usage: %s <id> <n>", name)
		}
		id, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return command{}, fmt.Errorf("invalid message id %q", fields[0])
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			return command{}, fmt.Errorf("invalid count %q", fields[1])
		}
		op := protocol.ReactionAdd
		if name == "/unreact" {
			op = protocol.ReactionRemove
		}
		return command{kind: cmdReact, id: id, count: n, op: op}, nil
	case "/older":
		return command{kind: cmdOlder}, nil
	case "/read":
		return command{kind: cmdRead}, nil
	case "/who":
		return command{kind: cmdWho}, nil
	case "/threads":
		return command{kind: cmdThreads}, nil
	case "/icon":
		if rest == "" {
			return command{}, fmt.Errorf("usage: /icon <file>")
		}
		return command{kind: cmdIcon, target: rest}, nil
	case "/avatar":
		if rest == "" {
			return command{}, fmt.Errorf("usage: /avatar <user>")
		}
		return command{kind: cmdAvatar, target: rest}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("unknown command %s, try /help", name)
	}
}

// console renders inbox deliveries as text lines. Writes are serialized so
// the input loop and the inbox consumer can share it.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format+"\n", args...)
}

func (c *console) handlers(onClosed func()) inbox.Handlers {
	return inbox.Handlers{
		OnConnCount: func(n int) {
			c.printf("* %d connection(s)", n)
		},
		OnConnected: func(entries []presence.Entry) {
			for _, e := range entries {
				c.printf("* %s is online%s", e.Username, avatarNote(e))
			}
		},
		OnDisconnected: func(entries []presence.Entry) {
			for _, e := range entries {
				c.printf("* %s is offline", e.Username)
			}
		},
		OnMessages: func(msgs []router.StoredMessage) {
			for _, m := range msgs {
				c.printf("%s", formatMessage(m))
			}
		},
		OnReactions: func(updates []inbox.ReactionUpdate) {
			for _, u := range updates {
				c.printf("* [%s] #%d now has %d reaction(s)", u.Thread, u.MessageID, u.Count)
			}
		},
		OnClosed: onClosed,
	}
}

func avatarNote(e presence.Entry) string {
	if len(e.Avatar) == 0 {
		return ""
	}
	return fmt.Sprintf(" (picture, %d bytes)", len(e.Avatar))
}

func formatMessage(m router.StoredMessage) string {
	var b strings.Builder
	where := m.Receiver
	if m.Receiver != domain.HomeRoom {
		where = "dm"
	}
	if m.System {
		fmt.Fprintf(&b, "[%s] -- %s", where, m.Body)
		return b.String()
	}
	fmt.Fprintf(&b, "[%s] #%d %s: %s", where, m.ID, m.Sender, m.Body)
	if m.Response != nil {
		fmt.Fprintf(&b, "  (re #%d %s)", m.Response.ID, m.Response.Sender)
	} else if m.ResponseID != nil {
		fmt.Fprintf(&b, "  (re #%d)", *m.ResponseID)
	}
	if m.ReactionCount > 0 {
		fmt.Fprintf(&b, "  +%d", m.ReactionCount)
	}
	return b.String()
}
