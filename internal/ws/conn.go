package ws

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/clementraoulgithub/gui-tcp-server/internal/domain"
	"github.com/clementraoulgithub/gui-tcp-server/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	readBufferSize = 64
)

// Conn carries protocol frames over a websocket, one binary message per
// frame. A background pump reads ahead into a small buffer so ReadFrame can
// honour a context and Backlog can report what is already waiting.
type Conn struct {
	ws  *websocket.Conn
	log zerolog.Logger

	frames chan protocol.Frame
	done   chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once

	errMu   sync.Mutex
	readErr error
}

// NewConn wraps an established websocket and starts its read pump.
func NewConn(c *websocket.Conn, log zerolog.Logger) *Conn {
	conn := &Conn{
		ws:     c,
		log:    log,
		frames: make(chan protocol.Frame, readBufferSize),
		done:   make(chan struct{}),
	}
	go conn.pump()
	return conn
}

// Dial connects to the relay at url, authenticating with a bearer token.
func Dial(ctx context.Context, url, token string, log zerolog.Logger) (*Conn, error) {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(c, log.With().Str("component", "ws").Logger()), nil
}

func (c *Conn) pump() {
	defer close(c.frames)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			c.setErr(err)
			return
		}
		if mt != websocket.BinaryMessage {
			c.log.Debug().Int("type", mt).Msg("ignoring non-binary message")
			continue
		}
		f, err := protocol.UnmarshalFrame(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("ignoring malformed frame")
			continue
		}
		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

func (c *Conn) setErr(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = io.EOF
	}
	c.errMu.Lock()
	c.readErr = err
	c.errMu.Unlock()
}

// ReadFrame returns the next frame. Once the peer goes away it returns
// io.EOF, or the read error that ended the stream.
func (c *Conn) ReadFrame(ctx context.Context) (protocol.Frame, error) {
	select {
	case <-ctx.Done():
		return protocol.Frame{}, ctx.Err()
	case f, ok := <-c.frames:
		if ok {
			return f, nil
		}
		c.errMu.Lock()
		err := c.readErr
		c.errMu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return protocol.Frame{}, err
	}
}

// Backlog reports how many frames are buffered and ready.
func (c *Conn) Backlog() int {
	return len(c.frames)
}

// WriteFrame sends f. Safe for concurrent use.
func (c *Conn) WriteFrame(f protocol.Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return domain.ErrClosed
	default:
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.BinaryMessage, protocol.MarshalFrame(f))
}

// Close sends a close message and tears the connection down. Only the first
// call has an effect.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		close(c.done)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
