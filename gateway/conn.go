package gateway

import (
	"encoding/json"
	"fmt"
	"game-relay/observability"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 5 * time.Second

	// Time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxFrameSize = 8 << 10
)

var (
	errConnClosed = fmt.Errorf("connection closed")
	errBufferFull = fmt.Errorf("send buffer full")
)

// outFrame is the envelope of every server-to-client message.
type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// inFrame is the envelope of every client-to-server message. Data is decoded
// once the event name is known.
type inFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// conn is the Transport of one websocket. Emit never blocks: frames go to a
// bounded buffer drained by writeLoop, and are dropped when it is full.
// Only writeLoop writes to the socket.
type conn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}

	closeOnce   sync.Once
	closeCode   int
	closeReason string

	log     *slog.Logger
	metrics *observability.Metrics
}

func newConn(ws *websocket.Conn, bufferSize int, log *slog.Logger, metrics *observability.Metrics) *conn {
	return &conn{
		ws:        ws,
		send:      make(chan []byte, bufferSize),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
		log:       log,
		metrics:   metrics,
	}
}

func (c *conn) Emit(event string, payload any) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	b, err := json.Marshal(outFrame{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("unable to encode %s frame: %w", event, err)
	}

	select {
	case c.send <- b:
		return nil
	default:
		c.metrics.FrameDropped()
		return errBufferFull
	}
}

// Close stops the writer, which drops whatever is still buffered, sends a
// normal close frame and tears the socket down. The read loop then fails and
// cleans up.
func (c *conn) Close() error {
	return c.closeWith(websocket.CloseNormalClosure, "")
}

func (c *conn) closeWith(code int, reason string) error {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
	return nil
}

func (c *conn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case b := <-c.send:
			select {
			case <-c.done:
				c.discard(1)
				c.writeClose()
				return
			default:
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Debug("Write failed", "error", err)
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("Ping failed", "error", err)
				_ = c.Close()
				return
			}
		case <-c.done:
			c.discard(0)
			c.writeClose()
			return
		}
	}
}

// discard drops every frame still buffered once the connection is closed.
// A closed session, evicted ones included, receives nothing but the close frame.
func (c *conn) discard(dropped int) {
	for {
		select {
		case <-c.send:
			dropped++
		default:
			if dropped > 0 {
				c.log.Debug("Buffered frames discarded on close", "frames", dropped)
			}
			for range dropped {
				c.metrics.FrameDropped()
			}
			return
		}
	}
}

func (c *conn) writeClose() {
	msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
