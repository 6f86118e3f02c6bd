package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appchat "campusxchange/internal/app/chat"
)

// ErrSendBufferFull is returned when a peer cannot keep up with fan-out.
var ErrSendBufferFull = errors.New("ws: send buffer full")

// client is one authenticated websocket connection. It implements
// chat.Conn: Send only enqueues, so broadcast never blocks on a slow peer;
// the write pump owns all writes to the underlying socket.
type client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan appchat.Event

	closeOnce sync.Once
	done      chan struct{}

	writeTimeout time.Duration
	pingInterval time.Duration
}

func (c *client) ID() string     { return c.id }
func (c *client) UserID() string { return c.userID }

func (c *client) Send(ev appchat.Event) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- ev:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump serializes all socket writes: queued events plus periodic
// pings. It exits when the connection closes or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
