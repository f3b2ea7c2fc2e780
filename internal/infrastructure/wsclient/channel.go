// Package wsclient adapts an upgraded browser websocket to the session
// client channel.
package wsclient

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeTimeout   = 10 * time.Second
	maxMessageSize = 1 << 20
	messageBuffer  = 64
)

// Channel wraps a learner's websocket connection. A background read pump
// feeds Messages; the channel closes when the peer disconnects.
type Channel struct {
	conn      *websocket.Conn
	msgs      chan []byte
	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
	log       zerolog.Logger
}

// Wrap takes ownership of an upgraded connection and starts the read pump.
func Wrap(conn *websocket.Conn, log zerolog.Logger) *Channel {
	c := &Channel{
		conn: conn,
		msgs: make(chan []byte, messageBuffer),
		done: make(chan struct{}),
		log:  log.With().Str("component", "client-channel").Logger(),
	}
	conn.SetReadLimit(maxMessageSize)
	go c.readPump()
	return c
}

// Messages returns the inbound message stream.
func (c *Channel) Messages() <-chan []byte {
	return c.msgs
}

// Send writes a raw frame to the client.
func (c *Channel) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendJSON writes a JSON frame to the client.
func (c *Channel) SendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Close sends a close frame with the given reason and drops the connection.
// Idempotent.
func (c *Channel) Close(reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	return err
}

func (c *Channel) readPump() {
	defer close(c.msgs)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug().Err(err).Msg("client read ended")
			}
			return
		}

		select {
		case c.msgs <- data:
		case <-c.done:
			return
		}
	}
}
