// Package provider maintains the websocket connection to the realtime
// speech provider.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tutor-server/services/voice-api/internal/domain/session"
)

const (
	writeTimeout = 10 * time.Second
	pingTimeout  = 5 * time.Second
	eventBuffer  = 64
)

// DialConfig holds the provider connection settings.
type DialConfig struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client is one session's provider channel. A background read pump parses
// incoming frames onto Events; the channel closes when the provider
// disconnects.
type Client struct {
	conn      *websocket.Conn
	events    chan session.ProviderEvent
	done      chan struct{}
	writeMu   sync.Mutex
	closeOnce sync.Once
	log       zerolog.Logger
}

// Dial opens the provider websocket and starts the read pump.
func Dial(ctx context.Context, cfg DialConfig, log zerolog.Logger) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse provider url: %w", err)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: cfg.Timeout}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("dial provider: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial provider: %w", err)
	}

	c := &Client{
		conn:   conn,
		events: make(chan session.ProviderEvent, eventBuffer),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "provider-channel").Logger(),
	}
	go c.readPump()
	return c, nil
}

// Events returns the parsed provider event stream.
func (c *Client) Events() <-chan session.ProviderEvent {
	return c.events
}

// Send writes a raw frame to the provider.
func (c *Client) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// SendJSON writes a JSON frame to the provider.
func (c *Client) SendJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// Ping sends a websocket-level liveness probe.
func (c *Client) Ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingTimeout))
}

// Close shuts the connection down. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readPump() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Debug().Err(err).Msg("provider read ended")
			}
			return
		}

		ev, err := session.ParseProviderEvent(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("malformed provider frame dropped")
			continue
		}

		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}
