// ABOUTME: Duplex channel abstraction with a WebSocket implementation
// ABOUTME: Handles dial, setup handshake, event routing, and audio upload
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const setupAckTimeout = 5 * time.Second

// Channel is one live duplex connection: outbound audio chunks up,
// server events down. Events are delivered strictly in arrival order;
// the events channel closes on any terminal condition, after which Err
// reports the fatal cause (nil on a clean close).
type Channel interface {
	Events() <-chan ServerEvent
	SendAudio(chunk []byte) error
	Err() error
	Close() error
}

// Dialer opens a channel. The session manager depends on this rather
// than a concrete transport.
type Dialer func(ctx context.Context, setup Setup) (Channel, error)

// WSChannel is a Channel over a WebSocket connection. Inbound events
// arrive as JSON text frames; outbound audio goes up as raw binary PCM
// frames.
type WSChannel struct {
	conn   *websocket.Conn
	logger *zap.Logger
	events chan ServerEvent

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	err    error
}

// NewWSDialer returns a Dialer connecting to the given gateway address.
func NewWSDialer(addr string, logger *zap.Logger) Dialer {
	return func(ctx context.Context, setup Setup) (Channel, error) {
		return DialWS(ctx, addr, setup, logger)
	}
}

// DialWS connects, performs the setup handshake, and starts the reader.
// It returns only after the server acknowledges the setup, so a returned
// channel is open and live.
func DialWS(ctx context.Context, addr string, setup Setup, logger *zap.Logger) (*WSChannel, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/live"}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &WSChannel{
		conn:   conn,
		logger: logger,
		events: make(chan ServerEvent, 64),
	}

	if err := c.handshake(setup); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()

	return c, nil
}

// handshake sends the setup message and waits for the server ack.
func (c *WSChannel) handshake(setup Setup) error {
	if err := c.conn.WriteJSON(setup); err != nil {
		return fmt.Errorf("failed to send setup: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(setupAckTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read setup ack: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	var ack struct {
		SetupComplete bool `json:"setupComplete"`
	}
	if err := json.Unmarshal(data, &ack); err != nil || !ack.SetupComplete {
		return fmt.Errorf("unexpected setup ack: %s", data)
	}

	c.logger.Info("live channel open")
	return nil
}

// readLoop reads and routes inbound frames until the connection dies.
func (c *WSChannel) readLoop() {
	defer close(c.events)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.recordReadError(err)
			return
		}

		if messageType != websocket.TextMessage {
			c.logger.Debug("ignoring non-text frame", zap.Int("type", messageType))
			continue
		}

		var ev ServerEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Warn("ignoring malformed server event", zap.Error(err))
			continue
		}

		c.events <- ev
	}
}

// recordReadError keeps the first fatal cause. A close initiated locally
// or a normal remote close is not an error.
func (c *WSChannel) recordReadError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.err != nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	c.err = err
}

// Events returns the inbound event stream.
func (c *WSChannel) Events() <-chan ServerEvent {
	return c.events
}

// SendAudio uploads one raw PCM chunk as a binary frame.
func (c *WSChannel) SendAudio(chunk []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("channel closed")
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.BinaryMessage, chunk)
}

// Err returns the fatal channel error, if any.
func (c *WSChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears the connection down. Safe to call more than once.
func (c *WSChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}
