package bus

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// reconnectDelay is how long the consumer waits before redialing a dead bus.
const reconnectDelay = 5 * time.Second

// Handler processes one delivered payload. Errors are logged, never fatal:
// a bad message must not take the subscription down.
type Handler func(payload []byte)

// Consumer delivers raw payloads from the message bus to a handler.
type Consumer interface {
	// Run blocks, delivering messages until ctx is cancelled.
	Run(ctx context.Context, handler Handler) error
}

// WebSocketConsumer subscribes to a single topic over the bus's websocket
// endpoint and auto-reconnects on failure. No delivery guarantee is promised
// across reconnects.
type WebSocketConsumer struct {
	baseURL string
	topic   string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewWebSocketConsumer creates a consumer for one topic.
func NewWebSocketConsumer(baseURL, topic string) *WebSocketConsumer {
	return &WebSocketConsumer{baseURL: baseURL, topic: topic}
}

// Run dials, subscribes and pumps messages until ctx is cancelled. Any
// connection error triggers a redial after reconnectDelay.
func (c *WebSocketConsumer) Run(ctx context.Context, handler Handler) error {
	for {
		if err := c.connect(ctx); err != nil {
			log.Error().Err(err).Str("url", c.baseURL).Msg("Bus connection failed")
		} else {
			c.readLoop(ctx, handler)
		}

		select {
		case <-ctx.Done():
			c.close()
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *WebSocketConsumer) connect(ctx context.Context) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid bus URL: %w", err)
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 30 * time.Second

	log.Info().Str("url", c.baseURL).Str("topic", c.topic).Msg("Connecting to bus")
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("bus dial failed: %w", err)
	}

	sub := map[string]string{"action": "subscribe", "topic": c.topic}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("bus subscribe failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	log.Info().Str("topic", c.topic).Msg("Bus subscription established")
	return nil
}

func (c *WebSocketConsumer) readLoop(ctx context.Context, handler Handler) {
	defer c.close()

	// Unblock ReadMessage when the context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.close()
		case <-done:
		}
	}()

	for {
		_, payload, err := c.readMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("Bus read failed, will reconnect")
			}
			return
		}
		handler(payload)
	}
}

func (c *WebSocketConsumer) readMessage() (int, []byte, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, nil, fmt.Errorf("bus connection closed")
	}
	return conn.ReadMessage()
}

func (c *WebSocketConsumer) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// Connected reports whether a live connection is up, for health reporting.
func (c *WebSocketConsumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}
