package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebSocketConsumer_DeliversPayloads(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		// Expect the subscribe frame first.
		var sub map[string]string
		require.NoError(t, conn.ReadJSON(&sub))
		assert.Equal(t, "subscribe", sub["action"])
		assert.Equal(t, "telemetry/ble", sub["topic"])

		msg, _ := json.Marshal(map[string]string{"gmac": "AC233FA01122"})
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	consumer := NewWebSocketConsumer(wsURL, "telemetry/ble")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 1)
	go consumer.Run(ctx, func(payload []byte) {
		select {
		case received <- payload:
		default:
		}
	})

	select {
	case payload := <-received:
		assert.Contains(t, string(payload), "AC233FA01122")
	case <-time.After(3 * time.Second):
		t.Fatal("no payload delivered")
	}
	cancel()
}

func TestWebSocketConsumer_LeavesDefaultDialerUntouched(t *testing.T) {
	before := websocket.DefaultDialer.HandshakeTimeout

	consumer := NewWebSocketConsumer("ws://127.0.0.1:1", "telemetry/ble")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = consumer.Run(ctx, func([]byte) {})

	assert.Equal(t, before, websocket.DefaultDialer.HandshakeTimeout)
}

func TestWebSocketConsumer_StopsOnContextCancel(t *testing.T) {
	consumer := NewWebSocketConsumer("ws://127.0.0.1:1", "telemetry/ble")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx, func([]byte) {}) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
