package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Batch is the outbound envelope the downstream webhook expects.
type Batch struct {
	Timestamp    string `json:"timestamp"`
	TotalAlertas int    `json:"total_alertas"`
	IsBatched    bool   `json:"is_batched"`
	Alertas      []any  `json:"alertas"`
}

// Sender posts an alert batch downstream. Failures leave the batch with the
// caller for re-queueing.
type Sender interface {
	SendBatch(ctx context.Context, timestamp string, alerts []any) error
}

// Client posts alert batches over HTTPS. A circuit breaker keeps a dead
// endpoint from eating the drain tick, and a limiter paces redelivery storms.
type Client struct {
	url     string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// NewClient creates a webhook client for one endpoint.
func NewClient(url string, timeout time.Duration) *Client {
	settings := gobreaker.Settings{
		Name:    "alert-webhook",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("Webhook breaker state change")
		},
	}

	return &Client{
		url:     url,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		limiter: rate.NewLimiter(rate.Every(time.Second), 3),
	}
}

// SendBatch posts one batch. Non-2xx responses are errors so the caller
// re-queues the alerts.
func (c *Client) SendBatch(ctx context.Context, timestamp string, alerts []any) error {
	if len(alerts) == 0 {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("webhook rate wait: %w", err)
	}

	body, err := json.Marshal(Batch{
		Timestamp:    timestamp,
		TotalAlertas: len(alerts),
		IsBatched:    true,
		Alertas:      alerts,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert batch: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("webhook dispatch failed: %w", err)
	}

	log.Info().Int("alerts", len(alerts)).Msg("Alert batch delivered")
	return nil
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
