package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// HeaderCycleID carries the cycle ID on webhook requests so receivers can
// drop redelivered cycles.
const HeaderCycleID = "X-Canary-Cycle"

// errPermanent marks a response that retrying cannot fix.
var errPermanent = errors.New("webhook: permanent failure")

// Webhook POSTs cycles as JSON to a URL. Transport errors, 429 and 5xx
// responses are retried with exponential backoff; other statuses fail
// at once.
type Webhook struct {
	url       string
	client    *http.Client
	retries   int
	backoff   time.Duration
	unchanged bool
	logger    *slog.Logger
}

// WebhookOption configures a Webhook sink.
type WebhookOption func(*Webhook)

// WithWebhookRetries sets the maximum number of retries. Default: 3.
func WithWebhookRetries(n int) WebhookOption {
	return func(w *Webhook) { w.retries = n }
}

// WithWebhookBackoff sets the first retry delay, doubled on each retry.
// A Retry-After header overrides it. Default: 1s.
func WithWebhookBackoff(d time.Duration) WebhookOption {
	return func(w *Webhook) { w.backoff = d }
}

// WithWebhookUnchanged also posts cycles that changed nothing.
func WithWebhookUnchanged() WebhookOption {
	return func(w *Webhook) { w.unchanged = true }
}

// WithWebhookLogger sets a custom logger.
func WithWebhookLogger(l *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWebhook creates a Webhook sink targeting url.
func NewWebhook(url string, opts ...WebhookOption) *Webhook {
	w := &Webhook{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		retries: 3,
		backoff: time.Second,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Send posts c. Cycles that changed nothing are skipped unless
// WithWebhookUnchanged is set.
func (w *Webhook) Send(ctx context.Context, c Cycle) error {
	if !w.unchanged && c.Stats.Changed() == 0 && c.Trigger != TriggerManual {
		return nil
	}
	body, err := json.Marshal(envelope{Type: "cycle", Data: c})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	delay := w.backoff
	var lastErr error
	for attempt := 1; attempt <= w.retries+1; attempt++ {
		wait, err := w.post(ctx, c.ID, body)
		if err == nil {
			return nil
		}
		if errors.Is(err, errPermanent) {
			return err
		}
		lastErr = err
		w.logger.Warn("webhook: delivery failed", "cycle_id", c.ID, "attempt", attempt, "error", err)
		if attempt > w.retries {
			break
		}
		if wait <= 0 {
			wait = delay
			delay *= 2
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("webhook: all retries exhausted: %w", lastErr)
}

// post makes one attempt. wait is the server's Retry-After, if any.
func (w *Webhook) post(ctx context.Context, id string, body []byte) (wait time.Duration, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: new request: %v", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderCycleID, id)

	resp, err := w.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return 0, nil
	case code == http.StatusTooManyRequests || code >= 500:
		if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && s > 0 {
			wait = time.Duration(s) * time.Second
		}
		return wait, fmt.Errorf("webhook: status %d", code)
	default:
		return 0, fmt.Errorf("%w: status %d", errPermanent, code)
	}
}

func (w *Webhook) Close() error { return nil }
