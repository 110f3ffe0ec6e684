package events

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
)

const (
	defaultWebhookTimeout = 10 * time.Second
	webhookRetryWaitMin   = 200 * time.Millisecond
	webhookRetryWaitMax   = 5 * time.Second
)

// WebhookPublisher POSTs software events to a configured HTTP endpoint.
// Each request is signed with HMAC-SHA256 so the receiver can verify it.
// Connection errors and 5xx responses are retried up to maxRetries times;
// any final non-2xx response is returned as an error.
type WebhookPublisher struct {
	url    string
	secret []byte
	client *retryablehttp.Client
}

// NewWebhookPublisher returns a WebhookPublisher that POSTs events to url and
// signs them with secret. A zero or negative timeout falls back to
// defaultWebhookTimeout (10 s).
func NewWebhookPublisher(url, secret string, timeout time.Duration, maxRetries int, logger *slog.Logger) *WebhookPublisher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = timeout
	client.RetryMax = maxRetries
	client.RetryWaitMin = webhookRetryWaitMin
	client.RetryWaitMax = webhookRetryWaitMax
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = nil
	if logger != nil {
		client.Logger = logger.With("component", "webhook")
	}

	return &WebhookPublisher{
		url:    url,
		secret: []byte(secret),
		client: client,
	}
}

// Publish marshals event to JSON, signs the body, and POSTs it to the
// configured webhook URL. The following headers are set on every request:
//
//	Content-Type:           application/json
//	X-Swmanager-Topic:      <topic>
//	X-Swmanager-Event-Type: <event.EventType>
//	X-Swmanager-Event-Id:   <event.EventID>
//	X-Hub-Signature-256:    sha256=<hex-encoded HMAC-SHA256>
func (p *WebhookPublisher) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.url, payload)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Swmanager-Topic", topic)
	req.Header.Set("X-Swmanager-Event-Type", event.EventType)
	req.Header.Set("X-Swmanager-Event-Id", event.EventID)
	if event.RequestID != "" {
		req.Header.Set("X-Request-Id", event.RequestID)
	}
	req.Header.Set("X-Hub-Signature-256", "sha256="+p.sign(payload))

	resp, err := p.client.Do(req)
	if resp != nil {
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}()
	}
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// sign returns the lowercase hex-encoded HMAC-SHA256 of payload using p.secret.
func (p *WebhookPublisher) sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
