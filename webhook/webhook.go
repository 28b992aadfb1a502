// Package webhook posts newly discovered listings to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/use-agent/listwatch/config"
	"github.com/use-agent/listwatch/models"
)

// EventNewListings is the type of the only event sent.
const EventNewListings = "listings.new"

// SignatureHeader carries "sha256=<hex hmac of body>" when a secret is set.
const SignatureHeader = "X-Listwatch-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string      `json:"type"`
	RunID     string      `json:"run_id"`
	Timestamp int64       `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// NewListingsData is the Data of an EventNewListings event.
type NewListingsData struct {
	Count    int               `json:"count"`
	Listings []models.Property `json:"listings"`
}

// retryDelays are the waits before each delivery attempt.
var retryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second}

// Notifier delivers events to one endpoint.
type Notifier struct {
	url    string
	secret string
	client *http.Client
	delays []time.Duration
	logger *slog.Logger
}

// NewNotifier creates a Notifier, or returns nil when cfg has no URL.
// A nil Notifier drops every event.
func NewNotifier(cfg config.WebhookConfig, logger *slog.Logger) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: timeout},
		delays: retryDelays,
		logger: logger,
	}
}

// NotifyNewListings sends props as an EventNewListings event. Delivery is
// synchronous and retried; failures are logged, never returned.
func (n *Notifier) NotifyNewListings(ctx context.Context, runID string, props []models.Property) {
	if n == nil || len(props) == 0 {
		return
	}
	listings := make([]models.Property, len(props))
	for i, p := range props {
		listings[i] = p.WithoutImage()
	}
	n.deliverWithRetry(ctx, &Event{
		Type:      EventNewListings,
		RunID:     runID,
		Timestamp: time.Now().Unix(),
		Data:      NewListingsData{Count: len(listings), Listings: listings},
	})
}

func (n *Notifier) deliverWithRetry(ctx context.Context, event *Event) {
	var err error
	for attempt, delay := range n.delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				n.logger.Warn("webhook delivery abandoned",
					"event", event.Type,
					"error", ctx.Err(),
				)
				return
			}
		}
		err = n.Deliver(ctx, event)
		if err == nil {
			n.logger.Info("webhook delivered",
				"event", event.Type,
				"attempt", attempt+1,
			)
			return
		}
		n.logger.Warn("webhook delivery failed",
			"event", event.Type,
			"attempt", attempt+1,
			"error", err,
		)
	}
	n.logger.Error("webhook delivery exhausted all retries",
		"event", event.Type,
		"error", err,
	)
}

// Deliver sends one event. The body is signed with HMAC-SHA256 if a secret
// is configured.
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Listwatch-Webhook/1.0")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(n.secret, body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
