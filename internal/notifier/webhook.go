// Package notifier posts download lifecycle notifications to an external
// webhook collaborator.
package notifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const serviceName = "MediaFetch"

// Notifier delivers an event with an arbitrary payload.
type Notifier interface {
	Notify(ctx context.Context, eventName string, data any) error
}

// WebhookNotifier posts JSON payloads to a configured URL. When Secret is
// set, requests carry an HMAC-SHA256 signature so the receiver can verify
// origin; the plain secret header is kept for receivers that predate
// signing.
type WebhookNotifier struct {
	URL    string
	Secret string
	Client *http.Client
}

type payload struct {
	Event     string `json:"event"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Data      any    `json:"data"`
}

// Notify posts the event to the webhook URL.
func (n *WebhookNotifier) Notify(ctx context.Context, eventName string, data any) error {
	if n.URL == "" {
		return fmt.Errorf("webhook URL is not set")
	}

	body, err := json.Marshal(payload{
		Event:     eventName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   serviceName,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if n.Secret != "" {
		req.Header.Set("X-Webhook-Secret", n.Secret)
		req.Header.Set("X-Webhook-Signature", "sha256="+n.sign(body))
	}

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook failed with status %d", resp.StatusCode)
	}

	return nil
}

func (n *WebhookNotifier) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(n.Secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}
