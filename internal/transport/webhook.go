package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Webhook delivers messages by POSTing them as JSON to a mail relay endpoint.
// The URL is injected from config so tests can point to a local server.
type Webhook struct {
	url        string
	httpClient *http.Client
}

// NewWebhook returns a Webhook transport. Deadlines come from the caller's
// context, so the client itself has no timeout.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:        url,
		httpClient: &http.Client{},
	}
}

// Send posts msg and treats any 2xx response as delivered.
func (w *Webhook) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected relay status: %d", resp.StatusCode)
	}
	return nil
}

var _ Transport = (*Webhook)(nil)
