// Package customwebhook implements a notifier.Notifier for the Alerter
// Custom endpoint variant: a plain JSON POST of the notification to a
// user-supplied URL, with no provider-specific formatting.
package customwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/komodo-run/core/internal/port/notifier"
)

const providerName = "custom"

func init() {
	notifier.Register(providerName, func(config map[string]string) (notifier.Notifier, error) {
		return NewNotifier(config["url"]), nil
	})
}

// Notifier POSTs the raw notifier.Notification as JSON to a fixed URL.
type Notifier struct {
	url        string
	httpClient *http.Client
}

// NewNotifier creates a custom webhook notifier targeting url.
func NewNotifier(url string) *Notifier {
	return &Notifier{url: url, httpClient: http.DefaultClient}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities {
	return notifier.Capabilities{}
}

func (n *Notifier) Send(ctx context.Context, notification notifier.Notification) error {
	if n.url == "" {
		return notifier.ErrNotConfigured
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("custom webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("custom webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req) //nolint:gosec // URL from trusted Alerter config
	if err != nil {
		return fmt.Errorf("custom webhook send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("custom webhook %s: status %d", n.url, resp.StatusCode)
	}
	return nil
}
