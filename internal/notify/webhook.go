package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"eventhub/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// Webhook posts run events as JSON to a single URL.
type Webhook struct {
	URL    string
	Secret string
	// Events limits delivery to the listed types. Empty means all.
	Events  []string
	Timeout time.Duration
	Client  *http.Client
	Now     func() time.Time
}

func (w Webhook) Notify(ctx context.Context, s domain.RunSummary) error {
	if strings.TrimSpace(w.URL) == "" {
		return nil
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	evt := NewRunEvent(s, now())
	if !newEventFilter(w.Events).match(evt.Type) {
		return nil
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	client := w.Client
	if client == nil {
		timeout := w.Timeout
		if timeout <= 0 {
			timeout = defaultWebhookTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Eventhub-Event", evt.Type)
	req.Header.Set("X-Eventhub-Source", s.Source)
	if s.RunID != "" {
		req.Header.Set("X-Eventhub-Delivery", s.RunID)
	}
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Eventhub-Secret", w.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", w.URL, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("webhook %s: status %d: %s", w.URL, res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
