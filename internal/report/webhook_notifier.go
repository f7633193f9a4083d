package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WebhookNotifier posts batch summaries to a monitoring webhook.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type notifyPayload struct {
	BatchID string       `json:"batch_id"`
	Summary BatchSummary `json:"summary"`
	SentAt  time.Time    `json:"sent_at"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, summary BatchSummary) error {
	body, err := json.Marshal(notifyPayload{
		BatchID: uuid.New().String(),
		Summary: summary,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected notifier status: %d", resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*WebhookNotifier)(nil)
