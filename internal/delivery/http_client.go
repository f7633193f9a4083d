package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// Client talks to the tenant storage API. The API host is shared; the
// tenant's TargetHandle supplies the credential and the destination
// identifiers, so every call lands in that tenant's own space.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type primaryPayload struct {
	Status      domain.Status          `json:"status"`
	Result      *domain.AnalysisResult `json:"result"`
	AttemptedAt time.Time              `json:"attempted_at"`
}

type archivePayload struct {
	SourceRecordID string                 `json:"source_record_id"`
	Result         *domain.AnalysisResult `json:"result"`
	Context        json.RawMessage        `json:"context,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

type statusPayload struct {
	Status      domain.Status `json:"status"`
	Message     string        `json:"message,omitempty"`
	AttemptedAt time.Time     `json:"attempted_at"`
}

type recordResponse struct {
	ID string `json:"id"`
}

func (c *Client) WritePrimary(ctx context.Context, target domain.TargetHandle, recordID string, result *domain.AnalysisResult) (string, error) {
	url := fmt.Sprintf("%s/v1/collections/%s/records/%s", c.baseURL, target.PrimaryID, recordID)
	resp, err := c.send(ctx, http.MethodPatch, url, target.Credential, primaryPayload{
		Status:      domain.StatusComplete,
		Result:      result,
		AttemptedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("write primary record %s: %w", recordID, err)
	}
	if resp.ID == "" {
		// The API echoes the record id on success; an empty echo means
		// the write cannot be verified and must count as failed.
		return "", fmt.Errorf("write primary record %s: no record id in response", recordID)
	}
	return resp.ID, nil
}

func (c *Client) WriteArchive(ctx context.Context, target domain.TargetHandle, recordID string, result *domain.AnalysisResult, sharedCtx json.RawMessage) (string, error) {
	url := fmt.Sprintf("%s/v1/collections/%s/records", c.baseURL, target.ArchiveID)
	resp, err := c.send(ctx, http.MethodPost, url, target.Credential, archivePayload{
		SourceRecordID: recordID,
		Result:         result,
		Context:        sharedCtx,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("write archive record for %s: %w", recordID, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("write archive record for %s: no record id in response", recordID)
	}
	return resp.ID, nil
}

func (c *Client) WriteStatus(ctx context.Context, target domain.TargetHandle, recordID string, status domain.Status, message string, at time.Time) error {
	url := fmt.Sprintf("%s/v1/collections/%s/records/%s/status", c.baseURL, target.PrimaryID, recordID)
	if _, err := c.send(ctx, http.MethodPatch, url, target.Credential, statusPayload{
		Status:      status,
		Message:     message,
		AttemptedAt: at.UTC(),
	}); err != nil {
		return fmt.Errorf("write status %s on record %s: %w", status, recordID, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, url, credential string, payload any) (*recordResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg)
	}

	var rec recordResponse
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &rec, nil
}

var _ Delivery = (*Client)(nil)
