package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/shalom-ormsby/sagestocks/internal/domain"
)

// Client calls the analysis service over HTTP. The base URL is
// injected from config so tests can point to a local mock.
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

type analyzeRequest struct {
	Ticker  string          `json:"ticker"`
	Context json.RawMessage `json:"context,omitempty"`
}

// Analyze posts the ticker to the analysis service. 429 and 503 are
// classified transient and carry the Retry-After header as a hint;
// every other non-200 status is terminal.
func (c *Client) Analyze(ctx context.Context, ticker, credential string, sharedCtx json.RawMessage) (*domain.AnalysisResult, error) {
	body, err := json.Marshal(analyzeRequest{Ticker: ticker, Context: sharedCtx})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp)
	}

	var result domain.AnalysisResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode result for %s: %w", ticker, err)
	}
	return &result, nil
}

// Snapshot fetches the shared market context for the cycle.
func (c *Client) Snapshot(ctx context.Context) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/market-snapshot", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(resp)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return payload, nil
}

func upstreamError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	ue := &UpstreamError{
		Status: resp.StatusCode,
		Msg:    string(msg),
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		ue.Transient = true
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, err := strconv.Atoi(ra); err == nil {
				ue.RetryAfter = time.Duration(secs) * time.Second
			}
		}
	}
	return ue
}

var _ Analyzer = (*Client)(nil)
