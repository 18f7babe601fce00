// Package escrow is the client for the on-chain vesting escrow provider.
// The provider holds and releases tokens per a vesting schedule; this
// service only deploys, cancels, and inspects escrows.
package escrow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the escrow provider's HTTP API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a client for the provider at baseURL.
func New(baseURL, apiKey string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Status describes the funds currently held by an escrow.
type Status struct {
	DepositedAmount float64 `json:"deposited_amount"`
	WithdrawnAmount float64 `json:"withdrawn_amount"`
}

type deployRequest struct {
	TotalAmount float64 `json:"total_amount"`
	StartTime   int64   `json:"start_time"`
	EndTime     int64   `json:"end_time"`
	Name        string  `json:"name"`
}

type deployResponse struct {
	EscrowID string `json:"escrow_id"`
	TxRef    string `json:"tx_ref"`
}

// Deploy creates an escrow holding totalAmount tokens released between start
// and end. Deploys are not retried: the provider call is not idempotent.
func (c *Client) Deploy(ctx context.Context, totalAmount float64, start, end time.Time, name string) (string, string, error) {
	body, err := json.Marshal(deployRequest{
		TotalAmount: totalAmount,
		StartTime:   start.Unix(),
		EndTime:     end.Unix(),
		Name:        name,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal deploy request: %w", err)
	}

	var resp deployResponse
	if err := c.do(ctx, http.MethodPost, "/v1/escrows", bytes.NewReader(body), &resp); err != nil {
		return "", "", err
	}
	if resp.EscrowID == "" {
		return "", "", fmt.Errorf("provider returned empty escrow id")
	}
	return resp.EscrowID, resp.TxRef, nil
}

// Cancel requests cancellation of a deployed escrow. The provider returns
// undistributed funds to the authorizing treasury.
func (c *Client) Cancel(ctx context.Context, escrowID string) error {
	path := fmt.Sprintf("/v1/escrows/%s", url.PathEscape(escrowID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// GetStatus fetches the deposited and withdrawn amounts of an escrow.
func (c *Client) GetStatus(ctx context.Context, escrowID string) (*Status, error) {
	var status Status
	path := fmt.Sprintf("/v1/escrows/%s", url.PathEscape(escrowID))
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
