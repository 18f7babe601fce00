// Package holders is the client for the NFT holder-enumeration service.
package holders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/stratalabs/vestflow/internal/vesting"
	"github.com/stratalabs/vestflow/pkg/retry"
)

// CollectionStats summarizes a collection's holder distribution.
type CollectionStats struct {
	TotalSupply   int `json:"total_supply"`
	UniqueHolders int `json:"unique_holders"`
}

// Client talks to the holder-enumeration service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryCfg   retry.Config
	log        *slog.Logger
}

// New creates a client for the service at baseURL. The timeout bounds each
// individual request; retries are wrapped around it.
func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		retryCfg:   retry.DefaultConfig(),
		log:        log,
	}
}

// statusError carries the HTTP status for retryability classification.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("holder service returned status %d: %s", e.code, e.body)
}

func (e *statusError) StatusCode() int { return e.code }

// GetHolders enumerates holders of the given collection as wallet to
// held-count pairs.
func (c *Client) GetHolders(ctx context.Context, collectionID string) ([]vesting.Holder, error) {
	var response struct {
		Holders []vesting.Holder `json:"holders"`
	}
	path := fmt.Sprintf("/collections/%s/holders", url.PathEscape(collectionID))
	if err := c.getJSON(ctx, path, &response); err != nil {
		return nil, err
	}
	return response.Holders, nil
}

// GetCollectionStats fetches supply and holder counts for a collection.
func (c *Client) GetCollectionStats(ctx context.Context, collectionID string) (*CollectionStats, error) {
	var stats CollectionStats
	path := fmt.Sprintf("/collections/%s/stats", url.PathEscape(collectionID))
	if err := c.getJSON(ctx, path, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.retryCfg, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("%w: collection not found", vesting.ErrNotFound)
			}
			return &statusError{code: resp.StatusCode, body: http.StatusText(resp.StatusCode)}
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
}
