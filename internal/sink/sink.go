// Package sink posts swaps and alerts to the append-only storage service.
// Calls only wait for admission (a 2xx response); the sink batches and
// persists server-side on its own schedule.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rlaau/swapsentry/shared/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// AppendSwap admits one inferred swap for durable storage.
func (c *Client) AppendSwap(ctx context.Context, evt domain.SwapEvent) error {
	return c.post(ctx, "/append_swap", evt)
}

// AppendAlert admits one dispatched alert for durable storage.
func (c *Client) AppendAlert(ctx context.Context, payload any) error {
	return c.post(ctx, "/append_alert", payload)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("sink: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("sink: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sink: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sink: %s: unexpected status %d", path, resp.StatusCode)
	}
	return nil
}
