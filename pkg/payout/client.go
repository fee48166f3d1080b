package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the external payout provider. It is only ever called
// from queue task handlers after the escrow transition committed, so a
// failure here is retried by the queue and never affects financial state.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Request describes one funds movement.
type Request struct {
	EscrowID     string `json:"escrow_id"`
	RecipientRef string `json:"recipient_ref"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	// Direction is "payout" for a payee release or "refund" for a payer
	// refund.
	Direction string `json:"direction"`
}

// Send executes the transfer. The escrow id doubles as the provider-side
// idempotency key, so queue retries cannot double-pay.
func (c *Client) Send(ctx context.Context, req *Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal payout request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build payout request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Idempotency-Key", req.EscrowID+":"+req.Direction)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return fmt.Errorf("payout rejected: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("payout provider error: %s", resp.Status)
	}

	return nil
}
