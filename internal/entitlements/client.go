// Package entitlements consumes the external purchase/business-rule gate
// through its boolean output: may this user access this chat's program.
package entitlements

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"program-chat-service/internal/errkind"
)

// Gate answers chat-access questions.
type Gate interface {
	MayAccess(ctx context.Context, email, programID string) (bool, error)
}

// Client calls the entitlements service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs the wrapper. An empty baseURL produces a permissive
// gate, which suits development deployments.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type accessResponse struct {
	Allowed bool `json:"allowed"`
}

// MayAccess reports whether the email holds an entitlement for the program.
func (c *Client) MayAccess(ctx context.Context, email, programID string) (bool, error) {
	if c.baseURL == "" {
		return true, nil
	}

	endpoint := fmt.Sprintf("%s/entitlements/check?email=%s&program_id=%s",
		c.baseURL, url.QueryEscape(email), url.QueryEscape(programID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return false, errkind.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, errkind.Transient(fmt.Errorf("entitlements status %d", resp.StatusCode))
	}

	var out accessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, errkind.Transient(fmt.Errorf("decode entitlements response: %w", err))
	}
	return out.Allowed, nil
}
