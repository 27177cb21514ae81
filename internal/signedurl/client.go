package signedurl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"program-chat-service/internal/errkind"
)

// Client calls the external signing mediator over HTTP. The mediator
// independently re-derives the chat id from the storage path and re-checks
// membership before issuing a URL valid for a few minutes.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs the mediator client. An empty baseURL yields a client
// whose calls always fail, pushing resolution onto the fallback path.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type signRequest struct {
	StoragePath string `json:"storage_path"`
}

type signResponse struct {
	URL string `json:"url"`
}

// SignedURL requests a time-boxed read URL for the storage path.
func (c *Client) SignedURL(ctx context.Context, storagePath string) (string, error) {
	if c.baseURL == "" {
		return "", errkind.Transient(fmt.Errorf("signer not configured"))
	}

	body, err := json.Marshal(signRequest{StoragePath: storagePath})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errkind.Transient(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusUnauthorized:
		return "", errkind.PermissionDenied(fmt.Errorf("signer refused %s", storagePath))
	case http.StatusNotFound:
		return "", errkind.NotFound(fmt.Errorf("signer has no object %s", storagePath))
	default:
		return "", errkind.Transient(fmt.Errorf("signer status %d", resp.StatusCode))
	}

	var out signResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errkind.Transient(fmt.Errorf("decode signer response: %w", err))
	}
	return out.URL, nil
}
