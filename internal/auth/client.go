// Package auth wraps the external token verifier. Identities are emails,
// case-normalized at this boundary so everything downstream compares equal.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"program-chat-service/internal/models"
)

// Verifier validates bearer tokens and returns the authenticated email.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

// Client calls the auth service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs the wrapper.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

type verifyResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email"`
}

// VerifyToken checks the token and returns the normalized email it belongs to.
func (c *Client) VerifyToken(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/verify", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("auth status %d", resp.StatusCode)
	}

	var out verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if !out.Valid || out.Email == "" {
		return "", errors.New("invalid token")
	}
	return models.NormalizeEmail(out.Email), nil
}
