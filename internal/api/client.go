// Package api talks to the recipe service's REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/recipe-sync/internal/apperrors"
)

const (
	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads. API responses are
	// small JSON payloads.
	maxResponseBytes = 1024 * 1024

	// maxRedirects matches the default net/http limit.
	maxRedirects = 10
)

// Client talks to the recipe service API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host, so bearer credentials never leak
// to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 && req.URL.Host != via[0].URL.Host {
		return fmt.Errorf("redirect to different host blocked: %s -> %s", via[0].URL.Host, req.URL.Host)
	}

	return nil
}

// NewClient creates an API client for the given base URL. If httpClient
// is nil, a client with a 30-second timeout and same-host redirect
// policy is used.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// BaseURL returns the API base URL the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type refreshRequest struct {
	Token string `json:"token"`
}

// RefreshToken exchanges the current bearer token for a fresh one via
// POST /sessions/renew. A 401 response means the token is no longer
// trusted; any other non-200 response is a generic failure carrying the
// status and the server's message.
func (c *Client) RefreshToken(ctx context.Context, currentToken string) (string, error) {
	payload, err := json.Marshal(refreshRequest{Token: currentToken})
	if err != nil {
		return "", fmt.Errorf("marshalling refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions/renew", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating refresh request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+currentToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts, connection refusals and DNS failures are transient
		// by nature.
		return "", &apperrors.TransientError{Err: fmt.Errorf("refreshing token: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading refresh response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		newToken := gjson.GetBytes(body, "token").String()
		if newToken == "" {
			return "", fmt.Errorf("refresh response carried no token: %s", sanitizeBody(body))
		}

		return newToken, nil
	case http.StatusUnauthorized:
		return "", apperrors.ErrAuthenticationRequired
	default:
		message := gjson.GetBytes(body, "message").String()
		if message == "" {
			message = sanitizeBody(body)
		}

		return "", fmt.Errorf("token refresh failed with status %d: %s", resp.StatusCode, message)
	}
}

// sanitizeBody truncates a response body and strips control characters
// so it is safe to embed in error messages and logs.
func sanitizeBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return '?'
		}
		return r
	}, string(body))
}
