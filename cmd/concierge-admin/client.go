// ABOUTME: HTTP client for the gateway admin and dispatch endpoints
// ABOUTME: Adds credentials, decodes JSON and turns error bodies into Go errors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/2389/coven-concierge/internal/auth"
	"github.com/2389/coven-concierge/internal/reply"
)

// dispatchRequest mirrors the body of POST /api/dispatch.
type dispatchRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type dispatchResponse struct {
	Reply     *reply.JSON `json:"reply,omitempty"`
	Duplicate bool        `json:"duplicate,omitempty"`
}

type client struct {
	baseURL string
	token   string
	apiKey  string
	http    *http.Client
}

func (c *client) httpClient() *http.Client {
	if c.http != nil {
		return c.http
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *client) requireCredentials() error {
	if c.token == "" && c.apiKey == "" {
		return fmt.Errorf("CONCIERGE_TOKEN or CONCIERGE_API_KEY is required (run concierge-admin token)")
	}
	return nil
}

func (c *client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	} else if c.apiKey != "" {
		req.Header.Set(auth.APIKeyHeader, c.apiKey)
	}
	return req, nil
}

// do sends the request and decodes a JSON response into out. Non-2xx
// responses become errors carrying the server's error message.
func (c *client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := c.requireCredentials(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return responseError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// statusError is returned for non-2xx responses.
type statusError struct {
	Code    int
	Message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Code, e.Message)
}

func responseError(code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := string(bytes.TrimSpace(body))
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &statusError{Code: code, Message: msg}
}
