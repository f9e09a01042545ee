package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrRejected = errors.New("sms gateway rejected message")

// Client sends messages through the Arkesel v2 SMS API.
type Client struct {
	url    string
	apiKey string
	sender string
	client *http.Client
}

func NewClient(url, apiKey, sender string, timeout time.Duration) *Client {
	return &Client{
		url:    url,
		apiKey: apiKey,
		sender: sender,
		client: &http.Client{Timeout: timeout},
	}
}

// Send delivers message to the destination phone number. The decoded gateway
// response is returned even when the gateway reports a failure.
func (c *Client) Send(ctx context.Context, to, message string) (map[string]interface{}, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"recipients": []string{to},
		"sender":     c.sender,
		"message":    message,
	})
	if err != nil {
		return nil, fmt.Errorf("encode sms request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read sms response: %w", err)
	}

	out := map[string]interface{}{}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			out = map[string]interface{}{"body": string(raw)}
		}
	}
	out["http_status"] = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return out, fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	if e, ok := out["error"]; ok {
		return out, fmt.Errorf("%w: %v", ErrRejected, e)
	}
	if status, _ := out["status"].(string); status == "error" {
		return out, fmt.Errorf("%w: %v", ErrRejected, out["message"])
	}
	return out, nil
}
