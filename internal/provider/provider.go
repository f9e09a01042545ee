package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "plate-alert-service/1.0"

// Response is the decoded JSON body returned by a recognition provider.
type Response map[string]interface{}

// Provider recognises plate text in the image behind an URL.
type Provider interface {
	Name() string
	Detect(ctx context.Context, imageURL string) (Response, error)
}

// WorkflowProvider calls a Roboflow-style serverless workflow endpoint.
type WorkflowProvider struct {
	url    string
	apiKey string
	client *http.Client
}

func NewWorkflowProvider(url, apiKey string, timeout time.Duration) *WorkflowProvider {
	return &WorkflowProvider{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *WorkflowProvider) Name() string { return "workflow" }

func (p *WorkflowProvider) Detect(ctx context.Context, imageURL string) (Response, error) {
	body := map[string]interface{}{
		"api_key": p.apiKey,
		"inputs": map[string]interface{}{
			"image": map[string]string{
				"type":  "url",
				"value": imageURL,
			},
		},
	}
	return postJSON(ctx, p.client, p.url, body, nil)
}

// HTTPProvider posts {"imageRef": url} to a generic recognition endpoint.
type HTTPProvider struct {
	name   string
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPProvider(name, url, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		name:   name,
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

func (p *HTTPProvider) Detect(ctx context.Context, imageURL string) (Response, error) {
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Token " + p.apiKey
	}
	return postJSON(ctx, p.client, p.url, map[string]string{"imageRef": imageURL}, headers)
}

func postJSON(ctx context.Context, client *http.Client, url string, body interface{}, headers map[string]string) (Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
