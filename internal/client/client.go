// Package client is an HTTP client for the safetygate API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TimurManjosov/safetygate/internal/api"
	"github.com/TimurManjosov/safetygate/internal/catalog"
)

// APIError is a non-2xx response that the endpoint does not treat as a
// verdict.
type APIError struct {
	StatusCode int
	Response   api.ErrorResponse
	Body       string
}

func (e *APIError) Error() string {
	if e.Response.Message != "" {
		return fmt.Sprintf("API error (status %d, %s): %s", e.StatusCode, e.Response.Code, e.Response.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Client is an HTTP client for the safetygate API
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a new API client
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Evaluate runs the pre-check. Every verdict, including DECLINE, is a
// successful call.
func (c *Client) Evaluate(ctx context.Context, req api.EvaluateRequest) (*api.EvaluateResponse, error) {
	var out api.EvaluateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/safety/evaluate", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify runs the checkout backstop. A blocked checkout (409) is returned as
// a response with Allowed=false, not as an error.
func (c *Client) Verify(ctx context.Context, req api.EvaluateRequest) (*api.VerifyResponse, error) {
	var out api.VerifyResponse
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/verify", req, &out, http.StatusOK, http.StatusConflict); err != nil {
		return nil, err
	}
	return &out, nil
}

// Catalog fetches the published catalog document.
func (c *Client) Catalog(ctx context.Context) (*api.CatalogResponse, error) {
	var out api.CatalogResponse
	if err := c.do(ctx, http.MethodGet, "/v1/safety/catalog", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Slugs lists slugs and the service mapping table.
func (c *Client) Slugs(ctx context.Context) (*api.SlugsResponse, error) {
	var out api.SlugsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/safety/slugs", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rules fetches the rules for one slug. An unknown slug matches
// catalog.ErrUnknownSlug.
func (c *Client) Rules(ctx context.Context, slug string) (*api.RulesResponse, error) {
	var out api.RulesResponse
	err := c.do(ctx, http.MethodGet, "/v1/safety/slugs/"+url.PathEscape(slug)+"/rules", nil, &out, http.StatusOK)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownSlug, slug)
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, accept ...int) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	for _, code := range accept {
		if resp.StatusCode == code {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		}
	}

	bodyBytes, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	_ = json.Unmarshal(bodyBytes, &apiErr.Response)
	return apiErr
}
