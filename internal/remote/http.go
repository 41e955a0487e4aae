package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultTimeout = 15 * time.Second

// HTTPClient talks to the hosted document database over its REST surface.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPClient creates a client for the given base URL. A zero timeout
// falls back to 15s per attempt.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type listResponse struct {
	Records    []Record `json:"records"`
	NextCursor string   `json:"nextCursor"`
	HasMore    bool     `json:"hasMore"`
}

type createResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// List queries records of a kind, filtered and paginated.
func (c *HTTPClient) List(ctx context.Context, kind Kind, filter Filter, cursor string) (Page, error) {
	q := url.Values{}
	if !filter.ModifiedSince.IsZero() {
		q.Set("modifiedSince", filter.ModifiedSince.Format(time.RFC3339Nano))
	}
	if !filter.IncludeArchived {
		q.Set("archived", "false")
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var out listResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s?%s", string(kind), q.Encode()), nil, &out); err != nil {
		return Page{}, err
	}
	return Page{Records: out.Records, NextCursor: out.NextCursor, HasMore: out.HasMore}, nil
}

// Create stores a new record and returns its remote-assigned id.
func (c *HTTPClient) Create(ctx context.Context, kind Kind, payload json.RawMessage) (string, error) {
	var out createResponse
	if err := c.do(ctx, http.MethodPost, string(kind), payload, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Update replaces a record's payload.
func (c *HTTPClient) Update(ctx context.Context, kind Kind, id string, payload json.RawMessage) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("%s/%s", string(kind), url.PathEscape(id)), payload, nil)
}

// Archive soft-deletes a record.
func (c *HTTPClient) Archive(ctx context.Context, kind Kind, id string) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("%s/%s/archive", string(kind), url.PathEscape(id)), nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body json.RawMessage, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fmt.Sprintf("%s/%s", c.baseURL, path), reader)
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope errorResponse
		msg := resp.Status
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096)); readErr == nil {
			if json.Unmarshal(data, &envelope) == nil && envelope.Error.Message != "" {
				msg = envelope.Error.Message
			}
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s %s response: %w", method, path, err)
	}
	return nil
}
