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

	"github.com/grocersync/grocer/internal/queue"
	"github.com/grocersync/grocer/internal/schema"
)

// Client implements Service against the backend's JSON HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a remote client for the given base URL.
//
// The token, if non-empty, is sent as a bearer credential on every request.
// The underlying HTTP client enforces a 30 second transport timeout; drain
// passes additionally bound each call with their own context deadline.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateItem implements Service.CreateItem.
func (c *Client) CreateItem(ctx context.Context, args queue.CreateItemArgs) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/lists/%s/items", url.PathEscape(args.ListID)), args, nil)
}

// ToggleItem implements Service.ToggleItem.
func (c *Client) ToggleItem(ctx context.Context, args queue.ToggleItemArgs) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/v1/items/%s/checked", url.PathEscape(args.ItemID)), args, nil)
}

// UpdateItem implements Service.UpdateItem.
func (c *Client) UpdateItem(ctx context.Context, args queue.UpdateItemArgs) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/v1/items/%s", url.PathEscape(args.ItemID)), args, nil)
}

// DeleteItem implements Service.DeleteItem.
func (c *Client) DeleteItem(ctx context.Context, args queue.DeleteItemArgs) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/items/%s", url.PathEscape(args.ItemID)), nil, nil)
}

// CreateList implements Service.CreateList.
func (c *Client) CreateList(ctx context.Context, args queue.CreateListArgs) error {
	return c.do(ctx, http.MethodPost, "/v1/lists", args, nil)
}

// ArchiveList implements Service.ArchiveList.
func (c *Client) ArchiveList(ctx context.Context, args queue.ArchiveListArgs) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/v1/lists/%s/archive", url.PathEscape(args.ListID)), nil, nil)
}

// UpdateList implements Service.UpdateList.
func (c *Client) UpdateList(ctx context.Context, args queue.UpdateListArgs) error {
	return c.do(ctx, http.MethodPatch, fmt.Sprintf("/v1/lists/%s", url.PathEscape(args.ListID)), args, nil)
}

// FetchItems implements Service.FetchItems.
func (c *Client) FetchItems(ctx context.Context, listID string) ([]schema.Item, error) {
	var items []schema.Item
	path := fmt.Sprintf("/v1/lists/%s/items", url.PathEscape(listID))
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchLists implements Service.FetchLists.
func (c *Client) FetchLists(ctx context.Context, householdID string) ([]schema.List, error) {
	var lists []schema.List
	path := fmt.Sprintf("/v1/households/%s/lists", url.PathEscape(householdID))
	if err := c.do(ctx, http.MethodGet, path, nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// do executes one JSON request against the backend. A non-2xx response is
// an error carrying the server's message when one is provided.
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}
