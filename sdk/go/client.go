package buglinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Bugline HTTP API client. BaseURL includes the API
// base path, e.g. http://localhost:9001/api.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Bug represents the API bug model.
type Bug struct {
	ID          int64  `json:"id"`
	Description string `json:"description"`
	UserID      *int64 `json:"userId,omitempty"`
	Resolved    bool   `json:"resolved"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	Payload    map[string]any `json:"payload"`
}

// BugUpdate carries the fields a PATCH may change. Nil fields are left as
// they are.
type BugUpdate struct {
	Resolved *bool  `json:"resolved,omitempty"`
	UserID   *int64 `json:"userId,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal([]byte(e.Body), &env) == nil && env.Error.Message != "" {
		return fmt.Sprintf("api error: status=%d: %s", e.StatusCode, env.Error.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) HTTPStatus() int      { return e.StatusCode }
func (e *APIError) ResponseBody() string { return e.Body }

// Call performs one request relative to BaseURL and returns the raw
// response body. It is the transport of the store's api middleware.
func (c *Client) Call(ctx context.Context, method, endpoint string, data any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, method, endpoint, data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListBugs returns every bug.
func (c *Client) ListBugs(ctx context.Context) ([]Bug, error) {
	var resp []Bug
	err := c.do(ctx, http.MethodGet, "bugs", nil, &resp)
	return resp, err
}

// CreateBug creates a bug; the server assigns id and resolved.
func (c *Client) CreateBug(ctx context.Context, description string, userID *int64) (Bug, error) {
	body := map[string]any{"description": description}
	if userID != nil {
		body["userId"] = *userID
	}
	var resp Bug
	err := c.do(ctx, http.MethodPost, "bugs", body, &resp)
	return resp, err
}

// UpdateBug merges upd into bug id and returns the stored bug.
func (c *Client) UpdateBug(ctx context.Context, id int64, upd BugUpdate) (Bug, error) {
	var resp Bug
	err := c.do(ctx, http.MethodPatch, fmt.Sprintf("bugs/%d", id), upd, &resp)
	return resp, err
}

// Events returns recent events, newest first. An empty eventType matches
// every type.
func (c *Client) Events(ctx context.Context, limit int, eventType string) ([]Event, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if eventType != "" {
		q.Set("type", eventType)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Health reports whether the server answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
