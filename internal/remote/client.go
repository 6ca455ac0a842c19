package remote

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

const DefaultTimeout = 10 * time.Second

// Client talks to a PostgREST endpoint exposed under {BaseURL}/rest/v1.
type Client struct {
	BaseURL    string
	Key        string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func New(baseURL, key string) *Client {
	return &Client{
		BaseURL: baseURL,
		Key:     key,
		Timeout: DefaultTimeout,
	}
}

// APIError wraps non-2xx responses.
type APIError struct {
	Method     string
	Table      string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote %s %s: status=%d body=%s", e.Method, e.Table, e.StatusCode, e.Body)
}

// Select fetches every row of table into out, which must be a pointer to a slice.
func (c *Client) Select(ctx context.Context, table string, out any) error {
	return c.do(ctx, http.MethodGet, table, url.Values{"select": {"*"}}, nil, out)
}

// Upsert posts rows to table, merging on the primary key.
func (c *Client) Upsert(ctx context.Context, table string, rows any) error {
	return c.do(ctx, http.MethodPost, table, nil, rows, nil)
}

func (c *Client) do(ctx context.Context, method, table string, query url.Values, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{}
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint := c.endpoint(table)
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s rows: %w", table, err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.Key)
	req.Header.Set("Authorization", "Bearer "+c.Key)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "resolution=merge-duplicates")
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("remote %s %s: %w", method, table, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Table: table, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s rows: %w", table, err)
		}
	}
	return nil
}

func (c *Client) endpoint(table string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/rest/v1/" + url.PathEscape(table)
}
