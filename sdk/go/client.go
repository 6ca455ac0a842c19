package dofalinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal dofaline HTTP API client.
type Client struct {
	BaseURL     string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Action is a corrective or improvement action attached to a record.
type Action struct {
	ID                    string `json:"id,omitempty"`
	Text                  string `json:"text"`
	Responsible           string `json:"responsible,omitempty"`
	StartDate             string `json:"startDate,omitempty"`
	EndDate               string `json:"endDate,omitempty"`
	EffectivenessFollowUp string `json:"effectivenessFollowUp,omitempty"`
}

// Record is a DOFA factor.
type Record struct {
	ID            string   `json:"id,omitempty"`
	Country       string   `json:"country"`
	Axis          string   `json:"axis"`
	Category      string   `json:"category"`
	Type          string   `json:"type"`
	Factor        string   `json:"factor"`
	Description   string   `json:"description,omitempty"`
	Justification string   `json:"justification,omitempty"`
	Impact        int      `json:"impact"`
	User          string   `json:"user,omitempty"`
	Timestamp     int64    `json:"timestamp,omitempty"`
	Actions       []Action `json:"actions,omitempty"`
}

// Task is an action with its derived status.
type Task struct {
	Action
	Status         string `json:"status"`
	ParentFactor   string `json:"parentFactor"`
	ParentCountry  string `json:"parentCountry"`
	ParentAxis     string `json:"parentAxis"`
	ParentRecordID string `json:"parentRecordId"`
}

type TaskStats struct {
	Total      int `json:"total"`
	Open       int `json:"open"`
	InProgress int `json:"in_progress"`
	Closed     int `json:"closed"`
	Delayed    int `json:"delayed"`
}

type TaskList struct {
	Items []Task    `json:"items"`
	Stats TaskStats `json:"stats"`
}

type Indicator struct {
	ID          string `json:"id,omitempty"`
	ProcessID   string `json:"processId"`
	ProcessName string `json:"processName,omitempty"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name"`
	Goal        string `json:"goal,omitempty"`
	Formula     string `json:"formula,omitempty"`
	Timestamp   int64  `json:"timestamp,omitempty"`
}

type SyncStatus struct {
	Connected       bool       `json:"connected"`
	URL             string     `json:"url"`
	RecordsTable    string     `json:"records_table"`
	IndicatorsTable string     `json:"indicators_table"`
	Pulling         bool       `json:"pulling"`
	PendingPushes   int        `json:"pending_pushes"`
	LastPullAt      *time.Time `json:"last_pull_at"`
	LastPushAt      *time.Time `json:"last_push_at"`
	LastError       string     `json:"last_error"`
	LastErrorAt     *time.Time `json:"last_error_at"`
}

type SyncResult struct {
	Result struct {
		Records    int `json:"records"`
		Indicators int `json:"indicators"`
	} `json:"result"`
	Status SyncStatus `json:"status"`
}

// RemoteSettings changes the remote connection; nil fields are left untouched.
type RemoteSettings struct {
	URL             *string `json:"url,omitempty"`
	Key             *string `json:"key,omitempty"`
	RecordsTable    *string `json:"records_table,omitempty"`
	IndicatorsTable *string `json:"indicators_table,omitempty"`
}

type RemoteSettingsView struct {
	URL             string `json:"url"`
	Key             string `json:"key"`
	RecordsTable    string `json:"records_table"`
	IndicatorsTable string `json:"indicators_table"`
	Enabled         bool   `json:"enabled"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// RecordQuery filters ListRecords. Empty fields match everything.
type RecordQuery struct {
	Country string
	Type    string
	Search  string
}

func (c *Client) ListRecords(ctx context.Context, q RecordQuery) ([]Record, error) {
	var resp []Record
	err := c.do(ctx, http.MethodGet, withQuery("records", map[string]string{
		"country": q.Country, "type": q.Type, "q": q.Search,
	}), nil, &resp)
	return resp, err
}

// CreateRecord creates a record; an empty User defaults to the caller.
func (c *Client) CreateRecord(ctx context.Context, r Record) (Record, error) {
	var resp Record
	err := c.do(ctx, http.MethodPost, "records", r, &resp)
	return resp, err
}

func (c *Client) GetRecord(ctx context.Context, id string) (Record, error) {
	var resp Record
	err := c.do(ctx, http.MethodGet, "records/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ReplaceRecord overwrites a record, including its action list.
func (c *Client) ReplaceRecord(ctx context.Context, r Record) (Record, error) {
	var resp Record
	err := c.do(ctx, http.MethodPut, "records/"+url.PathEscape(r.ID), r, &resp)
	return resp, err
}

func (c *Client) DeleteRecord(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "records/"+url.PathEscape(id), nil, nil)
}

func (c *Client) AddAction(ctx context.Context, recordID string, a Action) (Action, error) {
	var resp Action
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("records/%s/actions", url.PathEscape(recordID)), a, &resp)
	return resp, err
}

func (c *Client) UpdateAction(ctx context.Context, recordID string, a Action) (Action, error) {
	var resp Action
	endpoint := fmt.Sprintf("records/%s/actions/%s", url.PathEscape(recordID), url.PathEscape(a.ID))
	err := c.do(ctx, http.MethodPut, endpoint, a, &resp)
	return resp, err
}

func (c *Client) RemoveAction(ctx context.Context, recordID, actionID string) error {
	endpoint := fmt.Sprintf("records/%s/actions/%s", url.PathEscape(recordID), url.PathEscape(actionID))
	return c.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// Tasks lists actions by derived status ("all" or empty for every status).
func (c *Client) Tasks(ctx context.Context, status, search string) (TaskList, error) {
	var resp TaskList
	err := c.do(ctx, http.MethodGet, withQuery("tasks", map[string]string{"status": status, "q": search}), nil, &resp)
	return resp, err
}

func (c *Client) TaskStats(ctx context.Context) (TaskStats, error) {
	var resp TaskStats
	err := c.do(ctx, http.MethodGet, "tasks/stats", nil, &resp)
	return resp, err
}

func (c *Client) ListIndicators(ctx context.Context, indicatorType, processID, search string) ([]Indicator, error) {
	var resp []Indicator
	err := c.do(ctx, http.MethodGet, withQuery("indicators", map[string]string{
		"type": indicatorType, "process_id": processID, "q": search,
	}), nil, &resp)
	return resp, err
}

func (c *Client) CreateIndicator(ctx context.Context, ind Indicator) (Indicator, error) {
	var resp Indicator
	err := c.do(ctx, http.MethodPost, "indicators", ind, &resp)
	return resp, err
}

func (c *Client) DeleteIndicator(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "indicators/"+url.PathEscape(id), nil, nil)
}

// Dashboard returns the headline figures as decoded JSON.
func (c *Client) Dashboard(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, "dashboard", nil, &resp)
	return resp, err
}

// ExportRecordsCSV downloads the records report and its suggested file name.
func (c *Client) ExportRecordsCSV(ctx context.Context) ([]byte, string, error) {
	return c.download(ctx, "export/records.csv")
}

func (c *Client) ExportIndicatorsCSV(ctx context.Context) ([]byte, string, error) {
	return c.download(ctx, "export/indicators.csv")
}

func (c *Client) RemoteSettings(ctx context.Context) (RemoteSettingsView, error) {
	var resp RemoteSettingsView
	err := c.do(ctx, http.MethodGet, "settings/remote", nil, &resp)
	return resp, err
}

func (c *Client) UpdateRemoteSettings(ctx context.Context, s RemoteSettings) (RemoteSettingsView, error) {
	var resp RemoteSettingsView
	err := c.do(ctx, http.MethodPut, "settings/remote", s, &resp)
	return resp, err
}

func (c *Client) SyncStatus(ctx context.Context) (SyncStatus, error) {
	var resp SyncStatus
	err := c.do(ctx, http.MethodGet, "sync/status", nil, &resp)
	return resp, err
}

func (c *Client) Pull(ctx context.Context) (SyncResult, error) {
	var resp SyncResult
	err := c.do(ctx, http.MethodPost, "sync/pull", nil, &resp)
	return resp, err
}

func (c *Client) Push(ctx context.Context) (SyncResult, error) {
	var resp SyncResult
	err := c.do(ctx, http.MethodPost, "sync/push", nil, &resp)
	return resp, err
}

// SyncNow pushes local state and then pulls the remote tables.
func (c *Client) SyncNow(ctx context.Context) (SyncResult, error) {
	var resp SyncResult
	err := c.do(ctx, http.MethodPost, "sync/now", nil, &resp)
	return resp, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	params := map[string]string{"cursor": cursor}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", params), nil, &resp)
	return resp, err
}

func (c *Client) download(ctx context.Context, endpoint string) ([]byte, string, error) {
	resp, err := c.send(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	var name string
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	return data, name, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return resp, nil
}

func withQuery(endpoint string, params map[string]string) string {
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
