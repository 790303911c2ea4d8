package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Destination endpoints.
const (
	ImportPath = "/data-import/import"
	StatsPath  = "/data-import/stats"
	ReportPath = "/reports/"
)

// StatusError is a non-2xx answer from the destination.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether retrying might help.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

func statusError(method, path string, resp *Response) error {
	return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncate(resp.Body)}
}

// ImportRequest is one bulk insert call carrying structured rows.
type ImportRequest struct {
	Table   string `json:"tableName"`
	Mode    string `json:"mode,omitempty"`
	BatchID string `json:"batchId,omitempty"`
	Data    []any  `json:"data"`
}

// Import sends one batch. The batch id doubles as the Idempotency-Key header.
func (c *Client) Import(ctx context.Context, req ImportRequest) error {
	headers := map[string]string{}
	if req.BatchID != "" {
		headers["Idempotency-Key"] = req.BatchID
	}
	resp, err := c.Do(ctx, Request{Method: "POST", Path: ImportPath, Body: req, Headers: headers})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return statusError("POST", ImportPath, resp)
	}
	return nil
}

// Stats returns row counts per table.
func (c *Client) Stats(ctx context.Context) (map[string]int64, error) {
	resp, err := c.Get(ctx, StatsPath, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError("GET", StatsPath, resp)
	}

	var raw map[string]json.Number
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return nil, fmt.Errorf("decoding stats: %w", err)
	}
	out := make(map[string]int64, len(raw))
	for table, n := range raw {
		v, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("stats %s: %w", table, err)
		}
		out[table] = v
	}
	return out, nil
}

// List fetches one page of an entity collection. Both {"data": [...]} and
// bare array bodies are accepted.
func (c *Client) List(ctx context.Context, entity string, page, pageSize int) ([]map[string]any, error) {
	path := "/" + strings.Trim(entity, "/")
	resp, err := c.Get(ctx, path, map[string]string{
		"page":     strconv.Itoa(page),
		"pageSize": strconv.Itoa(pageSize),
	})
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError("GET", path, resp)
	}
	return c.rows(resp.Body)
}

// Report fetches a named report.
func (c *Client) Report(ctx context.Context, name string, params map[string]string) ([]map[string]any, error) {
	path := ReportPath + strings.Trim(name, "/")
	resp, err := c.Get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError("GET", path, resp)
	}
	return c.rows(resp.Body)
}

func (c *Client) rows(body []byte) ([]map[string]any, error) {
	path := "$.data"
	if trimmed := strings.TrimSpace(string(body)); strings.HasPrefix(trimmed, "[") {
		path = "$"
	}
	items, err := c.parser.ExtractArray(body, path)
	if err != nil {
		return nil, fmt.Errorf("decoding list: %w", err)
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("decoding list: element is %T", it)
		}
		out = append(out, obj)
	}
	return out, nil
}

// Field helpers for rows returned by List and Report.

// Int64 reads an integer field.
func Int64(row map[string]any, key string) (int64, bool) {
	switch v := row[key].(type) {
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// String reads a string field.
func String(row map[string]any, key string) string {
	if v, ok := row[key].(string); ok {
		return v
	}
	return ""
}

// Decimal reads a numeric field that may be encoded as number or string.
func Decimal(row map[string]any, key string) decimal.Decimal {
	switch v := row[key].(type) {
	case float64:
		return decimal.NewFromFloat(v)
	case string:
		d, err := decimal.NewFromString(v)
		if err == nil {
			return d
		}
	}
	return decimal.Zero
}
