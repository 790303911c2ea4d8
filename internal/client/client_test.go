package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erp/seeder/internal/config"
)

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 2, RetryDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(config.TargetConfig{BaseURL: url, Timeout: 5 * time.Second}, fastRetry())
	require.NoError(t, err)
	return c
}

// TestClientCreation tests base URL validation.
func TestClientCreation(t *testing.T) {
	_, err := New(config.TargetConfig{}, nil)
	assert.Error(t, err)

	_, err = New(config.TargetConfig{BaseURL: "localhost"}, nil)
	assert.Error(t, err)

	c, err := New(config.TargetConfig{BaseURL: "http://localhost:3000/api"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/api", c.baseURL.String())
}

func TestBuildURL_KeepsBasePath(t *testing.T) {
	c := newTestClient(t, "http://erp.local/api/")

	u, err := c.buildURL("auth/login", nil)
	require.NoError(t, err)
	assert.Equal(t, "http://erp.local/api/auth/login", u.String())

	u, err = c.buildURL("/items", map[string]string{"page": "2"})
	require.NoError(t, err)
	assert.Equal(t, "http://erp.local/api/items?page=2", u.String())
}

func TestAuthenticate(t *testing.T) {
	var logins atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			logins.Add(1)
			var creds Credentials
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			if creds.Password != "right" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"bad credentials"}`))
				return
			}
			w.Write([]byte(`{"token":"tok-123","user":{"id":1}}`))
		case "/api/data-import/stats":
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			w.Write([]byte(`{"items":3}`))
		}
	}))
	defer server.Close()

	t.Run("caches the token", func(t *testing.T) {
		logins.Store(0)
		c := newTestClient(t, server.URL+"/api")

		s1, err := c.Authenticate(context.Background(), Credentials{"admin", "right"}, "")
		require.NoError(t, err)
		s2, err := c.Authenticate(context.Background(), Credentials{"admin", "right"}, "")
		require.NoError(t, err)

		assert.Same(t, s1, s2)
		assert.Equal(t, int32(1), logins.Load())

		stats, err := c.Stats(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(3), stats["items"])
	})

	t.Run("rejected credentials", func(t *testing.T) {
		c := newTestClient(t, server.URL+"/api")
		_, err := c.Authenticate(context.Background(), Credentials{"admin", "wrong"}, "")
		assert.ErrorIs(t, err, ErrAuth)
		assert.Nil(t, c.session)
	})

	t.Run("missing credentials", func(t *testing.T) {
		c := newTestClient(t, server.URL+"/api")
		_, err := c.Authenticate(context.Background(), Credentials{}, "")
		assert.ErrorIs(t, err, ErrAuth)
	})

	t.Run("token path mismatch", func(t *testing.T) {
		c := newTestClient(t, server.URL+"/api")
		_, err := c.Authenticate(context.Background(), Credentials{"admin", "right"}, "$.data.access_token")
		assert.ErrorIs(t, err, ErrAuth)
	})
}

func TestAuthenticate_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(t, url)
	_, err := c.Authenticate(context.Background(), Credentials{"a", "b"}, "")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestAuthenticate_ReadsJWTExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()}).SignedString([]byte("k"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"token": signed}})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	s, err := c.Authenticate(context.Background(), Credentials{"a", "b"}, "$.data.token")
	require.NoError(t, err)
	assert.True(t, s.ExpiresAt.Equal(exp))

	now := time.Now()
	assert.False(t, s.ExpiresWithin(now, 30*time.Minute))
	assert.True(t, s.ExpiresWithin(now, 2*time.Hour))
}

func TestSession_ExpiresWithin_NoExpiry(t *testing.T) {
	s := &Session{Token: "opaque"}
	assert.False(t, s.ExpiresWithin(time.Now(), 24*time.Hour))

	var missing *Session
	assert.False(t, missing.ExpiresWithin(time.Now(), time.Hour))
}

func TestDo_RetriesOnlySafeMethods(t *testing.T) {
	var gets, posts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if gets.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`[]`))
			return
		}
		posts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)

	resp, err := c.Get(context.Background(), "/items", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), gets.Load())

	err = c.Import(context.Background(), ImportRequest{Table: "items", Data: []any{map[string]any{"code": "X"}}})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.True(t, se.Temporary())
	assert.Equal(t, int32(1), posts.Load())
}

func TestImport_Payload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data-import/import", r.URL.Path)
		assert.Equal(t, "batch-1", r.Header.Get("Idempotency-Key"))

		var body struct {
			TableName string           `json:"tableName"`
			Mode      string           `json:"mode"`
			BatchID   string           `json:"batchId"`
			Data      []map[string]any `json:"data"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "customers", body.TableName)
		assert.Equal(t, "upsert", body.Mode)
		assert.Equal(t, "batch-1", body.BatchID)
		if assert.Len(t, body.Data, 2) {
			assert.Equal(t, "CUS001", body.Data[0]["code"])
		}
		w.Write([]byte(`{"message":"ok"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	err := c.Import(context.Background(), ImportRequest{
		Table:   "customers",
		Mode:    "upsert",
		BatchID: "batch-1",
		Data:    []any{map[string]any{"code": "CUS001"}, map[string]any{"code": "CUS002"}},
	})
	assert.NoError(t, err)
}

func TestListAndReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/customers":
			assert.Equal(t, "2", r.URL.Query().Get("page"))
			assert.Equal(t, "50", r.URL.Query().Get("pageSize"))
			w.Write([]byte(`{"data":[{"id":7,"code":"CUS007"}],"total":51}`))
		case "/warehouses":
			w.Write([]byte(`[{"id":1,"name":"main"},{"id":"2","name":"branch"}]`))
		case "/reports/sales-trend":
			assert.Equal(t, "2024-03-01", r.URL.Query().Get("start_date"))
			w.Write([]byte(`[{"date":"2024-03-01","sales_amount":"1200.50"}]`))
		case "/broken":
			w.Write([]byte(`{"data":{"id":1}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	ctx := context.Background()

	rows, err := c.List(ctx, "customers", 2, 50)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id, ok := Int64(rows[0], "id")
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)
	assert.Equal(t, "CUS007", String(rows[0], "code"))

	rows, err = c.List(ctx, "/warehouses", 1, 50)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	id, ok = Int64(rows[1], "id")
	assert.True(t, ok)
	assert.Equal(t, int64(2), id)

	report, err := c.Report(ctx, "sales-trend", map[string]string{"start_date": "2024-03-01"})
	require.NoError(t, err)
	assert.Equal(t, "1200.5", Decimal(report[0], "sales_amount").String())

	_, err = c.List(ctx, "broken", 1, 10)
	assert.Error(t, err)

	_, err = c.List(ctx, "missing", 1, 10)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.False(t, se.Temporary())
}

func TestBackoff(t *testing.T) {
	for attempt := 1; attempt <= 6; attempt++ {
		d := Backoff(attempt, 100*time.Millisecond, time.Second, 2)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	}
}
