package summary

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/erp/seeder/internal/config"
	"github.com/erp/seeder/internal/upload"
	"github.com/erp/seeder/internal/verify"
)

func sampleSummary() *Summary {
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Summary{
		RunID:      "run-1",
		Plan:       "monthly",
		Seed:       42,
		Target:     decimal.NewFromInt(33333),
		Generated:  decimal.NewFromInt(33333),
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Uploads: []*upload.Report{
			{Table: "customers", Total: 15, Succeeded: 15, Chunks: []upload.ChunkStatus{
				{Index: 0, Size: 15, Outcome: upload.OutcomeSucceeded, Attempts: 1},
			}},
			{Table: "sales_orders", Total: 60, Succeeded: 40, Failed: 20, Chunks: []upload.ChunkStatus{
				{Index: 0, Size: 20, Outcome: upload.OutcomeSucceeded, Attempts: 1},
				{Index: 1, Offset: 20, Size: 20, Outcome: upload.OutcomeFailed, Attempts: 1,
					Err: &upload.ChunkError{Table: "sales_orders", Index: 1, Err: errors.New("boom")}},
				{Index: 2, Offset: 40, Size: 20, Outcome: upload.OutcomeSucceeded, Attempts: 1},
			}},
		},
		Verification: []verify.Result{
			verify.Compare("revenue", decimal.NewFromInt(22000), decimal.NewFromInt(33333), 0.1),
		},
		PhaseErrors: []PhaseError{{Phase: "sales_items", Err: errors.New("no orders")}},
	}
}

func TestTotals(t *testing.T) {
	s := sampleSummary()

	tot := s.Totals()
	assert.Equal(t, 75, tot.Records)
	assert.Equal(t, 55, tot.Succeeded)
	assert.Equal(t, 20, tot.Failed)
	assert.Equal(t, map[string]int{"customers": 15, "sales_orders": 40}, s.Succeeded())
	assert.Equal(t, 90*time.Second, s.Duration())
	assert.NotNil(t, s.Report("sales_orders"))
	assert.Nil(t, s.Report("items"))
}

func TestErr(t *testing.T) {
	s := sampleSummary()
	err := s.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, upload.ErrChunkUpload)
	assert.ErrorIs(t, err, verify.ErrToleranceExceeded)
	assert.Contains(t, err.Error(), "phase sales_items")

	clean := &Summary{Uploads: []*upload.Report{{Table: "items", Total: 1, Succeeded: 1}}}
	assert.NoError(t, clean.Err())
}

func TestWriteConsole(t *testing.T) {
	var buf bytes.Buffer
	WriteConsole(&buf, sampleSummary(), false)
	out := buf.String()

	assert.Contains(t, out, "Seeding run run-1 (monthly, seed 42)")
	assert.Contains(t, out, "sales_orders")
	assert.Contains(t, out, "[FAIL] revenue")
	assert.Contains(t, out, "sales_items: no orders")
	assert.NotContains(t, out, "\x1b[", "colour disabled")
}

func TestWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.xlsx")
	require.NoError(t, SaveWorkbook(path, sampleSummary()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetUploads, SheetChunks, SheetVerification}, f.GetSheetList())

	rows, err := f.GetRows(SheetUploads)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"sales_orders", "60", "40", "20", "0", "0"}, rows[2])
	assert.Equal(t, "total", rows[3][0])

	chunks, err := f.GetRows(SheetChunks)
	require.NoError(t, err)
	assert.Len(t, chunks, 5)
	assert.Equal(t, "failed", chunks[3][5])

	ver, err := f.GetRows(SheetVerification)
	require.NoError(t, err)
	require.Len(t, ver, 2)
	assert.Equal(t, "revenue", ver[1][0])
	assert.Equal(t, "FALSE", ver[1][6])
}

func TestS3Exporter(t *testing.T) {
	var gotMethod, gotPath, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("ETag", `"abc"`)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	exp, err := NewS3Exporter(context.Background(), config.S3Config{
		Bucket:          "reports",
		Region:          "us-east-1",
		Endpoint:        srv.URL,
		Prefix:          "/seeder/",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	key, err := exp.Export(context.Background(), sampleSummary())
	require.NoError(t, err)

	assert.Equal(t, "seeder/seeder-run-1.xlsx", key)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/reports/seeder/seeder-run-1.xlsx", gotPath)
	assert.Equal(t, XLSXContentType, gotType)
	assert.True(t, strings.Contains(string(gotBody), "PK"), "xlsx is a zip archive")
}

func TestNewS3Exporter_RequiresBucket(t *testing.T) {
	_, err := NewS3Exporter(context.Background(), config.S3Config{})
	assert.Error(t, err)
}
