package metrics

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporter_ObserveChunk(t *testing.T) {
	e := NewExporter()

	e.ObserveChunk("sales_orders", StatusSucceeded, 20, 150*time.Millisecond)
	e.ObserveChunk("sales_orders", StatusSucceeded, 20, 90*time.Millisecond)
	e.ObserveChunk("sales_orders", StatusFailed, 20, time.Second)
	e.ObserveChunk("sales_orders", StatusSkipped, 5, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.chunksTotal.WithLabelValues("sales_orders", StatusSucceeded)))
	assert.Equal(t, 40.0, testutil.ToFloat64(e.recordsTotal.WithLabelValues("sales_orders", StatusSucceeded)))
	assert.Equal(t, 20.0, testutil.ToFloat64(e.recordsTotal.WithLabelValues("sales_orders", StatusFailed)))
	assert.Equal(t, 5.0, testutil.ToFloat64(e.recordsTotal.WithLabelValues("sales_orders", StatusSkipped)))
	assert.Equal(t, 1, testutil.CollectAndCount(e.chunkDuration))
}

func TestExporter_Gauges(t *testing.T) {
	e := NewExporter()

	e.ObserveVerification("revenue", -0.04)
	e.ObservePhase("sales", 3*time.Second)
	e.MarkRunFinished(time.Unix(1700000000, 0))

	assert.Equal(t, -0.04, testutil.ToFloat64(e.verifyDelta.WithLabelValues("revenue")))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.phaseDuration.WithLabelValues("sales")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(e.lastRunUnixTime))
}

func TestExporter_StartStop(t *testing.T) {
	e := NewExporter()
	e.ObserveChunk("items", StatusSucceeded, 3, time.Millisecond)

	require.NoError(t, e.Start("127.0.0.1:0"))
	require.NoError(t, e.Start("127.0.0.1:0"), "second start is a no-op")
	addr := e.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `seeder_chunks_total{status="succeeded",table="items"} 1`))

	resp, err = http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	require.NoError(t, e.Stop(ctx))
}
