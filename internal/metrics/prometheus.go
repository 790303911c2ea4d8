// Package metrics exposes seeding progress to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Chunk outcomes used as the status label.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Exporter owns a private registry with the seeder's metrics and can serve
// it over HTTP.
//
// Safe for concurrent use.
type Exporter struct {
	mu       sync.Mutex
	registry *prometheus.Registry

	chunksTotal     *prometheus.CounterVec
	recordsTotal    *prometheus.CounterVec
	chunkDuration   *prometheus.HistogramVec
	verifyDelta     *prometheus.GaugeVec
	phaseDuration   *prometheus.GaugeVec
	lastRunUnixTime prometheus.Gauge

	server  *http.Server
	ln      net.Listener
	running bool
}

// NewExporter creates an exporter with its metrics registered.
func NewExporter() *Exporter {
	e := &Exporter{registry: prometheus.NewRegistry()}

	e.chunksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seeder_chunks_total",
		Help: "Upload chunks by table and outcome.",
	}, []string{"table", "status"})

	e.recordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "seeder_records_total",
		Help: "Records by table and chunk outcome.",
	}, []string{"table", "status"})

	e.chunkDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "seeder_chunk_duration_seconds",
		Help:    "Time spent delivering one chunk, retries included.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"table"})

	e.verifyDelta = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seeder_verification_delta_ratio",
		Help: "Relative difference between achieved and expected values per check.",
	}, []string{"check"})

	e.phaseDuration = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "seeder_phase_duration_seconds",
		Help: "Wall time of the last execution of each phase.",
	}, []string{"phase"})

	e.lastRunUnixTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "seeder_last_run_timestamp_seconds",
		Help: "Unix time the last run finished.",
	})

	e.registry.MustRegister(e.chunksTotal, e.recordsTotal, e.chunkDuration,
		e.verifyDelta, e.phaseDuration, e.lastRunUnixTime)
	return e
}

// ObserveChunk records one chunk outcome.
func (e *Exporter) ObserveChunk(table, status string, records int, d time.Duration) {
	e.chunksTotal.WithLabelValues(table, status).Inc()
	e.recordsTotal.WithLabelValues(table, status).Add(float64(records))
	if status != StatusSkipped {
		e.chunkDuration.WithLabelValues(table).Observe(d.Seconds())
	}
}

// ObserveVerification records the relative delta of a verification check.
func (e *Exporter) ObserveVerification(check string, deltaRatio float64) {
	e.verifyDelta.WithLabelValues(check).Set(deltaRatio)
}

// ObservePhase records a phase's wall time.
func (e *Exporter) ObservePhase(phase string, d time.Duration) {
	e.phaseDuration.WithLabelValues(phase).Set(d.Seconds())
}

// MarkRunFinished stamps the end of a run.
func (e *Exporter) MarkRunFinished(at time.Time) {
	e.lastRunUnixTime.Set(float64(at.Unix()))
}

// Handler serves the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start serves /metrics and /health on addr.
func (e *Exporter) Start(addr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("starting metrics endpoint: %w", err)
	}
	e.ln = ln

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()

	e.running = true
	return nil
}

// Addr returns the bound address, empty when not serving.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln == nil {
		return ""
	}
	return e.ln.Addr().String()
}

// Stop shuts the endpoint down.
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return nil
	}
	e.running = false
	return e.server.Shutdown(ctx)
}
