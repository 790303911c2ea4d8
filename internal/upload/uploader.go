// Package upload delivers records to the destination in fixed-size chunks,
// one bulk call per chunk. A failed chunk is logged and counted and the
// loop carries on. Every attempted chunk is followed by a fixed pause before
// the next one goes out; chunks are never sent in parallel.
// Nothing is atomic across chunks.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/erp/seeder/internal/client"
	"github.com/erp/seeder/internal/idempotency"
)

// Mode tells the destination how to treat key conflicts.
type Mode string

const (
	ModeAppend Mode = "append"
	ModeUpsert Mode = "upsert"
)

// Importer performs one bulk import call.
type Importer interface {
	Import(ctx context.Context, req client.ImportRequest) error
}

// Observer receives chunk outcomes, e.g. for metrics.
type Observer interface {
	ObserveChunk(table, status string, records int, d time.Duration)
}

// Keyer derives the idempotency key of a chunk.
type Keyer func(table string, index int, rows []any) (string, error)

// RetryPolicy bounds per-chunk retries. MaxAttempts counts the first try.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// Config tunes the uploader.
type Config struct {
	ChunkSize       int
	InterBatchDelay time.Duration
	Retry           RetryPolicy
	// IdempotencyTTL is how long delivered keys are remembered.
	IdempotencyTTL time.Duration
}

// Uploader sends chunks. It is meant to be used from a single goroutine.
type Uploader struct {
	importer Importer
	cfg      Config
	store    idempotency.Store
	keyer    Keyer
	observer Observer
	logger   *zap.Logger
}

// Option customises an Uploader.
type Option func(*Uploader)

// WithStore enables skipping of chunks delivered by earlier runs.
func WithStore(store idempotency.Store) Option {
	return func(u *Uploader) { u.store = store }
}

// WithKeyer replaces ContentKey.
func WithKeyer(k Keyer) Option {
	return func(u *Uploader) { u.keyer = k }
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) Option {
	return func(u *Uploader) { u.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *Uploader) { u.logger = l }
}

// New creates an Uploader.
func New(importer Importer, cfg Config, opts ...Option) (*Uploader, error) {
	if importer == nil {
		return nil, fmt.Errorf("%w: importer is required", ErrInvalidConfig)
	}
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("%w: chunk size must be at least 1, got %d", ErrInvalidConfig, cfg.ChunkSize)
	}
	if cfg.InterBatchDelay < 0 {
		return nil, fmt.Errorf("%w: negative inter-batch delay", ErrInvalidConfig)
	}
	if cfg.Retry.MaxAttempts < 1 {
		cfg.Retry.MaxAttempts = 1
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry.Multiplier = 2
	}
	if cfg.Retry.MaxBackoff < cfg.Retry.InitialBackoff {
		cfg.Retry.MaxBackoff = cfg.Retry.InitialBackoff
	}

	u := &Uploader{
		importer: importer,
		cfg:      cfg,
		keyer:    ContentKey,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Upload sends records to table in chunks. Chunk failures never abort the
// loop; they are reported in the returned Report. The error is non-nil only
// when ctx ends, in which case the remaining chunks are reported as not
// attempted.
func (u *Uploader) Upload(ctx context.Context, table string, mode Mode, records []any) (*Report, error) {
	report := &Report{Table: table, Total: len(records)}
	chunks := Chunk(records, u.cfg.ChunkSize)
	log := u.logger.With(zap.String("table", table))

	log.Info("uploading", zap.Int("records", len(records)), zap.Int("chunks", len(chunks)))

	var lastEnd time.Time // end of the previous attempted chunk
	offset := 0
	for i, rows := range chunks {
		status := ChunkStatus{Index: i, Offset: offset, Size: len(rows)}
		offset += len(rows)

		if err := ctx.Err(); err != nil {
			u.abandon(report, chunks[i:], status.Offset, i)
			return report, err
		}

		key, err := u.keyer(table, i, rows)
		if err != nil {
			status.Outcome = OutcomeFailed
			status.Err = &ChunkError{Table: table, Index: i, Offset: status.Offset, Size: len(rows), Err: err}
			u.finish(log, report, table, status)
			continue
		}
		status.BatchID = key

		if u.delivered(ctx, log, key) {
			status.Outcome = OutcomeSkipped
			u.finish(log, report, table, status)
			continue
		}

		if err := u.pause(ctx, lastEnd); err != nil {
			u.abandon(report, chunks[i:], status.Offset, i)
			return report, err
		}

		start := time.Now()
		req := client.ImportRequest{Table: table, Mode: string(mode), BatchID: key, Data: rows}
		status.Attempts, err = u.send(ctx, req)
		lastEnd = time.Now()
		status.Duration = lastEnd.Sub(start)

		if err != nil {
			status.Outcome = OutcomeFailed
			status.Err = &ChunkError{Table: table, Index: i, Offset: status.Offset, Size: len(rows), Attempts: status.Attempts, Err: err}
		} else {
			status.Outcome = OutcomeSucceeded
			u.remember(ctx, log, key)
		}
		u.finish(log, report, table, status)
	}

	log.Info("upload finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
	return report, nil
}

// pause waits until InterBatchDelay has passed since lastEnd. A zero lastEnd
// means nothing was sent yet.
func (u *Uploader) pause(ctx context.Context, lastEnd time.Time) error {
	if lastEnd.IsZero() || u.cfg.InterBatchDelay <= 0 {
		return ctx.Err()
	}
	wait := time.Until(lastEnd.Add(u.cfg.InterBatchDelay))
	if wait <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// send performs the bounded retry loop for one chunk.
func (u *Uploader) send(ctx context.Context, req client.ImportRequest) (int, error) {
	var err error
	for attempt := 1; ; attempt++ {
		err = u.importer.Import(ctx, req)
		if err == nil || attempt >= u.cfg.Retry.MaxAttempts || !retryable(ctx, err) {
			return attempt, err
		}

		delay := client.Backoff(attempt, u.cfg.Retry.InitialBackoff, u.cfg.Retry.MaxBackoff, u.cfg.Retry.Multiplier)
		u.logger.Warn("chunk attempt failed, retrying",
			zap.String("table", req.Table),
			zap.String("batch_id", req.BatchID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, err
		case <-timer.C:
		}
	}
}

// retryable: transport errors and temporary statuses, never 4xx.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *client.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}

func (u *Uploader) delivered(ctx context.Context, log *zap.Logger, key string) bool {
	if u.store == nil {
		return false
	}
	done, err := u.store.IsProcessed(ctx, key)
	if err != nil {
		log.Warn("idempotency lookup failed, sending chunk", zap.String("batch_id", key), zap.Error(err))
		return false
	}
	return done
}

func (u *Uploader) remember(ctx context.Context, log *zap.Logger, key string) {
	if u.store == nil {
		return
	}
	if _, err := u.store.MarkProcessed(ctx, key, u.cfg.IdempotencyTTL); err != nil {
		log.Warn("could not record delivered batch", zap.String("batch_id", key), zap.Error(err))
	}
}

func (u *Uploader) finish(log *zap.Logger, report *Report, table string, status ChunkStatus) {
	report.add(status)
	if u.observer != nil {
		u.observer.ObserveChunk(table, string(status.Outcome), status.Size, status.Duration)
	}

	fields := []zap.Field{
		zap.Int("chunk", status.Index),
		zap.Int("records", status.Size),
		zap.String("batch_id", status.BatchID),
	}
	switch status.Outcome {
	case OutcomeFailed:
		var se *client.StatusError
		if errors.As(status.Err, &se) {
			fields = append(fields, zap.Int("status", se.StatusCode), zap.String("body", se.Body))
		}
		log.Error("chunk failed", append(fields, zap.Int("attempts", status.Attempts), zap.Error(status.Err))...)
	case OutcomeSkipped:
		log.Info("chunk already delivered, skipping", fields...)
	default:
		log.Debug("chunk delivered", append(fields, zap.Duration("duration", status.Duration))...)
	}
}

func (u *Uploader) abandon(report *Report, rest [][]any, offset, index int) {
	for j, rows := range rest {
		report.add(ChunkStatus{Index: index + j, Offset: offset, Size: len(rows), Outcome: OutcomeNotAttempted})
		offset += len(rows)
	}
}

// ContentKey hashes the table name, chunk index and the JSON encoding of the
// rows. Equal records give equal keys, so a rerun with the same seed maps
// onto the batches of the previous run.
func ContentKey(table string, index int, rows []any) (string, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("hashing chunk: %w", err)
	}
	sum := sha256.New()
	sum.Write([]byte(table))
	fmt.Fprintf(sum, "\x00%d\x00", index)
	sum.Write(data)
	return table + "-" + hex.EncodeToString(sum.Sum(nil))[:32], nil
}
