// Package verify reads aggregates back from the destination and compares
// them with what the run intended to produce. Divergence is reported, never
// corrected.
package verify

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/erp/seeder/internal/client"
)

var (
	// ErrToleranceExceeded is wrapped by Result.Err when achieved and
	// expected diverge by more than the tolerance.
	ErrToleranceExceeded = errors.New("verify: tolerance exceeded")
	// ErrReadBack is returned when the aggregate cannot be read.
	ErrReadBack = errors.New("verify: read-back failed")
)

// SalesTrendReport is the report carrying per-day completed sales.
const SalesTrendReport = "sales-trend"

// DateLayout is the date format of report parameters.
const DateLayout = "2006-01-02"

// Source is the read side of the destination.
type Source interface {
	Report(ctx context.Context, name string, params map[string]string) ([]map[string]any, error)
	Stats(ctx context.Context) (map[string]int64, error)
}

// Observer receives the delta of each check.
type Observer interface {
	ObserveVerification(check string, deltaRatio float64)
}

// Result compares one achieved aggregate with its expectation.
type Result struct {
	Check           string
	Achieved        decimal.Decimal
	Expected        decimal.Decimal
	Delta           decimal.Decimal // achieved - expected
	DeltaFraction   float64         // |delta| / expected, 0 when expected is 0
	Tolerance       float64
	WithinTolerance bool
}

// Err returns nil when the result is within tolerance.
func (r Result) Err() error {
	if r.WithinTolerance {
		return nil
	}
	return fmt.Errorf("%w: %s achieved %s, expected %s (%.2f%% off, tolerance %.2f%%)",
		ErrToleranceExceeded, r.Check, r.Achieved.StringFixed(2), r.Expected.StringFixed(2),
		r.DeltaFraction*100, r.Tolerance*100)
}

// Compare builds a Result.
func Compare(check string, achieved, expected decimal.Decimal, tolerance float64) Result {
	delta := achieved.Sub(expected)
	var frac float64
	if !expected.IsZero() {
		frac = delta.Abs().Div(expected.Abs()).InexactFloat64()
	} else if !achieved.IsZero() {
		frac = 1
	}
	return Result{
		Check:           check,
		Achieved:        achieved,
		Expected:        expected,
		Delta:           delta,
		DeltaFraction:   frac,
		Tolerance:       tolerance,
		WithinTolerance: frac <= tolerance,
	}
}

// Verifier runs checks against a Source.
type Verifier struct {
	source   Source
	observer Observer
	logger   *zap.Logger
}

// Option customises a Verifier.
type Option func(*Verifier)

// WithObserver registers a delta observer.
func WithObserver(o Observer) Option {
	return func(v *Verifier) { v.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(v *Verifier) { v.logger = l }
}

// New creates a Verifier.
func New(source Source, opts ...Option) *Verifier {
	v := &Verifier{source: source, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Revenue returns realized revenue between start and end inclusive: the sum
// of completed orders' final amount as reported by the sales trend.
func (v *Verifier) Revenue(ctx context.Context, start, end time.Time) (decimal.Decimal, error) {
	rows, err := v.source.Report(ctx, SalesTrendReport, map[string]string{
		"start_date": start.Format(DateLayout),
		"end_date":   end.Format(DateLayout),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %w", ErrReadBack, err)
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(client.Decimal(row, "sales_amount"))
	}
	return total, nil
}

// Verify compares realized revenue in [start, end] with expected.
func (v *Verifier) Verify(ctx context.Context, start, end time.Time, expected decimal.Decimal, tolerance float64) (Result, error) {
	achieved, err := v.Revenue(ctx, start, end)
	if err != nil {
		return Result{}, err
	}
	check := fmt.Sprintf("revenue %s..%s", start.Format(DateLayout), end.Format(DateLayout))
	res := Compare(check, achieved, expected, tolerance)
	v.record(res)
	return res, nil
}

// Window is one verification period.
type Window struct {
	Start    time.Time
	End      time.Time
	Expected decimal.Decimal
}

// VerifyPeriods runs Verify for every window. A failed read stops the loop.
func (v *Verifier) VerifyPeriods(ctx context.Context, windows []Window, tolerance float64) ([]Result, error) {
	results := make([]Result, 0, len(windows))
	for _, w := range windows {
		res, err := v.Verify(ctx, w.Start, w.End, w.Expected, tolerance)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Counts snapshots destination row counts.
func (v *Verifier) Counts(ctx context.Context) (map[string]int64, error) {
	stats, err := v.source.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadBack, err)
	}
	return stats, nil
}

// ReconcileCounts checks, per table in succeeded, that the destination grew
// by the number of rows the uploader reports as delivered. Upserted tables
// may legitimately grow by less on reruns.
func (v *Verifier) ReconcileCounts(ctx context.Context, baseline map[string]int64, succeeded map[string]int) ([]Result, error) {
	after, err := v.Counts(ctx)
	if err != nil {
		return nil, err
	}
	var results []Result
	for _, table := range slices.Sorted(maps.Keys(succeeded)) {
		grew := after[table] - baseline[table]
		res := Compare("rows "+table,
			decimal.NewFromInt(grew),
			decimal.NewFromInt(int64(succeeded[table])), 0)
		v.record(res)
		results = append(results, res)
	}
	return results, nil
}

func (v *Verifier) record(res Result) {
	if v.observer != nil {
		v.observer.ObserveVerification(res.Check, res.DeltaFraction)
	}
	fields := []zap.Field{
		zap.String("check", res.Check),
		zap.String("achieved", res.Achieved.StringFixed(2)),
		zap.String("expected", res.Expected.StringFixed(2)),
		zap.Float64("delta_fraction", res.DeltaFraction),
	}
	if res.WithinTolerance {
		v.logger.Info("verification passed", fields...)
		return
	}
	v.logger.Warn("verification outside tolerance", fields...)
}
