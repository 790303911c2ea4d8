// Package summary renders the outcome of a seeding run: a coloured console
// report, an XLSX workbook and an optional copy of the workbook in
// S3-compatible storage.
package summary

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erp/seeder/internal/upload"
	"github.com/erp/seeder/internal/verify"
)

// PhaseError records a phase that could not complete.
type PhaseError struct {
	Phase string
	Err   error
}

// Summary is everything a run produced.
type Summary struct {
	RunID        string
	Plan         string
	Seed         int64
	Target       decimal.Decimal
	Generated    decimal.Decimal // sum of allocated sales subtotals
	StartedAt    time.Time
	FinishedAt   time.Time
	Uploads      []*upload.Report
	Verification []verify.Result
	PhaseErrors  []PhaseError
}

// Totals aggregates record counts across tables.
type Totals struct {
	Records      int
	Succeeded    int
	Failed       int
	Skipped      int
	NotAttempted int
}

// Totals sums every upload report.
func (s *Summary) Totals() Totals {
	var t Totals
	for _, r := range s.Uploads {
		t.Records += r.Total
		t.Succeeded += r.Succeeded
		t.Failed += r.Failed
		t.Skipped += r.Skipped
		t.NotAttempted += r.NotAttempted
	}
	return t
}

// Succeeded returns delivered rows per table.
func (s *Summary) Succeeded() map[string]int {
	out := make(map[string]int, len(s.Uploads))
	for _, r := range s.Uploads {
		out[r.Table] += r.Succeeded
	}
	return out
}

// Report returns the upload report of table, nil if it was not uploaded.
func (s *Summary) Report(table string) *upload.Report {
	for _, r := range s.Uploads {
		if r.Table == table {
			return r
		}
	}
	return nil
}

// Err joins phase errors, chunk errors and failed verifications. A run with
// a non-nil Err still delivered whatever the reports say it did.
func (s *Summary) Err() error {
	var errs []error
	for _, pe := range s.PhaseErrors {
		errs = append(errs, fmt.Errorf("phase %s: %w", pe.Phase, pe.Err))
	}
	for _, r := range s.Uploads {
		if err := r.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, v := range s.Verification {
		if err := v.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Duration of the run.
func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
