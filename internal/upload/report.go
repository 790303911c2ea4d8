package upload

import (
	"errors"
	"time"
)

// Outcome of one chunk.
type Outcome string

const (
	OutcomeSucceeded    Outcome = "succeeded"
	OutcomeFailed       Outcome = "failed"
	OutcomeSkipped      Outcome = "skipped" // already delivered by an earlier run
	OutcomeNotAttempted Outcome = "not_attempted"
)

// ChunkStatus is the fate of one chunk.
type ChunkStatus struct {
	Index    int
	Offset   int
	Size     int
	BatchID  string
	Attempts int
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// Report summarises one Upload call.
type Report struct {
	Table        string
	Total        int
	Succeeded    int
	Failed       int
	Skipped      int
	NotAttempted int
	Chunks       []ChunkStatus
}

// Err joins the chunk errors, nil when every attempted chunk succeeded.
func (r *Report) Err() error {
	var errs []error
	for _, c := range r.Chunks {
		if c.Err != nil {
			errs = append(errs, c.Err)
		}
	}
	return errors.Join(errs...)
}

// Delivered reports whether record i reached the destination in this run or
// an earlier one.
func (r *Report) Delivered(i int) bool {
	for _, c := range r.Chunks {
		if i >= c.Offset && i < c.Offset+c.Size {
			return c.Outcome == OutcomeSucceeded || c.Outcome == OutcomeSkipped
		}
	}
	return false
}

func (r *Report) add(c ChunkStatus) {
	r.Chunks = append(r.Chunks, c)
	switch c.Outcome {
	case OutcomeSucceeded:
		r.Succeeded += c.Size
	case OutcomeFailed:
		r.Failed += c.Size
	case OutcomeSkipped:
		r.Skipped += c.Size
	case OutcomeNotAttempted:
		r.NotAttempted += c.Size
	}
}
