package upload

import (
	"errors"
	"fmt"
)

// ErrChunkUpload marks a chunk the destination did not accept.
var ErrChunkUpload = errors.New("upload: chunk rejected")

// ErrInvalidConfig is returned by New.
var ErrInvalidConfig = errors.New("upload: invalid configuration")

// ChunkError describes one failed chunk. It matches ErrChunkUpload with
// errors.Is and exposes the underlying error (for example a
// *client.StatusError carrying the response body) to errors.As.
type ChunkError struct {
	Table    string
	Index    int
	Offset   int
	Size     int
	Attempts int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("upload %s chunk %d (records %d-%d) failed after %d attempt(s): %v",
		e.Table, e.Index, e.Offset, e.Offset+e.Size-1, e.Attempts, e.Err)
}

// Unwrap exposes both the sentinel and the cause.
func (e *ChunkError) Unwrap() []error {
	return []error{ErrChunkUpload, e.Err}
}
