package upload

import "slices"

// Chunk partitions records into consecutive slices of at most size
// elements. Concatenating the result gives back records. size must be
// positive.
func Chunk[T any](records []T, size int) [][]T {
	if len(records) == 0 {
		return nil
	}
	return slices.Collect(slices.Chunk(records, size))
}

// Rows widens typed records into the payload's row slice.
func Rows[T any](records []T) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r
	}
	return out
}
