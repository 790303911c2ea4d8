package upload

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunk_Partition(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"empty", 0, 20, nil},
		{"exact", 60, 20, []int{20, 20, 20}},
		{"remainder", 45, 20, []int{20, 20, 5}},
		{"single", 3, 50, []int{3}},
		{"size one", 3, 1, []int{1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]int, tt.n)
			for i := range records {
				records[i] = i
			}

			chunks := Chunk(records, tt.size)

			var sizes []int
			var flat []int
			for _, c := range chunks {
				assert.LessOrEqual(t, len(c), tt.size)
				assert.NotEmpty(t, c)
				sizes = append(sizes, len(c))
				flat = append(flat, c...)
			}
			assert.Equal(t, tt.sizes, sizes)
			if tt.n > 0 {
				assert.Equal(t, records, flat)
			}
		})
	}
}

func TestRows(t *testing.T) {
	rows := Rows([]string{"a", "b"})
	assert.Equal(t, []any{"a", "b"}, rows)
	assert.Empty(t, Rows([]int(nil)))
}
