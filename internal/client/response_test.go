package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONPath(t *testing.T) {
	p := NewResponseParser()
	doc := []byte(`{"token":"abc","data":{"items":[{"id":4},{"id":5}],"ok":true}}`)

	tests := []struct {
		path string
		want any
	}{
		{"$.token", "abc"},
		{"data.ok", true},
		{"$.data.items[1].id", float64(5)},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := p.JSONPath(doc, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	whole, err := p.JSONPath([]byte(`[1,2]`), "$")
	require.NoError(t, err)
	assert.Len(t, whole, 2)

	for _, bad := range []string{"$.missing", "$.data.items[9]", "$.data.items[x]", "$.token.deeper"} {
		_, err := p.JSONPath(doc, bad)
		assert.Error(t, err, bad)
	}

	_, err = p.JSONPath([]byte(`not json`), "$")
	assert.Error(t, err)
}

func TestExtractHelpers(t *testing.T) {
	p := NewResponseParser()

	s, err := p.ExtractString([]byte(`{"n":12.5}`), "$.n")
	require.NoError(t, err)
	assert.Equal(t, "12.5", s)

	_, err = p.ExtractString([]byte(`{"o":{}}`), "$.o")
	assert.Error(t, err)

	_, err = p.ExtractArray([]byte(`{"o":{}}`), "$.o")
	assert.Error(t, err)
}
