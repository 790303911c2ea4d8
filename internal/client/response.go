package client

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ResponseParser extracts values from JSON responses with a small JSONPath
// subset: $.a.b, $.a[0].b and $ for the whole document.
type ResponseParser struct{}

// NewResponseParser creates a new response parser.
func NewResponseParser() *ResponseParser {
	return &ResponseParser{}
}

// JSONPath extracts a value from JSON using a JSONPath expression.
func (p *ResponseParser) JSONPath(data []byte, path string) (any, error) {
	var current any
	if err := json.Unmarshal(data, &current); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	path = strings.TrimPrefix(strings.TrimPrefix(path, "$"), ".")
	if path == "" {
		return current, nil
	}

	for _, part := range strings.Split(path, ".") {
		field, index, hasIndex := strings.Cut(part, "[")
		if field != "" {
			obj, ok := current.(map[string]any)
			if !ok || obj[field] == nil {
				return nil, fmt.Errorf("field not found: %s", field)
			}
			current = obj[field]
		}
		if !hasIndex {
			continue
		}
		i, err := strconv.Atoi(strings.TrimSuffix(index, "]"))
		if err != nil {
			return nil, fmt.Errorf("invalid array index: %s", index)
		}
		arr, ok := current.([]any)
		if !ok || i < 0 || i >= len(arr) {
			return nil, fmt.Errorf("array index out of bounds: %d", i)
		}
		current = arr[i]
	}
	return current, nil
}

// ExtractString extracts a string value using JSONPath.
func (p *ResponseParser) ExtractString(data []byte, path string) (string, error) {
	value, err := p.JSONPath(data, path)
	if err != nil {
		return "", err
	}

	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("value at %s is not a scalar: %T", path, value)
	}
}

// ExtractArray extracts an array value using JSONPath.
func (p *ResponseParser) ExtractArray(data []byte, path string) ([]any, error) {
	value, err := p.JSONPath(data, path)
	if err != nil {
		return nil, err
	}
	v, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("value is not an array: %T", value)
	}
	return v, nil
}
