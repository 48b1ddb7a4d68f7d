package config

import (
	"errors"
	"strings"
)

// errReadBytesNotSupported is returned when ReadBytes is called on a map provider.
var errReadBytesNotSupported = errors.New("config: map provider does not support ReadBytes")

// mapProvider is a koanf provider over a flat map with dotted keys.
type mapProvider map[string]any

// ReadBytes is not supported; koanf falls back to Read.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errReadBytesNotSupported
}

// Read returns the map unflattened into nested sections.
func (m mapProvider) Read() (map[string]any, error) {
	out := make(map[string]any)
	for key, value := range m {
		parts := strings.Split(key, ".")
		cur := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = value
	}
	return out, nil
}
