package store

import (
	"fmt"

	"github.com/roach88/graphstack/internal/entity"
)

// marshalAttributes converts attributes to canonical JSON TEXT for storage.
// Canonical form keeps json_extract results and fingerprints stable.
func marshalAttributes(attrs entity.Attributes) (string, error) {
	data, err := entity.MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attributes: %w", err)
	}
	return string(data), nil
}

// unmarshalAttributes parses canonical JSON TEXT to attributes.
// Large integers survive intact because entity decodes via json.Number.
func unmarshalAttributes(data string) (entity.Attributes, error) {
	if data == "" || data == "{}" {
		return entity.Attributes{}, nil
	}
	attrs, err := entity.UnmarshalAttributes([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	return attrs, nil
}
