package record

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store persists migration records keyed by name.
type Store interface {
	// Get returns the record for name, or ErrRecordNotFound.
	Get(ctx context.Context, name string) (*Record, error)
	// Create inserts a new record, or fails with ErrRecordExists.
	Create(ctx context.Context, r *Record) error
	// Update overwrites the stored record with the same name, or fails with ErrRecordNotFound.
	Update(ctx context.Context, r *Record) error
	// List returns every record ordered by creation time.
	List(ctx context.Context) ([]*Record, error)
}

// EncodeMetadata serializes metadata for SQL stores. Nil maps become "{}".
func EncodeMetadata(md map[string]any) ([]byte, error) {
	if md == nil {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata: %w", err)
	}

	return data, nil
}

// DecodeMetadata is the inverse of EncodeMetadata. Empty input yields nil.
func DecodeMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 || string(data) == "{}" || string(data) == "null" {
		return nil, nil
	}

	var md map[string]any
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}

	return md, nil
}
