// Package kv is the key/value persistence the permit records and comment
// channels are stored in. Values are raw JSON documents addressed by the
// string keys the presentation layer already uses.
package kv

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("kv: key not found")
	ErrConflict = errors.New("kv: version conflict")
)

// Record is one stored value. Version starts at 1 and grows by one per write.
type Record struct {
	Key       string
	Value     []byte
	Version   int64
	UpdatedAt string
}

// Store is implemented by every backend.
//
// Put with expectedVersion 0 overwrites unconditionally. A positive
// expectedVersion must match the stored version (a missing key has version 0)
// or ErrConflict is returned and nothing is written.
type Store interface {
	Get(ctx context.Context, key string) (Record, error)
	Put(ctx context.Context, key string, value []byte, expectedVersion int64) (int64, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// Has reports whether key exists.
func Has(ctx context.Context, s Store, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
