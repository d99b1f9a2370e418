// Package store is the hierarchical key/value store behind the messaging
// modules. Keys are slash separated paths; every record is written
// atomically and can be watched by prefix.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by Get for absent keys.
	ErrKeyNotFound = errors.New("store: key not found")
	// ErrKeyExists is returned by Create when the key is already written.
	ErrKeyExists = errors.New("store: key exists")
)

// Op is the kind of change carried by an Event.
type Op int

const (
	OpPut Op = iota
	OpDelete
)

func (o Op) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "put"
}

// Event is a change notification for one key under a watched prefix.
// Consumers treat events as signals and re-read the state they derive from.
type Event struct {
	Op    Op
	Key   string
	Value []byte
}

// Entry is a key with its current value.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the port implemented by every backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Create writes value only when key is absent, otherwise ErrKeyExists.
	Create(ctx context.Context, key string, value []byte) error
	// Delete removes key and every key below it.
	Delete(ctx context.Context, key string) error
	// List returns the descendants of prefix ordered by key.
	List(ctx context.Context, prefix string) ([]Entry, error)
	// Watch streams changes below prefix until ctx is done. The channel is
	// closed when ctx ends; a close while ctx is still live means the
	// watch was lost and the caller must resubscribe.
	Watch(ctx context.Context, prefix string) (<-chan Event, error)
	Backend() string
	Ping(ctx context.Context) error
	Close() error
}

// GetJSON reads key and decodes it into a T.
func GetJSON[T any](ctx context.Context, s Store, key string) (T, error) {
	var v T
	data, err := s.Get(ctx, key)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return v, nil
}

// PutJSON encodes v and writes it at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Put(ctx, key, data)
}

// CreateJSON encodes v and writes it at key if the key is absent.
func CreateJSON(ctx context.Context, s Store, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Create(ctx, key, data)
}
