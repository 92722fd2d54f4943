// Package store provides the pluggable key-value persistence layer:
// a Redis-backed primary store, a local-file fallback store, and a layered
// wrapper that degrades from one to the other transparently.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound indicates the key does not exist in the store.
var ErrNotFound = errors.New("store: key not found")

// Store is the persistence contract consumed by the trackers and the
// orchestrator. Values are opaque bytes (JSON by convention).
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set writes value under key as a single-shot replacement. A zero ttl
	// means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Append adds one record to an append-only stream.
	Append(ctx context.Context, streamKey string, record []byte) error

	// Stream returns all records of an append-only stream in write order.
	Stream(ctx context.Context, streamKey string) ([][]byte, error)

	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Close releases underlying resources.
	Close() error
}

// Well-known key prefixes and stream names.
const (
	PrefixProgress  = "progress:"
	PrefixSession   = "session:"
	PrefixAnalysis  = "analysis:"
	PrefixModelPerf = "model_perf:"

	StreamUsageLog         = "usage.log"
	StreamRoutingDecisions = "routing_decisions"
)

// GetJSON fetches key and unmarshals it into target.
func GetJSON(ctx context.Context, s Store, key string, target any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// SetJSON marshals value and writes it under key.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, key, data, ttl)
}

// AppendJSON marshals record and appends it to a stream.
func AppendJSON(ctx context.Context, s Store, streamKey string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.Append(ctx, streamKey, data)
}
