package store

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Layered degrades from a primary store to a local fallback transparently.
// Writers attempt the primary first; on failure they fall back with a
// warning. Reads check the primary, then the fallback.
type Layered struct {
	primary  Store
	fallback Store
	logger   *slog.Logger
}

// NewLayered wraps primary and fallback. primary may be nil, in which case
// every operation goes straight to the fallback.
func NewLayered(primary, fallback Store) *Layered {
	return &Layered{
		primary:  primary,
		fallback: fallback,
		logger:   slog.With("component", "layered_store"),
	}
}

// Get implements Store.
func (l *Layered) Get(ctx context.Context, key string) ([]byte, error) {
	if l.primary != nil {
		data, err := l.primary.Get(ctx, key)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			l.logger.Warn("Primary store read failed, trying fallback", "key", key, "error", err)
		}
	}
	return l.fallback.Get(ctx, key)
}

// Set implements Store.
func (l *Layered) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if l.primary != nil {
		err := l.primary.Set(ctx, key, value, ttl)
		if err == nil {
			return nil
		}
		l.logger.Warn("Primary store write failed, falling back to local files", "key", key, "error", err)
	}
	return l.fallback.Set(ctx, key, value, ttl)
}

// Del implements Store. Both layers are cleared so a fallback copy cannot
// resurrect a deleted key.
func (l *Layered) Del(ctx context.Context, key string) error {
	var primaryErr error
	if l.primary != nil {
		primaryErr = l.primary.Del(ctx, key)
		if primaryErr != nil {
			l.logger.Warn("Primary store delete failed", "key", key, "error", primaryErr)
		}
	}
	if err := l.fallback.Del(ctx, key); err != nil {
		return err
	}
	return primaryErr
}

// Append implements Store.
func (l *Layered) Append(ctx context.Context, streamKey string, record []byte) error {
	if l.primary != nil {
		err := l.primary.Append(ctx, streamKey, record)
		if err == nil {
			return nil
		}
		l.logger.Warn("Primary store append failed, falling back to local files", "stream", streamKey, "error", err)
	}
	return l.fallback.Append(ctx, streamKey, record)
}

// Stream implements Store. Records from both layers are concatenated,
// primary first; a record lands in exactly one layer so there are no
// duplicates.
func (l *Layered) Stream(ctx context.Context, streamKey string) ([][]byte, error) {
	var records [][]byte
	if l.primary != nil {
		primary, err := l.primary.Stream(ctx, streamKey)
		if err != nil {
			l.logger.Warn("Primary store stream read failed", "stream", streamKey, "error", err)
		} else {
			records = append(records, primary...)
		}
	}
	fallback, err := l.fallback.Stream(ctx, streamKey)
	if err != nil {
		if len(records) > 0 {
			return records, nil
		}
		return nil, err
	}
	return append(records, fallback...), nil
}

// Keys implements Store as the union of both layers.
func (l *Layered) Keys(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]bool)
	var keys []string

	if l.primary != nil {
		primary, err := l.primary.Keys(ctx, prefix)
		if err != nil {
			l.logger.Warn("Primary store key scan failed", "prefix", prefix, "error", err)
		} else {
			for _, k := range primary {
				if !seen[k] {
					seen[k] = true
					keys = append(keys, k)
				}
			}
		}
	}

	fallback, err := l.fallback.Keys(ctx, prefix)
	if err != nil {
		if len(keys) > 0 {
			return keys, nil
		}
		return nil, err
	}
	for _, k := range fallback {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Close implements Store.
func (l *Layered) Close() error {
	var firstErr error
	if l.primary != nil {
		if err := l.primary.Close(); err != nil {
			firstErr = err
		}
	}
	if err := l.fallback.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
