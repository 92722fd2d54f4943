package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenStore fails every operation, standing in for an unreachable primary.
type brokenStore struct{}

var errBroken = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) ([]byte, error)              { return nil, errBroken }
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error { return errBroken }
func (brokenStore) Del(context.Context, string) error                        { return errBroken }
func (brokenStore) Append(context.Context, string, []byte) error             { return errBroken }
func (brokenStore) Stream(context.Context, string) ([][]byte, error)         { return nil, errBroken }
func (brokenStore) Keys(context.Context, string) ([]string, error)           { return nil, errBroken }
func (brokenStore) Close() error                                             { return nil }

func TestLayeredStore(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy primary serves reads and writes", func(t *testing.T) {
		primary, _ := newTestRedis(t)
		fallback, err := NewFile(t.TempDir())
		require.NoError(t, err)

		layered := NewLayered(primary, fallback)
		require.NoError(t, layered.Set(ctx, "analysis:a", []byte("v"), 0))

		// The write landed in the primary, not the fallback.
		data, err := primary.Get(ctx, "analysis:a")
		require.NoError(t, err)
		assert.Equal(t, "v", string(data))
		_, err = fallback.Get(ctx, "analysis:a")
		assert.ErrorIs(t, err, ErrNotFound)

		data, err = layered.Get(ctx, "analysis:a")
		require.NoError(t, err)
		assert.Equal(t, "v", string(data))
	})

	t.Run("broken primary falls back transparently", func(t *testing.T) {
		fallback, err := NewFile(t.TempDir())
		require.NoError(t, err)

		layered := NewLayered(brokenStore{}, fallback)
		require.NoError(t, layered.Set(ctx, "analysis:b", []byte("v"), 0))

		data, err := layered.Get(ctx, "analysis:b")
		require.NoError(t, err)
		assert.Equal(t, "v", string(data))

		require.NoError(t, layered.Append(ctx, StreamUsageLog, []byte("rec")))
		records, err := layered.Stream(ctx, StreamUsageLog)
		require.NoError(t, err)
		require.Len(t, records, 1)
	})

	t.Run("nil primary runs on fallback alone", func(t *testing.T) {
		fallback, err := NewFile(t.TempDir())
		require.NoError(t, err)

		layered := NewLayered(nil, fallback)
		require.NoError(t, layered.Set(ctx, "session:c", []byte("v"), 0))
		_, err = layered.Get(ctx, "session:c")
		assert.NoError(t, err)
	})

	t.Run("primary miss reads fallback", func(t *testing.T) {
		primary, _ := newTestRedis(t)
		fallback, err := NewFile(t.TempDir())
		require.NoError(t, err)
		require.NoError(t, fallback.Set(ctx, "analysis:d", []byte("survivor"), 0))

		layered := NewLayered(primary, fallback)
		data, err := layered.Get(ctx, "analysis:d")
		require.NoError(t, err)
		assert.Equal(t, "survivor", string(data))
	})

	t.Run("keys are the union of both layers", func(t *testing.T) {
		primary, _ := newTestRedis(t)
		fallback, err := NewFile(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, primary.Set(ctx, "progress:p1", []byte("v"), 0))
		require.NoError(t, fallback.Set(ctx, "progress:p2", []byte("v"), 0))

		layered := NewLayered(primary, fallback)
		keys, err := layered.Keys(ctx, PrefixProgress)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"progress:p1", "progress:p2"}, keys)
	})

	t.Run("delete clears both layers", func(t *testing.T) {
		primary, _ := newTestRedis(t)
		fallback, err := NewFile(t.TempDir())
		require.NoError(t, err)

		require.NoError(t, primary.Set(ctx, "session:x", []byte("v"), 0))
		require.NoError(t, fallback.Set(ctx, "session:x", []byte("v"), 0))

		layered := NewLayered(primary, fallback)
		require.NoError(t, layered.Del(ctx, "session:x"))

		_, err = layered.Get(ctx, "session:x")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
