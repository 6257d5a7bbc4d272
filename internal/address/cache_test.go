package address

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store double.
type fakeStore struct {
	data    map[string]Record
	gets    int
	puts    int
	flushes int
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]Record)}
}

func (s *fakeStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.gets++
	if s.err != nil {
		return Record{}, false, s.err
	}
	rec, ok := s.data[key]
	return rec, ok, nil
}

func (s *fakeStore) Put(_ context.Context, key string, rec Record) error {
	s.puts++
	if s.err != nil {
		return s.err
	}
	s.data[key] = rec
	return nil
}

func (s *fakeStore) Flush(context.Context) error {
	s.flushes++
	s.data = make(map[string]Record)
	return s.err
}

func (s *fakeStore) Close() error { return nil }

func TestCache_MissThenHit(t *testing.T) {
	t.Parallel()

	c := NewCache(16, time.Hour, newFakeStore(), nil)
	ctx := context.Background()

	_, ok := c.Get(ctx, "fp1")
	assert.False(t, ok)

	rec := Record{Line1: "1 Elm"}
	c.Put(ctx, "fp1", rec)

	got, ok := c.Get(ctx, "fp1")
	require.True(t, ok)
	assert.Equal(t, rec, got)

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCache_FallsThroughToStore(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	rec := Record{Line1: "1 Elm"}
	store.data["fp1"] = rec

	c := NewCache(16, time.Hour, store, nil)
	ctx := context.Background()

	got, ok := c.Get(ctx, "fp1")
	require.True(t, ok)
	assert.Equal(t, rec, got)
	assert.Equal(t, 1, store.gets)

	// Second read is served from the in-process layer.
	_, ok = c.Get(ctx, "fp1")
	require.True(t, ok)
	assert.Equal(t, 1, store.gets)
}

func TestCache_StoreErrorIsAMiss(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.err = errors.New("connection refused")
	c := NewCache(16, time.Hour, store, nil)

	_, ok := c.Get(context.Background(), "fp1")
	assert.False(t, ok, "an unreachable store never fails a lookup")
}

func TestCache_PutWritesThrough(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	c := NewCache(16, time.Hour, store, nil)

	c.Put(context.Background(), "fp1", Record{Line1: "1 Elm"})
	assert.Equal(t, 1, store.puts)
	assert.Contains(t, store.data, "fp1")
}

func TestCache_WithoutStore(t *testing.T) {
	t.Parallel()

	c := NewCache(16, time.Hour, nil, nil)
	ctx := context.Background()

	c.Put(ctx, "fp1", Record{Line1: "1 Elm"})
	_, ok := c.Get(ctx, "fp1")
	assert.True(t, ok)
	assert.NoError(t, c.Flush(ctx))
}

func TestCache_FlushEmptiesBothLevels(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	c := NewCache(16, time.Hour, store, nil)
	ctx := context.Background()

	c.Put(ctx, "fp1", Record{Line1: "1 Elm"})
	require.NoError(t, c.Flush(ctx))

	assert.Equal(t, 1, store.flushes)
	_, ok := c.Get(ctx, "fp1")
	assert.False(t, ok)
}
