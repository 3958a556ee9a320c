package kvs

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactory builds a fresh store for the contract suite.
type storeFactory func(t *testing.T) Store

// TestStoreContract runs the shared Store behavior against every local
// backend. Redis is covered separately with miniredis because its TTL
// clock needs fast-forwarding.
func TestStoreContract(t *testing.T) {
	factories := map[string]storeFactory{
		"memory": func(t *testing.T) Store {
			store, err := NewMemoryStore("test:", MemoryConfig{CleanupInterval: time.Minute})
			require.NoError(t, err)
			return store
		},
		"leveldb": func(t *testing.T) Store {
			store, err := NewLevelDBStore("test:", LevelDBConfig{
				Path:            t.TempDir(),
				CleanupInterval: time.Minute,
			})
			require.NoError(t, err)
			return store
		},
	}

	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			runStoreContract(t, factory)
		})
	}
}

func runStoreContract(t *testing.T, factory storeFactory) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		store := factory(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "key1", []byte("value1"), 0))

		value, err := store.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, []byte("value1"), value)
	})

	t.Run("get missing key", func(t *testing.T) {
		store := factory(t)
		defer func() { _ = store.Close() }()

		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("overwrite", func(t *testing.T) {
		store := factory(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "key1", []byte("old"), 0))
		require.NoError(t, store.Set(ctx, "key1", []byte("new"), 0))

		value, err := store.Get(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), value)
	})

	t.Run("ttl expiry", func(t *testing.T) {
		store := factory(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "ephemeral", []byte("v"), 30*time.Millisecond))

		_, err := store.Get(ctx, "ephemeral")
		require.NoError(t, err, "key is readable before expiry")

		time.Sleep(60 * time.Millisecond)
		_, err = store.Get(ctx, "ephemeral")
		assert.ErrorIs(t, err, ErrNotFound, "key expires after its TTL")
	})

	t.Run("zero ttl never expires", func(t *testing.T) {
		store := factory(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "durable", []byte("v"), 0))
		time.Sleep(30 * time.Millisecond)

		_, err := store.Get(ctx, "durable")
		assert.NoError(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		store := factory(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "key1", []byte("v"), 0))
		require.NoError(t, store.Delete(ctx, "key1"))

		_, err := store.Get(ctx, "key1")
		assert.ErrorIs(t, err, ErrNotFound)

		assert.NoError(t, store.Delete(ctx, "missing"), "deleting a missing key is not an error")
	})

	t.Run("exists", func(t *testing.T) {
		store := factory(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "key1", []byte("v"), 0))

		exists, err := store.Exists(ctx, "key1")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = store.Exists(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("list and count by prefix", func(t *testing.T) {
		store := factory(t)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Set(ctx, "user:1", []byte("a"), 0))
		require.NoError(t, store.Set(ctx, "user:2", []byte("b"), 0))
		require.NoError(t, store.Set(ctx, "chat:1", []byte("c"), 0))

		keys, err := store.List(ctx, "user:")
		require.NoError(t, err)
		sort.Strings(keys)
		assert.Equal(t, []string{"user:1", "user:2"}, keys)

		all, err := store.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		count, err := store.Count(ctx, "user:")
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("closed store rejects operations", func(t *testing.T) {
		store := factory(t)
		require.NoError(t, store.Close())

		_, err := store.Get(ctx, "key1")
		assert.ErrorIs(t, err, ErrClosed)

		err = store.Set(ctx, "key1", []byte("v"), 0)
		assert.ErrorIs(t, err, ErrClosed)

		err = store.Delete(ctx, "key1")
		assert.ErrorIs(t, err, ErrClosed)

		_, err = store.List(ctx, "")
		assert.ErrorIs(t, err, ErrClosed)
	})
}

func TestNewFactory(t *testing.T) {
	store, err := New(Config{Type: "memory", Namespace: "ns"})
	require.NoError(t, err)
	assert.NoError(t, store.Close())

	store, err = New(Config{Type: "", Namespace: "ns"})
	require.NoError(t, err, "empty type defaults to memory")
	assert.NoError(t, store.Close())

	store, err = New(Config{
		Type:    "leveldb",
		LevelDB: LevelDBConfig{Path: t.TempDir()},
	})
	require.NoError(t, err)
	assert.NoError(t, store.Close())

	_, err = New(Config{Type: "cassandra"})
	assert.Error(t, err)
}

func TestNamespaceIsolation(t *testing.T) {
	ctx := context.Background()

	a, err := NewMemoryStore("a:", MemoryConfig{CleanupInterval: time.Minute})
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	require.NoError(t, a.Set(ctx, "key", []byte("value"), 0))

	b, err := NewMemoryStore("b:", MemoryConfig{CleanupInterval: time.Minute})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()

	_, err = b.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound, "namespaces are isolated")
}
