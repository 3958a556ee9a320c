package kvs

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore is a LevelDB-based implementation of Store.
// It provides persistent storage on the filesystem with background cleanup
// of expired keys. Expiry is encoded in the stored value since LevelDB has
// no native TTL.
type LevelDBStore struct {
	prefix          string
	db              *leveldb.DB
	closed          bool
	mu              sync.RWMutex
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupDone     chan struct{}
}

// NewLevelDBStore creates a new LevelDB KVS store.
func NewLevelDBStore(prefix string, cfg LevelDBConfig) (*LevelDBStore, error) {
	dbPath := cfg.Path
	if dbPath == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = os.TempDir()
		}

		dirName := "widgetgate"
		if prefix != "" {
			sanitized := strings.Map(func(r rune) rune {
				if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
					return r
				}
				return '-'
			}, prefix)
			dirName = fmt.Sprintf("%s-%s", dirName, sanitized)
		}

		dbPath = filepath.Join(cacheDir, dirName)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("kvs/leveldb: failed to create directory: %w", err)
	}

	opts := &opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.SnappyCompression,
	}
	if cfg.SyncWrites {
		opts.WriteBuffer = 4 * 1024 * 1024
		opts.NoSync = false
	}

	db, err := leveldb.OpenFile(dbPath, opts)
	if err != nil {
		if _, ok := err.(*lderrors.ErrCorrupted); ok {
			db, err = leveldb.RecoverFile(dbPath, nil)
		}
		if err != nil {
			return nil, fmt.Errorf("kvs/leveldb: failed to open database at %s: %w", dbPath, err)
		}
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	store := &LevelDBStore{
		prefix:          prefix,
		db:              db,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	go store.cleanupLoop()

	return store, nil
}

func (l *LevelDBStore) prefixedKey(key string) string {
	if l.prefix == "" {
		return key
	}
	return l.prefix + key
}

// encodeValue encodes a value with optional expiration time.
// Format: [8 bytes: expiration unix nano (0 = no expiration)][value bytes]
func encodeValue(value []byte, ttl time.Duration) []byte {
	expiresAt := int64(0)
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).UnixNano()
	}

	encoded := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(encoded[0:8], uint64(expiresAt))
	copy(encoded[8:], value)
	return encoded
}

// decodeValue decodes a value and checks expiration.
// Returns (value, expired, error)
func decodeValue(encoded []byte) ([]byte, bool, error) {
	if len(encoded) < 8 {
		return nil, false, fmt.Errorf("kvs/leveldb: invalid encoded value (too short)")
	}

	expiresAt := int64(binary.BigEndian.Uint64(encoded[0:8]))
	value := encoded[8:]

	if expiresAt > 0 && time.Now().UnixNano() > expiresAt {
		return nil, true, nil
	}

	return value, false, nil
}

// Get retrieves a value by key.
func (l *LevelDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, ErrClosed
	}
	l.mu.RUnlock()

	encoded, err := l.db.Get([]byte(l.prefixedKey(key)), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("kvs/leveldb: get failed: %w", err)
	}

	value, expired, err := decodeValue(encoded)
	if err != nil {
		return nil, err
	}
	if expired {
		// Delete expired key asynchronously
		go l.Delete(context.Background(), key)
		return nil, ErrNotFound
	}

	return value, nil
}

// Set stores a value with optional TTL.
func (l *LevelDBStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	l.mu.RUnlock()

	encoded := encodeValue(value, ttl)
	if err := l.db.Put([]byte(l.prefixedKey(key)), encoded, nil); err != nil {
		return fmt.Errorf("kvs/leveldb: set failed: %w", err)
	}

	return nil
}

// Delete removes a key.
func (l *LevelDBStore) Delete(ctx context.Context, key string) error {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return ErrClosed
	}
	l.mu.RUnlock()

	err := l.db.Delete([]byte(l.prefixedKey(key)), nil)
	if err != nil && err != leveldb.ErrNotFound {
		return fmt.Errorf("kvs/leveldb: delete failed: %w", err)
	}

	return nil
}

// Exists checks if a key exists and has not expired.
func (l *LevelDBStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := l.Get(ctx, key)
	if err != nil {
		if err == ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns all keys matching a prefix.
func (l *LevelDBStore) List(ctx context.Context, prefix string) ([]string, error) {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return nil, ErrClosed
	}
	l.mu.RUnlock()

	fullPrefix := l.prefixedKey(prefix)

	var keys []string
	iter := l.db.NewIterator(util.BytesPrefix([]byte(fullPrefix)), nil)
	defer iter.Release()

	for iter.Next() {
		_, expired, err := decodeValue(iter.Value())
		if err != nil || expired {
			continue
		}
		keys = append(keys, strings.TrimPrefix(string(iter.Key()), l.prefix))
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("kvs/leveldb: list failed: %w", err)
	}

	return keys, nil
}

// Count returns the number of keys matching a prefix.
func (l *LevelDBStore) Count(ctx context.Context, prefix string) (int, error) {
	keys, err := l.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// cleanupLoop periodically removes expired keys.
func (l *LevelDBStore) cleanupLoop() {
	defer close(l.cleanupDone)

	ticker := time.NewTicker(l.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.removeExpired()
		case <-l.stopCleanup:
			return
		}
	}
}

// removeExpired scans the full keyspace and deletes expired entries.
func (l *LevelDBStore) removeExpired() {
	l.mu.RLock()
	if l.closed {
		l.mu.RUnlock()
		return
	}
	l.mu.RUnlock()

	iter := l.db.NewIterator(util.BytesPrefix([]byte(l.prefix)), nil)
	defer iter.Release()

	var expiredKeys [][]byte
	for iter.Next() {
		_, expired, err := decodeValue(iter.Value())
		if err == nil && expired {
			keyCopy := make([]byte, len(iter.Key()))
			copy(keyCopy, iter.Key())
			expiredKeys = append(expiredKeys, keyCopy)
		}
	}

	for _, key := range expiredKeys {
		_ = l.db.Delete(key, nil)
	}
}

// Close closes the store and stops the cleanup goroutine.
func (l *LevelDBStore) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	close(l.stopCleanup)
	<-l.cleanupDone

	if err := l.db.Close(); err != nil {
		return fmt.Errorf("kvs/leveldb: close failed: %w", err)
	}
	return nil
}
