package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/widgetgate/widgetgate/pkg/config"
	"github.com/widgetgate/widgetgate/pkg/kvs"
	"github.com/widgetgate/widgetgate/pkg/logging"
	"github.com/widgetgate/widgetgate/pkg/session"
)

func TestNewRejectsEmptyTenantTable(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{URL: "http://127.0.0.1:9"},
		Sessions: config.SessionsConfig{Store: "memory"},
	}

	_, err := New(cfg, "", logging.NewTestLogger())
	assert.Error(t, err)
}

func TestNewSessionCacheBackends(t *testing.T) {
	cache, err := newSessionCache(config.SessionsConfig{Store: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &session.MemoryCache{}, cache)
	require.NoError(t, cache.Close())

	cache, err = newSessionCache(config.SessionsConfig{
		Store:   "leveldb",
		LevelDB: kvs.LevelDBConfig{Path: t.TempDir()},
	})
	require.NoError(t, err)
	assert.IsType(t, &session.KVSCache{}, cache)
	require.NoError(t, cache.Close())

	_, err = newSessionCache(config.SessionsConfig{Store: "cassandra"})
	assert.ErrorIs(t, err, config.ErrInvalidSessionStore)
}

func TestStartGracefulShutdown(t *testing.T) {
	fu := newFakeUpstream(t)
	cfg := testConfig(fu.server.URL)
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0 // ephemeral

	s, err := New(cfg, "", logging.NewTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err, "cancellation shuts the server down cleanly")
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
