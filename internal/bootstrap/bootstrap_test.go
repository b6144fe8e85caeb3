package bootstrap

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/finboard/internal/config"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.Equal(t, zerolog.InfoLevel, Logger(&buf, "loud").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, Logger(&buf, "").GetLevel())
}

func TestNewMemoryStack(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{"CACHE_MAX_ENTRIES": "8"})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	s, err := New(context.Background(), cfg, reg, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	assert.Nil(t, s.Redis)
	res := s.Coordinator.Fetch(context.Background(), "mock://stock", nil)
	require.True(t, res.Success)
	assert.Equal(t, 5, res.Data.Len())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	_, err = New(context.Background(), cfg, reg, zerolog.Nop())
	assert.Error(t, err, "metrics cannot be registered twice")
}

func TestNewWithoutMetrics(t *testing.T) {
	cfg, err := config.LoadFrom(map[string]string{})
	require.NoError(t, err)
	s, err := New(context.Background(), cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, s.Coordinator.CacheSize(context.Background()))
}

func TestExecutorUsesClientCredentials(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	}))
	defer tokens.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer api.Close()

	cfg, err := config.LoadFrom(map[string]string{
		"OAUTH_TOKEN_URL":     tokens.URL,
		"OAUTH_CLIENT_ID":     "id",
		"OAUTH_CLIENT_SECRET": "secret",
	})
	require.NoError(t, err)

	s, err := New(context.Background(), cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	res := s.Coordinator.Fetch(context.Background(), api.URL, nil)
	require.True(t, res.Success, res.Error)
	ok, _ := res.Data.Get("ok")
	assert.True(t, ok.Truthy())
}

func TestNewRedisStack(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := config.LoadFrom(map[string]string{
		"REDIS_ADDR":    mr.Addr(),
		"CACHE_BACKEND": "redis",
		"CACHE_PREFIX":  "finboard:test:bootstrap:",
	})
	require.NoError(t, err)

	ctx := context.Background()
	s, err := New(ctx, cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	require.NotNil(t, s.Redis)

	res := s.Coordinator.Fetch(ctx, "mock://portfolio", nil)
	require.True(t, res.Success)
	assert.Equal(t, 0, s.Cache.Len(ctx))
	assert.NoError(t, s.Cache.Purge(ctx))
}

func TestNewRedisStackUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg, err := config.LoadFrom(map[string]string{
		"REDIS_ADDR":    addr,
		"CACHE_BACKEND": "redis",
	})
	require.NoError(t, err)

	_, err = New(context.Background(), cfg, nil, zerolog.Nop())
	assert.ErrorContains(t, err, "connect redis")
}
