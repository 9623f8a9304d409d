package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"paygate/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := config.Load()

	require.Equal(t, "paygate", cfg.ServiceName)
	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, "memory", cfg.Store)
	require.False(t, cfg.Production())
	require.Contains(t, cfg.Backends, "dummy")
}

func TestLoad_BackendOptionBags(t *testing.T) {
	t.Setenv("PAYGATE_BACKENDS", "dummy, epay")
	t.Setenv("PAYGATE_BACKEND_DUMMY_METHOD", "GET")
	t.Setenv("PAYGATE_BACKEND_DUMMY_API_KEY", "s3cret")
	t.Setenv("PAYGATE_BACKEND_EPAY_MERCHANT_NUMBER", "12345")

	cfg := config.Load()

	require.Len(t, cfg.Backends, 2)
	require.Equal(t, "GET", cfg.Backend("dummy").Get("method", ""))
	require.Equal(t, "s3cret", cfg.Backend("dummy").Get("api_key", ""))
	require.Equal(t, "12345", cfg.Backend("epay").Get("merchant_number", ""))
}

func TestLoad_TrimsBaseURL(t *testing.T) {
	t.Setenv("PAYGATE_BASE_URL", "https://pay.example.com/")

	cfg := config.Load()
	require.Equal(t, "https://pay.example.com", cfg.BaseURL)
}

func TestBackend_UnknownKeyGetsEmptyBag(t *testing.T) {
	cfg := config.Load()
	require.Equal(t, "fallback", cfg.Backend("nope").Get("anything", "fallback"))
}

func TestProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	require.True(t, config.Load().Production())
}
