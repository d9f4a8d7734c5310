package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/portal-pricing/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(map[string]string{
		"PORTAL_API_BASE_URL": "https://portal.example.com/api/",
		"RATE_LIMIT_STRATEGY": "",
		"QUOTE_CACHE_TTL":     "",
		"PORT":                "",
	})
	require.NoError(t, err)
	require.Equal(t, "https://portal.example.com/api", cfg.PortalAPIBaseURL)
	require.Equal(t, "sliding", cfg.RateLimitStrategy)
	require.Equal(t, 5*time.Minute, cfg.QuoteCacheTTL)
	require.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadRequiresPortalURL(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{"PORTAL_API_BASE_URL": ""})
	require.Error(t, err)
}

func TestLoadRejectsUnknownRateLimitStrategy(t *testing.T) {
	_, err := config.LoadForTests(map[string]string{
		"PORTAL_API_BASE_URL": "http://localhost:9000",
		"RATE_LIMIT_STRATEGY": "token-bucket",
	})
	require.Error(t, err)
}
