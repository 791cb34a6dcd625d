package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadOrDefault_MissingFileUsesDefaults(t *testing.T) {
	c, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	require.Equal(t, ":3000", c.Server.Addr)
	require.Equal(t, "https://api.bilibili.com", c.Upstream.BaseURL)
	require.Equal(t, 10*time.Second, c.UpstreamTimeout())
	require.Equal(t, 200*time.Millisecond, c.BatchInterval())
	require.Equal(t, 300*time.Second, c.CacheTTL())
	require.Equal(t, time.Hour, c.KeyTTL())
	require.Equal(t, 24*time.Hour, c.KeyMaxStale())
	require.Equal(t, "memory", c.Cache.Kind)
	require.Equal(t, 50, c.Batch.MaxItems)
	require.Equal(t, []string{"*"}, c.Server.CORSAllowedOrigins)
	require.False(t, c.Rate.TrustForwardedHeaders)
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	p := writeYAML(t, `
server:
  addr: ":9000"
upstream:
  timeout: 15s
  batch_interval: 500ms
cache:
  ttl: 60s
wbi:
  max_stale: "0"
`)
	t.Setenv("BILIPROXY_SERVER_ADDR", ":9100")
	t.Setenv("BILIPROXY_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BILIPROXY_RATE_TRUST_FORWARDED_HEADERS", "true")

	c, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, ":9100", c.Server.Addr)
	require.Equal(t, 15*time.Second, c.UpstreamTimeout())
	require.Equal(t, 500*time.Millisecond, c.BatchInterval())
	require.Equal(t, time.Minute, c.CacheTTL())
	require.Equal(t, time.Duration(0), c.KeyMaxStale())
	require.Equal(t, []string{"https://a.example", "https://b.example"}, c.Server.CORSAllowedOrigins)
	require.True(t, c.Rate.TrustForwardedHeaders)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad duration":   "upstream:\n  timeout: soon\n",
		"zero timeout":   "upstream:\n  timeout: 0s\n",
		"relative url":   "upstream:\n  base_url: /x\n",
		"unknown cache":  "cache:\n  kind: memcached\n",
		"redis no addr":  "cache:\n  kind: redis\n",
		"negative stale": "wbi:\n  max_stale: -1s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeYAML(t, body))
			require.Error(t, err)
		})
	}
}
