package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "silo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 20, cfg.Fetch.DefaultCount)
	assert.Equal(t, 100, cfg.Fetch.MaxCount)
	assert.Equal(t, 1, cfg.Fetch.BatchConcurrency)
	assert.Equal(t, 15*time.Second, cfg.Fetch.BatchTimeout)
	assert.Equal(t, time.Hour, cfg.RateLimit.Window)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "silo-activity/0.1.0", cfg.Transport.UserAgent)
	assert.Empty(t, cfg.Cache.RedisAddr)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
catalog = "endpoints.yaml"

[log]
level = "debug"
pretty = true

[fetch]
max_count = 50
batch_concurrency = 4

[rate_limit]
window = "30m"
redis = "localhost:6379"

[platforms.photo]
base_url = "http://127.0.0.1:8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, 50, cfg.Fetch.MaxCount)
	assert.Equal(t, 4, cfg.Fetch.BatchConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "localhost:6379", cfg.RateLimit.Redis)
	assert.Equal(t, "endpoints.yaml", cfg.Catalog)
	assert.Equal(t, "http://127.0.0.1:8080", cfg.Platforms["photo"].BaseURL)

	fc := cfg.FetchConfig()
	assert.Equal(t, 4, fc.Batch.MaxConcurrency)
	assert.Equal(t, 50, fc.MaxCount)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("SILO_FETCH__MAX_COUNT", "40")
	t.Setenv("SILO_CACHE__REDIS_ADDR", "redis:6379")
	t.Setenv("SILO_LOG__LEVEL", "warn")

	cfg, err := Load(writeConfig(t, "[fetch]\nmax_count = 60\n"))
	require.NoError(t, err)

	assert.Equal(t, 40, cfg.Fetch.MaxCount)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "unknown log level"},
		{name: "no user agent", mutate: func(c *Config) { c.Transport.UserAgent = "" }, wantErr: "user_agent"},
		{name: "negative rps", mutate: func(c *Config) { c.Transport.RequestsPerSecond = -1 }, wantErr: "requests_per_second"},
		{name: "max below default", mutate: func(c *Config) { c.Fetch.MaxCount = 5 }, wantErr: "max_count"},
		{name: "no concurrency", mutate: func(c *Config) { c.Fetch.BatchConcurrency = 0 }, wantErr: "batch_concurrency"},
		{name: "zero window", mutate: func(c *Config) { c.RateLimit.Window = 0 }, wantErr: "window"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, ""))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTransportConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, "[transport]\nrequests_per_second = 0.5\nburst = 2\ntimeout = \"5s\"\n"))
	require.NoError(t, err)

	tc := cfg.TransportConfig()
	assert.Equal(t, 0.5, tc.RequestsPerSecond)
	assert.Equal(t, 2, tc.Burst)
	assert.Equal(t, 5*time.Second, tc.Timeout)
	assert.Empty(t, tc.BaseURL)
	assert.Equal(t, "silo-activity/0.1.0", tc.UserAgent)
}
