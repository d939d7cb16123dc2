package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.True(t, cfg.RequestLog.Enabled)
	assert.Equal(t, 255, cfg.RequestLog.MaxPathLength)
	assert.Equal(t, "1.1.1.1", cfg.RequestLog.IPDummy)
	assert.Contains(t, cfg.RequestLog.ValidMethodNames, "get")
	assert.NotContains(t, cfg.RequestLog.ValidMethodNames, "patch")
	assert.Equal(t, []string{"admin/*", "metrics", "health"}, cfg.RequestLog.IgnorePaths)
	assert.Equal(t, "reqlog:recent", cfg.Redis.FeedKey)
}

func TestLoadFromEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("REQLOG_REQUEST_LOG_ONLY_ERRORS", "true")
	t.Setenv("REQLOG_SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.RequestLog.OnlyErrors)
	assert.Equal(t, "9090", cfg.Server.Port)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:     ServerConfig{Port: "8080"},
			Log:        LogConfig{Level: "info", Format: "json"},
			RequestLog: DefaultRequestLog(),
		}
	}
	require.NoError(t, Validate(valid()))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "path length too large", mutate: func(c *Config) { c.RequestLog.MaxPathLength = 300 }},
		{name: "path length zero", mutate: func(c *Config) { c.RequestLog.MaxPathLength = 0 }},
		{name: "bad dummy ip", mutate: func(c *Config) { c.RequestLog.IPDummy = "not-an-ip" }},
		{name: "bad log format", mutate: func(c *Config) { c.Log.Format = "xml" }},
		{name: "bad upstream", mutate: func(c *Config) { c.Server.Upstream = "::" }},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }},
		{name: "method the store cannot hold", mutate: func(c *Config) {
			c.RequestLog.ValidMethodNames = append(c.RequestLog.ValidMethodNames, "propfind")
		}},
	}

	mixedCase := valid()
	mixedCase.RequestLog.ValidMethodNames = []string{"GET", "patch", "Connect"}
	assert.NoError(t, Validate(mixedCase))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
