package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, 0.132, cfg.Steam.Fee)
	assert.Equal(t, 0.01, cfg.Scanner.TargetProfit)
	assert.Equal(t, 12, cfg.Steam.PageSize)
	assert.Equal(t, 100, cfg.Scanner.ListingsPerBatch)
	assert.Equal(t, 3, cfg.Scanner.GemsPerPause)
	assert.Equal(t, 0.5, cfg.Scanner.GemProxyRatio)
	assert.Equal(t, 0.05, cfg.Scanner.DampeningThreshold)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Proxy.BaseURL = "https://proxies.example.com"
		cfg.Proxy.APIKey = "key"
		return cfg
	}

	t.Run("ok", func(t *testing.T) {
		cfg := valid()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing proxy credentials", func(t *testing.T) {
		cfg := Defaults()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "proxy.base_url")
		assert.Contains(t, err.Error(), "proxy.api_key")
	})

	t.Run("fee out of range", func(t *testing.T) {
		cfg := valid()
		cfg.Steam.Fee = 1.2
		assert.ErrorContains(t, cfg.Validate(), "steam.fee")
	})

	t.Run("auto-buy needs session cookie", func(t *testing.T) {
		cfg := valid()
		cfg.Executor.AutoBuy = true
		assert.ErrorContains(t, cfg.Validate(), "session_cookie")
	})

	t.Run("s3 enabled needs bucket", func(t *testing.T) {
		cfg := valid()
		cfg.S3.Enabled = true
		cfg.S3.Region = "us-east-1"
		assert.ErrorContains(t, cfg.Validate(), "s3.bucket")
	})
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
log_level = "debug"

[scanner]
target_profit = 0.05

[proxy]
base_url = "https://proxies.example.com"
api_key = "from-file"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	t.Setenv("PRISMATIC_PROXY_API_KEY", "from-env")
	t.Setenv("PRISMATIC_SCANNER_CYCLE_INTERVAL_SECONDS", "42")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 0.05, cfg.Scanner.TargetProfit)
	assert.Equal(t, "from-env", cfg.Proxy.APIKey, "env overrides file")
	assert.Equal(t, 42, cfg.Scanner.CycleIntervalSeconds)
	assert.Equal(t, 0.132, cfg.Steam.Fee, "defaults survive partial files")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	assert.Error(t, err)
}
