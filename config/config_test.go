package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/layer-3/loginguard/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:3000", cfg.Addr())
	assert.Equal(t, 120*time.Second, cfg.CaptchaTTL())
	assert.Equal(t, 600*time.Second, cfg.BlockWindow())
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow())
	assert.Equal(t, time.Minute, cfg.CaptchaRateWindow())
	assert.Equal(t, 5, cfg.MaxCaptchaFailures)
	assert.Equal(t, 5, cfg.RateLimitMax)
	assert.Equal(t, 10, cfg.CaptchaRateMax)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.False(t, cfg.IsProduction())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load("")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\nPORT=4000\nMAX_CAPTCHA_FAILURES=3\n"), 0o600))
	t.Setenv("PORT", "5000")
	// godotenv never overrides variables that exist, even empty ones
	for _, key := range []string{"JWT_SECRET", "MAX_CAPTCHA_FAILURES"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 3, cfg.MaxCaptchaFailures)
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		t.Setenv("JWT_SECRET", "secret")
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	cfg := valid()
	cfg.AppEnv = EnvProduction
	cfg.CaptchaDebugLog = true
	assert.ErrorIs(t, cfg.Validate(), core.ErrConfiguration)

	cfg = valid()
	cfg.MaxCaptchaFailures = 0
	assert.ErrorIs(t, cfg.Validate(), core.ErrConfiguration)

	cfg = valid()
	cfg.AdminUsername = "admin"
	assert.ErrorIs(t, cfg.Validate(), core.ErrConfiguration)

	cfg = valid()
	cfg.Port = 70000
	assert.ErrorIs(t, cfg.Validate(), core.ErrConfiguration)
}
