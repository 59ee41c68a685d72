package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	t.Setenv("SERVICE_ID", "101")
	t.Setenv("MERCHANT_ID", "202")
	t.Setenv("MERCHANT_USER_ID", "303")
	t.Setenv("SECRET_KEY", "s3cret")
}

func TestLoadFromEnvironmentAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(101), cfg.Click.ServiceID)
	assert.Equal(t, int64(202), cfg.Click.MerchantID)
	assert.Equal(t, int64(303), cfg.Click.MerchantUserID)
	assert.Equal(t, DefaultClickBaseURL, cfg.Click.BaseURL)
	assert.Equal(t, DefaultClickTimeout, cfg.Click.Timeout())
	assert.Equal(t, DefaultLocale, cfg.Bot.Locale)
	assert.False(t, cfg.Database.Enabled())
	assert.Equal(t, "123:abc", cfg.CoreConfig().Telegram.Token)
}

func TestLoadMissingGatewayCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_TOKEN", "123:abc")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ServiceID")
}

func TestLoadYAMLAndOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CLICK_TIMEOUT_MS", "2500")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
telegram:
  run_mode: longpoll
click:
  base_url: "http://127.0.0.1:9090/v2/merchant/"
bot:
  locale: EN
database:
  host: db.internal
  name: topup
metrics:
  listen: ":9102"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9090/v2/merchant", cfg.Click.BaseURL)
	assert.Equal(t, 2500*time.Millisecond, cfg.Click.Timeout())
	assert.Equal(t, "en", cfg.Bot.Locale)
	assert.True(t, cfg.Database.Enabled())
	assert.Equal(t, ":9102", cfg.Metrics.Listen)
}

func TestLoadRejectsUnknownLocale(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BOT_LOCALE", "fr")
	_, err := Load("")
	assert.Error(t, err)
}
