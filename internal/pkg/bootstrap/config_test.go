package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
app:
  port: 9000
  promotion:
    offer_source: mysql
    assignment_store: redis
    assignment_ttl: 720h
    budget:
      max_offers: 3
      max_discount_percent: 40
      mode: clamp
infra:
  mysql:
    addr: db:3306
    database: promo
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("REDIS_ADDRS", "r1:6379,r2:6379")
	t.Setenv("SERVICE_PORT", "9100")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.App.Port)
	assert.Equal(t, "mysql", cfg.App.Promotion.OfferSource)
	assert.Equal(t, "redis", cfg.App.Promotion.AssignmentStore)
	assert.Equal(t, 720*time.Hour, cfg.App.Promotion.AssignmentTTL)
	assert.Equal(t, 3, cfg.App.Promotion.Budget.MaxOffers)
	assert.Equal(t, "clamp", cfg.App.Promotion.Budget.Mode)
	assert.Equal(t, "db:3306", cfg.Infra.MySQL.Addr)
	assert.Equal(t, "promo", cfg.Infra.MySQL.Database)
	assert.Equal(t, "r1:6379,r2:6379", cfg.Infra.Redis.Addrs)
	// 文件里没写的字段保留默认值
	assert.Equal(t, "promotion-exposures", cfg.App.Promotion.ExposureTopic)
	assert.Equal(t, 20, cfg.Infra.MySQL.MaxOpenConns)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().App.Promotion, cfg.App.Promotion)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: [unterminated"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyRemote_NotifiesListeners(t *testing.T) {
	currentConfig.Store(Default())
	t.Cleanup(func() {
		currentConfig.Store(nil)
		listenersMu.Lock()
		listeners = nil
		listenersMu.Unlock()
	})

	var got *Config
	OnConfigChange(func(c *Config) { got = c })
	require.NoError(t, applyRemote("app:\n  promotion:\n    budget:\n      max_discount_amount: 250\n"))

	require.NotNil(t, got)
	assert.Equal(t, 250.0, got.App.Promotion.Budget.MaxDiscountAmount)
	assert.Equal(t, "reject", got.App.Promotion.Budget.Mode)
	assert.Equal(t, 250.0, GetCurrentConfig().App.Promotion.Budget.MaxDiscountAmount)
}
