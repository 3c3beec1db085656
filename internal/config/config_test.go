package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "/retorno-webpay", cfg.Checkout.ReturnPath)
	assert.Equal(t, "OC-", cfg.Checkout.BuyOrderPrefix)
	assert.Equal(t, 5, cfg.Currency.LookbackDays)
	assert.Equal(t, "log", cfg.Notify.Driver)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PUBLIC_URL", "https://shop.example.cl")
	t.Setenv("CHECKOUT_RETURN_PATH", "/webpay/return")
	t.Setenv("WEBPAY_TIMEOUT", "15s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CURRENCY_CACHE_DRIVER", "redis")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://shop.example.cl/webpay/return", cfg.ReturnURL())
	assert.Equal(t, 15*time.Second, cfg.Webpay.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notify.KafkaBrokers)
	assert.Equal(t, "redis", cfg.Currency.CacheDriver)
}

func TestLoadRejectsMalformedValue(t *testing.T) {
	t.Setenv("AUTH_TOKEN_TTL", "forever")

	_, err := Load()
	assert.Error(t, err)
}
