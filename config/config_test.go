package config

import (
	"testing"
	"time"

	"go-paywatch/payment"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("WEBHOOK_SECRET", "whsec")
	t.Setenv("MONITOR_URL", "https://monitor.example")
	t.Setenv("PAYMENT_TIMEOUT", "900")
	t.Setenv("POLL_TIMEOUT", "3s")
	t.Setenv("POLL_INTERVAL", "30s")
	t.Setenv("STATIC_WALLET", "true")
	t.Setenv("STATIC_ADDRESS", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t")
	t.Setenv("MAX_AMOUNT_OFFSET", "0.01")
	t.Setenv("DEFAULT_TOKEN", "usdc")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, 15*time.Minute, c.PaymentTimeout)
	assert.Equal(t, 3*time.Second, c.PollTimeout)
	assert.Equal(t, 30*time.Second, c.PollInterval)
	assert.True(t, c.StaticWallet)
	assert.True(t, decimal.RequireFromString("0.01").Equal(c.MaxAmountOffset))
	assert.Equal(t, payment.TokenUSDC, c.DefaultToken)
	assert.Equal(t, int32(6), c.TokenDecimals)
	assert.NoError(t, c.Validate())

	ec := c.Engine()
	assert.True(t, ec.StaticWallet)
	assert.Equal(t, c.StaticAddress, ec.StaticAddress)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STATIC_WALLET", "maybe")
	t.Setenv("TOKEN_DECIMALS", "six")

	_, err := Load()
	require.Error(t, err)
	assert.True(t, payment.IsCode(err, payment.CodeConfiguration))
	assert.Contains(t, err.Error(), "STATIC_WALLET")
	assert.Contains(t, err.Error(), "TOKEN_DECIMALS")
}

func TestValidateRequiresSecret(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "")
	t.Setenv("MONITOR_URL", "https://monitor.example")

	c, err := Load()
	require.NoError(t, err)
	err = c.Validate()
	assert.True(t, payment.IsCode(err, payment.CodeConfiguration))
	assert.Contains(t, err.Error(), "WEBHOOK_SECRET")
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(payment.NetworkTron, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"))
	assert.Error(t, ValidateAddress(payment.NetworkTron, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6u"))
	assert.NoError(t, ValidateAddress(payment.NetworkBSC, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"))
	assert.Error(t, ValidateAddress(payment.NetworkEthereum, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeA"))
	assert.Error(t, ValidateAddress(payment.NetworkEthereum, ""))
	assert.Error(t, ValidateAddress(payment.Network("doge"), "D8vF"))
}

func TestPollInterval(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "whsec")
	t.Setenv("MONITOR_URL", "https://monitor.example")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, c.PollInterval)

	t.Setenv("POLL_INTERVAL", "0")
	c, err = Load()
	require.NoError(t, err)
	assert.Zero(t, c.PollInterval)
	assert.NoError(t, c.Validate())

	t.Setenv("POLL_INTERVAL", "-5s")
	c, err = Load()
	require.NoError(t, err)
	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")

	t.Setenv("POLL_INTERVAL", "often")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POLL_INTERVAL")
}
