// Package config collects service settings from the environment into one value that
// is handed to constructors.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go-paywatch/payment"
	"go-paywatch/payment/amount"
	"go-paywatch/payment/engine"
	"go-paywatch/payment/monitor"
	"go-paywatch/payment/rates"
	"go-paywatch/payment/signature"
	"go-paywatch/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
	"github.com/shopspring/decimal"
)

const DefaultPollInterval = time.Minute

type Config struct {
	DBDriver   string
	DSN        string
	ListenAddr string

	WebhookSecret      string
	SignatureTolerance time.Duration

	MonitorURL    string
	MonitorAPIKey string
	PollTimeout   time.Duration
	// PollInterval is the sweep period for payments whose webhooks went missing; 0 disables it.
	PollInterval time.Duration

	StaticWallet    bool
	StaticAddress   string
	DefaultNetwork  payment.Network
	DefaultToken    payment.Token
	TokenDecimals   int32
	MaxAmountOffset decimal.Decimal
	PaymentTimeout  time.Duration
	StoreCurrency   string
	RatesURL        string

	JWTSecret         string
	AdminUser         string
	AdminPasswordHash string

	RateLimit float64 // requests per second per IP
	RateBurst int
}

// Load reads .env (if present) and the environment.
func Load() (Config, error) {
	utils.LoadEnv()

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	c := Config{
		DBDriver:          strings.ToLower(utils.Env("DB_DRIVER", "sqlite")),
		DSN:               utils.Env("DB", "paywatch.db"),
		ListenAddr:        utils.Env("LISTEN_ADDR", ":8080"),
		WebhookSecret:     utils.Env("WEBHOOK_SECRET", ""),
		MonitorURL:        utils.Env("MONITOR_URL", ""),
		MonitorAPIKey:     utils.Env("MONITOR_API_KEY", ""),
		StaticAddress:     utils.Env("STATIC_ADDRESS", ""),
		DefaultNetwork:    payment.Network(strings.ToLower(utils.Env("DEFAULT_NETWORK", string(payment.NetworkTron)))),
		DefaultToken:      payment.Token(strings.ToUpper(utils.Env("DEFAULT_TOKEN", string(payment.TokenUSDT)))),
		StoreCurrency:     strings.ToUpper(utils.Env("STORE_CURRENCY", "USD")),
		RatesURL:          utils.Env("RATES_URL", rates.DefaultURL),
		JWTSecret:         utils.Env("JWT_SECRET", ""),
		AdminUser:         utils.Env("ADMIN_USER", "admin"),
		AdminPasswordHash: utils.Env("ADMIN_PASSWORD_HASH", ""),
	}

	var err error
	c.SignatureTolerance, err = utils.EnvDuration("SIGNATURE_TOLERANCE", signature.DefaultTolerance)
	collect(err)
	c.PollTimeout, err = utils.EnvDuration("POLL_TIMEOUT", monitor.DefaultTimeout)
	collect(err)
	c.PollInterval, err = utils.EnvDuration("POLL_INTERVAL", DefaultPollInterval)
	collect(err)
	c.PaymentTimeout, err = utils.EnvDuration("PAYMENT_TIMEOUT", engine.DefaultPaymentTimeout)
	collect(err)
	c.StaticWallet, err = utils.EnvBool("STATIC_WALLET", false)
	collect(err)
	decimals, err := utils.EnvInt("TOKEN_DECIMALS", amount.DefaultDecimals)
	collect(err)
	c.TokenDecimals = int32(decimals)
	c.MaxAmountOffset, err = utils.EnvDecimal("MAX_AMOUNT_OFFSET", amount.DefaultMaxOffset)
	collect(err)
	c.RateLimit, err = utils.EnvFloat("RATE_LIMIT", 5)
	collect(err)
	c.RateBurst, err = utils.EnvInt("RATE_BURST", 20)
	collect(err)

	if err := errors.Join(errs...); err != nil {
		return Config{}, payment.ConfigurationError(err.Error())
	}
	return c, nil
}

// Validate checks what the service needs to start. Webhooks fail closed without a
// secret, so a missing one is fatal.
func (c Config) Validate() error {
	var problems []string
	if c.DBDriver != "mysql" && c.DBDriver != "sqlite" {
		problems = append(problems, fmt.Sprintf("DB_DRIVER %q is not mysql or sqlite", c.DBDriver))
	}
	if c.WebhookSecret == "" {
		problems = append(problems, "WEBHOOK_SECRET is required")
	}
	if c.MonitorURL == "" {
		problems = append(problems, "MONITOR_URL is required")
	}
	if !c.DefaultNetwork.Valid() {
		problems = append(problems, fmt.Sprintf("DEFAULT_NETWORK %q is not supported", c.DefaultNetwork))
	}
	if !c.DefaultToken.Valid() {
		problems = append(problems, fmt.Sprintf("DEFAULT_TOKEN %q is not supported", c.DefaultToken))
	}
	if c.TokenDecimals <= 0 || c.TokenDecimals > 18 {
		problems = append(problems, "TOKEN_DECIMALS must be between 1 and 18")
	}
	if !c.MaxAmountOffset.IsPositive() {
		problems = append(problems, "MAX_AMOUNT_OFFSET must be positive")
	}
	if c.StaticWallet {
		if err := ValidateAddress(c.DefaultNetwork, c.StaticAddress); err != nil {
			problems = append(problems, "STATIC_ADDRESS: "+err.Error())
		}
	}
	if c.PollInterval < 0 {
		problems = append(problems, "POLL_INTERVAL must not be negative")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		problems = append(problems, "RATE_LIMIT and RATE_BURST must be positive")
	}
	if len(problems) > 0 {
		return payment.ConfigurationError(strings.Join(problems, "; "))
	}
	return nil
}

// ValidateAddress checks that addr is well formed for network.
func ValidateAddress(network payment.Network, addr string) error {
	switch {
	case addr == "":
		return errors.New("address is empty")
	case network == payment.NetworkTron:
		if _, err := address.Base58ToAddress(addr); err != nil {
			return fmt.Errorf("not a tron address: %w", err)
		}
	case network.EVM():
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("not a %s address", network)
		}
	default:
		return fmt.Errorf("unsupported network %q", network)
	}
	return nil
}

// Engine returns the engine settings.
func (c Config) Engine() engine.Config {
	return engine.Config{
		StaticWallet:    c.StaticWallet,
		StaticAddress:   c.StaticAddress,
		DefaultNetwork:  c.DefaultNetwork,
		DefaultToken:    c.DefaultToken,
		TokenDecimals:   c.TokenDecimals,
		MaxAmountOffset: c.MaxAmountOffset,
		PaymentTimeout:  c.PaymentTimeout,
		StoreCurrency:   c.StoreCurrency,
	}
}
