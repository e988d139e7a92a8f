package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Voltage  VoltageConfig
	Rates    RatesConfig
	Polling  PollingConfig
	Server   ServerConfig
	Store    StoreConfig
	TipsFile string
}

// VoltageConfig holds the Voltage API endpoint and credentials.
// Credentials are opaque to the core; only the gateway and the
// forwarding server ever read them.
type VoltageConfig struct {
	BaseUrl        string
	ApiKey         string
	OrgId          string
	EnvId          string
	WalletId       string
	PaymentKind    PaymentKind
	RequestTimeout time.Duration
}

// MissingCredentials returns the names of required credential settings
// that are not set. An empty slice means the gateway is usable.
func (c VoltageConfig) MissingCredentials() []string {
	var missing []string
	if c.ApiKey == "" {
		missing = append(missing, "VOLTAGE_API_KEY")
	}
	if c.OrgId == "" {
		missing = append(missing, "VOLTAGE_ORG_ID")
	}
	if c.EnvId == "" {
		missing = append(missing, "VOLTAGE_ENV_ID")
	}
	return missing
}

// RatesConfig holds the price ticker settings.
type RatesConfig struct {
	TickerUrl       string
	FreshnessWindow time.Duration
	RequestTimeout  time.Duration

	// FallbackPriceUsd is an operator-supplied emergency rate used by the
	// embedding layer when no live or cached rate exists. Zero disables it.
	FallbackPriceUsd decimal.Decimal
}

// PollBudget bounds one polling loop: a fixed interval between attempts
// and a hard ceiling on the attempt count.
type PollBudget struct {
	Interval    time.Duration
	MaxAttempts int
}

// PollingConfig holds the two poll budgets of the tip lifecycle.
type PollingConfig struct {
	Instructions PollBudget
	Settlement   PollBudget
}

// ServerConfig holds forwarding server settings
type ServerConfig struct {
	ListenAddr      string
	CorsEnabled     bool
	UpstreamTimeout time.Duration
	ShutdownTimeout time.Duration
	PurgeInterval   time.Duration
}

// StoreConfig holds idempotency store settings
type StoreConfig struct {
	Backend         string // "memory" or "sqlite"
	Path            string
	Ttl             time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}
