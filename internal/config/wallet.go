package config

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// WalletConfig holds the tunables of the wallet engine. Everything here is
// injected rather than hard-coded so tests can substitute deterministic
// values (commission rate and minimum amounts in particular).
type WalletConfig struct {
	MinAmount         decimal.Decimal // minimum for deposit/withdraw/send, in base units
	CommissionRate    decimal.Decimal // platform cut on escrow release, e.g. 0.10
	PlatformAccountID string          // account credited with commissions
	MaxCommitAttempts int
	RetryBackoff      time.Duration
	CacheTTL          time.Duration
	RequestExpiry     time.Duration
	KafkaBrokers      []string
	KafkaTopic        string
}

// LoadWalletConfig reads engine configuration with defaults.
func LoadWalletConfig() *WalletConfig {
	viper.SetDefault("wallet.min_amount", "10000")
	viper.SetDefault("wallet.commission_rate", "0.10")
	viper.SetDefault("wallet.platform_account_id", "platform")
	viper.SetDefault("wallet.max_commit_attempts", 3)
	viper.SetDefault("wallet.retry_backoff", 50*time.Millisecond)
	viper.SetDefault("wallet.cache_ttl", 5*time.Minute)
	viper.SetDefault("wallet.request_expiry", 7*24*time.Hour)
	viper.SetDefault("wallet.kafka_topic", "wallet_events")

	minAmount, err := decimal.NewFromString(viper.GetString("wallet.min_amount"))
	if err != nil {
		minAmount = decimal.NewFromInt(10000)
	}
	rate, err := decimal.NewFromString(viper.GetString("wallet.commission_rate"))
	if err != nil {
		rate = decimal.NewFromFloat(0.10)
	}

	return &WalletConfig{
		MinAmount:         minAmount,
		CommissionRate:    rate,
		PlatformAccountID: viper.GetString("wallet.platform_account_id"),
		MaxCommitAttempts: viper.GetInt("wallet.max_commit_attempts"),
		RetryBackoff:      viper.GetDuration("wallet.retry_backoff"),
		CacheTTL:          viper.GetDuration("wallet.cache_ttl"),
		RequestExpiry:     viper.GetDuration("wallet.request_expiry"),
		KafkaBrokers:      viper.GetStringSlice("wallet.kafka_brokers"),
		KafkaTopic:        viper.GetString("wallet.kafka_topic"),
	}
}
