/**
 * @description
 * Configuration management for the batch ledger service.
 */
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	ServerPort     string `mapstructure:"SERVER_PORT"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`
	AuditQueue     string `mapstructure:"AUDIT_QUEUE"`
	AuthJWTSecret  string `mapstructure:"AUTH_JWT_SECRET"`
	AuthJWTIssuer  string `mapstructure:"AUTH_JWT_ISSUER"`
	InternalAPIKey string `mapstructure:"INTERNAL_API_KEY"`

	AdminAddressesRaw string           `mapstructure:"ADMIN_ADDRESSES"`
	OperatorAddress   string           `mapstructure:"OPERATOR_ADDRESS"`
	Admins            []common.Address `mapstructure:"-"`
	Operator          common.Address   `mapstructure:"-"`

	DepositPrice          int64         `mapstructure:"DEPOSIT_PRICE"`
	DefaultBatchSize      uint32        `mapstructure:"DEFAULT_BATCH_SIZE"`
	PaymentWindow         time.Duration `mapstructure:"PAYMENT_WINDOW"`
	PatienceWindow        time.Duration `mapstructure:"PATIENCE_WINDOW"`
	SlashPenaltyPercent   int64         `mapstructure:"SLASH_PENALTY_PERCENT"`
	SlashingSweepSchedule string        `mapstructure:"SLASHING_SWEEP_SCHEDULE"`

	TokenRPCURL         string        `mapstructure:"TOKEN_RPC_URL"`
	TokenAddress        string        `mapstructure:"TOKEN_ADDRESS"`
	TokenChainID        int64         `mapstructure:"TOKEN_CHAIN_ID"`
	CustodyPrivateKey   string        `mapstructure:"CUSTODY_PRIVATE_KEY"`
	CustodyAddress      string        `mapstructure:"CUSTODY_ADDRESS"`
	TokenReceiptTimeout time.Duration `mapstructure:"TOKEN_RECEIPT_TIMEOUT"`
}

var envKeys = []string{
	"SERVER_PORT",
	"PORT",
	"DATABASE_URL",
	"RABBITMQ_URL",
	"EVENTS_EXCHANGE",
	"AUDIT_QUEUE",
	"AUTH_JWT_SECRET",
	"AUTH_JWT_ISSUER",
	"INTERNAL_API_KEY",
	"ADMIN_ADDRESSES",
	"OPERATOR_ADDRESS",
	"DEPOSIT_PRICE",
	"DEFAULT_BATCH_SIZE",
	"PAYMENT_WINDOW",
	"PATIENCE_WINDOW",
	"SLASH_PENALTY_PERCENT",
	"SLASHING_SWEEP_SCHEDULE",
	"TOKEN_RPC_URL",
	"TOKEN_ADDRESS",
	"TOKEN_CHAIN_ID",
	"CUSTODY_PRIVATE_KEY",
	"CUSTODY_ADDRESS",
	"TOKEN_RECEIPT_TIMEOUT",
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("EVENTS_EXCHANGE", "batcher.events")
	viper.SetDefault("AUDIT_QUEUE", "batcher.audit")
	viper.SetDefault("DEPOSIT_PRICE", 25)
	viper.SetDefault("DEFAULT_BATCH_SIZE", 24)
	viper.SetDefault("PAYMENT_WINDOW", 7*24*time.Hour)
	viper.SetDefault("PATIENCE_WINDOW", 180*24*time.Hour)
	viper.SetDefault("SLASH_PENALTY_PERCENT", 50)
	viper.SetDefault("SLASHING_SWEEP_SCHEDULE", "0 * * * *")
	viper.SetDefault("TOKEN_RECEIPT_TIMEOUT", 2*time.Minute)
	viper.AutomaticEnv()

	for _, key := range envKeys {
		_ = viper.BindEnv(key)
	}

	if err = viper.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if port := os.Getenv("PORT"); port != "" {
		config.ServerPort = port
	}

	if err = config.normalize(); err != nil {
		return config, err
	}
	return config, config.validate()
}

func (c *Config) normalize() error {
	c.Admins = nil
	for _, raw := range strings.Split(c.AdminAddressesRaw, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return fmt.Errorf("ADMIN_ADDRESSES contains invalid address %q", raw)
		}
		c.Admins = append(c.Admins, common.HexToAddress(raw))
	}

	operator := strings.TrimSpace(c.OperatorAddress)
	switch {
	case operator != "":
		if !common.IsHexAddress(operator) {
			return fmt.Errorf("OPERATOR_ADDRESS is not a valid address: %q", operator)
		}
		c.Operator = common.HexToAddress(operator)
	case len(c.Admins) > 0:
		c.Operator = c.Admins[0]
	}

	c.EventsExchange = strings.TrimSpace(c.EventsExchange)
	c.InternalAPIKey = strings.TrimSpace(c.InternalAPIKey)
	return nil
}

func (c Config) validate() error {
	if len(c.Admins) == 0 {
		return fmt.Errorf("ADMIN_ADDRESSES must list at least one admin address")
	}
	if c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.DepositPrice <= 0 {
		return fmt.Errorf("DEPOSIT_PRICE must be positive, got %d", c.DepositPrice)
	}
	if c.DefaultBatchSize == 0 {
		return fmt.Errorf("DEFAULT_BATCH_SIZE must be positive")
	}
	if c.PaymentWindow <= 0 {
		return fmt.Errorf("PAYMENT_WINDOW must be positive, got %s", c.PaymentWindow)
	}
	if c.PatienceWindow < 0 {
		return fmt.Errorf("PATIENCE_WINDOW must not be negative, got %s", c.PatienceWindow)
	}
	if c.SlashPenaltyPercent < 0 || c.SlashPenaltyPercent > 100 {
		return fmt.Errorf("SLASH_PENALTY_PERCENT must be between 0 and 100, got %d", c.SlashPenaltyPercent)
	}
	if c.TokenRPCURL != "" {
		if !common.IsHexAddress(c.TokenAddress) {
			return fmt.Errorf("TOKEN_ADDRESS must be a valid address when TOKEN_RPC_URL is set")
		}
		if c.CustodyPrivateKey == "" {
			return fmt.Errorf("CUSTODY_PRIVATE_KEY is required when TOKEN_RPC_URL is set")
		}
	}
	if c.CustodyAddress != "" && !common.IsHexAddress(c.CustodyAddress) {
		return fmt.Errorf("CUSTODY_ADDRESS is not a valid address: %q", c.CustodyAddress)
	}
	return nil
}
