package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Config holds all configuration values
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Blockchain BlockchainConfig
	Settlement SettlementConfig
	Security   SecurityConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// JWTConfig holds flow token configuration
type JWTConfig struct {
	Secret          string
	FlowTokenExpiry time.Duration
}

// BlockchainConfig holds the Celo RPC and Mento broker settings
type BlockchainConfig struct {
	RPCURL            string
	BrokerAddress     string
	SignerPrivateKeys string // address=hexkey,...
	InitTimeout       time.Duration
}

// SettlementConfig holds the engine policy knobs
type SettlementConfig struct {
	Tokens              string // CODE=address:decimals,...
	FallbackCurrency    string
	PlatformFeeRate     decimal.Decimal
	PlatformFeeAddress  string
	DefaultSlippageBps  int
	ConfirmTimeout      time.Duration
	ConfirmInterval     time.Duration
	SwapMaxAttempts     int
	SwapRetryDelay      time.Duration
	TransferMaxAttempts int
	TransferRetryDelay  time.Duration
	FlowConfirmTTL      time.Duration
	FlowLockTTL         time.Duration
	FlowLockRefresh     time.Duration
	ExpirySweepInterval time.Duration
	PaymentLinkBaseURL  string
}

// SecurityConfig holds operator credentials
type SecurityConfig struct {
	OperatorKeyHash string
}

// TokenSpec is one configured currency -> token binding
type TokenSpec struct {
	CurrencyCode string
	Address      string
	Decimals     int32
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Env:  getEnv("SERVER_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "stablepay"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", "change-this-in-production"),
			FlowTokenExpiry: getEnvAsDuration("FLOW_TOKEN_EXPIRY", 30*time.Minute),
		},
		Blockchain: BlockchainConfig{
			RPCURL:            getEnv("CELO_RPC_URL", "https://forno.celo.org"),
			BrokerAddress:     getEnv("MENTO_BROKER_ADDRESS", "0x777A8255cA72412f0d706dc03C9D1987306B4CaD"),
			SignerPrivateKeys: getEnv("SIGNER_PRIVATE_KEYS", ""),
			InitTimeout:       getEnvAsDuration("BROKER_INIT_TIMEOUT", 30*time.Second),
		},
		Settlement: SettlementConfig{
			Tokens:              getEnv("SETTLEMENT_TOKENS", ""),
			FallbackCurrency:    strings.ToUpper(getEnv("FALLBACK_CURRENCY", "USD")),
			PlatformFeeRate:     getEnvAsDecimal("PLATFORM_FEE_RATE", decimal.RequireFromString("0.01")),
			PlatformFeeAddress:  getEnv("PLATFORM_FEE_ADDRESS", ""),
			DefaultSlippageBps:  getEnvAsInt("DEFAULT_SLIPPAGE_BPS", 100),
			ConfirmTimeout:      getEnvAsDuration("CONFIRM_TIMEOUT", 60*time.Second),
			ConfirmInterval:     getEnvAsDuration("CONFIRM_INTERVAL", 500*time.Millisecond),
			SwapMaxAttempts:     getEnvAsInt("SWAP_MAX_ATTEMPTS", 3),
			SwapRetryDelay:      getEnvAsDuration("SWAP_RETRY_DELAY", time.Second),
			TransferMaxAttempts: getEnvAsInt("TRANSFER_MAX_ATTEMPTS", 5),
			TransferRetryDelay:  getEnvAsDuration("TRANSFER_RETRY_DELAY", 3*time.Second),
			FlowConfirmTTL:      getEnvAsDuration("FLOW_CONFIRM_TTL", 15*time.Minute),
			FlowLockTTL:         getEnvAsDuration("FLOW_LOCK_TTL", 5*time.Minute),
			FlowLockRefresh:     getEnvAsDuration("FLOW_LOCK_REFRESH", time.Minute),
			ExpirySweepInterval: getEnvAsDuration("FLOW_EXPIRY_INTERVAL", 30*time.Second),
			PaymentLinkBaseURL:  getEnv("PAYMENT_LINK_BASE_URL", "https://pay.stablepay.app/pay"),
		},
		Security: SecurityConfig{
			OperatorKeyHash: getEnv("OPERATOR_KEY_HASH", ""),
		},
	}
}

// ParseTokens parses SETTLEMENT_TOKENS ("USD=0x...:18,COP=0x...:18").
func ParseTokens(raw string) ([]TokenSpec, error) {
	var specs []TokenSpec
	seen := make(map[string]bool)
	for _, entry := range splitList(raw) {
		code, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("token entry %q: expected CODE=address:decimals", entry)
		}
		code = strings.ToUpper(strings.TrimSpace(code))
		address, decimalsRaw, ok := strings.Cut(strings.TrimSpace(rest), ":")
		if !ok {
			return nil, fmt.Errorf("token entry %q: missing decimals", entry)
		}
		if code == "" {
			return nil, fmt.Errorf("token entry %q: empty currency code", entry)
		}
		if !common.IsHexAddress(address) {
			return nil, fmt.Errorf("token %s: invalid contract address %q", code, address)
		}
		decimals, err := strconv.ParseInt(strings.TrimSpace(decimalsRaw), 10, 32)
		if err != nil || decimals < 0 || decimals > 36 {
			return nil, fmt.Errorf("token %s: invalid decimals %q", code, decimalsRaw)
		}
		if seen[code] {
			return nil, fmt.Errorf("token %s configured twice", code)
		}
		seen[code] = true
		specs = append(specs, TokenSpec{
			CurrencyCode: code,
			Address:      common.HexToAddress(address).Hex(),
			Decimals:     int32(decimals),
		})
	}
	return specs, nil
}

// ParseSigners parses SIGNER_PRIVATE_KEYS ("0xaddr=hexkey,...") into a map
// keyed by lower-case address.
func ParseSigners(raw string) (map[string]string, error) {
	signers := make(map[string]string)
	for _, entry := range splitList(raw) {
		address, key, ok := strings.Cut(entry, "=")
		address = strings.TrimSpace(address)
		if !ok || !common.IsHexAddress(address) {
			return nil, fmt.Errorf("signer entry for %q: expected address=hexkey", address)
		}
		signers[strings.ToLower(common.HexToAddress(address).Hex())] = strings.TrimPrefix(strings.TrimSpace(key), "0x")
	}
	return signers, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
