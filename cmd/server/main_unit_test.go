package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"stablepay.backend/internal/config"
	"stablepay.backend/internal/infrastructure/blockchain"
	plog "stablepay.backend/pkg/logger"
)

func withMainHooks(t *testing.T) {
	t.Helper()
	origLoadDotenv := loadDotenv
	origLoadCfg := loadCfg
	origInitLog := initLog
	origInitRedis := initRedis
	origOpenDB := openDB
	origDialChain := dialChain
	origRunServer := runServer
	origPingDB := pingDB
	origAttempts := brokerLoadAttempts
	origDelay := brokerLoadDelay

	loadDotenv = func(...string) error { return nil }
	loadCfg = baseTestConfig
	initLog = plog.Init
	initRedis = func(string, string) error { return nil }
	dialChain = func(string) (*blockchain.EVMClient, error) {
		return blockchain.NewEVMClientWithCallView(nil, func(context.Context, string, []byte) ([]byte, error) {
			return nil, errors.New("offline")
		}), nil
	}
	pingDB = func(db *sql.DB) error { return db.Ping() }
	brokerLoadAttempts = 1
	brokerLoadDelay = 0

	t.Cleanup(func() {
		loadDotenv = origLoadDotenv
		loadCfg = origLoadCfg
		initLog = origInitLog
		initRedis = origInitRedis
		openDB = origOpenDB
		dialChain = origDialChain
		runServer = origRunServer
		pingDB = origPingDB
		brokerLoadAttempts = origAttempts
		brokerLoadDelay = origDelay
	})
}

func sqliteDB(name string) func(config.DatabaseConfig) (*gorm.DB, error) {
	return func(config.DatabaseConfig) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{})
	}
}

func baseTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port: "18080",
			Env:  "development",
		},
		Database: config.DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			DBName:   "stablepay",
			SSLMode:  "disable",
		},
		Redis: config.RedisConfig{
			URL:      "redis://localhost:6379",
			PASSWORD: "",
		},
		JWT: config.JWTConfig{
			Secret:          "secret",
			FlowTokenExpiry: 30 * time.Minute,
		},
		Blockchain: config.BlockchainConfig{
			RPCURL:        "http://localhost:8545",
			BrokerAddress: "0x777A8255cA72412f0d706dc03C9D1987306B4CaD",
			InitTimeout:   time.Second,
		},
		Settlement: config.SettlementConfig{
			Tokens:              "USD=0x765DE816845861e75A25fCA122bb6898B8B1282a:18,COP=0x8A567e2aE79CA692Bd748aB832081C45de4041eA:18",
			FallbackCurrency:    "USD",
			PlatformFeeRate:     decimal.RequireFromString("0.01"),
			PlatformFeeAddress:  "0x00000000000000000000000000000000000000fe",
			DefaultSlippageBps:  100,
			ConfirmTimeout:      time.Second,
			ConfirmInterval:     10 * time.Millisecond,
			SwapMaxAttempts:     3,
			SwapRetryDelay:      time.Millisecond,
			TransferMaxAttempts: 3,
			TransferRetryDelay:  time.Millisecond,
			FlowConfirmTTL:      15 * time.Minute,
			FlowLockTTL:         time.Minute,
			FlowLockRefresh:     20 * time.Second,
			ExpirySweepInterval: time.Hour,
			PaymentLinkBaseURL:  "https://pay.example.test/pay",
		},
	}
}

func TestRunMainProcess_InvalidTokenTable(t *testing.T) {
	withMainHooks(t)
	loadCfg = func() *config.Config {
		cfg := baseTestConfig()
		cfg.Settlement.Tokens = "USD=not-an-address:18"
		return cfg
	}

	err := runMainProcess()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SETTLEMENT_TOKENS")
}

func TestRunMainProcess_UnknownFallback(t *testing.T) {
	withMainHooks(t)
	loadCfg = func() *config.Config {
		cfg := baseTestConfig()
		cfg.Settlement.FallbackCurrency = "EUR"
		return cfg
	}

	assert.ErrorContains(t, runMainProcess(), "token registry")
}

func TestRunMainProcess_InvalidSigners(t *testing.T) {
	withMainHooks(t)
	loadCfg = func() *config.Config {
		cfg := baseTestConfig()
		cfg.Blockchain.SignerPrivateKeys = "nobody=abc"
		return cfg
	}

	assert.ErrorContains(t, runMainProcess(), "SIGNER_PRIVATE_KEYS")
}

func TestRunMainProcess_RedisInitError(t *testing.T) {
	withMainHooks(t)
	initRedis = func(string, string) error { return errors.New("redis down") }

	assert.ErrorContains(t, runMainProcess(), "redis")
}

func TestRunMainProcess_DBOpenError(t *testing.T) {
	withMainHooks(t)
	openDB = func(config.DatabaseConfig) (*gorm.DB, error) { return nil, errors.New("db open failed") }

	assert.ErrorContains(t, runMainProcess(), "database")
}

func TestRunMainProcess_ChainDialError(t *testing.T) {
	withMainHooks(t)
	openDB = sqliteDB("main_chain_err")
	dialChain = func(string) (*blockchain.EVMClient, error) { return nil, errors.New("no route to host") }

	assert.ErrorContains(t, runMainProcess(), "celo rpc")
}

func TestRunMainProcess_InvalidFeeRate(t *testing.T) {
	withMainHooks(t)
	openDB = sqliteDB("main_fee_err")
	loadCfg = func() *config.Config {
		cfg := baseTestConfig()
		cfg.Settlement.PlatformFeeRate = decimal.RequireFromString("0.9")
		return cfg
	}

	assert.ErrorContains(t, runMainProcess(), "settlement engine")
}

func TestRunMainProcess_ServerRunError(t *testing.T) {
	withMainHooks(t)
	openDB = sqliteDB("main_server_err")
	runServer = func(*gin.Engine, string) error { return errors.New("listen failed") }

	assert.ErrorContains(t, runMainProcess(), "listen failed")
}

func TestRunMainProcess_SuccessPath(t *testing.T) {
	withMainHooks(t)
	openDB = sqliteDB("main_success")

	var routes gin.RoutesInfo
	runServer = func(r *gin.Engine, _ string) error {
		routes = r.Routes()
		return nil
	}

	require.NoError(t, runMainProcess())
	paths := make(map[string]bool, len(routes))
	for _, route := range routes {
		paths[route.Method+" "+route.Path] = true
	}
	assert.True(t, paths["GET /health"])
	assert.True(t, paths["GET /metrics"])
	assert.True(t, paths["POST /api/v1/flows/:id/confirm"])
}

type loaderFunc func(ctx context.Context) error

func (f loaderFunc) LoadExchanges(ctx context.Context) error { return f(ctx) }

func TestLoadExchanges_RetriesUntilSuccess(t *testing.T) {
	withMainHooks(t)
	brokerLoadAttempts = 3

	calls := 0
	err := loadExchanges(context.Background(), loaderFunc(func(ctx context.Context) error {
		calls++
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		if calls < 3 {
			return errors.New("rpc timeout")
		}
		return nil
	}), time.Second)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestLoadExchanges_GivesUp(t *testing.T) {
	withMainHooks(t)
	brokerLoadAttempts = 2

	calls := 0
	err := loadExchanges(context.Background(), loaderFunc(func(context.Context) error {
		calls++
		return errors.New("rpc timeout")
	}), 0)

	assert.ErrorContains(t, err, "rpc timeout")
	assert.Equal(t, 2, calls)
}

func TestTokenDescriptors(t *testing.T) {
	specs, err := config.ParseTokens("usd=0x765DE816845861e75A25fCA122bb6898B8B1282a:18")
	require.NoError(t, err)

	tokens := tokenDescriptors(specs)
	require.Len(t, tokens, 1)
	assert.Equal(t, "USD", tokens[0].CurrencyCode)
	assert.Equal(t, "0x765DE816845861e75A25fCA122bb6898B8B1282a", tokens[0].ContractAddress)
	assert.Equal(t, int32(18), tokens[0].Decimals)
}
