package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, "8080", cfg.Server.Port)
	require.Equal(t, "USD", cfg.Settlement.FallbackCurrency)
	require.True(t, cfg.Settlement.PlatformFeeRate.Equal(decimal.RequireFromString("0.01")))
	require.Equal(t, 100, cfg.Settlement.DefaultSlippageBps)
	require.Equal(t, 60*time.Second, cfg.Settlement.ConfirmTimeout)
	require.Equal(t, 500*time.Millisecond, cfg.Settlement.ConfirmInterval)
	require.Equal(t, 3, cfg.Settlement.SwapMaxAttempts)
	require.Equal(t, time.Second, cfg.Settlement.SwapRetryDelay)
	require.Equal(t, 5, cfg.Settlement.TransferMaxAttempts)
	require.Equal(t, 3*time.Second, cfg.Settlement.TransferRetryDelay)
	require.Equal(t, 5*time.Minute, cfg.Settlement.FlowLockTTL)
	require.Equal(t, time.Minute, cfg.Settlement.FlowLockRefresh)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")
	t.Setenv("DB_NAME", "n")
	t.Setenv("DB_SSLMODE", "require")
	t.Setenv("FALLBACK_CURRENCY", "eur")
	t.Setenv("PLATFORM_FEE_RATE", "0.025")
	t.Setenv("CONFIRM_TIMEOUT", "5s")
	t.Setenv("SWAP_MAX_ATTEMPTS", "4")
	t.Setenv("FLOW_TOKEN_EXPIRY", "10m")

	cfg := Load()
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "postgres://u:p@db:6543/n?sslmode=require", cfg.Database.URL())
	require.Equal(t, "EUR", cfg.Settlement.FallbackCurrency)
	require.True(t, cfg.Settlement.PlatformFeeRate.Equal(decimal.RequireFromString("0.025")))
	require.Equal(t, 5*time.Second, cfg.Settlement.ConfirmTimeout)
	require.Equal(t, 4, cfg.Settlement.SwapMaxAttempts)
	require.Equal(t, 10*time.Minute, cfg.JWT.FlowTokenExpiry)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DB_PORT", "abc")
	t.Setenv("CONFIRM_INTERVAL", "soon")
	t.Setenv("PLATFORM_FEE_RATE", "one percent")

	cfg := Load()
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, 500*time.Millisecond, cfg.Settlement.ConfirmInterval)
	require.True(t, cfg.Settlement.PlatformFeeRate.Equal(decimal.RequireFromString("0.01")))
}

func TestParseTokens(t *testing.T) {
	specs, err := ParseTokens("usd=0x765DE816845861e75A25fCA122bb6898B8B1282a:18, COP=0x8A567e2aE79CA692Bd748aB832081C45de4041eA:18,USDC=0xcebA9300f2b948710d2653dD7B07f33A8B32118C:6")
	require.NoError(t, err)
	require.Len(t, specs, 3)
	require.Equal(t, "USD", specs[0].CurrencyCode)
	require.Equal(t, "0x765DE816845861e75A25fCA122bb6898B8B1282a", specs[0].Address)
	require.Equal(t, int32(6), specs[2].Decimals)

	empty, err := ParseTokens("")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestParseTokens_Errors(t *testing.T) {
	cases := map[string]string{
		"missing equals":   "USD",
		"missing decimals": "USD=0x765DE816845861e75A25fCA122bb6898B8B1282a",
		"bad address":      "USD=0xnothex:18",
		"bad decimals":     "USD=0x765DE816845861e75A25fCA122bb6898B8B1282a:x",
		"empty code":       "=0x765DE816845861e75A25fCA122bb6898B8B1282a:18",
		"duplicate":        "USD=0x765DE816845861e75A25fCA122bb6898B8B1282a:18,usd=0x765DE816845861e75A25fCA122bb6898B8B1282a:18",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTokens(raw)
			require.Error(t, err)
		})
	}
}

func TestParseSigners(t *testing.T) {
	signers, err := ParseSigners("0x00000000000000000000000000000000000000A1=0xabc123, 0x00000000000000000000000000000000000000b2=def456")
	require.NoError(t, err)
	require.Equal(t, "abc123", signers["0x00000000000000000000000000000000000000a1"])
	require.Equal(t, "def456", signers["0x00000000000000000000000000000000000000b2"])

	_, err = ParseSigners("not-an-address=abc")
	require.Error(t, err)
	_, err = ParseSigners("0x00000000000000000000000000000000000000a1")
	require.Error(t, err)
}
