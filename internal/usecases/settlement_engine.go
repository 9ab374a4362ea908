package usecases

import (
	"time"

	"github.com/shopspring/decimal"
	"stablepay.backend/pkg/metrics"
)

// TokenCallBuilder builds the ERC20 calls the engine submits
type TokenCallBuilder interface {
	AllowanceBuilder
	TransferCallBuilder
}

// EnginePorts are the chain-facing collaborators of the settlement engine
type EnginePorts struct {
	Balances  TokenBalanceClient
	Router    SwapCallBuilder
	Tokens    TokenCallBuilder
	Submitter TxSubmitter
	Metrics   metrics.Recorder
}

// EngineSettings are the policy knobs of the settlement engine
type EngineSettings struct {
	PlatformFeeRate     decimal.Decimal
	PlatformFeeAddress  string
	SlippageBps         int64
	SwapMaxAttempts     int
	SwapRetryDelay      time.Duration
	TransferMaxAttempts int
	TransferRetryDelay  time.Duration
	ConfirmTimeout      time.Duration
	ConfirmInterval     time.Duration
}

// SettlementEngine groups the components a payment flow drives
type SettlementEngine struct {
	Registry  *TokenRegistry
	Balances  *BalanceReader
	Quotes    *QuoteService
	Router    *PaymentRouter
	Swaps     *SwapExecutor
	Transfers *TransferExecutor
	Confirmer *SettlementConfirmer
	Fees      *FeeSplitter
	Settings  EngineSettings
}

// NewSettlementEngine wires every component around registry. The quote
// service starts detached; attach a trading client once it is loaded.
func NewSettlementEngine(registry *TokenRegistry, ports EnginePorts, settings EngineSettings) (*SettlementEngine, error) {
	recorder := ports.Metrics
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	if settings.SlippageBps <= 0 {
		settings.SlippageBps = 100
	}

	balances := NewBalanceReader(ports.Balances, registry)
	quotes := NewQuoteService()
	transfers := NewTransferExecutor(ports.Tokens, ports.Submitter, settings.TransferMaxAttempts, settings.TransferRetryDelay, recorder)
	fees, err := NewFeeSplitter(balances, transfers, settings.PlatformFeeRate, settings.PlatformFeeAddress)
	if err != nil {
		return nil, err
	}

	return &SettlementEngine{
		Registry:  registry,
		Balances:  balances,
		Quotes:    quotes,
		Router:    NewPaymentRouter(registry, quotes, settings.SlippageBps),
		Swaps:     NewSwapExecutor(quotes, ports.Router, ports.Tokens, ports.Submitter, settings.SwapMaxAttempts, settings.SwapRetryDelay, recorder),
		Transfers: transfers,
		Confirmer: NewSettlementConfirmer(balances, recorder),
		Fees:      fees,
		Settings:  settings,
	}, nil
}
