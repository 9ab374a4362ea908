package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/metrics"
	"stablepay.backend/pkg/retry"
)

const bpsDenominator = 10000

// TxSubmitter signs and broadcasts a built transaction for its From account
type TxSubmitter interface {
	Submit(ctx context.Context, tx entities.BuiltTx) (string, error)
}

// SwapCallBuilder builds swap calldata against the exchange router
type SwapCallBuilder interface {
	Address() string
	BuildSwapIn(from string, pair entities.TradingPair, tokenIn, tokenOut string, amountIn, minOut *big.Int) (entities.BuiltTx, error)
}

// AllowanceBuilder builds token allowance calldata
type AllowanceBuilder interface {
	BuildIncreaseAllowance(from, token, spender string, amount *big.Int) (entities.BuiltTx, error)
}

// SwapExecutor approves the router and swaps with a slippage bound.
type SwapExecutor struct {
	quotes    *QuoteService
	router    SwapCallBuilder
	allowance AllowanceBuilder
	submitter TxSubmitter
	policy    retry.Policy
	metrics   metrics.Recorder
}

// NewSwapExecutor creates a swap executor retrying the swap step maxAttempts times
func NewSwapExecutor(quotes *QuoteService, router SwapCallBuilder, allowance AllowanceBuilder, submitter TxSubmitter, maxAttempts int, delay time.Duration, recorder metrics.Recorder) *SwapExecutor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &SwapExecutor{
		quotes:    quotes,
		router:    router,
		allowance: allowance,
		submitter: submitter,
		policy:    retry.Policy{MaxAttempts: maxAttempts, Delay: delay},
		metrics:   recorder,
	}
}

// MinOut applies a slippage bound in basis points to an expected output.
func MinOut(expectedOut *big.Int, slippageBps int64) *big.Int {
	if slippageBps < 0 {
		slippageBps = 0
	}
	if slippageBps > bpsDenominator {
		slippageBps = bpsDenominator
	}
	out := new(big.Int).Mul(expectedOut, big.NewInt(bpsDenominator-slippageBps))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

// Swap sells sourceAmount of source for target on behalf of holder.
func (e *SwapExecutor) Swap(ctx context.Context, source, target entities.TokenDescriptor, sourceAmount decimal.Decimal, slippageBps int64, holder string) (entities.SwapReceipt, error) {
	quote, err := e.quotes.QuoteOut(ctx, source, target, sourceAmount)
	if err != nil {
		return entities.SwapReceipt{}, err
	}
	pair, err := e.quotes.FindPair(ctx, source, target)
	if err != nil {
		return entities.SwapReceipt{}, err
	}

	amountIn, err := source.ToMinorUnits(sourceAmount)
	if err != nil {
		return entities.SwapReceipt{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidInput, err)
	}
	expectedOut, err := target.ToMinorUnits(quote.TargetAmount)
	if err != nil {
		return entities.SwapReceipt{}, err
	}
	minOut := MinOut(expectedOut, slippageBps)

	receipt := entities.SwapReceipt{
		ExpectedOut: quote.TargetAmount,
		MinOut:      target.FromMinorUnits(minOut),
	}

	approval, err := e.allowance.BuildIncreaseAllowance(holder, source.ContractAddress, e.router.Address(), amountIn)
	if err != nil {
		return receipt, domainerrors.NewExecutionError(domainerrors.KindApprovalFailed, 1, err)
	}
	approvalHash, err := e.submitter.Submit(ctx, approval)
	e.recordSubmission("approval", err)
	if err != nil {
		logger.Warn(ctx, "Approval failed", zap.String("token", source.CurrencyCode), zap.Error(err))
		return receipt, domainerrors.NewExecutionError(domainerrors.KindApprovalFailed, 1, err)
	}
	receipt.ApprovalTxHash = approvalHash
	logger.Info(ctx, "Approval submitted", zap.String("tx_hash", approvalHash), zap.String("token", source.CurrencyCode))

	swapTx, err := e.router.BuildSwapIn(holder, pair, source.ContractAddress, target.ContractAddress, amountIn, minOut)
	if err != nil {
		return receipt, domainerrors.NewExecutionError(domainerrors.KindSwapFailed, 0, err)
	}

	policy := e.policy
	policy.OnRetry = func(attempt int, err error) {
		logger.Warn(ctx, "Swap attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("pair", source.CurrencyCode+"/"+target.CurrencyCode),
			zap.Error(err),
		)
	}
	swapHash, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (string, error) {
		hash, err := e.submitter.Submit(ctx, swapTx)
		e.recordSubmission("swap", err)
		return hash, err
	})
	if err != nil {
		last := lastAttemptError(err)
		if isOracleUnavailable(last) {
			last = &domainerrors.OracleUnavailableError{Sell: source.CurrencyCode, Buy: target.CurrencyCode, Err: last}
		}
		return receipt, domainerrors.NewExecutionError(domainerrors.KindSwapFailed, retry.Attempts(err), last)
	}
	receipt.TxHash = swapHash
	logger.Info(ctx, "Swap submitted",
		zap.String("tx_hash", swapHash),
		zap.String("sell", source.CurrencyCode),
		zap.String("buy", target.CurrencyCode),
		zap.String("amount_in", sourceAmount.String()),
		zap.String("min_out", receipt.MinOut.String()),
	)
	return receipt, nil
}

func (e *SwapExecutor) recordSubmission(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	e.metrics.IncCounter(metrics.TxSubmissionsTotal, map[string]string{"kind": kind, "result": result})
}

func lastAttemptError(err error) error {
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) && exhausted.Last() != nil {
		return exhausted.Last()
	}
	return err
}
