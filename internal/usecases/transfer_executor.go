package usecases

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/metrics"
	"stablepay.backend/pkg/retry"
)

// TransferCallBuilder builds ERC20 transfer calldata
type TransferCallBuilder interface {
	BuildTransfer(from, token, to string, amount *big.Int) (entities.BuiltTx, error)
}

// TransferExecutor submits decimal-aware token transfers with retries.
// A retried attempt is a new transaction; nothing dedupes an attempt that
// reported failure but still landed on-chain.
type TransferExecutor struct {
	builder   TransferCallBuilder
	submitter TxSubmitter
	policy    retry.Policy
	metrics   metrics.Recorder
}

func NewTransferExecutor(builder TransferCallBuilder, submitter TxSubmitter, maxAttempts int, delay time.Duration, recorder metrics.Recorder) *TransferExecutor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &TransferExecutor{
		builder:   builder,
		submitter: submitter,
		policy:    retry.Policy{MaxAttempts: maxAttempts, Delay: delay},
		metrics:   recorder,
	}
}

// Transfer sends amount of token from holder to recipient and returns the
// hash of the attempt that succeeded.
func (e *TransferExecutor) Transfer(ctx context.Context, token entities.TokenDescriptor, to string, amount decimal.Decimal, holder string) (string, error) {
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("%w: invalid recipient %q", domainerrors.ErrInvalidInput, to)
	}
	if !amount.IsPositive() {
		return "", fmt.Errorf("%w: transfer amount must be positive", domainerrors.ErrInvalidInput)
	}
	raw, err := token.ToMinorUnits(amount)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domainerrors.ErrInvalidInput, err)
	}
	tx, err := e.builder.BuildTransfer(holder, token.ContractAddress, to, raw)
	if err != nil {
		return "", domainerrors.NewExecutionError(domainerrors.KindTransferFailed, 0, err)
	}

	policy := e.policy
	policy.OnRetry = func(attempt int, err error) {
		logger.Warn(ctx, "Transfer attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.String("token", token.CurrencyCode),
			zap.String("to", to),
			zap.Error(err),
		)
	}
	hash, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (string, error) {
		hash, err := e.submitter.Submit(ctx, tx)
		result := "ok"
		if err != nil {
			result = "error"
		}
		e.metrics.IncCounter(metrics.TxSubmissionsTotal, map[string]string{"kind": "transfer", "result": result})
		return hash, err
	})
	if err != nil {
		return "", domainerrors.NewExecutionError(domainerrors.KindTransferFailed, retry.Attempts(err), lastAttemptError(err))
	}

	logger.Info(ctx, "Transfer submitted",
		zap.String("tx_hash", hash),
		zap.String("token", token.CurrencyCode),
		zap.String("to", to),
		zap.String("amount", amount.String()),
	)
	return hash, nil
}
