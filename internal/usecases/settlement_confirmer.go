package usecases

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	"stablepay.backend/pkg/logger"
	"stablepay.backend/pkg/metrics"
)

const (
	DefaultConfirmTimeout  = 60 * time.Second
	DefaultConfirmInterval = 500 * time.Millisecond
)

// TokenBalanceReader reads one decimal-adjusted balance
type TokenBalanceReader interface {
	BalanceOf(ctx context.Context, token entities.TokenDescriptor, holder string) (decimal.Decimal, error)
}

// SettlementConfirmer waits for a balance to reach a threshold.
type SettlementConfirmer struct {
	balances TokenBalanceReader
	metrics  metrics.Recorder
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewSettlementConfirmer(balances TokenBalanceReader, recorder metrics.Recorder) *SettlementConfirmer {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &SettlementConfirmer{
		balances: balances,
		metrics:  recorder,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// AwaitBalanceAtLeast polls until holder's balance of token reaches threshold
// or timeout elapses. Timing out is reported through ConfirmResult.TimedOut;
// the only error is the caller's context ending.
func (c *SettlementConfirmer) AwaitBalanceAtLeast(ctx context.Context, token entities.TokenDescriptor, holder string, threshold decimal.Decimal, timeout, interval time.Duration) (entities.ConfirmResult, error) {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	if interval <= 0 {
		interval = DefaultConfirmInterval
	}

	start := c.now()
	deadline := start.Add(timeout)
	result := entities.ConfirmResult{}
	defer func() {
		outcome := "met"
		if !result.Met {
			outcome = "timeout"
		}
		c.metrics.ObserveLatency(metrics.ConfirmWait, c.now().Sub(start), map[string]string{"kind": outcome})
	}()

	for {
		readCtx, cancel := context.WithTimeout(ctx, deadline.Sub(c.now())+interval)
		balance, err := c.balances.BalanceOf(readCtx, token, holder)
		cancel()
		if err == nil {
			result.Observed = balance
			if balance.GreaterThanOrEqual(threshold) {
				result.Met = true
				return result, nil
			}
		} else {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			logger.Warn(ctx, "Balance poll failed", zap.String("token", token.CurrencyCode), zap.Error(err))
		}

		remaining := deadline.Sub(c.now())
		if remaining <= 0 {
			result.TimedOut = true
			logger.Warn(ctx, "Balance confirmation timed out",
				zap.String("token", token.CurrencyCode),
				zap.String("threshold", threshold.String()),
				zap.String("observed", result.Observed.String()),
			)
			return result, nil
		}
		wait := interval
		if remaining < wait {
			wait = remaining
		}
		if err := c.sleep(ctx, wait); err != nil {
			return result, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
