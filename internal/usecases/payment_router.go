package usecases

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
)

// FallbackQuoter prices the fallback cost of a target amount
type FallbackQuoter interface {
	QuoteIn(ctx context.Context, sell, buy entities.TokenDescriptor, buyAmount decimal.Decimal) (entities.Quote, error)
}

// PaymentRouter chooses how a payment request is settled. It never submits
// transactions and can be called again with fresh balances.
type PaymentRouter struct {
	registry    *TokenRegistry
	quotes      FallbackQuoter
	slippageBps int64
}

func NewPaymentRouter(registry *TokenRegistry, quotes FallbackQuoter, slippageBps int64) *PaymentRouter {
	if slippageBps <= 0 {
		slippageBps = entities.DefaultSlippageBps
	}
	return &PaymentRouter{registry: registry, quotes: quotes, slippageBps: slippageBps}
}

// Decide returns the settlement plan for req given the payer's balances.
func (r *PaymentRouter) Decide(ctx context.Context, req entities.PaymentRequest, balances entities.BalanceSheet) (entities.SettlementPlan, error) {
	if !req.Amount.IsPositive() {
		return entities.SettlementPlan{}, fmt.Errorf("%w: amount must be positive", domainerrors.ErrInvalidPayload)
	}
	target, err := r.registry.Resolve(req.CurrencyCode)
	if err != nil {
		return entities.SettlementPlan{}, err
	}

	if balances.Of(target.CurrencyCode).GreaterThanOrEqual(req.Amount) {
		return entities.DirectTransfer(target, req.Amount), nil
	}

	fallback := r.registry.Fallback()
	if fallback.SameContract(target) {
		return entities.SettlementPlan{}, &domainerrors.InsufficientFundsError{
			Target:         target.CurrencyCode,
			Fallback:       fallback.CurrencyCode,
			TargetNeeded:   req.Amount,
			FallbackNeeded: req.Amount,
		}
	}

	quote, err := r.quotes.QuoteIn(ctx, fallback, target, req.Amount)
	if err != nil {
		return entities.SettlementPlan{}, err
	}

	if balances.Of(fallback.CurrencyCode).GreaterThanOrEqual(quote.SourceAmount) {
		if req.AllowFallback {
			return entities.FallbackTransfer(quote), nil
		}
		return entities.SwapThenTransfer(quote, r.slippageBps), nil
	}

	return entities.SettlementPlan{}, &domainerrors.InsufficientFundsError{
		Target:         target.CurrencyCode,
		Fallback:       fallback.CurrencyCode,
		TargetNeeded:   req.Amount,
		FallbackNeeded: quote.SourceAmount,
	}
}
