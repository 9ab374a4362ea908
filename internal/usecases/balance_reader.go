package usecases

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"stablepay.backend/internal/domain/entities"
)

// TokenBalanceClient reads raw ERC20 balances
type TokenBalanceClient interface {
	GetTokenBalance(ctx context.Context, tokenAddress, ownerAddress string) (*big.Int, error)
}

// BalanceReader reads decimal-adjusted token balances
type BalanceReader struct {
	client   TokenBalanceClient
	registry *TokenRegistry
}

func NewBalanceReader(client TokenBalanceClient, registry *TokenRegistry) *BalanceReader {
	return &BalanceReader{client: client, registry: registry}
}

// BalanceOf returns holder's balance of token
func (r *BalanceReader) BalanceOf(ctx context.Context, token entities.TokenDescriptor, holder string) (decimal.Decimal, error) {
	raw, err := r.client.GetTokenBalance(ctx, token.ContractAddress, holder)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read %s balance: %w", token.CurrencyCode, err)
	}
	return token.FromMinorUnits(raw), nil
}

// ReadAll reads every registered token concurrently
func (r *BalanceReader) ReadAll(ctx context.Context, holder string) (entities.BalanceSheet, error) {
	tokens := r.registry.All()
	amounts := make([]decimal.Decimal, len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			amount, err := r.BalanceOf(gctx, token, holder)
			if err != nil {
				return err
			}
			amounts[i] = amount
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sheet := make(entities.BalanceSheet, len(tokens))
	for i, token := range tokens {
		sheet[token.CurrencyCode] = amounts[i]
	}
	return sheet, nil
}
