package usecases

import (
	"context"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
)

// TradingClient is the on-chain exchange the quote service reads prices from
type TradingClient interface {
	FindPair(ctx context.Context, sellToken, buyToken string) (entities.TradingPair, error)
	GetAmountIn(ctx context.Context, pair entities.TradingPair, tokenIn, tokenOut string, amountOut *big.Int) (*big.Int, error)
	GetAmountOut(ctx context.Context, pair entities.TradingPair, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error)
}

type tradingHandle struct {
	client TradingClient
}

// QuoteService prices conversions between registered tokens. It starts
// detached and returns ErrQuoteServiceNotReady until Attach is called.
type QuoteService struct {
	handle atomic.Pointer[tradingHandle]
	now    func() time.Time
}

func NewQuoteService() *QuoteService {
	return &QuoteService{now: time.Now}
}

// Attach makes client available to every subsequent call
func (s *QuoteService) Attach(client TradingClient) {
	s.handle.Store(&tradingHandle{client: client})
}

// Ready reports whether a trading client has been attached
func (s *QuoteService) Ready() bool {
	return s.handle.Load() != nil
}

func (s *QuoteService) trading() (TradingClient, error) {
	h := s.handle.Load()
	if h == nil {
		return nil, domainerrors.ErrQuoteServiceNotReady
	}
	return h.client, nil
}

// FindPair returns the exchange trading sell against buy
func (s *QuoteService) FindPair(ctx context.Context, sell, buy entities.TokenDescriptor) (entities.TradingPair, error) {
	client, err := s.trading()
	if err != nil {
		return entities.TradingPair{}, err
	}
	return client.FindPair(ctx, sell.ContractAddress, buy.ContractAddress)
}

// QuoteIn returns how much sell is needed to obtain buyAmount of buy
func (s *QuoteService) QuoteIn(ctx context.Context, sell, buy entities.TokenDescriptor, buyAmount decimal.Decimal) (entities.Quote, error) {
	client, err := s.trading()
	if err != nil {
		return entities.Quote{}, err
	}
	pair, err := client.FindPair(ctx, sell.ContractAddress, buy.ContractAddress)
	if err != nil {
		return entities.Quote{}, err
	}
	rawOut, err := buy.ToMinorUnits(buyAmount)
	if err != nil {
		return entities.Quote{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidInput, err)
	}
	rawIn, err := client.GetAmountIn(ctx, pair, sell.ContractAddress, buy.ContractAddress, rawOut)
	if err != nil {
		return entities.Quote{}, classifyTradingError(sell, buy, err)
	}
	return entities.Quote{
		SourceToken:  sell,
		TargetToken:  buy,
		SourceAmount: sell.FromMinorUnits(rawIn),
		TargetAmount: buyAmount,
		ObservedAt:   s.now(),
	}, nil
}

// QuoteOut returns how much buy is received for sellAmount of sell
func (s *QuoteService) QuoteOut(ctx context.Context, sell, buy entities.TokenDescriptor, sellAmount decimal.Decimal) (entities.Quote, error) {
	client, err := s.trading()
	if err != nil {
		return entities.Quote{}, err
	}
	pair, err := client.FindPair(ctx, sell.ContractAddress, buy.ContractAddress)
	if err != nil {
		return entities.Quote{}, err
	}
	rawIn, err := sell.ToMinorUnits(sellAmount)
	if err != nil {
		return entities.Quote{}, fmt.Errorf("%w: %v", domainerrors.ErrInvalidInput, err)
	}
	rawOut, err := client.GetAmountOut(ctx, pair, sell.ContractAddress, buy.ContractAddress, rawIn)
	if err != nil {
		return entities.Quote{}, classifyTradingError(sell, buy, err)
	}
	return entities.Quote{
		SourceToken:  sell,
		TargetToken:  buy,
		SourceAmount: sellAmount,
		TargetAmount: buy.FromMinorUnits(rawOut),
		ObservedAt:   s.now(),
	}, nil
}

// classifyTradingError turns a "no valid median" revert into a typed oracle
// error for the pair; anything else is passed up wrapped.
func classifyTradingError(sell, buy entities.TokenDescriptor, err error) error {
	if isOracleUnavailable(err) {
		return &domainerrors.OracleUnavailableError{Sell: sell.CurrencyCode, Buy: buy.CurrencyCode, Err: err}
	}
	return fmt.Errorf("quote %s/%s: %w", sell.CurrencyCode, buy.CurrencyCode, err)
}
