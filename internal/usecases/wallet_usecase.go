package usecases

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/pkg/logger"
)

// WalletUsecase handles wallet balance and conversion logic
type WalletUsecase struct {
	engine *SettlementEngine
}

// NewWalletUsecase creates a new wallet usecase
func NewWalletUsecase(engine *SettlementEngine) *WalletUsecase {
	return &WalletUsecase{engine: engine}
}

type WalletBalance struct {
	CurrencyCode    string          `json:"currencyCode"`
	ContractAddress string          `json:"contractAddress"`
	Amount          decimal.Decimal `json:"amount"`
	IsFallback      bool            `json:"isFallback"`
}

type WalletBalancesOutput struct {
	Address  string          `json:"address"`
	Balances []WalletBalance `json:"balances"`
}

type ConvertInput struct {
	Address      string `json:"-"`
	CurrencyCode string `json:"currencyCode" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
}

type ConvertOutput struct {
	Receipt  entities.SwapReceipt   `json:"receipt"`
	Confirm  entities.ConfirmResult `json:"confirm"`
	Fallback string                 `json:"fallbackCurrency"`
}

// GetBalances returns every registered token balance of address
func (u *WalletUsecase) GetBalances(ctx context.Context, address string) (*WalletBalancesOutput, error) {
	if !common.IsHexAddress(address) {
		return nil, domainerrors.BadRequest("invalid wallet address")
	}
	holder := common.HexToAddress(address).Hex()

	sheet, err := u.engine.Balances.ReadAll(ctx, holder)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}

	fallback := u.engine.Registry.Fallback()
	tokens := u.engine.Registry.All()
	out := &WalletBalancesOutput{Address: holder, Balances: make([]WalletBalance, 0, len(tokens))}
	for _, token := range tokens {
		out.Balances = append(out.Balances, WalletBalance{
			CurrencyCode:    token.CurrencyCode,
			ContractAddress: token.ContractAddress,
			Amount:          sheet.Of(token.CurrencyCode),
			IsFallback:      token.SameContract(fallback),
		})
	}
	return out, nil
}

// ConvertToFallback swaps amount of a held token into the fallback currency
// and waits until the fallback balance reflects the minimum output.
func (u *WalletUsecase) ConvertToFallback(ctx context.Context, input ConvertInput) (*ConvertOutput, error) {
	if !common.IsHexAddress(input.Address) {
		return nil, domainerrors.BadRequest("invalid wallet address")
	}
	holder := common.HexToAddress(input.Address).Hex()

	source, err := u.engine.Registry.Resolve(input.CurrencyCode)
	if err != nil {
		return nil, err
	}
	fallback := u.engine.Registry.Fallback()
	if source.SameContract(fallback) {
		return nil, domainerrors.BadRequest(fmt.Sprintf("%s is already the fallback currency", source.CurrencyCode))
	}
	amount, err := decimal.NewFromString(input.Amount)
	if err != nil || !amount.IsPositive() {
		return nil, domainerrors.BadRequest("amount must be a positive decimal")
	}

	prior, err := u.engine.Balances.BalanceOf(ctx, fallback, holder)
	if err != nil {
		return nil, domainerrors.InternalError(err)
	}
	receipt, err := u.engine.Swaps.Swap(ctx, source, fallback, amount, u.engine.Settings.SlippageBps, holder)
	if err != nil {
		return nil, err
	}

	result, err := u.engine.Confirmer.AwaitBalanceAtLeast(ctx, fallback, holder, prior.Add(receipt.MinOut), u.engine.Settings.ConfirmTimeout, u.engine.Settings.ConfirmInterval)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Converted to fallback currency",
		zap.String("holder", holder),
		zap.String("sell", source.CurrencyCode),
		zap.String("amount", amount.String()),
		zap.String("swap_tx", receipt.TxHash),
		zap.Bool("confirmed", result.Met),
	)
	return &ConvertOutput{Receipt: receipt, Confirm: result, Fallback: fallback.CurrencyCode}, nil
}
