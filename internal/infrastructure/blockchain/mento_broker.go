package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
)

const mentoBrokerABI = `[
	{"inputs":[],"name":"getExchangeProviders","outputs":[{"internalType":"address[]","name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"exchangeProvider","type":"address"},{"internalType":"bytes32","name":"exchangeId","type":"bytes32"},{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amountOut","type":"uint256"}],"name":"getAmountIn","outputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"exchangeProvider","type":"address"},{"internalType":"bytes32","name":"exchangeId","type":"bytes32"},{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"}],"name":"getAmountOut","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"exchangeProvider","type":"address"},{"internalType":"bytes32","name":"exchangeId","type":"bytes32"},{"internalType":"address","name":"tokenIn","type":"address"},{"internalType":"address","name":"tokenOut","type":"address"},{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"uint256","name":"amountOutMin","type":"uint256"}],"name":"swapIn","outputs":[{"internalType":"uint256","name":"amountOut","type":"uint256"}],"stateMutability":"nonpayable","type":"function"}
]`

const exchangeProviderABI = `[
	{"inputs":[],"name":"getExchanges","outputs":[{"components":[{"internalType":"bytes32","name":"exchangeId","type":"bytes32"},{"internalType":"address[]","name":"assets","type":"address[]"}],"internalType":"struct IExchangeProvider.Exchange[]","name":"exchanges","type":"tuple[]"}],"stateMutability":"view","type":"function"}
]`

var (
	brokerABI   = mustParseABI(mentoBrokerABI)
	providerABI = mustParseABI(exchangeProviderABI)
)

// exchangeTuple mirrors IExchangeProvider.Exchange for abi.ConvertType.
type exchangeTuple struct {
	ExchangeId [32]byte
	Assets     []common.Address
}

// ViewCaller executes read-only contract calls
type ViewCaller interface {
	CallView(ctx context.Context, to string, data []byte) ([]byte, error)
}

// MentoBroker reads exchanges and quotes from the Mento broker and builds swap calldata.
// It is unusable until LoadExchanges has succeeded once.
type MentoBroker struct {
	caller  ViewCaller
	address common.Address

	mu     sync.RWMutex
	pairs  []entities.TradingPair
	loaded atomic.Bool
}

// NewMentoBroker creates a broker adapter bound to brokerAddress
func NewMentoBroker(caller ViewCaller, brokerAddress string) (*MentoBroker, error) {
	if !common.IsHexAddress(brokerAddress) {
		return nil, fmt.Errorf("invalid mento broker address %q", brokerAddress)
	}
	return &MentoBroker{
		caller:  caller,
		address: common.HexToAddress(brokerAddress),
	}, nil
}

// Address returns the broker contract address (the swap spender)
func (b *MentoBroker) Address() string {
	return b.address.Hex()
}

// Ready reports whether the exchange list has been loaded
func (b *MentoBroker) Ready() bool {
	return b.loaded.Load()
}

// LoadExchanges enumerates every exchange provider and caches its trading pairs
func (b *MentoBroker) LoadExchanges(ctx context.Context) error {
	data, err := brokerABI.Pack("getExchangeProviders")
	if err != nil {
		return err
	}
	out, err := b.caller.CallView(ctx, b.address.Hex(), data)
	if err != nil {
		return fmt.Errorf("get exchange providers: %w", err)
	}
	vals, err := brokerABI.Unpack("getExchangeProviders", out)
	if err != nil {
		return fmt.Errorf("decode exchange providers: %w", err)
	}
	providers := *abi.ConvertType(vals[0], new([]common.Address)).(*[]common.Address)

	var pairs []entities.TradingPair
	for _, provider := range providers {
		exchanges, err := b.loadProviderExchanges(ctx, provider)
		if err != nil {
			return err
		}
		for _, ex := range exchanges {
			assets := make([]string, 0, len(ex.Assets))
			for _, asset := range ex.Assets {
				assets = append(assets, asset.Hex())
			}
			pairs = append(pairs, entities.TradingPair{
				ExchangeProvider: provider.Hex(),
				ExchangeID:       ex.ExchangeId,
				Assets:           assets,
			})
		}
	}

	b.mu.Lock()
	b.pairs = pairs
	b.mu.Unlock()
	b.loaded.Store(true)
	return nil
}

func (b *MentoBroker) loadProviderExchanges(ctx context.Context, provider common.Address) ([]exchangeTuple, error) {
	data, err := providerABI.Pack("getExchanges")
	if err != nil {
		return nil, err
	}
	out, err := b.caller.CallView(ctx, provider.Hex(), data)
	if err != nil {
		return nil, fmt.Errorf("get exchanges from %s: %w", provider.Hex(), err)
	}
	vals, err := providerABI.Unpack("getExchanges", out)
	if err != nil {
		return nil, fmt.Errorf("decode exchanges from %s: %w", provider.Hex(), err)
	}
	return *abi.ConvertType(vals[0], new([]exchangeTuple)).(*[]exchangeTuple), nil
}

// FindPair returns the exchange that trades both tokens
func (b *MentoBroker) FindPair(_ context.Context, sellToken, buyToken string) (entities.TradingPair, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, pair := range b.pairs {
		if containsAddress(pair.Assets, sellToken) && containsAddress(pair.Assets, buyToken) {
			return pair, nil
		}
	}
	return entities.TradingPair{}, fmt.Errorf("%w: %s/%s", domainerrors.ErrPairNotFound, sellToken, buyToken)
}

// GetAmountIn returns the sell amount needed to receive amountOut
func (b *MentoBroker) GetAmountIn(ctx context.Context, pair entities.TradingPair, tokenIn, tokenOut string, amountOut *big.Int) (*big.Int, error) {
	return b.callQuote(ctx, "getAmountIn", pair, tokenIn, tokenOut, amountOut)
}

// GetAmountOut returns the buy amount received for amountIn
func (b *MentoBroker) GetAmountOut(ctx context.Context, pair entities.TradingPair, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	return b.callQuote(ctx, "getAmountOut", pair, tokenIn, tokenOut, amountIn)
}

func (b *MentoBroker) callQuote(ctx context.Context, method string, pair entities.TradingPair, tokenIn, tokenOut string, amount *big.Int) (*big.Int, error) {
	data, err := brokerABI.Pack(method,
		common.HexToAddress(pair.ExchangeProvider),
		pair.ExchangeID,
		common.HexToAddress(tokenIn),
		common.HexToAddress(tokenOut),
		amount,
	)
	if err != nil {
		return nil, err
	}
	out, err := b.caller.CallView(ctx, b.address.Hex(), data)
	if err != nil {
		return nil, err
	}
	vals, err := brokerABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	value, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decode %s: unexpected type %T", method, vals[0])
	}
	return value, nil
}

// BuildSwapIn builds the broker swapIn transaction bounded by minOut
func (b *MentoBroker) BuildSwapIn(from string, pair entities.TradingPair, tokenIn, tokenOut string, amountIn, minOut *big.Int) (entities.BuiltTx, error) {
	data, err := brokerABI.Pack("swapIn",
		common.HexToAddress(pair.ExchangeProvider),
		pair.ExchangeID,
		common.HexToAddress(tokenIn),
		common.HexToAddress(tokenOut),
		amountIn,
		minOut,
	)
	if err != nil {
		return entities.BuiltTx{}, err
	}
	return entities.BuiltTx{From: from, To: b.address.Hex(), Data: data}, nil
}

func containsAddress(list []string, address string) bool {
	for _, item := range list {
		if strings.EqualFold(item, address) {
			return true
		}
	}
	return false
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid abi: %v", err))
	}
	return parsed
}
