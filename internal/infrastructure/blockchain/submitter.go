package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/pkg/logger"
)

// ErrTxReverted is returned when a submitted transaction is mined with status 0
var ErrTxReverted = errors.New("transaction reverted")

// TxBackend is the subset of EVMClient the submitter needs
type TxBackend interface {
	ChainID() *big.Int
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	GetTransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error)
}

// KeyedSubmitter signs BuiltTx values with the holder's key, broadcasts them
// and waits for the receipt so the next step never runs ahead of the chain.
type KeyedSubmitter struct {
	backend      TxBackend
	keys         map[string]*ecdsa.PrivateKey
	receiptWait  time.Duration
	pollInterval time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewKeyedSubmitter parses hex private keys keyed by holder address
func NewKeyedSubmitter(backend TxBackend, hexKeys map[string]string) (*KeyedSubmitter, error) {
	keys := make(map[string]*ecdsa.PrivateKey, len(hexKeys))
	for address, hexKey := range hexKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid signer key for %s: %w", address, err)
		}
		derived := crypto.PubkeyToAddress(key.PublicKey)
		if !strings.EqualFold(derived.Hex(), address) {
			return nil, fmt.Errorf("signer key does not match address %s", address)
		}
		keys[strings.ToLower(derived.Hex())] = key
	}
	return &KeyedSubmitter{
		backend:      backend,
		keys:         keys,
		receiptWait:  2 * time.Minute,
		pollInterval: time.Second,
		sleep:        sleepCtx,
	}, nil
}

// HasSigner reports whether a key is configured for holder
func (s *KeyedSubmitter) HasSigner(holder string) bool {
	_, ok := s.keys[strings.ToLower(holder)]
	return ok
}

// Submit signs, broadcasts and awaits tx, returning its hash
func (s *KeyedSubmitter) Submit(ctx context.Context, tx entities.BuiltTx) (string, error) {
	key, ok := s.keys[strings.ToLower(tx.From)]
	if !ok {
		return "", fmt.Errorf("%w: %s", domainerrors.ErrSignerNotConfigured, tx.From)
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	to := common.HexToAddress(tx.To)

	gasLimit, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: tx.Data})
	if err != nil {
		return "", fmt.Errorf("estimate gas failed: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price failed: %w", err)
	}
	nonce, err := s.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("pending nonce failed: %w", err)
	}

	unsigned := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit + gasLimit/5,
		GasPrice: gasPrice,
		Data:     tx.Data,
	})
	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(s.backend.ChainID()), key)
	if err != nil {
		return "", fmt.Errorf("sign tx failed: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx failed: %w", err)
	}

	hash := signed.Hash().Hex()
	logger.Debug(ctx, "Transaction broadcast", zap.String("tx_hash", hash), zap.String("to", to.Hex()))

	if err := s.awaitReceipt(ctx, hash); err != nil {
		return hash, err
	}
	return hash, nil
}

func (s *KeyedSubmitter) awaitReceipt(ctx context.Context, hash string) error {
	deadline := time.Now().Add(s.receiptWait)
	for {
		receipt, err := s.backend.GetTransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrTxReverted, hash)
			}
			return nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			return fmt.Errorf("receipt for %s: %w", hash, err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("receipt for %s not found within %s", hash, s.receiptWait)
		}
		if err := s.sleep(ctx, s.pollInterval); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
