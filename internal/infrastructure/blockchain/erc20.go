package blockchain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"stablepay.backend/internal/domain/entities"
)

const erc20ABI = `[
	{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"to","type":"address"},{"internalType":"uint256","name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"address","name":"spender","type":"address"},{"internalType":"uint256","name":"addedValue","type":"uint256"}],"name":"increaseAllowance","outputs":[{"internalType":"bool","name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var tokenABI = mustParseABI(erc20ABI)

// ERC20 builds stable-token calldata
type ERC20 struct{}

// NewERC20 returns an ERC20 calldata builder
func NewERC20() *ERC20 {
	return &ERC20{}
}

// BuildTransfer builds transfer(to, amount) on token
func (ERC20) BuildTransfer(from, token, to string, amount *big.Int) (entities.BuiltTx, error) {
	data, err := tokenABI.Pack("transfer", common.HexToAddress(to), amount)
	if err != nil {
		return entities.BuiltTx{}, err
	}
	return entities.BuiltTx{From: from, To: common.HexToAddress(token).Hex(), Data: data}, nil
}

// BuildIncreaseAllowance builds increaseAllowance(spender, amount) on token
func (ERC20) BuildIncreaseAllowance(from, token, spender string, amount *big.Int) (entities.BuiltTx, error) {
	data, err := tokenABI.Pack("increaseAllowance", common.HexToAddress(spender), amount)
	if err != nil {
		return entities.BuiltTx{}, err
	}
	return entities.BuiltTx{From: from, To: common.HexToAddress(token).Hex(), Data: data}, nil
}
