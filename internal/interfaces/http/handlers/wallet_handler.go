package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	domainerrors "stablepay.backend/internal/domain/errors"
	"stablepay.backend/internal/interfaces/http/response"
	"stablepay.backend/internal/usecases"
)

type walletService interface {
	GetBalances(ctx context.Context, address string) (*usecases.WalletBalancesOutput, error)
	ConvertToFallback(ctx context.Context, input usecases.ConvertInput) (*usecases.ConvertOutput, error)
}

// WalletHandler handles wallet endpoints
type WalletHandler struct {
	walletUsecase walletService
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(walletUsecase *usecases.WalletUsecase) *WalletHandler {
	return &WalletHandler{walletUsecase: walletUsecase}
}

// GetBalances returns the balance of every registered token
// GET /api/v1/wallets/:address/balances
func (h *WalletHandler) GetBalances(c *gin.Context) {
	out, err := h.walletUsecase.GetBalances(c.Request.Context(), c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, out)
}

// ConvertToFallback swaps a held token into the fallback currency
// POST /api/v1/wallets/:address/convert
func (h *WalletHandler) ConvertToFallback(c *gin.Context) {
	var input usecases.ConvertInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}
	input.Address = c.Param("address")

	out, err := h.walletUsecase.ConvertToFallback(c.Request.Context(), input)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if !out.Confirm.Met {
		status = http.StatusAccepted
	}
	response.Success(c, status, out)
}
