package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"stablepay.backend/internal/domain/entities"
)

type tokenLister interface {
	All() []entities.TokenDescriptor
	Fallback() entities.TokenDescriptor
}

// TokenHandler handles token endpoints
type TokenHandler struct {
	registry tokenLister
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(registry tokenLister) *TokenHandler {
	return &TokenHandler{registry: registry}
}

// ListTokens lists the settlement tokens and the fallback currency
// GET /api/v1/tokens
func (h *TokenHandler) ListTokens(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"tokens":           h.registry.All(),
		"fallbackCurrency": h.registry.Fallback().CurrencyCode,
	})
}
