package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"stablepay.backend/internal/interfaces/http/handlers"
)

func TestRegisterAPIV1Routes_RegistersKeyRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	registerAPIV1Routes(r, routeDeps{
		flowHandler:           &handlers.FlowHandler{},
		walletHandler:         &handlers.WalletHandler{},
		paymentRequestHandler: &handlers.PaymentRequestHandler{},
		tokenHandler:          &handlers.TokenHandler{},
		adminHandler:          &handlers.AdminHandler{},
		flowAuthMiddleware:    func(c *gin.Context) { c.Next() },
		operatorMiddleware:    func(c *gin.Context) { c.Next() },
	})

	expects := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/tokens"},
		{"POST", "/api/v1/payment-requests/encode"},
		{"POST", "/api/v1/payment-requests/preview"},
		{"POST", "/api/v1/flows"},
		{"GET", "/api/v1/flows/:id"},
		{"POST", "/api/v1/flows/:id/decide"},
		{"POST", "/api/v1/flows/:id/confirm"},
		{"POST", "/api/v1/flows/:id/abandon"},
		{"GET", "/api/v1/wallets/:address/balances"},
		{"POST", "/api/v1/wallets/:address/convert"},
		{"GET", "/api/v1/admin/flows"},
		{"POST", "/api/v1/admin/flows/expire"},
	}

	routes := r.Routes()
	if len(routes) != len(expects) {
		t.Fatalf("expected %d routes, got %d", len(expects), len(routes))
	}
	for _, exp := range expects {
		found := false
		for _, route := range routes {
			if route.Method == exp.method && route.Path == exp.path {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("route %s %s not registered", exp.method, exp.path)
		}
	}
}

func TestRegisterAPIV1Routes_OperatorGuardsAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	guard := func(c *gin.Context) { c.AbortWithStatus(http.StatusUnauthorized) }
	registerAPIV1Routes(r, routeDeps{
		flowHandler:           &handlers.FlowHandler{},
		walletHandler:         &handlers.WalletHandler{},
		paymentRequestHandler: &handlers.PaymentRequestHandler{},
		tokenHandler:          &handlers.TokenHandler{},
		adminHandler:          &handlers.AdminHandler{},
		flowAuthMiddleware:    guard,
		operatorMiddleware:    guard,
	})

	for _, target := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/admin/flows"},
		{http.MethodPost, "/api/v1/admin/flows/expire"},
		{http.MethodPost, "/api/v1/wallets/0xabc/convert"},
		{http.MethodPost, "/api/v1/flows/123/confirm"},
	} {
		req := httptest.NewRequest(target.method, target.path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: expected 401, got %d", target.method, target.path, rec.Code)
		}
	}
}
