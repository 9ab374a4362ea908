package main

import (
	"github.com/gin-gonic/gin"
	"stablepay.backend/internal/interfaces/http/handlers"
	"stablepay.backend/internal/interfaces/http/middleware"
)

type routeDeps struct {
	flowHandler           *handlers.FlowHandler
	walletHandler         *handlers.WalletHandler
	paymentRequestHandler *handlers.PaymentRequestHandler
	tokenHandler          *handlers.TokenHandler
	adminHandler          *handlers.AdminHandler
	flowAuthMiddleware    gin.HandlerFunc
	operatorMiddleware    gin.HandlerFunc
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		v1.GET("/tokens", d.tokenHandler.ListTokens)

		// Merchant payload routes (public)
		paymentRequests := v1.Group("/payment-requests")
		{
			paymentRequests.POST("/encode", d.paymentRequestHandler.EncodePaymentRequest)
			paymentRequests.POST("/preview", d.paymentRequestHandler.PreviewPaymentRequest)
		}

		flows := v1.Group("/flows")
		{
			flows.POST("", middleware.IdempotencyMiddleware(), d.flowHandler.StartFlow)
			flows.GET("/:id", d.flowHandler.GetFlow)
			flows.POST("/:id/decide", d.flowAuthMiddleware, d.flowHandler.Decide)
			flows.POST("/:id/confirm", d.flowAuthMiddleware, middleware.IdempotencyMiddleware(), d.flowHandler.Confirm)
			flows.POST("/:id/abandon", d.flowAuthMiddleware, d.flowHandler.Abandon)
		}

		wallets := v1.Group("/wallets")
		{
			wallets.GET("/:address/balances", d.walletHandler.GetBalances)
			wallets.POST("/:address/convert", d.operatorMiddleware, middleware.IdempotencyMiddleware(), d.walletHandler.ConvertToFallback)
		}

		// Operator routes
		admin := v1.Group("/admin")
		admin.Use(d.operatorMiddleware)
		{
			admin.GET("/flows", d.adminHandler.ListFlows)
			admin.POST("/flows/expire", d.adminHandler.ExpireFlows)
		}
	}
}
