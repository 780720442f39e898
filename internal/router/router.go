package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"payportal/internal/handler"
	"payportal/internal/handler/api"
	"payportal/internal/middleware"
)

// Deps are the services the HTTP surface is wired to.
type Deps struct {
	Payments    api.PaymentService
	Bridge      api.StatusQuerier
	Callbacks   handler.CallbackPipeline
	ReplayCache middleware.ReplayCache
	APIKey      string
	Logger      *zap.Logger
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, deps Deps) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(deps.Logger))
	e.Use(middleware.CORS())

	paymentHandler := api.NewPaymentHandler(deps.Payments, deps.Logger)
	statusHandler := api.NewStatusHandler(deps.Bridge)
	callbackHandler := handler.NewPaymentCallbackHandler(deps.Callbacks, deps.Logger)

	// API group with token auth
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.APIAuth(deps.APIKey))
	apiGroup.POST("/payments", paymentHandler.CreatePayment)
	apiGroup.POST("/payments/query", statusHandler.Query)
	apiGroup.POST("/transactions/terminals", paymentHandler.TerminalTransactions)

	// Provider callbacks authenticate by MAC, not by token
	callbackGroup := e.Group("/callback")
	callbackGroup.Use(middleware.CallbackReplay(deps.ReplayCache))
	callbackGroup.POST("/:portal", callbackHandler.Callback)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
