package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"payportal/internal/portal"
)

// maxCallbackBody caps provider callback bodies; real ones are a few KB.
const maxCallbackBody = 64 << 10

// CallbackPipeline is the callback processing the handler delegates to.
type CallbackPipeline interface {
	Handle(ctx context.Context, rawPortal string, body []byte) (int, interface{})
}

// PaymentCallbackHandler handles gateway callbacks.
type PaymentCallbackHandler struct {
	processor CallbackPipeline
	logger    *zap.Logger
}

// NewPaymentCallbackHandler creates a new payment callback handler.
func NewPaymentCallbackHandler(processor CallbackPipeline, logger *zap.Logger) *PaymentCallbackHandler {
	return &PaymentCallbackHandler{
		processor: processor,
		logger:    logger,
	}
}

// Callback handles POST /callback/:portal for every registered portal.
func (h *PaymentCallbackHandler) Callback(c echo.Context) error {
	rawPortal := c.Param("portal")

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxCallbackBody+1))
	if err != nil {
		h.logger.Warn("Failed to read callback body", zap.String("portal", rawPortal), zap.Error(err))
		return c.JSON(http.StatusBadRequest, portal.FormatFallback(portal.Outcome{
			Code:    portal.OutcomeMalformed,
			Message: "unreadable body",
		}))
	}
	if len(body) > maxCallbackBody {
		return c.JSON(http.StatusRequestEntityTooLarge, portal.FormatFallback(portal.Outcome{
			Code:    portal.OutcomeMalformed,
			Message: "body too large",
		}))
	}

	status, ack := h.processor.Handle(c.Request().Context(), rawPortal, body)
	if status != http.StatusOK {
		h.logger.Warn("Callback not processed",
			zap.String("portal", rawPortal),
			zap.Int("status", status),
			zap.String("ip", c.RealIP()),
		)
	}
	return c.JSON(status, ack)
}
