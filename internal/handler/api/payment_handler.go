package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"payportal/internal/models"
	"payportal/internal/payment"
)

// PaymentService is the orchestration the payment endpoints delegate to.
type PaymentService interface {
	ProcessPayment(ctx context.Context, req models.PaymentRequest) *models.PaymentResponse
	TransactionsByTerminals(ctx context.Context, terminalIDs []string, limit, offset int) ([]models.PaymentTransaction, int64, error)
}

// PaymentHandler handles the payment API.
type PaymentHandler struct {
	service PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(service PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

// CreatePayment creates or resumes the payment for a document.
// POST /api/payments
//
// The body is always a PaymentResponse; the HTTP status only distinguishes
// an unreadable body from a processed request.
func (h *PaymentHandler) CreatePayment(c echo.Context) error {
	var req models.PaymentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, &models.PaymentResponse{
			ReturnCode: payment.ReturnCodeFailed,
			Message:    "Invalid request body",
			Error:      string(payment.KindInvalidRequest),
		})
	}

	resp := h.service.ProcessPayment(c.Request().Context(), req)
	if resp.Error != "" {
		h.logger.Info("Payment request not completed",
			zap.String("document_no", req.LsDocumentNo),
			zap.String("error", resp.Error),
			zap.String("message", resp.Message),
		)
	}
	return c.JSON(http.StatusOK, resp)
}

// TerminalTransactions lists transactions for a batch of terminals.
// POST /api/transactions/terminals
func (h *PaymentHandler) TerminalTransactions(c echo.Context) error {
	var req models.TerminalTransactionsRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "terminalIds is required")
	}

	limit, page := normalizePage(req.Limit, req.Page)
	txs, total, err := h.service.TransactionsByTerminals(c.Request().Context(), req.TerminalIDs, limit, (page-1)*limit)
	if err != nil {
		h.logger.Error("Failed to list terminal transactions", zap.Error(err))
		return errorResponse(c, http.StatusInternalServerError, "Failed to retrieve transactions")
	}

	return successResponse(c, "Successful", paginatedResponse(txs, total, page, limit))
}
