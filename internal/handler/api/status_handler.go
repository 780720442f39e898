package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"payportal/internal/models"
)

// StatusQuerier answers POS bridge status queries.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, req models.StatusQueryRequest) *models.StatusQueryResponse
}

// StatusHandler serves the POS status bridge.
type StatusHandler struct {
	bridge StatusQuerier
}

func NewStatusHandler(bridge StatusQuerier) *StatusHandler {
	return &StatusHandler{bridge: bridge}
}

// Query handles POST /api/payments/query. The POS reads responseCode, so
// every answer, including missing fields, is a 200.
func (h *StatusHandler) Query(c echo.Context) error {
	var req models.StatusQueryRequest
	// an unreadable body is answered as missing fields
	_ = c.Bind(&req)
	return c.JSON(http.StatusOK, h.bridge.QueryStatus(c.Request().Context(), req))
}
