package payment

import (
	"context"

	"payportal/internal/config"
	"payportal/internal/portal"
)

// Normalized provider return codes.
const (
	ReturnCodeSuccess    = 1
	ReturnCodeFailed     = 2
	ReturnCodeProcessing = 3
)

// OrderRequest is one create-order call. Amount is an integer string in the
// provider's minor unit.
type OrderRequest struct {
	OrderID     string
	DocumentNo  string
	Amount      string
	Email       string
	Description string
}

// ProviderResult is a provider response normalized across gateways.
type ProviderResult struct {
	ReturnCode      int                    `json:"returnCode"`
	Message         string                 `json:"message"`
	SubCode         int                    `json:"subCode,omitempty"`
	SubMessage      string                 `json:"subMessage,omitempty"`
	ProviderOrderID string                 `json:"providerOrderId,omitempty"`
	ProviderTransID string                 `json:"providerTransId,omitempty"`
	IsProcessing    bool                   `json:"isProcessing,omitempty"`
	OrderURL        string                 `json:"orderUrl,omitempty"`
	RawFields       map[string]interface{} `json:"rawFields,omitempty"`
}

// Succeeded reports a definitive provider success.
func (r *ProviderResult) Succeeded() bool {
	return r != nil && r.ReturnCode == ReturnCodeSuccess
}

// InFlight reports an order the provider is still working on.
func (r *ProviderResult) InFlight() bool {
	return r != nil && (r.IsProcessing || r.ReturnCode == ReturnCodeProcessing)
}

// Gateway creates and queries orders against one PSP.
// Implementations only perform the outbound call: no local state, no retries.
type Gateway interface {
	// Name returns the portal this gateway serves.
	Name() portal.Name

	// CreateOrder registers a new order with the provider.
	CreateOrder(ctx context.Context, req OrderRequest) (*ProviderResult, error)

	// QueryOrder fetches the live status of a previously created order.
	QueryOrder(ctx context.Context, providerOrderID string) (*ProviderResult, error)
}

// Gateways indexes the configured gateways by portal.
type Gateways map[portal.Name]Gateway

// NewGateways builds one gateway per configured provider.
func NewGateways(cfg *config.PaymentConfig) Gateways {
	return Gateways{
		portal.ZaloPay:   NewZaloPayGateway(cfg.ZaloPay),
		portal.GalaxyPay: NewGalaxyPayGateway(cfg.GalaxyPay),
	}
}

// Get returns the gateway for name.
func (g Gateways) Get(name portal.Name) (Gateway, bool) {
	gw, ok := g[name]
	return gw, ok
}
