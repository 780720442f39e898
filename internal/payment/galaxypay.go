package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"payportal/internal/config"
	"payportal/internal/pkg/httpclient"
	"payportal/internal/pkg/signature"
	"payportal/internal/pkg/utils"
	"payportal/internal/portal"
)

const (
	galaxyDateLayout   = "20060102150405"
	galaxyResponseOK   = "200"
	galaxyCurrency     = "VND"
	galaxyOperationPay = "PAY"
	galaxyOperationQry = "QUERY"
)

// GalaxyPayGateway implements the Gateway interface for GalaxyPay.
// Requests are signed with hex(SHA256(body + salt)) in the signature header.
type GalaxyPayGateway struct {
	cfg    config.GalaxyPayConfig
	client *httpclient.Client
	now    func() time.Time
}

func NewGalaxyPayGateway(cfg config.GalaxyPayConfig) *GalaxyPayGateway {
	return &GalaxyPayGateway{
		cfg: cfg,
		client: httpclient.New().
			WithBaseURL(cfg.BaseURL).
			WithTimeout(cfg.Timeout).
			WithHeader("apikey", cfg.APIKey),
		now: time.Now,
	}
}

func (g *GalaxyPayGateway) Name() portal.Name {
	return portal.GalaxyPay
}

type galaxyRequest struct {
	RequestID       string      `json:"requestID"`
	RequestDateTime string      `json:"requestDateTime"`
	RequestData     interface{} `json:"requestData"`
}

type galaxyPayData struct {
	APIOperation     string            `json:"apiOperation"`
	OrderID          string            `json:"orderID"`
	OrderNumber      string            `json:"orderNumber"`
	OrderAmount      string            `json:"orderAmount"`
	OrderCurrency    string            `json:"orderCurrency"`
	OrderDateTime    string            `json:"orderDateTime"`
	OrderDescription string            `json:"orderDescription"`
	Language         string            `json:"language"`
	PaymentMethod    string            `json:"paymentMethod"`
	SuccessURL       string            `json:"successURL"`
	FailureURL       string            `json:"failureURL"`
	CancelURL        string            `json:"cancelURL"`
	IPNURL           string            `json:"ipnURL"`
	ExtraData        map[string]string `json:"extraData,omitempty"`
}

type galaxyQueryData struct {
	APIOperation string `json:"apiOperation"`
	OrderID      string `json:"orderID"`
}

type galaxyResponse struct {
	RequestID       string `json:"requestID"`
	ResponseCode    string `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	ResponseData    struct {
		TransactionID     string `json:"transactionID"`
		TransactionStatus string `json:"transactionStatus"`
		Endpoint          string `json:"endpoint"`
	} `json:"responseData"`
}

func (g *GalaxyPayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*ProviderResult, error) {
	const op = "galaxypay.CreateOrder"

	amount, err := validateOrder(op, req, portal.MaxOrderIDLength)
	if err != nil {
		return nil, err
	}

	now := g.now()
	description := req.Description
	if description == "" {
		description = "Payment for order #" + req.DocumentNo
	}
	data := galaxyPayData{
		APIOperation:     galaxyOperationPay,
		OrderID:          req.OrderID,
		OrderNumber:      req.DocumentNo,
		OrderAmount:      amount,
		OrderCurrency:    galaxyCurrency,
		OrderDateTime:    now.Format(galaxyDateLayout),
		OrderDescription: description,
		Language:         "vi",
		PaymentMethod:    g.cfg.PaymentType,
		SuccessURL:       g.cfg.SuccessURL,
		FailureURL:       g.cfg.FailureURL,
		CancelURL:        g.cfg.CancelURL,
		IPNURL:           g.cfg.IPNURL,
		ExtraData:        map[string]string{"email": req.Email},
	}

	parsed, raw, err := g.post(ctx, op, "/api/v1/transaction/pay", now, data)
	if err != nil {
		return nil, err
	}

	result := &ProviderResult{
		ReturnCode: ReturnCodeFailed,
		Message:    parsed.ResponseMessage,
		RawFields:  raw,
	}
	if parsed.ResponseCode == galaxyResponseOK {
		result.ReturnCode = ReturnCodeSuccess
		result.ProviderOrderID = req.OrderID
		result.ProviderTransID = parsed.ResponseData.TransactionID
		result.OrderURL = parsed.ResponseData.Endpoint
		return result, nil
	}
	result.SubCode = utils.ParseInt(parsed.ResponseCode, 0)
	result.SubMessage = parsed.ResponseMessage
	return result, nil
}

func (g *GalaxyPayGateway) QueryOrder(ctx context.Context, providerOrderID string) (*ProviderResult, error) {
	const op = "galaxypay.QueryOrder"

	if err := validateOrderID(op, providerOrderID, portal.MaxOrderIDLength); err != nil {
		return nil, err
	}

	parsed, raw, err := g.post(ctx, op, "/api/v1/transaction/query", g.now(), galaxyQueryData{
		APIOperation: galaxyOperationQry,
		OrderID:      providerOrderID,
	})
	if err != nil {
		return nil, err
	}

	result := &ProviderResult{
		ReturnCode:      ReturnCodeFailed,
		Message:         parsed.ResponseMessage,
		ProviderOrderID: providerOrderID,
		ProviderTransID: parsed.ResponseData.TransactionID,
		RawFields:       raw,
	}
	if parsed.ResponseCode != galaxyResponseOK {
		// e.g. 404 when the order never reached GalaxyPay or was purged
		result.SubCode = utils.ParseInt(parsed.ResponseCode, 0)
		result.SubMessage = parsed.ResponseMessage
		return result, nil
	}

	switch status := parsed.ResponseData.TransactionStatus; status {
	case portal.GalaxyStatusSuccess:
		result.ReturnCode = ReturnCodeSuccess
	case portal.GalaxyStatusPending, portal.GalaxyStatusProcessing:
		result.ReturnCode = ReturnCodeProcessing
		result.IsProcessing = true
	case "":
		return nil, Errorf(KindProviderProtocol, op, "galaxypay query response without transactionStatus")
	default:
		result.SubCode = utils.ParseInt(status, 0)
		result.SubMessage = "transaction status " + status
	}
	return result, nil
}

func (g *GalaxyPayGateway) post(ctx context.Context, op, path string, now time.Time, data interface{}) (*galaxyResponse, map[string]interface{}, error) {
	body, err := json.Marshal(galaxyRequest{
		RequestID:       uuid.NewString(),
		RequestDateTime: now.Format(galaxyDateLayout),
		RequestData:     data,
	})
	if err != nil {
		return nil, nil, E(KindServerError, op, err)
	}

	resp, err := g.client.PostJSON(ctx, path, body, map[string]string{
		"signature": signature.SHA256Hex(string(body) + g.cfg.Salt),
	})
	if err != nil {
		return nil, nil, E(KindProviderUnavailable, op, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, Errorf(KindProviderUnavailable, op, "galaxypay returned HTTP %d", resp.StatusCode)
	}

	var parsed galaxyResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, nil, E(KindProviderProtocol, op, fmt.Errorf("galaxypay parse error: %w", err))
	}
	if parsed.ResponseCode == "" {
		return nil, nil, Errorf(KindProviderProtocol, op, "galaxypay response without responseCode (HTTP %d)", resp.StatusCode)
	}
	return &parsed, rawFields(resp.Body), nil
}
