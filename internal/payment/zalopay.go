package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"payportal/internal/config"
	"payportal/internal/pkg/httpclient"
	"payportal/internal/pkg/signature"
	"payportal/internal/portal"
)

// ZaloPay caps app_trans_id at 40 characters.
const zaloMaxOrderIDLength = 40

// ZaloPayGateway implements the Gateway interface for ZaloPay v2.
type ZaloPayGateway struct {
	cfg    config.ZaloPayConfig
	client *httpclient.Client
	now    func() time.Time
}

func NewZaloPayGateway(cfg config.ZaloPayConfig) *ZaloPayGateway {
	return &ZaloPayGateway{
		cfg: cfg,
		client: httpclient.New().
			WithBaseURL(cfg.BaseURL).
			WithTimeout(cfg.Timeout),
		now: time.Now,
	}
}

func (z *ZaloPayGateway) Name() portal.Name {
	return portal.ZaloPay
}

type zaloResponse struct {
	ReturnCode       *int   `json:"return_code"`
	ReturnMessage    string `json:"return_message"`
	SubReturnCode    int    `json:"sub_return_code"`
	SubReturnMessage string `json:"sub_return_message"`
	OrderURL         string `json:"order_url"`
	IsProcessing     bool   `json:"is_processing"`
	ZpTransID        int64  `json:"zp_trans_id"`
}

func (z *ZaloPayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*ProviderResult, error) {
	const op = "zalopay.CreateOrder"

	amount, err := validateOrder(op, req, zaloMaxOrderIDLength)
	if err != nil {
		return nil, err
	}

	appUser := req.Email
	if appUser == "" {
		appUser = "payportal"
	}
	appTime := strconv.FormatInt(z.now().UnixMilli(), 10)
	embed, _ := json.Marshal(map[string]string{
		"redirecturl": z.cfg.RedirectURL,
		"documentNo":  req.DocumentNo,
	})
	embedData := string(embed)
	item := "[]"
	description := req.Description
	if description == "" {
		description = "Payment for order #" + req.DocumentNo
	}

	mac := signature.HMACSHA256Hex(z.cfg.Key1, signature.Join("|",
		z.cfg.AppID, req.OrderID, appUser, amount, appTime, embedData, item))

	resp, err := z.client.PostForm(ctx, "/v2/create", map[string]string{
		"app_id":       z.cfg.AppID,
		"app_user":     appUser,
		"app_trans_id": req.OrderID,
		"app_time":     appTime,
		"amount":       amount,
		"item":         item,
		"embed_data":   embedData,
		"description":  description,
		"bank_code":    "",
		"callback_url": z.cfg.CallbackURL,
		"mac":          mac,
	})
	if err != nil {
		return nil, E(KindProviderUnavailable, op, err)
	}

	parsed, raw, err := decodeZaloResponse(op, resp)
	if err != nil {
		return nil, err
	}

	result := &ProviderResult{
		ReturnCode: ReturnCodeFailed,
		Message:    parsed.ReturnMessage,
		SubCode:    parsed.SubReturnCode,
		SubMessage: parsed.SubReturnMessage,
		RawFields:  raw,
	}
	if *parsed.ReturnCode == ReturnCodeSuccess {
		result.ReturnCode = ReturnCodeSuccess
		result.ProviderOrderID = req.OrderID
		result.OrderURL = parsed.OrderURL
	}
	return result, nil
}

func (z *ZaloPayGateway) QueryOrder(ctx context.Context, providerOrderID string) (*ProviderResult, error) {
	const op = "zalopay.QueryOrder"

	if err := validateOrderID(op, providerOrderID, zaloMaxOrderIDLength); err != nil {
		return nil, err
	}

	mac := signature.HMACSHA256Hex(z.cfg.Key1, signature.Join("|", z.cfg.AppID, providerOrderID, z.cfg.Key1))
	resp, err := z.client.PostForm(ctx, "/v2/query", map[string]string{
		"app_id":       z.cfg.AppID,
		"app_trans_id": providerOrderID,
		"mac":          mac,
	})
	if err != nil {
		return nil, E(KindProviderUnavailable, op, err)
	}

	parsed, raw, err := decodeZaloResponse(op, resp)
	if err != nil {
		return nil, err
	}

	result := &ProviderResult{
		Message:         parsed.ReturnMessage,
		SubCode:         parsed.SubReturnCode,
		SubMessage:      parsed.SubReturnMessage,
		ProviderOrderID: providerOrderID,
		IsProcessing:    parsed.IsProcessing,
		RawFields:       raw,
	}
	switch *parsed.ReturnCode {
	case ReturnCodeSuccess:
		result.ReturnCode = ReturnCodeSuccess
		result.IsProcessing = false
		if parsed.ZpTransID > 0 {
			result.ProviderTransID = strconv.FormatInt(parsed.ZpTransID, 10)
		}
	case ReturnCodeProcessing:
		result.ReturnCode = ReturnCodeProcessing
		result.IsProcessing = true
	default:
		result.ReturnCode = ReturnCodeFailed
		if result.IsProcessing {
			result.ReturnCode = ReturnCodeProcessing
		}
	}
	return result, nil
}

func decodeZaloResponse(op string, resp *httpclient.Response) (*zaloResponse, map[string]interface{}, error) {
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, nil, Errorf(KindProviderUnavailable, op, "zalopay returned HTTP %d", resp.StatusCode)
	}
	var parsed zaloResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, nil, E(KindProviderProtocol, op, fmt.Errorf("zalopay parse error: %w", err))
	}
	if parsed.ReturnCode == nil {
		return nil, nil, Errorf(KindProviderProtocol, op, "zalopay response without return_code (HTTP %d)", resp.StatusCode)
	}
	return &parsed, rawFields(resp.Body), nil
}

// rawFields keeps the undecoded provider response for audit; numbers stay exact.
func rawFields(body []byte) map[string]interface{} {
	raw, err := portal.DecodePayload(body)
	if err != nil {
		return nil
	}
	return raw
}
