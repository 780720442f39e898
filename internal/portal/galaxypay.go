package portal

import (
	"fmt"

	"payportal/internal/models"
	"payportal/internal/pkg/signature"
)

const galaxySignatureField = "signature"

// GalaxyPay transaction status values shared by IPN and query responses.
const (
	GalaxyStatusSuccess    = "200"
	GalaxyStatusPending    = "100"
	GalaxyStatusProcessing = "150"
)

// GalaxyPayAdapter verifies and decodes GalaxyPay IPN callbacks.
// The IPN is a flat JSON object; its signature is
// SHA256(sorted k=v pairs joined by "&", without signature, + salt).
type GalaxyPayAdapter struct {
	salt string
}

func NewGalaxyPayAdapter(salt string) *GalaxyPayAdapter {
	return &GalaxyPayAdapter{salt: salt}
}

func (g *GalaxyPayAdapter) Name() Name {
	return GalaxyPay
}

func (g *GalaxyPayAdapter) Verify(payload map[string]interface{}) bool {
	if g.salt == "" || payload == nil {
		return false
	}
	sig, ok := payload[galaxySignatureField].(string)
	if !ok || sig == "" {
		return false
	}
	for _, required := range []string{"orderID", "transactionStatus"} {
		if _, ok := stringField(payload, required); !ok {
			return false
		}
	}
	canonical, ok := galaxyCanonical(payload)
	if !ok {
		return false
	}
	return signature.Equal(signature.SHA256Hex(canonical+g.salt), sig)
}

func (g *GalaxyPayAdapter) Extract(payload map[string]interface{}) (*CallbackInfo, error) {
	orderID := stringOf(payload, "orderID")
	documentNo, err := DocumentNoFromOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("galaxypay callback: %w", err)
	}

	info := &CallbackInfo{
		DocumentNo:      documentNo,
		OrderID:         orderID,
		ProviderTransID: stringOf(payload, "transactionID"),
		PaymentTime:     stringOf(payload, "paymentDateTime"),
		Amount:          stringOf(payload, "orderAmount"),
	}
	switch status := stringOf(payload, "transactionStatus"); status {
	case GalaxyStatusSuccess:
		info.Status = models.StatusSuccess
	case GalaxyStatusPending, GalaxyStatusProcessing:
		info.Status = models.StatusProcessing
	default:
		info.Status = models.StatusFailed
		info.ErrorMessage = stringOf(payload, "responseMessage")
		if info.ErrorMessage == "" {
			info.ErrorMessage = fmt.Sprintf("galaxypay transaction status %q", status)
		}
	}
	return info, nil
}

func (g *GalaxyPayAdapter) FormatResponse(outcome Outcome) interface{} {
	code, msg := "500", outcome.Message
	switch outcome.Code {
	case OutcomeProcessed:
		code, msg = "200", "Success"
	case OutcomeInvalidSignature:
		code, msg = "401", "Invalid signature"
	case OutcomeMalformed:
		code = "400"
	case OutcomeNotFound:
		code = "404"
	}
	return map[string]interface{}{
		"responseCode":    code,
		"responseMessage": msg,
	}
}

// GalaxySign computes the IPN signature for payload. Exposed for tests and
// tooling that need to produce signed fixtures.
func GalaxySign(payload map[string]interface{}, salt string) string {
	canonical, _ := galaxyCanonical(payload)
	return signature.SHA256Hex(canonical + salt)
}

func galaxyCanonical(payload map[string]interface{}) (string, bool) {
	params := make(map[string]string, len(payload))
	for k := range payload {
		if k == galaxySignatureField {
			continue
		}
		if payload[k] == nil {
			continue
		}
		v, ok := stringField(payload, k)
		if !ok {
			// nested values have no canonical form
			return "", false
		}
		params[k] = v
	}
	return signature.Canonical(params), true
}
