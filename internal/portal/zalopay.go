package portal

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"payportal/internal/models"
	"payportal/internal/pkg/signature"
)

// ZaloPay acknowledgement codes. Anything but 1 and 2 makes ZaloPay redeliver.
const (
	zaloAckSuccess    = 1
	zaloAckRetry      = 0
	zaloAckInvalidMAC = -1
	zaloStatusPaid    = "1"
)

// ZaloPayAdapter verifies and decodes ZaloPay order callbacks.
// The envelope is {"data": "<json string>", "mac": "...", "type": 1} and the
// MAC is HMAC-SHA256(key2, data).
type ZaloPayAdapter struct {
	key2 string
}

func NewZaloPayAdapter(key2 string) *ZaloPayAdapter {
	return &ZaloPayAdapter{key2: key2}
}

func (z *ZaloPayAdapter) Name() Name {
	return ZaloPay
}

func (z *ZaloPayAdapter) Verify(payload map[string]interface{}) bool {
	if z.key2 == "" || payload == nil {
		return false
	}
	data, ok := payload["data"].(string)
	if !ok || data == "" {
		return false
	}
	mac, ok := payload["mac"].(string)
	if !ok {
		return false
	}
	return signature.Equal(signature.HMACSHA256Hex(z.key2, data), mac)
}

func (z *ZaloPayAdapter) Extract(payload map[string]interface{}) (*CallbackInfo, error) {
	raw, ok := payload["data"].(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("zalopay callback: missing data")
	}
	data, err := DecodePayload([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("zalopay callback: %w", err)
	}

	orderID := stringOf(data, "app_trans_id")
	documentNo, err := DocumentNoFromOrderID(orderID)
	if err != nil {
		return nil, fmt.Errorf("zalopay callback: %w", err)
	}

	// Only data is covered by the MAC, so the envelope never decides the
	// status. Order callbacks without a status are sent for paid orders only,
	// and those always carry the ZaloPay transaction id.
	status, ok := stringField(data, "status")
	if !ok {
		status = ""
		if stringOf(data, "zp_trans_id") != "" {
			status = zaloStatusPaid
		}
	}

	info := &CallbackInfo{
		DocumentNo:      documentNo,
		OrderID:         orderID,
		ProviderTransID: stringOf(data, "zp_trans_id"),
		PaymentTime:     zaloServerTime(stringOf(data, "server_time")),
		Amount:          stringOf(data, "amount"),
	}
	if status == zaloStatusPaid {
		info.Status = models.StatusSuccess
	} else {
		info.Status = models.StatusFailed
		info.ErrorMessage = fmt.Sprintf("zalopay callback status %q", status)
	}
	return info, nil
}

func (z *ZaloPayAdapter) FormatResponse(outcome Outcome) interface{} {
	code := zaloAckRetry
	msg := outcome.Message
	switch outcome.Code {
	case OutcomeProcessed:
		code = zaloAckSuccess
		msg = "success"
	case OutcomeInvalidSignature:
		code = zaloAckInvalidMAC
		msg = "mac not equal"
	}
	return map[string]interface{}{
		"return_code":    code,
		"return_message": msg,
	}
}

// zaloServerTime converts the millisecond server_time into RFC3339.
func zaloServerTime(ms string) string {
	n, err := strconv.ParseInt(strings.TrimSpace(ms), 10, 64)
	if err != nil || n <= 0 {
		return ms
	}
	return time.UnixMilli(n).In(vietnamZone).Format(time.RFC3339)
}
