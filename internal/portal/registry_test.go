package portal

import (
	"encoding/json"
	"testing"

	"payportal/internal/config"
	"payportal/internal/models"
	"payportal/internal/pkg/signature"
)

const (
	testKey2 = "trMrHtvjo6myautxDUiAcYsVtaeQ8nhf"
	testSalt = "galaxy-salt"
)

func zaloPayload(t *testing.T, data map[string]interface{}, key string) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(map[string]interface{}{
		"data": string(raw),
		"mac":  signature.HMACSHA256Hex(key, string(raw)),
		"type": 1,
	})
	payload, err := DecodePayload(body)
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry(&config.PaymentConfig{
		ZaloPay:   config.ZaloPayConfig{Key2: testKey2},
		GalaxyPay: config.GalaxyPayConfig{Salt: testSalt},
	})
	for _, n := range All {
		a, ok := r.Lookup(n)
		if !ok || a.Name() != n {
			t.Errorf("expected adapter for %s", n)
		}
	}
	if _, ok := r.LookupRaw("zalo-pay"); !ok {
		t.Error("expected raw lookup to normalize the name")
	}
	if _, ok := r.LookupRaw("momo"); ok {
		t.Error("expected unknown portal to miss")
	}
}

func TestZaloPayAdapter(t *testing.T) {
	a := NewZaloPayAdapter(testKey2)
	data := map[string]interface{}{
		"app_trans_id": "250101_1_DOC123",
		"zp_trans_id":  250101000000123,
		"server_time":  1735700100000,
		"amount":       50000,
	}

	payload := zaloPayload(t, data, testKey2)
	if !a.Verify(payload) {
		t.Fatal("expected valid mac to verify")
	}
	info, err := a.Extract(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.DocumentNo != "DOC123" || info.OrderID != "250101_1_DOC123" {
		t.Errorf("unexpected ids %+v", info)
	}
	// no data.status: a signed order callback with a transaction id is a paid order
	if info.Status != models.StatusSuccess {
		t.Errorf("expected success, got %s", info.Status)
	}
	if info.ProviderTransID != "250101000000123" || info.Amount != "50000" {
		t.Errorf("numbers must survive exactly, got %+v", info)
	}
	if info.PaymentTime != "2025-01-01T09:55:00+07:00" {
		t.Errorf("unexpected payment time %q", info.PaymentTime)
	}

	data["status"] = 2
	failed, err := a.Extract(zaloPayload(t, data, testKey2))
	if err != nil || failed.Status != models.StatusFailed || failed.ErrorMessage == "" {
		t.Errorf("expected failed with message, got %+v %v", failed, err)
	}
}

func TestZaloPayAdapter_EnvelopeTypeDoesNotDecideStatus(t *testing.T) {
	a := NewZaloPayAdapter(testKey2)
	withoutTransID := zaloPayload(t, map[string]interface{}{
		"app_trans_id": "250101_1_DOC123",
		"amount":       50000,
	}, testKey2)

	for _, typ := range []interface{}{1, 2, "1"} {
		payload := map[string]interface{}{}
		for k, v := range withoutTransID {
			payload[k] = v
		}
		payload["type"] = typ

		if !a.Verify(payload) {
			t.Fatalf("type %v: the envelope type is outside the MAC", typ)
		}
		info, err := a.Extract(payload)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Status != models.StatusFailed {
			t.Errorf("type %v: expected failed, got %s", typ, info.Status)
		}
	}

	paid := zaloPayload(t, map[string]interface{}{
		"app_trans_id": "250101_1_DOC123",
		"zp_trans_id":  250101000000123,
	}, testKey2)
	paid["type"] = 2
	info, err := a.Extract(paid)
	if err != nil || info.Status != models.StatusSuccess {
		t.Errorf("expected signed transaction id to mark a paid order regardless of type, got %+v %v", info, err)
	}

	signedFailure := zaloPayload(t, map[string]interface{}{
		"app_trans_id": "250101_1_DOC123",
		"zp_trans_id":  250101000000123,
		"status":       2,
	}, testKey2)
	signedFailure["type"] = 1
	info, err = a.Extract(signedFailure)
	if err != nil || info.Status != models.StatusFailed {
		t.Errorf("expected the signed status to win over the envelope, got %+v %v", info, err)
	}
}

func TestZaloPayAdapter_VerifyRejects(t *testing.T) {
	a := NewZaloPayAdapter(testKey2)
	valid := zaloPayload(t, map[string]interface{}{"app_trans_id": "250101_1_D", "amount": 1000}, testKey2)

	tampered := map[string]interface{}{}
	for k, v := range valid {
		tampered[k] = v
	}
	tampered["data"] = `{"app_trans_id":"250101_1_D","amount":1}`

	cases := map[string]map[string]interface{}{
		"tampered data": tampered,
		"wrong key":     zaloPayload(t, map[string]interface{}{"app_trans_id": "250101_1_D"}, "other-key"),
		"missing mac":   {"data": valid["data"]},
		"missing data":  {"mac": valid["mac"]},
		"non string":    {"data": 12, "mac": valid["mac"]},
		"nil":           nil,
	}
	for name, payload := range cases {
		if a.Verify(payload) {
			t.Errorf("%s: expected verification to fail", name)
		}
	}
	if NewZaloPayAdapter("").Verify(valid) {
		t.Error("an unconfigured key must never verify")
	}
}

func TestGalaxyPayAdapter(t *testing.T) {
	a := NewGalaxyPayAdapter(testSalt)
	payload := map[string]interface{}{
		"orderID":           "250101_2_DOC9",
		"transactionID":     "GP1",
		"transactionStatus": "200",
		"orderAmount":       json.Number("50000"),
		"paymentDateTime":   "20250101100500",
	}
	payload["signature"] = GalaxySign(payload, testSalt)

	if !a.Verify(payload) {
		t.Fatal("expected valid signature to verify")
	}
	info, err := a.Extract(payload)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.DocumentNo != "DOC9" || info.Status != models.StatusSuccess || info.ProviderTransID != "GP1" {
		t.Errorf("unexpected info %+v", info)
	}

	payload["orderAmount"] = json.Number("1")
	if a.Verify(payload) {
		t.Error("expected tampered amount to be rejected")
	}

	nested := map[string]interface{}{"orderID": "250101_1_D", "transactionStatus": "200", "extra": map[string]interface{}{"a": 1}}
	nested["signature"] = GalaxySign(nested, testSalt)
	if a.Verify(nested) {
		t.Error("payloads with nested values have no canonical form")
	}
}

func TestGalaxyPayAdapter_StatusMapping(t *testing.T) {
	a := NewGalaxyPayAdapter(testSalt)
	tests := map[string]models.TransactionStatus{
		"200": models.StatusSuccess,
		"100": models.StatusProcessing,
		"150": models.StatusProcessing,
		"300": models.StatusFailed,
	}
	for status, want := range tests {
		info, err := a.Extract(map[string]interface{}{"orderID": "250101_1_D", "transactionStatus": status})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.Status != want {
			t.Errorf("status %s: expected %s, got %s", status, want, info.Status)
		}
	}
	if _, err := a.Extract(map[string]interface{}{"orderID": "garbage"}); err == nil {
		t.Error("expected malformed order id to fail extraction")
	}
}

func TestFormatResponses(t *testing.T) {
	zalo := NewZaloPayAdapter(testKey2).FormatResponse(Outcome{Code: OutcomeProcessed}).(map[string]interface{})
	if zalo["return_code"] != 1 || zalo["return_message"] != "success" {
		t.Errorf("unexpected zalopay ack %v", zalo)
	}
	galaxy := NewGalaxyPayAdapter(testSalt).FormatResponse(Outcome{Code: OutcomeInvalidSignature}).(map[string]interface{})
	if galaxy["responseCode"] != "401" {
		t.Errorf("unexpected galaxypay ack %v", galaxy)
	}
	fallback := FormatFallback(Outcome{Code: OutcomeProcessed, Message: "ok"}).(map[string]interface{})
	if fallback["success"] != true || fallback["message"] != "ok" {
		t.Errorf("unexpected fallback %v", fallback)
	}
}
