package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"payportal/internal/config"
	"payportal/internal/pkg/signature"
)

const (
	testGalaxyKey  = "galaxy-api-key"
	testGalaxySalt = "galaxy-salt"
)

func newTestGalaxyPay(t *testing.T, handler func(t *testing.T, body map[string]interface{}) string) *GalaxyPayGateway {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
			return
		}
		if r.Header.Get("apikey") != testGalaxyKey {
			t.Errorf("expected apikey header, got %q", r.Header.Get("apikey"))
		}
		if got, want := r.Header.Get("signature"), signature.SHA256Hex(string(raw)+testGalaxySalt); got != want {
			t.Errorf("signature mismatch: got %s want %s", got, want)
		}
		var body map[string]interface{}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("request is not json: %v", err)
			return
		}
		if body["requestID"] == "" || body["requestDateTime"] == "" {
			t.Errorf("expected request envelope, got %v", body)
		}
		fmt.Fprint(w, handler(t, body))
	}))
	t.Cleanup(srv.Close)

	gw := NewGalaxyPayGateway(config.GalaxyPayConfig{
		ProviderConfig: config.ProviderConfig{BaseURL: srv.URL, Timeout: 2 * time.Second},
		APIKey:         testGalaxyKey,
		Salt:           testGalaxySalt,
		IPNURL:         "https://merchant.example/callback/galaxypay",
		PaymentType:    "WALLET",
	})
	gw.now = func() time.Time { return time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC) }
	return gw
}

func TestGalaxyPayCreateOrder(t *testing.T) {
	gw := newTestGalaxyPay(t, func(t *testing.T, body map[string]interface{}) string {
		data := body["requestData"].(map[string]interface{})
		if data["orderID"] != "250101_1_DOC1" || data["orderAmount"] != "50000" {
			t.Errorf("unexpected request data %v", data)
		}
		if data["apiOperation"] != "PAY" {
			t.Errorf("expected PAY operation, got %v", data["apiOperation"])
		}
		return `{"requestID":"x","responseCode":"200","responseMessage":"Success","responseData":{"transactionID":"GP1","endpoint":"https://uat-secure.galaxypay.vn/pay/GP1"}}`
	})

	result, err := gw.CreateOrder(context.Background(), OrderRequest{OrderID: "250101_1_DOC1", DocumentNo: "DOC1", Amount: "50000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Succeeded() || result.ProviderOrderID != "250101_1_DOC1" || result.ProviderTransID != "GP1" {
		t.Errorf("unexpected result %+v", result)
	}
	if result.OrderURL != "https://uat-secure.galaxypay.vn/pay/GP1" {
		t.Errorf("expected endpoint as order url, got %q", result.OrderURL)
	}
}

func TestGalaxyPayCreateOrder_Decline(t *testing.T) {
	gw := newTestGalaxyPay(t, func(t *testing.T, body map[string]interface{}) string {
		return `{"responseCode":"409","responseMessage":"Duplicate order"}`
	})

	result, err := gw.CreateOrder(context.Background(), OrderRequest{OrderID: "250101_1_DOC1", Amount: "50000"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ReturnCode != ReturnCodeFailed || result.SubCode != 409 || result.SubMessage != "Duplicate order" {
		t.Errorf("unexpected result %+v", result)
	}
}

func TestGalaxyPayQueryOrder_Mapping(t *testing.T) {
	tests := []struct {
		name       string
		response   string
		returnCode int
		subCode    int
		kind       Kind
	}{
		{"paid", `{"responseCode":"200","responseData":{"transactionID":"GP1","transactionStatus":"200"}}`, ReturnCodeSuccess, 0, ""},
		{"pending", `{"responseCode":"200","responseData":{"transactionStatus":"100"}}`, ReturnCodeProcessing, 0, ""},
		{"processing", `{"responseCode":"200","responseData":{"transactionStatus":"150"}}`, ReturnCodeProcessing, 0, ""},
		{"failed", `{"responseCode":"200","responseData":{"transactionStatus":"300"}}`, ReturnCodeFailed, 300, ""},
		{"not found", `{"responseCode":"404","responseMessage":"Order not found"}`, ReturnCodeFailed, 404, ""},
		{"no status", `{"responseCode":"200","responseData":{}}`, 0, 0, KindProviderProtocol},
		{"no response code", `{"responseMessage":"?"}`, 0, 0, KindProviderProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGalaxyPay(t, func(t *testing.T, body map[string]interface{}) string {
				data := body["requestData"].(map[string]interface{})
				if data["apiOperation"] != "QUERY" || data["orderID"] != "250101_1_DOC1" {
					t.Errorf("unexpected query data %v", data)
				}
				return tt.response
			})

			result, err := gw.QueryOrder(context.Background(), "250101_1_DOC1")
			if tt.kind != "" {
				if KindOf(err) != tt.kind {
					t.Fatalf("expected %s, got %v", tt.kind, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.ReturnCode != tt.returnCode {
				t.Errorf("expected return code %d, got %d", tt.returnCode, result.ReturnCode)
			}
			if result.SubCode != tt.subCode {
				t.Errorf("expected sub code %d, got %d", tt.subCode, result.SubCode)
			}
		})
	}
}

func TestGalaxyPay_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gw := NewGalaxyPayGateway(config.GalaxyPayConfig{
		ProviderConfig: config.ProviderConfig{BaseURL: url, Timeout: time.Second},
		Salt:           testGalaxySalt,
	})
	_, err := gw.QueryOrder(context.Background(), "250101_1_DOC1")
	if KindOf(err) != KindProviderUnavailable {
		t.Errorf("expected ProviderUnavailable, got %v", err)
	}
}
