package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	tele "gopkg.in/telebot.v3"

	"payportal/internal/models"
)

// MockSender implements Sender for testing
type MockSender struct {
	sent chan string
	gate chan struct{}
	Err  error
}

func (m *MockSender) Send(_ tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	m.sent <- what.(string)
	if m.gate != nil {
		<-m.gate
	}
	return &tele.Message{}, m.Err
}

func TestFormatPaymentReport(t *testing.T) {
	tx := &models.PaymentTransaction{
		LsDocumentNo:    "DOC<1>",
		PayPortalName:   "ZaloPay",
		PayPortalOrder:  "250101_1_DOC<1>",
		Amount:          "50000",
		ProviderTransID: "250101000000123",
	}
	text := FormatPaymentReport(tx, time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))

	for _, want := range []string{"DOC&lt;1&gt;", "50,000", "Terminal: -", "2025-01-01 10:00:00", "250101000000123"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected report to contain %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "DOC<1>") {
		t.Error("document number must be escaped")
	}
}

func TestPaymentSucceededSends(t *testing.T) {
	sender := &MockSender{sent: make(chan string, 1), Err: errors.New("telegram down")}
	n := NewNotifierWith(sender, 42, zap.NewNop())

	n.PaymentSucceeded(context.Background(), &models.PaymentTransaction{LsDocumentNo: "DOC1", Amount: "1000"})

	select {
	case text := <-sender.sent:
		if !strings.Contains(text, "DOC1") {
			t.Errorf("unexpected report %q", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a report to be sent")
	}
}

func TestNilNotifierIsDisabled(t *testing.T) {
	n, err := NewNotifier("", 0, zap.NewNop())
	if err != nil || n != nil {
		t.Fatalf("expected disabled notifier, got %v %v", n, err)
	}
	// calling through a nil notifier is a no-op
	n.PaymentSucceeded(context.Background(), &models.PaymentTransaction{})
}

func TestPaymentSucceededLogsTheReportedDocument(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	sender := &MockSender{sent: make(chan string, 1), gate: make(chan struct{}), Err: errors.New("telegram down")}
	n := NewNotifierWith(sender, 42, zap.New(core))

	tx := &models.PaymentTransaction{LsDocumentNo: "DOC1", Amount: "1000"}
	n.PaymentSucceeded(context.Background(), tx)
	<-sender.sent
	// the caller keeps using its transaction after the report is queued
	tx.LsDocumentNo = "DOC2"
	close(sender.gate)

	deadline := time.Now().Add(2 * time.Second)
	for logs.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one send failure log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["document_no"]; got != "DOC1" {
		t.Errorf("expected the reported document DOC1, got %v", got)
	}
}
