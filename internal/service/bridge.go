package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"payportal/internal/models"
	"payportal/internal/pkg/signature"
	"payportal/internal/portal"
)

// POS bridge response codes. The table is fixed by the POS integration.
const (
	BridgeCodeSuccess       = "00"
	BridgeCodeMissingFields = "01"
	BridgeCodeNotFound      = "02"
	BridgeCodeProcessing    = "10"
	BridgeCodeFailed        = "21"
	BridgeCodeExpired       = "22"
	BridgeCodeSystemError   = "99"
)

var bridgeMessages = map[string]string{
	BridgeCodeSuccess:       "Success",
	BridgeCodeMissingFields: "Missing required fields",
	BridgeCodeNotFound:      "Transaction not found",
	BridgeCodeProcessing:    "Transaction is processing",
	BridgeCodeFailed:        "Transaction failed",
	BridgeCodeExpired:       "Transaction expired",
	BridgeCodeSystemError:   "System error",
}

// StatusBridge answers POS status queries in the bridge code table.
type StatusBridge struct {
	store  TransactionStore
	orch   *Orchestrator
	secret string
	logger *zap.Logger
}

func NewStatusBridge(store TransactionStore, orch *Orchestrator, secret string, logger *zap.Logger) *StatusBridge {
	return &StatusBridge{store: store, orch: orch, secret: secret, logger: logger}
}

// QueryStatus looks up a document and translates its status. A processing
// transaction is reconciled against the provider first.
func (b *StatusBridge) QueryStatus(ctx context.Context, req models.StatusQueryRequest) *models.StatusQueryResponse {
	docNo := strings.TrimSpace(req.DocumentNo)
	portalName := strings.TrimSpace(req.PortalName)
	if docNo == "" || portalName == "" {
		return b.respond(BridgeCodeMissingFields, docNo, nil)
	}
	name, err := portal.Parse(portalName)
	if err != nil {
		// no transaction can exist under a portal we do not serve
		return b.respond(BridgeCodeNotFound, docNo, nil)
	}

	tx, err := b.store.FindByDocumentNo(ctx, docNo)
	if err != nil {
		b.logger.Error("Bridge lookup failed", zap.String("document_no", docNo), zap.Error(err))
		return b.respond(BridgeCodeSystemError, docNo, nil)
	}
	if tx == nil || tx.PayPortalName != string(name) {
		return b.respond(BridgeCodeNotFound, docNo, nil)
	}

	if tx.Status == models.StatusProcessing && b.orch != nil {
		if _, err := b.orch.Reconcile(ctx, tx); err != nil {
			b.logger.Warn("Bridge reconcile failed, answering from stored status",
				zap.String("document_no", docNo),
				zap.Error(err),
			)
		}
	}

	return b.respond(bridgeCode(tx.Status), docNo, tx)
}

func (b *StatusBridge) respond(code, docNo string, tx *models.PaymentTransaction) *models.StatusQueryResponse {
	resp := &models.StatusQueryResponse{
		ResponseCode:    code,
		ResponseMessage: bridgeMessages[code],
		DocumentNo:      docNo,
	}
	if tx != nil {
		resp.Amount = tx.Amount
		resp.PayPortalOrder = tx.PayPortalOrder
		resp.Status = string(tx.Status)
	}
	resp.Checksum = BridgeChecksum(resp.DocumentNo, resp.ResponseCode, resp.Amount, b.secret)
	return resp
}

// BridgeChecksum is hex(SHA256(documentNo|responseCode|amount|secret)).
func BridgeChecksum(documentNo, code, amount, secret string) string {
	return signature.SHA256Hex(signature.Join("|", documentNo, code, amount, secret))
}

func bridgeCode(status models.TransactionStatus) string {
	switch status {
	case models.StatusSuccess:
		return BridgeCodeSuccess
	case models.StatusProcessing:
		return BridgeCodeProcessing
	case models.StatusFailed:
		return BridgeCodeFailed
	case models.StatusExpired:
		return BridgeCodeExpired
	}
	return BridgeCodeSystemError
}
