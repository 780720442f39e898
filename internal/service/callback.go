package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"payportal/internal/models"
	"payportal/internal/payment"
	"payportal/internal/portal"
)

// ErrInvalidSignature is returned when a callback MAC does not verify.
var ErrInvalidSignature = errors.New("callback signature mismatch")

// CallbackResult describes what a processed callback did to its transaction.
type CallbackResult struct {
	Portal     portal.Name
	DocumentNo string
	OrderID    string
	// Status is the stored status after the callback, which may differ from
	// the reported one when the callback was stale or arrived after success.
	Status   models.TransactionStatus
	Reported models.TransactionStatus
	Applied  bool
}

// CallbackProcessor verifies, applies and acknowledges provider callbacks.
type CallbackProcessor struct {
	registry *portal.Registry
	store    TransactionStore
	notifier Notifier
	logger   *zap.Logger
}

func NewCallbackProcessor(registry *portal.Registry, store TransactionStore, notifier Notifier, logger *zap.Logger) *CallbackProcessor {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &CallbackProcessor{
		registry: registry,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// VerifyCallback recomputes the portal MAC over payload. Unknown portals and
// malformed payloads verify as false.
func (p *CallbackProcessor) VerifyCallback(name portal.Name, payload map[string]interface{}) (ok bool) {
	adapter, found := p.registry.Lookup(name)
	if !found {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Callback verification panicked", zap.String("portal", string(name)), zap.Any("error", r))
			ok = false
		}
	}()
	return adapter.Verify(payload)
}

// ProcessCallback applies a verified callback to its transaction. Redelivery
// of the same callback produces the same stored state and result.
func (p *CallbackProcessor) ProcessCallback(ctx context.Context, name portal.Name, payload map[string]interface{}, raw []byte) (*CallbackResult, error) {
	const op = "service.ProcessCallback"

	adapter, found := p.registry.Lookup(name)
	if !found {
		return nil, payment.Errorf(payment.KindInvalidRequest, op, "unknown payment portal %q", name)
	}
	info, err := adapter.Extract(payload)
	if err != nil {
		return nil, payment.E(payment.KindInvalidRequest, op, err)
	}

	log := p.logger.With(
		zap.String("portal", string(name)),
		zap.String("document_no", info.DocumentNo),
		zap.String("order", info.OrderID),
	)

	tx, err := p.store.FindByDocumentNo(ctx, info.DocumentNo)
	if err != nil {
		return nil, payment.E(payment.KindServerError, op, err)
	}
	if tx == nil || tx.PayPortalName != string(name) {
		log.Warn("Callback for unknown transaction")
		return nil, payment.Errorf(payment.KindTransactionNotFound, op, "no %s transaction for document %s", name, info.DocumentNo)
	}

	result := &CallbackResult{
		Portal:     name,
		DocumentNo: info.DocumentNo,
		OrderID:    info.OrderID,
		Status:     tx.Status,
		Reported:   info.Status,
	}

	// a callback never moves a transaction out of success
	if tx.Status == models.StatusSuccess && info.Status != models.StatusSuccess {
		log.Info("Ignoring callback for completed transaction", zap.String("reported", string(info.Status)))
		return result, nil
	}

	updates := map[string]interface{}{}
	if len(raw) > 0 {
		updates["raw_callback"] = datatypes.JSON(raw)
	}

	// a superseded order only matters if it reports money taken
	stale := tx.PayPortalOrder != "" && info.OrderID != tx.PayPortalOrder
	apply := info.Status != models.StatusProcessing &&
		(!stale || info.Status == models.StatusSuccess) &&
		tx.Status.CanTransitionTo(info.Status, false)

	if apply {
		updates["status"] = info.Status
		updates["error_message"] = info.ErrorMessage
		if info.ProviderTransID != "" {
			updates["provider_trans_id"] = info.ProviderTransID
		}
		if info.PaymentTime != "" {
			updates["payment_time"] = info.PaymentTime
		}
		if stale {
			updates["pay_portal_order"] = info.OrderID
		}
	} else if info.Status != models.StatusProcessing {
		log.Info("Callback recorded without status change",
			zap.String("stored", string(tx.Status)),
			zap.String("reported", string(info.Status)),
			zap.Bool("stale", stale),
		)
	}

	if len(updates) == 0 {
		return result, nil
	}
	if err := p.store.UpdateByID(ctx, tx.ID, updates); err != nil {
		log.Error("Failed to apply callback", zap.Error(err))
		return nil, payment.E(payment.KindUpdateFailed, op, err)
	}

	if apply {
		previous := tx.Status
		result.Status = info.Status
		result.Applied = true
		if previous != models.StatusSuccess && info.Status == models.StatusSuccess {
			tx.Status = info.Status
			tx.ProviderTransID = info.ProviderTransID
			tx.PaymentTime = info.PaymentTime
			if stale {
				tx.PayPortalOrder = info.OrderID
			}
			p.notifier.PaymentSucceeded(ctx, tx)
		}
		log.Info("Callback applied",
			zap.String("from", string(previous)),
			zap.String("to", string(info.Status)),
		)
	}
	return result, nil
}

// FormatCallbackResponse renders the HTTP status and acknowledgement body for
// a callback outcome. Processed callbacks answer 200 even for failed payments.
func (p *CallbackProcessor) FormatCallbackResponse(name portal.Name, result *CallbackResult, err error) (int, interface{}) {
	status, outcome := classifyCallback(result, err)
	adapter, found := p.registry.Lookup(name)
	if !found {
		return status, portal.FormatFallback(outcome)
	}
	return status, adapter.FormatResponse(outcome)
}

func classifyCallback(result *CallbackResult, err error) (int, portal.Outcome) {
	if err == nil {
		outcome := portal.Outcome{Code: portal.OutcomeProcessed, Message: "success"}
		if result != nil {
			outcome.Status = result.Status
		}
		return http.StatusOK, outcome
	}
	if errors.Is(err, ErrInvalidSignature) {
		return http.StatusBadRequest, portal.Outcome{Code: portal.OutcomeInvalidSignature, Message: "invalid signature"}
	}
	switch payment.KindOf(err) {
	case payment.KindInvalidRequest, payment.KindValidation:
		return http.StatusBadRequest, portal.Outcome{Code: portal.OutcomeMalformed, Message: "malformed callback"}
	case payment.KindTransactionNotFound:
		return http.StatusBadRequest, portal.Outcome{Code: portal.OutcomeNotFound, Message: "transaction not found"}
	}
	return http.StatusInternalServerError, portal.Outcome{Code: portal.OutcomeError, Message: "internal error"}
}

// Handle runs the whole callback pipeline for one inbound request body:
// decode, verify, process and acknowledge. It never returns an error.
func (p *CallbackProcessor) Handle(ctx context.Context, rawPortal string, body []byte) (status int, ack interface{}) {
	start := time.Now()
	name, err := portal.Parse(rawPortal)
	if err != nil {
		p.logger.Warn("Callback for unknown portal", zap.String("portal", rawPortal))
		return http.StatusBadRequest, portal.FormatFallback(portal.Outcome{Code: portal.OutcomeMalformed, Message: "unknown payment portal"})
	}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Callback processing panicked", zap.String("portal", string(name)), zap.Any("error", r))
			status, ack = p.FormatCallbackResponse(name, nil, payment.Errorf(payment.KindServerError, "service.Handle", "panic: %v", r))
		}
	}()

	payload, err := portal.DecodePayload(body)
	if err != nil {
		return p.FormatCallbackResponse(name, nil, payment.E(payment.KindInvalidRequest, "service.Handle", err))
	}
	if !p.VerifyCallback(name, payload) {
		p.logger.Warn("Callback signature rejected", zap.String("portal", string(name)))
		return p.FormatCallbackResponse(name, nil, ErrInvalidSignature)
	}

	result, err := p.ProcessCallback(ctx, name, payload, body)
	status, ack = p.FormatCallbackResponse(name, result, err)
	p.logger.Debug("Callback handled",
		zap.String("portal", string(name)),
		zap.Int("status", status),
		zap.Duration("took", time.Since(start)),
	)
	return status, ack
}
