package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"payportal/internal/config"
	"payportal/internal/models"
	"payportal/internal/payment"
	"payportal/internal/portal"
	"payportal/internal/repository"
)

// Orchestrator-level return codes. 1 and 2 mirror the provider codes.
const (
	ReturnCodeSuccess          = 1
	ReturnCodeFailed           = 2
	ReturnCodeInFlight         = 2
	ReturnCodeAlreadyCompleted = 3
)

// placementMargin is added to the provider timeout to get the window in which
// a record without an order is assumed to have its create call in flight.
const placementMargin = 15 * time.Second

const (
	msgOrderCreated     = "Order Created"
	msgAlreadyCompleted = "Payment Already Completed"
	msgInFlight         = "Payment In Progress"
)

var validate = validator.New()

// Policy holds the per-provider knowledge the decision tree needs.
type Policy struct {
	// RegenerableSubCodes mean the order is gone (not found / expired):
	// the old cycle is marked expired and a fresh order is created.
	RegenerableSubCodes map[int]bool
	// HardFailureSubCodes mean the query itself was rejected (bad credentials,
	// bad request): the failure is surfaced and nothing is regenerated.
	HardFailureSubCodes map[int]bool
	// PlacementWindow bounds how long a create-order call can be outstanding.
	// A record still without an order after it is treated as a crashed attempt.
	PlacementWindow time.Duration
}

func (p Policy) placementWindow() time.Duration {
	if p.PlacementWindow <= 0 {
		return 30*time.Second + placementMargin
	}
	return p.PlacementWindow
}

// PoliciesFromConfig builds the per-provider policies.
func PoliciesFromConfig(cfg *config.PaymentConfig) map[portal.Name]Policy {
	return map[portal.Name]Policy{
		portal.ZaloPay: {
			RegenerableSubCodes: codeSet(cfg.ZaloPay.RegenerableSubCodes),
			HardFailureSubCodes: codeSet([]int{-401, -402}),
			PlacementWindow:     cfg.ZaloPay.Timeout + placementMargin,
		},
		portal.GalaxyPay: {
			RegenerableSubCodes: codeSet(cfg.GalaxyPay.RegenerableSubCodes),
			HardFailureSubCodes: codeSet([]int{400, 401, 403}),
			PlacementWindow:     cfg.GalaxyPay.Timeout + placementMargin,
		},
	}
}

func codeSet(codes []int) map[int]bool {
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}

// queryVerdict is what a live order query means for the decision tree.
type queryVerdict int

const (
	verdictCompleted queryVerdict = iota
	verdictInFlight
	verdictExpired
	verdictFailed
	verdictHardFailure
)

func (p Policy) classify(result *payment.ProviderResult) queryVerdict {
	switch {
	case result.Succeeded():
		return verdictCompleted
	case result.InFlight():
		return verdictInFlight
	case result.ReturnCode != payment.ReturnCodeFailed:
		return verdictHardFailure
	case p.RegenerableSubCodes[result.SubCode]:
		return verdictExpired
	case p.HardFailureSubCodes[result.SubCode]:
		return verdictHardFailure
	}
	return verdictFailed
}

// Orchestrator decides whether a payment request reuses, requeries or
// regenerates the provider order for a document number.
type Orchestrator struct {
	store    TransactionStore
	gateways payment.Gateways
	policies map[portal.Name]Policy
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(store TransactionStore, gateways payment.Gateways, policies map[portal.Name]Policy, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		gateways: gateways,
		policies: policies,
		notifier: noopNotifier{},
		logger:   logger,
		now:      time.Now,
	}
}

// WithNotifier sets the receiver of payment success reports.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	if n != nil {
		o.notifier = n
	}
	return o
}

// ProcessPayment runs the payment decision tree for one request. It never
// returns an error: every failure is folded into the response.
func (o *Orchestrator) ProcessPayment(ctx context.Context, req models.PaymentRequest) (resp *models.PaymentResponse) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("ProcessPayment panicked",
				zap.String("document_no", req.LsDocumentNo),
				zap.Any("error", r),
			)
			resp = failure(payment.KindServerError, "Internal server error")
		}
	}()

	req = normalizeRequest(req)
	if err := validate.Struct(req); err != nil {
		return failure(payment.KindInvalidRequest, describeValidation(err))
	}

	name, err := portal.Parse(req.PayPortalName)
	if err != nil {
		return failure(payment.KindInvalidRequest, err.Error())
	}
	amount, err := payment.MinorUnits(req.Amount)
	if err != nil {
		return fromError(err)
	}
	req.Amount = amount

	existing, err := o.store.FindByDocumentNo(ctx, req.LsDocumentNo)
	if err != nil {
		o.logger.Error("Transaction lookup failed", zap.String("document_no", req.LsDocumentNo), zap.Error(err))
		return failure(payment.KindServerError, "Failed to look up transaction")
	}
	if existing == nil {
		return o.createNew(ctx, name, req)
	}
	return o.resume(ctx, existing, name, req)
}

// createNew handles a document seen for the first time.
func (o *Orchestrator) createNew(ctx context.Context, name portal.Name, req models.PaymentRequest) *models.PaymentResponse {
	gw, ok := o.gateways.Get(name)
	if !ok {
		return failure(payment.KindInvalidRequest, fmt.Sprintf("payment portal %s is not configured", name))
	}

	tx := &models.PaymentTransaction{
		Email:         req.Email,
		PayPortalName: string(name),
		LsDocumentNo:  req.LsDocumentNo,
		Amount:        req.Amount,
		TerminalID:    req.TerminalID,
		Status:        models.StatusProcessing,
	}
	if err := o.store.Create(ctx, tx); err != nil {
		if errors.Is(err, repository.ErrDuplicateDocument) {
			// a concurrent request created it first; continue as a retry
			existing, ferr := o.store.FindByDocumentNo(ctx, req.LsDocumentNo)
			if ferr == nil && existing != nil {
				return o.resume(ctx, existing, name, req)
			}
			err = errors.Join(err, ferr)
		}
		o.logger.Error("Failed to create transaction", zap.String("document_no", req.LsDocumentNo), zap.Error(err))
		return failure(payment.KindServerError, "Failed to create transaction")
	}

	return o.placeOrder(ctx, gw, tx, req, 1, true)
}

// resume handles a document that already has a transaction.
func (o *Orchestrator) resume(ctx context.Context, tx *models.PaymentTransaction, requested portal.Name, req models.PaymentRequest) *models.PaymentResponse {
	name, err := portal.Parse(tx.PayPortalName)
	if err != nil {
		o.logger.Error("Stored transaction has unknown portal",
			zap.String("document_no", tx.LsDocumentNo),
			zap.String("portal", tx.PayPortalName),
		)
		return failure(payment.KindServerError, "Stored transaction has an unknown payment portal")
	}
	if name != requested {
		// the portal is fixed at creation; the order lives at that provider
		o.logger.Warn("Payment request names a different portal than the stored transaction",
			zap.String("document_no", tx.LsDocumentNo),
			zap.String("stored", string(name)),
			zap.String("requested", string(requested)),
		)
	}

	if tx.Status == models.StatusSuccess {
		return completed(tx.PayPortalOrder)
	}

	gw, ok := o.gateways.Get(name)
	if !ok {
		return failure(payment.KindInvalidRequest, fmt.Sprintf("payment portal %s is not configured", name))
	}

	if tx.PayPortalOrder == "" {
		if tx.Status == models.StatusProcessing && o.now().Sub(tx.CreatedAt) < o.policies[name].placementWindow() {
			// another request created the record and its create call may
			// still be outstanding
			return &models.PaymentResponse{
				ReturnCode: ReturnCodeInFlight,
				Message:    msgInFlight,
			}
		}
		return o.placeOrder(ctx, gw, tx, req, 1, false)
	}

	result, err := gw.QueryOrder(ctx, tx.PayPortalOrder)
	if err != nil {
		// without a fresh answer the old order might still settle
		o.logger.Warn("Order query failed",
			zap.String("document_no", tx.LsDocumentNo),
			zap.String("order", tx.PayPortalOrder),
			zap.Error(err),
		)
		resp := fromError(err)
		resp.PayPortalOrder = tx.PayPortalOrder
		resp.Attempt = attemptOf(tx.PayPortalOrder)
		return resp
	}

	verdict := o.policies[name].classify(result)
	switch verdict {
	case verdictCompleted:
		o.markSucceeded(ctx, tx, result)
		return completed(tx.PayPortalOrder)

	case verdictInFlight:
		return &models.PaymentResponse{
			ReturnCode:     ReturnCodeInFlight,
			Message:        msgInFlight,
			SubCode:        result.SubCode,
			SubMessage:     result.SubMessage,
			PayPortalOrder: tx.PayPortalOrder,
			Attempt:        attemptOf(tx.PayPortalOrder),
		}

	case verdictHardFailure:
		resp := fromProvider(result)
		resp.PayPortalOrder = tx.PayPortalOrder
		resp.Attempt = attemptOf(tx.PayPortalOrder)
		return resp
	}

	end := models.StatusFailed
	if verdict == verdictExpired {
		end = models.StatusExpired
	}
	o.endCycle(ctx, tx, end, providerError(result))

	return o.placeOrder(ctx, gw, tx, req, nextAttempt(tx.PayPortalOrder), false)
}

// endCycle records that the provider order of tx will never settle.
func (o *Orchestrator) endCycle(ctx context.Context, tx *models.PaymentTransaction, status models.TransactionStatus, reason string) {
	if !tx.Status.CanTransitionTo(status, false) {
		return
	}
	if err := o.store.UpdateByID(ctx, tx.ID, map[string]interface{}{
		"status":        status,
		"error_message": reason,
	}); err != nil {
		o.logger.Warn("Failed to close previous order cycle",
			zap.String("document_no", tx.LsDocumentNo),
			zap.String("order", tx.PayPortalOrder),
			zap.Error(err),
		)
		return
	}
	tx.Status = status
	tx.ErrorMessage = reason
}

// placeOrder creates a provider order for tx and persists it, rolling back on
// partial failure. fresh means tx was created by this request.
func (o *Orchestrator) placeOrder(ctx context.Context, gw payment.Gateway, tx *models.PaymentTransaction, req models.PaymentRequest, attempt int, fresh bool) *models.PaymentResponse {
	orderID := portal.NewOrderID(o.now(), attempt, tx.LsDocumentNo)
	log := o.logger.With(
		zap.String("document_no", tx.LsDocumentNo),
		zap.String("order", orderID),
		zap.Int("attempt", attempt),
	)

	result, err := gw.CreateOrder(ctx, payment.OrderRequest{
		OrderID:    orderID,
		DocumentNo: tx.LsDocumentNo,
		Amount:     req.Amount,
		Email:      req.Email,
	})

	if err != nil && !outcomeUnknown(err) {
		log.Warn("Create order rejected before reaching provider", zap.Error(err))
		o.abandon(ctx, tx, fresh, err.Error())
		return fromError(err)
	}

	if err != nil {
		// outcome unknown: the provider may have created the order, so keep
		// tracking it and let the next request or the reconciler query it
		log.Warn("Create order outcome unknown", zap.Error(err))
		if uerr := o.store.UpdateByID(ctx, tx.ID, map[string]interface{}{
			"pay_portal_order": orderID,
			"status":           models.StatusProcessing,
			"amount":           req.Amount,
			"error_message":    "create order unconfirmed: " + err.Error(),
		}); uerr != nil {
			log.Error("Failed to persist unconfirmed order", zap.Error(uerr))
			o.rollback(ctx, tx, log)
		}
		resp := fromError(err)
		resp.PayPortalOrder = orderID
		resp.Attempt = strconv.Itoa(attempt)
		return resp
	}

	if !result.Succeeded() {
		log.Info("Provider declined order",
			zap.Int("return_code", result.ReturnCode),
			zap.Int("sub_code", result.SubCode),
			zap.String("message", result.Message),
		)
		o.abandon(ctx, tx, fresh, providerError(result))
		return fromProvider(result)
	}

	if err := o.store.UpdateByID(ctx, tx.ID, map[string]interface{}{
		"pay_portal_order": orderID,
		"status":           models.StatusProcessing,
		"amount":           req.Amount,
		"email":            req.Email,
		"error_message":    "",
	}); err != nil {
		log.Error("Failed to persist provider order", zap.Error(err))
		o.rollback(ctx, tx, log)
		resp := failure(payment.KindUpdateFailed, "Order created but could not be saved")
		resp.PayPortalOrder = orderID
		resp.Attempt = strconv.Itoa(attempt)
		return resp
	}

	log.Info("Payment order created")
	return &models.PaymentResponse{
		ReturnCode:     ReturnCodeSuccess,
		Message:        orDefault(result.Message, msgOrderCreated),
		SubCode:        result.SubCode,
		SubMessage:     result.SubMessage,
		PayPortalOrder: orderID,
		Attempt:        strconv.Itoa(attempt),
		OrderURL:       result.OrderURL,
		Data:           result.RawFields,
	}
}

// abandon undoes a cycle whose order never reached the provider or was
// declined. A record created by this request is deleted; an older record
// keeps its history and records why the cycle ended, unless another request
// has stored a different order on it in the meantime.
func (o *Orchestrator) abandon(ctx context.Context, tx *models.PaymentTransaction, fresh bool, reason string) {
	if fresh {
		o.rollback(ctx, tx, o.logger.With(zap.String("document_no", tx.LsDocumentNo)))
		return
	}
	updates := map[string]interface{}{"error_message": reason}
	if tx.Status == models.StatusProcessing {
		updates["status"] = models.StatusFailed
	}
	updated, err := o.store.UpdateIfOrder(ctx, tx.ID, tx.PayPortalOrder, updates)
	if err != nil {
		o.logger.Error("Failed to record abandoned order", zap.String("document_no", tx.LsDocumentNo), zap.Error(err))
		return
	}
	if !updated {
		o.logger.Info("Transaction moved on to another order, keeping its status",
			zap.String("document_no", tx.LsDocumentNo),
			zap.String("replaced_order", tx.PayPortalOrder),
		)
	}
}

// rollback deletes tx once. A failed rollback is logged, not retried.
func (o *Orchestrator) rollback(ctx context.Context, tx *models.PaymentTransaction, log *zap.Logger) {
	if err := o.store.DeleteByID(ctx, tx.ID); err != nil {
		log.Error("Rollback failed, manual reconciliation required", zap.Uint("transaction_id", tx.ID), zap.Error(err))
		return
	}
	log.Info("Rolled back transaction", zap.Uint("transaction_id", tx.ID))
}

// markSucceeded records a provider-confirmed success. A failed write is only
// logged: the provider answer stands and the reconciler will retry the write.
func (o *Orchestrator) markSucceeded(ctx context.Context, tx *models.PaymentTransaction, result *payment.ProviderResult) bool {
	if tx.Status == models.StatusSuccess {
		return true
	}
	updates := map[string]interface{}{
		"status":        models.StatusSuccess,
		"error_message": "",
	}
	if result.ProviderTransID != "" {
		updates["provider_trans_id"] = result.ProviderTransID
	}
	if tx.PaymentTime == "" {
		updates["payment_time"] = o.now().UTC().Format(time.RFC3339)
	}
	if err := o.store.UpdateByID(ctx, tx.ID, updates); err != nil {
		o.logger.Error("Failed to mark transaction successful",
			zap.String("document_no", tx.LsDocumentNo),
			zap.Error(err),
		)
		return false
	}
	tx.Status = models.StatusSuccess
	if result.ProviderTransID != "" {
		tx.ProviderTransID = result.ProviderTransID
	}
	o.notifier.PaymentSucceeded(ctx, tx)
	return true
}

// TransactionsByTerminals lists transactions for a batch of terminals.
func (o *Orchestrator) TransactionsByTerminals(ctx context.Context, terminalIDs []string, limit, offset int) ([]models.PaymentTransaction, int64, error) {
	return o.store.FindByTerminalIDs(ctx, terminalIDs, limit, offset)
}

func normalizeRequest(req models.PaymentRequest) models.PaymentRequest {
	req.Email = strings.TrimSpace(req.Email)
	req.Amount = strings.TrimSpace(req.Amount)
	req.LsDocumentNo = strings.TrimSpace(req.LsDocumentNo)
	req.PayPortalName = strings.TrimSpace(req.PayPortalName)
	req.TerminalID = strings.TrimSpace(req.TerminalID)
	return req
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return "Missing required fields: " + strings.Join(fields, ", ")
}

// outcomeUnknown reports a create call that may have reached the provider.
func outcomeUnknown(err error) bool {
	var pe *payment.Error
	return errors.As(err, &pe) && pe.Retryable()
}

func nextAttempt(orderID string) int {
	_, attempt, _, err := portal.ParseOrderID(orderID)
	if err != nil {
		return 1
	}
	return attempt + 1
}

func attemptOf(orderID string) string {
	_, attempt, _, err := portal.ParseOrderID(orderID)
	if err != nil {
		return ""
	}
	return strconv.Itoa(attempt)
}

func completed(orderID string) *models.PaymentResponse {
	return &models.PaymentResponse{
		ReturnCode:     ReturnCodeAlreadyCompleted,
		Message:        msgAlreadyCompleted,
		PayPortalOrder: orderID,
		Attempt:        attemptOf(orderID),
	}
}

func failure(kind payment.Kind, msg string) *models.PaymentResponse {
	return &models.PaymentResponse{
		ReturnCode: ReturnCodeFailed,
		Message:    msg,
		Error:      string(kind),
	}
}

func fromError(err error) *models.PaymentResponse {
	kind := payment.KindOf(err)
	msg := "Internal server error"
	var pe *payment.Error
	if errors.As(err, &pe) && pe.Err != nil {
		msg = pe.Err.Error()
	}
	switch kind {
	case payment.KindProviderUnavailable:
		msg = "Payment provider unavailable, please retry"
	case payment.KindProviderProtocol:
		msg = "Unexpected payment provider response, please retry"
	}
	return failure(kind, msg)
}

// fromProvider passes a provider failure through verbatim.
func fromProvider(result *payment.ProviderResult) *models.PaymentResponse {
	return &models.PaymentResponse{
		ReturnCode: result.ReturnCode,
		Message:    result.Message,
		SubCode:    result.SubCode,
		SubMessage: result.SubMessage,
		Error:      string(payment.KindProviderDeclined),
		Data:       result.RawFields,
	}
}

func providerError(result *payment.ProviderResult) string {
	if result.SubMessage != "" {
		return fmt.Sprintf("%s (%d: %s)", result.Message, result.SubCode, result.SubMessage)
	}
	return result.Message
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
