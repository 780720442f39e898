package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"payportal/internal/models"
	"payportal/internal/payment"
	"payportal/internal/portal"
)

// Reconcile requeries a processing transaction and records a definitive
// provider answer. It returns the status the transaction ends up with.
// In-flight orders, hard failures and unreachable providers leave it unchanged.
func (o *Orchestrator) Reconcile(ctx context.Context, tx *models.PaymentTransaction) (models.TransactionStatus, error) {
	if tx.Status != models.StatusProcessing || tx.PayPortalOrder == "" {
		return tx.Status, nil
	}

	name, err := portal.Parse(tx.PayPortalName)
	if err != nil {
		return tx.Status, payment.E(payment.KindServerError, "service.Reconcile", err)
	}
	gw, ok := o.gateways.Get(name)
	if !ok {
		return tx.Status, payment.Errorf(payment.KindServerError, "service.Reconcile", "payment portal %s is not configured", name)
	}

	result, err := gw.QueryOrder(ctx, tx.PayPortalOrder)
	if err != nil {
		return tx.Status, err
	}

	switch o.policies[name].classify(result) {
	case verdictCompleted:
		if !o.markSucceeded(ctx, tx, result) {
			return tx.Status, payment.Errorf(payment.KindUpdateFailed, "service.Reconcile", "could not persist success for %s", tx.LsDocumentNo)
		}
	case verdictExpired:
		o.endCycle(ctx, tx, models.StatusExpired, providerError(result))
	case verdictFailed:
		o.endCycle(ctx, tx, models.StatusFailed, providerError(result))
	}
	return tx.Status, nil
}

// ReconcileStale requeries processing transactions untouched since olderThan.
// It returns how many were checked and how many left processing.
func (o *Orchestrator) ReconcileStale(ctx context.Context, olderThan time.Time, limit int) (checked, settled int, err error) {
	txs, err := o.store.FindStale(ctx, models.StatusProcessing, olderThan, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("find stale transactions: %w", err)
	}

	for i := range txs {
		if ctx.Err() != nil {
			return checked, settled, ctx.Err()
		}
		tx := &txs[i]
		checked++
		status, rerr := o.Reconcile(ctx, tx)
		if rerr != nil {
			o.logger.Warn("Reconcile failed",
				zap.String("document_no", tx.LsDocumentNo),
				zap.String("order", tx.PayPortalOrder),
				zap.Error(rerr),
			)
			continue
		}
		if status != models.StatusProcessing {
			settled++
			o.logger.Info("Transaction reconciled",
				zap.String("document_no", tx.LsDocumentNo),
				zap.String("status", string(status)),
			)
		}
	}
	return checked, settled, nil
}

// ExpireAbandoned marks processing transactions untouched since olderThan as
// expired, after a last live query so a settled payment is never expired.
func (o *Orchestrator) ExpireAbandoned(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	txs, err := o.store.FindStale(ctx, models.StatusProcessing, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("find abandoned transactions: %w", err)
	}

	expired := 0
	for i := range txs {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		tx := &txs[i]
		status, rerr := o.Reconcile(ctx, tx)
		if rerr != nil {
			// the provider could not answer; try again next run
			continue
		}
		if status != models.StatusProcessing {
			continue
		}
		o.endCycle(ctx, tx, models.StatusExpired, "abandoned: no final status from provider")
		if tx.Status == models.StatusExpired {
			expired++
		}
	}
	return expired, nil
}
