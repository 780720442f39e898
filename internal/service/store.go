package service

import (
	"context"
	"time"

	"payportal/internal/models"
)

// TransactionStore is the persistence the payment flows depend on.
// repository.TransactionRepository is the production implementation.
type TransactionStore interface {
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	UpdateByID(ctx context.Context, id uint, updates map[string]interface{}) error
	// UpdateIfOrder applies updates only while pay_portal_order still equals
	// order, and reports whether the row was updated.
	UpdateIfOrder(ctx context.Context, id uint, order string, updates map[string]interface{}) (bool, error)
	FindByDocumentNo(ctx context.Context, documentNo string) (*models.PaymentTransaction, error)
	FindByTerminalIDs(ctx context.Context, terminalIDs []string, limit, offset int) ([]models.PaymentTransaction, int64, error)
	DeleteByID(ctx context.Context, id uint) error
	FindStale(ctx context.Context, status models.TransactionStatus, olderThan time.Time, limit int) ([]models.PaymentTransaction, error)
}

// Notifier receives best-effort payment reports.
type Notifier interface {
	PaymentSucceeded(ctx context.Context, tx *models.PaymentTransaction)
}

type noopNotifier struct{}

func (noopNotifier) PaymentSucceeded(context.Context, *models.PaymentTransaction) {}
