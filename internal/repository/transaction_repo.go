package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"payportal/internal/models"
)

// ErrDuplicateDocument is returned by Create when a transaction for the same
// document number already exists.
var ErrDuplicateDocument = errors.New("payment transaction for document already exists")

// TransactionRepository handles payment transaction database operations.
type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a transaction. The unique index on ls_document_no makes this
// a create-or-fail primitive.
func (r *TransactionRepository) Create(ctx context.Context, tx *models.PaymentTransaction) error {
	err := r.db.WithContext(ctx).Create(tx).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateDocument
	}
	return err
}

// UpdateByID applies a partial update. Updating a row that no longer exists
// is reported as gorm.ErrRecordNotFound.
func (r *TransactionRepository) UpdateByID(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
	}
	return nil
}

// UpdateIfOrder applies updates only while the row still carries order, so a
// request cannot overwrite the outcome of an order placed after it looked.
func (r *TransactionRepository) UpdateIfOrder(ctx context.Context, id uint, order string, updates map[string]interface{}) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND pay_portal_order = ?", id, order).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByDocumentNo returns the transaction for a document, or nil when none exists.
func (r *TransactionRepository) FindByDocumentNo(ctx context.Context, documentNo string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.WithContext(ctx).Where("ls_document_no = ?", documentNo).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindByTerminalIDs returns transactions for a batch of terminals, newest first.
func (r *TransactionRepository) FindByTerminalIDs(ctx context.Context, terminalIDs []string, limit, offset int) ([]models.PaymentTransaction, int64, error) {
	var txs []models.PaymentTransaction
	var total int64

	if len(terminalIDs) == 0 {
		return txs, 0, nil
	}

	db := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).Where("terminal_id IN ?", terminalIDs)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if err := db.Limit(limit).Offset(offset).Order("created_at DESC").Find(&txs).Error; err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

// DeleteByID removes a transaction.
func (r *TransactionRepository) DeleteByID(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.PaymentTransaction{}, id).Error
}

// FindStale returns transactions in status whose last update is older than
// olderThan, oldest first.
func (r *TransactionRepository) FindStale(ctx context.Context, status models.TransactionStatus, olderThan time.Time, limit int) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	q := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", status, olderThan).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&txs).Error
	return txs, err
}
