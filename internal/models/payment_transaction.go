package models

import (
	"time"

	"gorm.io/datatypes"
)

// TransactionStatus is the lifecycle state of a PaymentTransaction.
type TransactionStatus string

const (
	StatusProcessing TransactionStatus = "processing"
	StatusSuccess    TransactionStatus = "success"
	StatusFailed     TransactionStatus = "failed"
	StatusExpired    TransactionStatus = "expired"
)

// Terminal reports whether no further callback can move the status.
func (s TransactionStatus) Terminal() bool {
	return s == StatusSuccess
}

// CanTransitionTo encodes the forward-only state machine.
// failed/expired may return to processing, but only through order regeneration,
// which callers signal with viaRegeneration.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus, viaRegeneration bool) bool {
	if s == next {
		return true
	}
	switch s {
	case StatusProcessing:
		return next == StatusSuccess || next == StatusFailed || next == StatusExpired
	case StatusFailed, StatusExpired:
		if next == StatusProcessing {
			return viaRegeneration
		}
		// a late success from the provider always wins over a local failure
		return next == StatusSuccess
	}
	return false
}

// PaymentTransaction maps to the `payment_transactions` table.
// One row per merchant document number at a time.
type PaymentTransaction struct {
	ID              uint              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Email           string            `gorm:"column:email;size:320" json:"email"`
	PayPortalName   string            `gorm:"column:pay_portal_name;size:50" json:"payPortalName"`
	LsDocumentNo    string            `gorm:"column:ls_document_no;size:64;uniqueIndex:uniq_payment_transactions_document" json:"lsDocumentNo"`
	Amount          string            `gorm:"column:amount;size:32" json:"amount"`
	PayPortalOrder  string            `gorm:"column:pay_portal_order;size:64;index" json:"payPortalOrder"`
	TerminalID      string            `gorm:"column:terminal_id;size:64;index" json:"terminalId"`
	Status          TransactionStatus `gorm:"column:status;size:20;index:idx_payment_transactions_status_updated,priority:1" json:"status"`
	ProviderTransID string            `gorm:"column:provider_trans_id;size:128" json:"providerTransId"`
	PaymentTime     string            `gorm:"column:payment_time;size:64" json:"paymentTime"`
	ErrorMessage    string            `gorm:"column:error_message;type:text" json:"errorMessage"`
	RawCallback     datatypes.JSON    `gorm:"column:raw_callback" json:"rawCallback,omitempty"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime;index:idx_payment_transactions_status_updated,priority:2" json:"updatedAt"`
}

func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}
