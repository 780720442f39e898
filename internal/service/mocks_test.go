package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"payportal/internal/models"
	"payportal/internal/payment"
	"payportal/internal/portal"
	"payportal/internal/repository"
)

// Test errors
var (
	ErrMockStore   = errors.New("store error")
	ErrMockNetwork = errors.New("connection reset")
)

// memStore is an in-memory TransactionStore with the same uniqueness rule as
// the MySQL schema.
type memStore struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]*models.PaymentTransaction

	// hooks run before the default behavior; a non-nil error is returned as is
	CreateHook func(tx *models.PaymentTransaction) error
	UpdateHook func(id uint, updates map[string]interface{}) error
	DeleteHook func(id uint) error
	FindHook   func(documentNo string) error
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[uint]*models.PaymentTransaction)}
}

func (s *memStore) Create(_ context.Context, tx *models.PaymentTransaction) error {
	if s.CreateHook != nil {
		if err := s.CreateHook(tx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.LsDocumentNo == tx.LsDocumentNo {
			return repository.ErrDuplicateDocument
		}
	}
	s.nextID++
	tx.ID = s.nextID
	// created on the orchestrator's test clock
	tx.CreatedAt = fixedNow
	tx.UpdatedAt = time.Now()
	cp := *tx
	s.rows[tx.ID] = &cp
	return nil
}

func (s *memStore) UpdateByID(_ context.Context, id uint, updates map[string]interface{}) error {
	if s.UpdateHook != nil {
		if err := s.UpdateHook(id, updates); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	apply(row, updates)
	return nil
}

func (s *memStore) UpdateIfOrder(_ context.Context, id uint, order string, updates map[string]interface{}) (bool, error) {
	if s.UpdateHook != nil {
		if err := s.UpdateHook(id, updates); err != nil {
			return false, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok || row.PayPortalOrder != order {
		return false, nil
	}
	apply(row, updates)
	return true, nil
}

func apply(row *models.PaymentTransaction, updates map[string]interface{}) {
	for k, v := range updates {
		switch k {
		case "email":
			row.Email = v.(string)
		case "amount":
			row.Amount = v.(string)
		case "pay_portal_order":
			row.PayPortalOrder = v.(string)
		case "status":
			row.Status = v.(models.TransactionStatus)
		case "provider_trans_id":
			row.ProviderTransID = v.(string)
		case "payment_time":
			row.PaymentTime = v.(string)
		case "error_message":
			row.ErrorMessage = v.(string)
		case "raw_callback":
			row.RawCallback = v.(datatypes.JSON)
		default:
			panic("memStore: unexpected column " + k)
		}
	}
	row.UpdatedAt = time.Now()
}

// setOrder stores an order on a row directly, as a concurrent request would.
func (s *memStore) setOrder(documentNo, order string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.LsDocumentNo == documentNo {
			row.PayPortalOrder = order
		}
	}
}

func (s *memStore) FindByDocumentNo(_ context.Context, documentNo string) (*models.PaymentTransaction, error) {
	if s.FindHook != nil {
		if err := s.FindHook(documentNo); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.LsDocumentNo == documentNo {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindByTerminalIDs(_ context.Context, terminalIDs []string, limit, offset int) ([]models.PaymentTransaction, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]bool, len(terminalIDs))
	for _, id := range terminalIDs {
		want[id] = true
	}
	var out []models.PaymentTransaction
	for _, row := range s.rows {
		if want[row.TerminalID] {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

func (s *memStore) DeleteByID(_ context.Context, id uint) error {
	if s.DeleteHook != nil {
		if err := s.DeleteHook(id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *memStore) FindStale(_ context.Context, status models.TransactionStatus, olderThan time.Time, limit int) ([]models.PaymentTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentTransaction
	for _, row := range s.rows {
		if row.Status == status && row.UpdatedAt.Before(olderThan) {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// seed inserts a row directly, bypassing hooks.
func (s *memStore) seed(tx models.PaymentTransaction) *models.PaymentTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	tx.ID = s.nextID
	if tx.UpdatedAt.IsZero() {
		tx.UpdatedAt = time.Now()
	}
	s.rows[tx.ID] = &tx
	cp := tx
	return &cp
}

func (s *memStore) get(documentNo string) *models.PaymentTransaction {
	tx, _ := s.FindByDocumentNo(context.Background(), documentNo)
	return tx
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

// MockGateway implements payment.Gateway for testing
type MockGateway struct {
	NameValue  portal.Name
	CreateFunc func(ctx context.Context, req payment.OrderRequest) (*payment.ProviderResult, error)
	QueryFunc  func(ctx context.Context, providerOrderID string) (*payment.ProviderResult, error)

	mu      sync.Mutex
	Creates []payment.OrderRequest
	Queries []string
}

func (m *MockGateway) Name() portal.Name {
	return m.NameValue
}

func (m *MockGateway) CreateOrder(ctx context.Context, req payment.OrderRequest) (*payment.ProviderResult, error) {
	m.mu.Lock()
	m.Creates = append(m.Creates, req)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	return &payment.ProviderResult{
		ReturnCode:      payment.ReturnCodeSuccess,
		Message:         "Giao dịch thành công",
		ProviderOrderID: req.OrderID,
		OrderURL:        "https://pay.example/" + req.OrderID,
	}, nil
}

func (m *MockGateway) QueryOrder(ctx context.Context, providerOrderID string) (*payment.ProviderResult, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, providerOrderID)
	m.mu.Unlock()
	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, providerOrderID)
	}
	return &payment.ProviderResult{ReturnCode: payment.ReturnCodeProcessing, IsProcessing: true}, nil
}

func (m *MockGateway) createCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Creates)
}

// MockNotifier records success reports.
type MockNotifier struct {
	mu        sync.Mutex
	Succeeded []string
}

func (m *MockNotifier) PaymentSucceeded(_ context.Context, tx *models.PaymentTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Succeeded = append(m.Succeeded, tx.LsDocumentNo)
}

func (m *MockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Succeeded)
}

func testPolicies() map[portal.Name]Policy {
	return map[portal.Name]Policy{
		portal.ZaloPay: {
			RegenerableSubCodes: codeSet([]int{-54}),
			HardFailureSubCodes: codeSet([]int{-401, -402}),
		},
		portal.GalaxyPay: {
			RegenerableSubCodes: codeSet([]int{404}),
			HardFailureSubCodes: codeSet([]int{400, 401, 403}),
		},
	}
}

// fixedNow is 2025-01-01 10:00 in Vietnam time.
var fixedNow = time.Date(2025, 1, 1, 3, 0, 0, 0, time.UTC)
