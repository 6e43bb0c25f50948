package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-ledger/internal/domain"
	"github.com/dvloznov/finance-ledger/internal/store"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of store.Store.
// It is safe for concurrent use and loses all data on restart.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]*domain.AccountDefinition
	records  map[string]*domain.AccountRecord
	sessions map[string]*domain.UploadSession
	txs      map[string]*domain.Transaction

	// seq orders entities created within the same clock tick.
	seq   map[string]int64
	next  int64
	clock func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts: make(map[string]*domain.AccountDefinition),
		records:  make(map[string]*domain.AccountRecord),
		sessions: make(map[string]*domain.UploadSession),
		txs:      make(map[string]*domain.Transaction),
		seq:      make(map[string]int64),
		clock:    time.Now,
	}
}

func (s *Store) stamp(id string) time.Time {
	s.next++
	s.seq[id] = s.next
	return s.clock().UTC()
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// ListAccountDefinitions implements store.AccountRepository.
func (s *Store) ListAccountDefinitions(ctx context.Context, userID string) ([]domain.AccountDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AccountDefinition
	for _, a := range s.accounts {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out, nil
}

// GetAccountDefinition implements store.AccountRepository.
func (s *Store) GetAccountDefinition(ctx context.Context, id string) (*domain.AccountDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, domain.NewNotFoundError("account", id)
	}
	cp := *a
	return &cp, nil
}

// CreateAccountDefinition implements store.AccountRepository.
func (s *Store) CreateAccountDefinition(ctx context.Context, def *domain.AccountDefinition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	if _, exists := s.accounts[def.ID]; exists {
		return domain.NewValidationError(fmt.Sprintf("account %s already exists", def.ID))
	}
	def.CreatedAt = s.stamp(def.ID)
	cp := *def
	s.accounts[def.ID] = &cp
	return nil
}

// DeleteAccountDefinition implements store.AccountRepository.
func (s *Store) DeleteAccountDefinition(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[id]; !ok {
		return domain.NewNotFoundError("account", id)
	}
	for rid, r := range s.records {
		if r.AccountID == id {
			delete(s.records, rid)
		}
	}
	delete(s.accounts, id)
	return nil
}

// ListAccountRecords implements store.AccountRepository.
func (s *Store) ListAccountRecords(ctx context.Context, userID string) ([]domain.AccountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AccountRecord
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out, nil
}

// BulkCreateAccountRecords implements store.AccountRepository.
func (s *Store) BulkCreateAccountRecords(ctx context.Context, userID string, date civil.Date, entries []domain.BalanceEntry) ([]domain.AccountRecord, error) {
	if !date.IsValid() {
		return nil, domain.NewValidationError("record date is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		a, ok := s.accounts[e.AccountID]
		if !ok || a.UserID != userID {
			return nil, domain.NewNotFoundError("account", e.AccountID)
		}
	}

	out := make([]domain.AccountRecord, 0, len(entries))
	for _, e := range entries {
		r := domain.AccountRecord{
			ID:         uuid.New().String(),
			AccountID:  e.AccountID,
			UserID:     userID,
			Balance:    e.Balance,
			RecordDate: date,
		}
		r.CreatedAt = s.stamp(r.ID)
		cp := r
		s.records[r.ID] = &cp
		out = append(out, r)
	}
	return out, nil
}

// CreateUploadSession implements store.SessionRepository.
func (s *Store) CreateUploadSession(ctx context.Context, sess *domain.UploadSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	sess.UploadDate = s.stamp(sess.ID)
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

// GetUploadSession implements store.SessionRepository.
func (s *Store) GetUploadSession(ctx context.Context, id string) (*domain.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.NewNotFoundError("upload session", id)
	}
	cp := *sess
	return &cp, nil
}

// PatchUploadSession implements store.SessionRepository.
func (s *Store) PatchUploadSession(ctx context.Context, id string, patch domain.SessionPatch) (*domain.UploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.NewNotFoundError("upload session", id)
	}
	updated, err := patch.Apply(*sess)
	if err != nil {
		return nil, err
	}
	s.sessions[id] = &updated
	cp := updated
	return &cp, nil
}

// DeleteUploadSession implements store.SessionRepository.
func (s *Store) DeleteUploadSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return domain.NewNotFoundError("upload session", id)
	}
	for tid, tx := range s.txs {
		if tx.UploadSessionID == id {
			delete(s.txs, tid)
		}
	}
	delete(s.sessions, id)
	return nil
}

// ListUploadSessions implements store.SessionRepository.
func (s *Store) ListUploadSessions(ctx context.Context, userID string) ([]domain.UploadSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.UploadSession
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] > s.seq[out[j].ID] })
	return out, nil
}

// CreateTransaction implements store.TransactionRepository.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return s.BulkCreateTransactions(ctx, tx.UserID, []*domain.Transaction{tx})
}

// BulkCreateTransactions implements store.TransactionRepository.
func (s *Store) BulkCreateTransactions(ctx context.Context, userID string, txs []*domain.Transaction) error {
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if tx.UploadSessionID != "" {
			if _, ok := s.sessions[tx.UploadSessionID]; !ok {
				return domain.NewNotFoundError("upload session", tx.UploadSessionID)
			}
		}
	}
	for _, tx := range txs {
		if tx.ID == "" {
			tx.ID = uuid.New().String()
		}
		tx.UserID = userID
		tx.CreatedAt = s.stamp(tx.ID)
		tx.UpdatedAt = tx.CreatedAt
		cp := *tx
		s.txs[tx.ID] = &cp
	}
	return nil
}

// GetTransaction implements store.TransactionRepository.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, domain.NewNotFoundError("transaction", id)
	}
	cp := *tx
	return &cp, nil
}

// PatchTransaction implements store.TransactionRepository.
func (s *Store) PatchTransaction(ctx context.Context, id string, patch domain.TransactionPatch) (*domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return nil, domain.NewNotFoundError("transaction", id)
	}
	updated, err := patch.Apply(*tx)
	if err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.clock().UTC()
	s.txs[id] = &updated
	cp := updated
	return &cp, nil
}

// DeleteTransaction implements store.TransactionRepository.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs[id]; !ok {
		return domain.NewNotFoundError("transaction", id)
	}
	delete(s.txs, id)
	return nil
}

// ListTransactions implements store.TransactionRepository.
func (s *Store) ListTransactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return s.listTransactions(func(tx *domain.Transaction) bool { return tx.UserID == userID }), nil
}

// ListSessionTransactions implements store.TransactionRepository.
func (s *Store) ListSessionTransactions(ctx context.Context, sessionID string) ([]domain.Transaction, error) {
	return s.listTransactions(func(tx *domain.Transaction) bool { return tx.UploadSessionID == sessionID }), nil
}

func (s *Store) listTransactions(keep func(*domain.Transaction) bool) []domain.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Transaction
	for _, tx := range s.txs {
		if keep(tx) {
			out = append(out, *tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransactionDate != out[j].TransactionDate {
			return out[i].TransactionDate.After(out[j].TransactionDate)
		}
		return s.seq[out[i].ID] < s.seq[out[j].ID]
	})
	return out
}

// Ensure Store implements store.Store.
var _ store.Store = (*Store)(nil)
