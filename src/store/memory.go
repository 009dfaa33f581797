// backend/src/store/memory.go
package store

import (
	"context"
	"sync"
	"time"

	"github.com/username/fincoach/backend/src/model"
	"github.com/username/fincoach/backend/src/models"
)

// MemoryStore implements Store with in-memory maps. It backs tests and local
// development (USE_MEMORY_STORE); nothing survives a restart.
type MemoryStore struct {
	mu sync.RWMutex

	users            map[int64]model.User
	nextUserID       int64
	transactions     map[int64][]models.Transaction
	trustedMerchants map[int64][]string
	activeAnomalies  map[int64][]models.AnomalyItem
	anomalyHistory   map[int64][]models.FeedbackRecord
	anomalyMessages  map[int64]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:            make(map[int64]model.User),
		transactions:     make(map[int64][]models.Transaction),
		trustedMerchants: make(map[int64][]string),
		activeAnomalies:  make(map[int64][]models.AnomalyItem),
		anomalyHistory:   make(map[int64][]models.FeedbackRecord),
		anomalyMessages:  make(map[int64]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return ErrDuplicateUser
		}
	}
	s.nextUserID++
	user.ID = s.nextUserID
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			out := u
			return &out, nil
		}
	}
	return nil, model.ErrUserNotFound
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, model.ErrUserNotFound
	}
	out := u
	return &out, nil
}

func (s *MemoryStore) CreateTransaction(ctx context.Context, userID int64, tx models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.transactions[userID] {
		if existing.ID == tx.ID {
			return ErrDuplicateTransaction
		}
	}
	s.transactions[userID] = append(s.transactions[userID], tx)
	return nil
}

func (s *MemoryStore) CreateTransactions(ctx context.Context, userID int64, txs []models.Transaction) error {
	for _, tx := range txs {
		if err := s.CreateTransaction(ctx, userID, tx); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Transaction, len(s.transactions[userID]))
	copy(out, s.transactions[userID])
	return out, nil
}

func (s *MemoryStore) DeleteAllTransactions(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transactions, userID)
	return nil
}

func (s *MemoryStore) ListTrustedMerchants(ctx context.Context, userID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.trustedMerchants[userID]))
	copy(out, s.trustedMerchants[userID])
	return out, nil
}

func (s *MemoryStore) AddTrustedMerchant(ctx context.Context, userID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.trustedMerchants[userID] {
		if existing == name {
			return nil
		}
	}
	s.trustedMerchants[userID] = append(s.trustedMerchants[userID], name)
	return nil
}

func (s *MemoryStore) RemoveTrustedMerchant(ctx context.Context, userID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.trustedMerchants[userID][:0]
	for _, existing := range s.trustedMerchants[userID] {
		if existing != name {
			kept = append(kept, existing)
		}
	}
	s.trustedMerchants[userID] = kept
	return nil
}

func (s *MemoryStore) GetActiveAnomalies(ctx context.Context, userID int64) ([]models.AnomalyItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AnomalyItem, len(s.activeAnomalies[userID]))
	copy(out, s.activeAnomalies[userID])
	return out, nil
}

func (s *MemoryStore) SaveActiveAnomalies(ctx context.Context, userID int64, items []models.AnomalyItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]models.AnomalyItem, len(items))
	copy(stored, items)
	s.activeAnomalies[userID] = stored
	return nil
}

func (s *MemoryStore) GetAnomalyHistory(ctx context.Context, userID int64) ([]models.FeedbackRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.FeedbackRecord, len(s.anomalyHistory[userID]))
	copy(out, s.anomalyHistory[userID])
	return out, nil
}

func (s *MemoryStore) SaveAnomalyHistory(ctx context.Context, userID int64, records []models.FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]models.FeedbackRecord, len(records))
	copy(stored, records)
	s.anomalyHistory[userID] = stored
	return nil
}

func (s *MemoryStore) GetAnomalyMessage(ctx context.Context, userID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anomalyMessages[userID], nil
}

func (s *MemoryStore) SaveAnomalyMessage(ctx context.Context, userID int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalyMessages[userID] = message
	return nil
}
