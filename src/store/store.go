// backend/src/store/store.go
package store

import (
	"context"
	"errors"

	"github.com/username/fincoach/backend/src/model"
	"github.com/username/fincoach/backend/src/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateTransaction is returned when a transaction id already exists for the user.
	ErrDuplicateTransaction = errors.New("transaction already exists")
	// ErrDuplicateUser is returned when a username or email is already taken.
	ErrDuplicateUser = errors.New("username or email already registered")
)

// Store is the persistence boundary for per-user state. The anomaly engine
// itself is pure; everything it reads or writes goes through this interface,
// so tests run against the in-memory implementation and production uses
// SQLite.
type Store interface {
	// User account operations. CreateUser assigns the id and timestamps.
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)

	// Transaction operations
	CreateTransaction(ctx context.Context, userID int64, tx models.Transaction) error
	CreateTransactions(ctx context.Context, userID int64, txs []models.Transaction) error
	ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error)
	DeleteAllTransactions(ctx context.Context, userID int64) error

	// Trusted merchant (whitelist) operations
	ListTrustedMerchants(ctx context.Context, userID int64) ([]string, error)
	AddTrustedMerchant(ctx context.Context, userID int64, name string) error
	RemoveTrustedMerchant(ctx context.Context, userID int64, name string) error

	// Anomaly state operations. Save calls carry full-replace semantics:
	// the stored collection becomes exactly what is passed in.
	GetActiveAnomalies(ctx context.Context, userID int64) ([]models.AnomalyItem, error)
	SaveActiveAnomalies(ctx context.Context, userID int64, items []models.AnomalyItem) error
	GetAnomalyHistory(ctx context.Context, userID int64) ([]models.FeedbackRecord, error)
	SaveAnomalyHistory(ctx context.Context, userID int64, records []models.FeedbackRecord) error
	GetAnomalyMessage(ctx context.Context, userID int64) (string, error)
	SaveAnomalyMessage(ctx context.Context, userID int64, message string) error
}
