// backend/src/services/interfaces.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/username/fincoach/backend/src/models"
)

const (
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// Define common service errors
var (
	ErrInvalidFeedbackStatus = errors.New("feedback status must be confirmed or fraud")
	ErrMissingTransactionID  = errors.New("anomaly item has no transaction id")
	ErrAnomalyNotFound       = errors.New("anomaly not found in active list")
)

// AnomalyStateUpdate is a narrow partial update of the persisted anomaly
// state. Nil fields are left untouched; non-nil fields fully replace the
// stored value. This is how the UI layer drops a single just-resolved item
// without recomputing the whole report.
type AnomalyStateUpdate struct {
	Active  *[]models.AnomalyItem
	History *[]models.FeedbackRecord
	Message *string
}

// AnomalyService owns the anomaly lifecycle: recomputing reports when the
// transaction set changes, reconciling fresh reports against recorded user
// feedback, and persisting the resulting state.
type AnomalyService interface {
	// RefreshAnomalyState recomputes detection for the user's current
	// transactions, skipping the work when their fingerprint is unchanged,
	// and returns the active anomaly list plus the status message.
	RefreshAnomalyState(ctx context.Context, userID int64) ([]models.AnomalyItem, string, error)

	// SyncAnomalyState merges a freshly computed report with the persisted
	// feedback history and returns (and stores) the current active list.
	SyncAnomalyState(ctx context.Context, userID int64, report models.AnomalyReport) ([]models.AnomalyItem, error)

	// RecordAnomalyFeedback upserts a terminal feedback decision into the
	// history, keyed by transaction id (last write wins).
	RecordAnomalyFeedback(ctx context.Context, userID int64, item models.AnomalyItem, status models.AnomalyStatus) error

	// ResolveAnomaly records feedback for one active anomaly and removes it
	// from the active list in a single serialized step.
	ResolveAnomaly(ctx context.Context, userID int64, transactionID string, status models.AnomalyStatus) error

	// UpdateAnomalyState applies a partial replace of the persisted state.
	UpdateAnomalyState(ctx context.Context, userID int64, update AnomalyStateUpdate) error

	GetAnomalyState(ctx context.Context, userID int64) ([]models.AnomalyItem, string, error)
	GetAnomalyHistory(ctx context.Context, userID int64) ([]models.FeedbackRecord, error)

	// InvalidateUserCache drops the cached transaction fingerprint so the
	// next refresh recomputes unconditionally.
	InvalidateUserCache(userID int64)
}
