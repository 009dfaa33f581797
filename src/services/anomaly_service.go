// backend/src/services/anomaly_service.go
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/models"
	"github.com/username/fincoach/backend/src/processors"
	"github.com/username/fincoach/backend/src/store"
	"github.com/username/fincoach/backend/src/utils"
)

const (
	ckAnomalyFingerprint = "anomaly_fingerprint_user_%d"

	// MsgNoTransactionData is stored when a refresh finds no transactions at all.
	MsgNoTransactionData = "No transaction data yet. Upload a receipt to get started."
)

type anomalyServiceImpl struct {
	store         store.Store
	processor     *processors.AnomalyProcessor
	baseThreshold float64
	reportCache   *cache.Cache

	// Per-user locks serialize the read-modify-write of anomaly state so a
	// refresh cannot race a feedback submission for the same user.
	lockMu    sync.Mutex
	userLocks map[int64]*sync.Mutex
}

func NewAnomalyService(
	st store.Store,
	processor *processors.AnomalyProcessor,
	baseThreshold float64,
	reportCache *cache.Cache,
) AnomalyService {
	if baseThreshold <= 0 {
		baseThreshold = processors.DefaultBaseThreshold
	}
	return &anomalyServiceImpl{
		store:         st,
		processor:     processor,
		baseThreshold: baseThreshold,
		reportCache:   reportCache,
		userLocks:     make(map[int64]*sync.Mutex),
	}
}

func (s *anomalyServiceImpl) userLock(userID int64) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	return l
}

func fingerprintKey(userID int64) string {
	return fmt.Sprintf(ckAnomalyFingerprint, userID)
}

func (s *anomalyServiceImpl) RefreshAnomalyState(ctx context.Context, userID int64) ([]models.AnomalyItem, string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	transactions, err := s.store.ListTransactions(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("listing transactions for anomaly refresh: %w", err)
	}

	if len(transactions) == 0 {
		if err := s.store.SaveActiveAnomalies(ctx, userID, []models.AnomalyItem{}); err != nil {
			return nil, "", err
		}
		if err := s.store.SaveAnomalyMessage(ctx, userID, MsgNoTransactionData); err != nil {
			return nil, "", err
		}
		return []models.AnomalyItem{}, MsgNoTransactionData, nil
	}

	// Detection is pure computation; skip it when the fields that feed it
	// (id, amount, date) are unchanged since the last run.
	fingerprint := utils.FingerprintTransactions(transactions)
	if cached, found := s.reportCache.Get(fingerprintKey(userID)); found && cached.(string) == fingerprint {
		logger.L.Debug("Anomaly refresh skipped, transaction set unchanged", "userID", userID)
		active, err := s.store.GetActiveAnomalies(ctx, userID)
		if err != nil {
			return nil, "", err
		}
		message, err := s.store.GetAnomalyMessage(ctx, userID)
		if err != nil {
			return nil, "", err
		}
		return active, message, nil
	}

	whitelist, err := s.store.ListTrustedMerchants(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("listing trusted merchants for anomaly refresh: %w", err)
	}

	report := s.processor.ComputeAnomalyReport(transactions, s.baseThreshold, whitelist)
	logger.L.Info("Anomaly report computed",
		"userID", userID,
		"sampleSize", report.SampleSize,
		"items", len(report.Items),
		"thresholdUsed", report.ThresholdUsed,
		"adaptive", report.Adaptive,
		"sensitivity", report.Sensitivity)

	active, err := s.syncAnomalyStateLocked(ctx, userID, report)
	if err != nil {
		return nil, "", err
	}

	s.reportCache.Set(fingerprintKey(userID), fingerprint, DefaultCacheExpiration)

	message, err := s.store.GetAnomalyMessage(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	return active, message, nil
}

func (s *anomalyServiceImpl) SyncAnomalyState(ctx context.Context, userID int64, report models.AnomalyReport) ([]models.AnomalyItem, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.syncAnomalyStateLocked(ctx, userID, report)
}

// syncAnomalyStateLocked merges the report with recorded feedback. Items the
// user already resolved (confirmed/fraud) are suppressed; items with
// non-terminal feedback keep the historical status; everything else surfaces
// as new. Caller must hold the user lock.
func (s *anomalyServiceImpl) syncAnomalyStateLocked(ctx context.Context, userID int64, report models.AnomalyReport) ([]models.AnomalyItem, error) {
	history, err := s.store.GetAnomalyHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading anomaly history: %w", err)
	}

	historyByID := make(map[string]models.FeedbackRecord, len(history))
	for _, rec := range history {
		if rec.TransactionID == "" {
			// Caller contract violation; skip the record rather than fail the sync.
			logger.L.Warn("Ignoring feedback record without transaction id", "userID", userID)
			continue
		}
		historyByID[rec.TransactionID] = rec
	}

	active := make([]models.AnomalyItem, 0, len(report.Items))
	for _, item := range report.Items {
		if rec, ok := historyByID[item.TransactionID]; ok {
			if rec.Status.IsTerminal() {
				continue
			}
			if _, err := models.ParseAnomalyStatus(string(rec.Status)); err == nil {
				item.Status = rec.Status
			} else {
				item.Status = models.AnomalyStatusReview
			}
		}
		active = append(active, item)
	}

	if err := s.store.SaveActiveAnomalies(ctx, userID, active); err != nil {
		return nil, fmt.Errorf("saving active anomalies: %w", err)
	}
	if report.Message != "" {
		if err := s.store.SaveAnomalyMessage(ctx, userID, report.Message); err != nil {
			return nil, fmt.Errorf("saving anomaly message: %w", err)
		}
	}
	return active, nil
}

func (s *anomalyServiceImpl) RecordAnomalyFeedback(ctx context.Context, userID int64, item models.AnomalyItem, status models.AnomalyStatus) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()
	return s.recordFeedbackLocked(ctx, userID, item, status)
}

// recordFeedbackLocked upserts the feedback record, replacing any prior
// decision for the same transaction id. Feedback for a transaction id that
// is not currently flagged is accepted: it only takes effect if that id
// shows up in a future report.
func (s *anomalyServiceImpl) recordFeedbackLocked(ctx context.Context, userID int64, item models.AnomalyItem, status models.AnomalyStatus) error {
	if item.TransactionID == "" {
		return ErrMissingTransactionID
	}
	if !status.IsTerminal() {
		return ErrInvalidFeedbackStatus
	}

	history, err := s.store.GetAnomalyHistory(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading anomaly history for feedback: %w", err)
	}

	kept := make([]models.FeedbackRecord, 0, len(history)+1)
	for _, rec := range history {
		if rec.TransactionID != item.TransactionID {
			kept = append(kept, rec)
		}
	}
	item.Status = status
	kept = append(kept, models.FeedbackRecord{
		AnomalyItem: item,
		RecordedAt:  time.Now().UTC().Format(time.RFC3339),
	})

	if err := s.store.SaveAnomalyHistory(ctx, userID, kept); err != nil {
		return fmt.Errorf("saving anomaly history: %w", err)
	}
	logger.L.Info("Anomaly feedback recorded", "userID", userID, "transactionID", item.TransactionID, "status", status)
	return nil
}

func (s *anomalyServiceImpl) ResolveAnomaly(ctx context.Context, userID int64, transactionID string, status models.AnomalyStatus) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	active, err := s.store.GetActiveAnomalies(ctx, userID)
	if err != nil {
		return fmt.Errorf("loading active anomalies: %w", err)
	}

	idx := -1
	for i, item := range active {
		if item.TransactionID == transactionID {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ErrAnomalyNotFound
	}

	if err := s.recordFeedbackLocked(ctx, userID, active[idx], status); err != nil {
		return err
	}

	remaining := append(active[:idx:idx], active[idx+1:]...)
	if err := s.store.SaveActiveAnomalies(ctx, userID, remaining); err != nil {
		return fmt.Errorf("saving active anomalies after resolve: %w", err)
	}
	return nil
}

func (s *anomalyServiceImpl) UpdateAnomalyState(ctx context.Context, userID int64, update AnomalyStateUpdate) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if update.Active != nil {
		if err := s.store.SaveActiveAnomalies(ctx, userID, *update.Active); err != nil {
			return fmt.Errorf("replacing active anomalies: %w", err)
		}
	}
	if update.History != nil {
		if err := s.store.SaveAnomalyHistory(ctx, userID, *update.History); err != nil {
			return fmt.Errorf("replacing anomaly history: %w", err)
		}
	}
	if update.Message != nil {
		if err := s.store.SaveAnomalyMessage(ctx, userID, *update.Message); err != nil {
			return fmt.Errorf("replacing anomaly message: %w", err)
		}
	}
	return nil
}

func (s *anomalyServiceImpl) GetAnomalyState(ctx context.Context, userID int64) ([]models.AnomalyItem, string, error) {
	active, err := s.store.GetActiveAnomalies(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	message, err := s.store.GetAnomalyMessage(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	return active, message, nil
}

func (s *anomalyServiceImpl) GetAnomalyHistory(ctx context.Context, userID int64) ([]models.FeedbackRecord, error) {
	return s.store.GetAnomalyHistory(ctx, userID)
}

func (s *anomalyServiceImpl) InvalidateUserCache(userID int64) {
	s.reportCache.Delete(fingerprintKey(userID))
}
