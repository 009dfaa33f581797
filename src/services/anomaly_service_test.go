package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/models"
	"github.com/username/fincoach/backend/src/processors"
	"github.com/username/fincoach/backend/src/store"
)

const testUserID int64 = 42

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

func newTestService(t *testing.T) (AnomalyService, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	svc := NewAnomalyService(
		st,
		processors.NewAnomalyProcessor(),
		processors.DefaultBaseThreshold,
		cache.New(time.Minute, time.Minute),
	)
	return svc, st
}

// seedOutlierTransactions stores ten transactions where tx-09 (amount 500)
// is a clear z-score outlier against the 47..53 background.
func seedOutlierTransactions(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	amounts := []float64{50, 52, 48, 51, 49, 53, 50, 47, 52, 500}
	for i, amount := range amounts {
		err := st.CreateTransaction(context.Background(), testUserID, models.Transaction{
			ID:       fmt.Sprintf("tx-%02d", i),
			Date:     fmt.Sprintf("2024-03-%02d", i+1),
			Merchant: fmt.Sprintf("Merchant %d", i),
			Category: "Groceries",
			Amount:   amount,
		})
		require.NoError(t, err)
	}
}

func TestRefreshAnomalyStateNoTransactions(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	active, message, err := svc.RefreshAnomalyState(ctx, testUserID)

	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, MsgNoTransactionData, message)

	storedActive, err := st.GetActiveAnomalies(ctx, testUserID)
	require.NoError(t, err)
	assert.Empty(t, storedActive)

	storedMessage, err := st.GetAnomalyMessage(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, MsgNoTransactionData, storedMessage)
}

func TestRefreshAnomalyStateFlagsOutlier(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedOutlierTransactions(t, st)

	active, message, err := svc.RefreshAnomalyState(ctx, testUserID)

	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "tx-09", active[0].TransactionID)
	assert.Equal(t, models.AnomalyStatusNew, active[0].Status)
	assert.Empty(t, message)

	storedActive, err := st.GetActiveAnomalies(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, active, storedActive)
}

func TestRefreshAnomalyStateSkipsUnchangedSet(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedOutlierTransactions(t, st)

	first, _, err := svc.RefreshAnomalyState(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Tamper with the stored state directly. A second refresh must return it
	// untouched because the transaction fingerprint has not changed.
	tampered := []models.AnomalyItem{{TransactionID: "planted", Status: models.AnomalyStatusNew}}
	require.NoError(t, st.SaveActiveAnomalies(ctx, testUserID, tampered))

	second, _, err := svc.RefreshAnomalyState(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "planted", second[0].TransactionID)

	// Invalidating the cache forces a recomputation on the next refresh.
	svc.InvalidateUserCache(testUserID)

	third, _, err := svc.RefreshAnomalyState(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.Equal(t, "tx-09", third[0].TransactionID)
}

func TestRefreshAnomalyStateRecomputesWhenTransactionsChange(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedOutlierTransactions(t, st)

	_, _, err := svc.RefreshAnomalyState(ctx, testUserID)
	require.NoError(t, err)

	err = st.CreateTransaction(ctx, testUserID, models.Transaction{
		ID: "tx-10", Date: "2024-03-11", Merchant: "Merchant 10", Category: "Groceries", Amount: 51,
	})
	require.NoError(t, err)

	active, _, err := svc.RefreshAnomalyState(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "tx-09", active[0].TransactionID)
}

func TestSyncAnomalyStateSuppressesTerminalFeedback(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.RecordAnomalyFeedback(ctx, testUserID,
		models.AnomalyItem{TransactionID: "tx-09", Amount: 500},
		models.AnomalyStatusConfirmed)
	require.NoError(t, err)

	report := models.AnomalyReport{Items: []models.AnomalyItem{
		{TransactionID: "tx-09", Amount: 500, Status: models.AnomalyStatusNew},
		{TransactionID: "tx-11", Amount: 800, Status: models.AnomalyStatusNew},
	}}

	active, err := svc.SyncAnomalyState(ctx, testUserID, report)

	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "tx-11", active[0].TransactionID)
}

func TestSyncAnomalyStateCarriesNonTerminalStatus(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	history := []models.FeedbackRecord{{
		AnomalyItem: models.AnomalyItem{TransactionID: "tx-09", Status: models.AnomalyStatusReview},
		RecordedAt:  time.Now().UTC().Format(time.RFC3339),
	}}
	require.NoError(t, svc.UpdateAnomalyState(ctx, testUserID, AnomalyStateUpdate{History: &history}))

	report := models.AnomalyReport{Items: []models.AnomalyItem{
		{TransactionID: "tx-09", Amount: 500, Status: models.AnomalyStatusNew},
	}}

	active, err := svc.SyncAnomalyState(ctx, testUserID, report)

	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.AnomalyStatusReview, active[0].Status)
}

func TestSyncAnomalyStateSkipsMalformedHistoryRecords(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	history := []models.FeedbackRecord{{
		AnomalyItem: models.AnomalyItem{TransactionID: "", Status: models.AnomalyStatusConfirmed},
		RecordedAt:  time.Now().UTC().Format(time.RFC3339),
	}}
	require.NoError(t, svc.UpdateAnomalyState(ctx, testUserID, AnomalyStateUpdate{History: &history}))

	report := models.AnomalyReport{Items: []models.AnomalyItem{
		{TransactionID: "tx-09", Status: models.AnomalyStatusNew},
	}}

	active, err := svc.SyncAnomalyState(ctx, testUserID, report)

	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, models.AnomalyStatusNew, active[0].Status)
}

func TestRecordAnomalyFeedbackValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.RecordAnomalyFeedback(ctx, testUserID, models.AnomalyItem{}, models.AnomalyStatusConfirmed)
	assert.ErrorIs(t, err, ErrMissingTransactionID)

	err = svc.RecordAnomalyFeedback(ctx, testUserID,
		models.AnomalyItem{TransactionID: "tx-09"}, models.AnomalyStatusReview)
	assert.ErrorIs(t, err, ErrInvalidFeedbackStatus)

	err = svc.RecordAnomalyFeedback(ctx, testUserID,
		models.AnomalyItem{TransactionID: "tx-09"}, models.AnomalyStatus("nonsense"))
	assert.ErrorIs(t, err, ErrInvalidFeedbackStatus)
}

func TestRecordAnomalyFeedbackLastWriteWins(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	item := models.AnomalyItem{TransactionID: "tx-09", Amount: 500}

	require.NoError(t, svc.RecordAnomalyFeedback(ctx, testUserID, item, models.AnomalyStatusConfirmed))
	require.NoError(t, svc.RecordAnomalyFeedback(ctx, testUserID, item, models.AnomalyStatusFraud))

	history, err := svc.GetAnomalyHistory(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "tx-09", history[0].TransactionID)
	assert.Equal(t, models.AnomalyStatusFraud, history[0].Status)
	assert.NotEmpty(t, history[0].RecordedAt)
}

func TestRecordAnomalyFeedbackAcceptsUnknownID(t *testing.T) {
	// Feedback for an id that is not currently flagged is stored anyway and
	// only takes effect if that id reappears in a later report.
	svc, _ := newTestService(t)
	ctx := context.Background()

	err := svc.RecordAnomalyFeedback(ctx, testUserID,
		models.AnomalyItem{TransactionID: "never-flagged"}, models.AnomalyStatusFraud)
	require.NoError(t, err)

	history, err := svc.GetAnomalyHistory(ctx, testUserID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "never-flagged", history[0].TransactionID)
}

func TestResolveAnomaly(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	seedOutlierTransactions(t, st)

	_, _, err := svc.RefreshAnomalyState(ctx, testUserID)
	require.NoError(t, err)

	t.Run("unknown id", func(t *testing.T) {
		err := svc.ResolveAnomaly(ctx, testUserID, "missing", models.AnomalyStatusConfirmed)
		assert.ErrorIs(t, err, ErrAnomalyNotFound)
	})

	t.Run("resolves and removes from active", func(t *testing.T) {
		err := svc.ResolveAnomaly(ctx, testUserID, "tx-09", models.AnomalyStatusConfirmed)
		require.NoError(t, err)

		active, _, err := svc.GetAnomalyState(ctx, testUserID)
		require.NoError(t, err)
		assert.Empty(t, active)

		history, err := svc.GetAnomalyHistory(ctx, testUserID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "tx-09", history[0].TransactionID)
		assert.Equal(t, models.AnomalyStatusConfirmed, history[0].Status)
	})

	t.Run("stays resolved after a forced recompute", func(t *testing.T) {
		svc.InvalidateUserCache(testUserID)

		active, _, err := svc.RefreshAnomalyState(ctx, testUserID)
		require.NoError(t, err)
		assert.Empty(t, active)
	})
}

func TestUpdateAnomalyStatePartialReplace(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	seeded := []models.AnomalyItem{{TransactionID: "tx-09", Status: models.AnomalyStatusNew}}
	require.NoError(t, st.SaveActiveAnomalies(ctx, testUserID, seeded))

	message := "looking good"
	require.NoError(t, svc.UpdateAnomalyState(ctx, testUserID, AnomalyStateUpdate{Message: &message}))

	active, storedMessage, err := svc.GetAnomalyState(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, seeded, active)
	assert.Equal(t, "looking good", storedMessage)

	empty := []models.AnomalyItem{}
	require.NoError(t, svc.UpdateAnomalyState(ctx, testUserID, AnomalyStateUpdate{Active: &empty}))

	active, storedMessage, err = svc.GetAnomalyState(ctx, testUserID)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Equal(t, "looking good", storedMessage, "message is untouched when only active is replaced")
}

func TestSyncAnomalyStateIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordAnomalyFeedback(ctx, testUserID,
		models.AnomalyItem{TransactionID: "tx-05"}, models.AnomalyStatusConfirmed))
	history := []models.FeedbackRecord{{
		AnomalyItem: models.AnomalyItem{TransactionID: "tx-09", Status: models.AnomalyStatusReview},
		RecordedAt:  time.Now().UTC().Format(time.RFC3339),
	}}
	require.NoError(t, svc.UpdateAnomalyState(ctx, testUserID, AnomalyStateUpdate{History: &history}))

	report := models.AnomalyReport{Items: []models.AnomalyItem{
		{TransactionID: "tx-05", Amount: 300, Status: models.AnomalyStatusNew},
		{TransactionID: "tx-09", Amount: 500, Status: models.AnomalyStatusNew},
		{TransactionID: "tx-11", Amount: 800, Status: models.AnomalyStatusNew},
	}}

	first, err := svc.SyncAnomalyState(ctx, testUserID, report)
	require.NoError(t, err)
	second, err := svc.SyncAnomalyState(ctx, testUserID, report)
	require.NoError(t, err)

	assert.Equal(t, first, second, "same report and unchanged history must reconcile identically")
	require.Len(t, second, 2)
	assert.Equal(t, models.AnomalyStatusReview, second[0].Status)
	assert.Equal(t, models.AnomalyStatusNew, second[1].Status)
}
