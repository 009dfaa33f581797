package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/models"
	"github.com/username/fincoach/backend/src/processors"
	"github.com/username/fincoach/backend/src/services"
	"github.com/username/fincoach/backend/src/store"
)

const testUserID int64 = 7

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	m.Run()
}

func newAnomalyTestServer(t *testing.T) (*httptest.Server, services.AnomalyService, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	svc := services.NewAnomalyService(
		st,
		processors.NewAnomalyProcessor(),
		processors.DefaultBaseThreshold,
		cache.New(time.Minute, time.Minute),
	)
	h := NewAnomalyHandler(svc)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), userIDContextKey, testUserID)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/anomalies", h.HandleGetAnomalies)
	r.Get("/anomalies/history", h.HandleGetAnomalyHistory)
	r.Post("/anomalies/feedback", h.HandleRecordFeedback)
	r.Post("/anomalies/{transactionID}/feedback", h.HandleResolveAnomaly)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, svc, st
}

func seedOutlier(t *testing.T, st *store.MemoryStore) {
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

func TestHandleGetAnomaliesRequiresAuth(t *testing.T) {
	h := NewAnomalyHandler(nil)
	rec := httptest.NewRecorder()

	h.HandleGetAnomalies(rec, httptest.NewRequest(http.MethodGet, "/anomalies", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleGetAnomalies(t *testing.T) {
	server, _, st := newAnomalyTestServer(t)
	seedOutlier(t, st)

	resp, err := http.Get(server.URL + "/anomalies")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state anomalyStateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	require.Len(t, state.Active, 1)
	assert.Equal(t, "tx-09", state.Active[0].TransactionID)
	assert.Empty(t, state.Message)
}

func TestHandleResolveAnomaly(t *testing.T) {
	server, svc, st := newAnomalyTestServer(t)
	seedOutlier(t, st)

	_, _, err := svc.RefreshAnomalyState(context.Background(), testUserID)
	require.NoError(t, err)

	t.Run("invalid status", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/anomalies/tx-09/feedback", `{"status":"review"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/anomalies/missing/feedback", `{"status":"fraud"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("resolves", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/anomalies/tx-09/feedback", `{"status":"fraud"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		active, _, err := svc.GetAnomalyState(context.Background(), testUserID)
		require.NoError(t, err)
		assert.Empty(t, active)

		history, err := svc.GetAnomalyHistory(context.Background(), testUserID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, models.AnomalyStatusFraud, history[0].Status)
	})
}

func TestHandleRecordFeedback(t *testing.T) {
	server, svc, _ := newAnomalyTestServer(t)

	t.Run("missing transaction id", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/anomalies/feedback", `{"item":{},"status":"confirmed"}`)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("accepts inactive id", func(t *testing.T) {
		resp := postJSON(t, server.URL+"/anomalies/feedback",
			`{"item":{"transaction_id":"future-tx"},"status":"confirmed"}`)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		history, err := svc.GetAnomalyHistory(context.Background(), testUserID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "future-tx", history[0].TransactionID)
	})
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}
