// backend/src/handlers/insight_handler.go
package handlers

import (
	"net/http"

	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/processors"
	"github.com/username/fincoach/backend/src/store"
)

type InsightHandler struct {
	store            store.Store
	insightProcessor *processors.InsightProcessor
}

func NewInsightHandler(st store.Store, insightProcessor *processors.InsightProcessor) *InsightHandler {
	return &InsightHandler{store: st, insightProcessor: insightProcessor}
}

func (h *InsightHandler) HandleGetInsights(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := h.store.ListTransactions(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load transactions for insights", "error", err)
		sendJSONError(w, "Failed to generate insights", http.StatusInternalServerError)
		return
	}
	sendJSON(w, h.insightProcessor.GenerateInsights(transactions), http.StatusOK)
}

func (h *InsightHandler) HandleGetCategoryTotals(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := h.store.ListTransactions(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load transactions for category totals", "error", err)
		sendJSONError(w, "Failed to aggregate categories", http.StatusInternalServerError)
		return
	}
	sendJSON(w, h.insightProcessor.CategoryTotals(transactions), http.StatusOK)
}

func (h *InsightHandler) HandleGetSpendingTrend(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := h.store.ListTransactions(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load transactions for trend", "error", err)
		sendJSONError(w, "Failed to aggregate trend", http.StatusInternalServerError)
		return
	}
	sendJSON(w, h.insightProcessor.MonthlyTrend(transactions), http.StatusOK)
}
