// backend/src/handlers/anomaly_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/models"
	"github.com/username/fincoach/backend/src/services"
)

type AnomalyHandler struct {
	anomalyService services.AnomalyService
}

func NewAnomalyHandler(anomalyService services.AnomalyService) *AnomalyHandler {
	return &AnomalyHandler{anomalyService: anomalyService}
}

type anomalyStateResponse struct {
	Active  []models.AnomalyItem `json:"active"`
	Message string               `json:"message,omitempty"`
}

// HandleGetAnomalies refreshes detection for the user's current transaction
// set (a no-op when the set is unchanged) and returns the active anomalies.
func (h *AnomalyHandler) HandleGetAnomalies(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	active, message, err := h.anomalyService.RefreshAnomalyState(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Anomaly refresh failed", "error", err)
		sendJSONError(w, "Failed to refresh anomalies", http.StatusInternalServerError)
		return
	}
	if active == nil {
		active = []models.AnomalyItem{}
	}
	sendJSON(w, anomalyStateResponse{Active: active, Message: message}, http.StatusOK)
}

func (h *AnomalyHandler) HandleGetAnomalyHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	history, err := h.anomalyService.GetAnomalyHistory(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to load anomaly history", "error", err)
		sendJSONError(w, "Failed to load anomaly history", http.StatusInternalServerError)
		return
	}
	if history == nil {
		history = []models.FeedbackRecord{}
	}
	sendJSON(w, history, http.StatusOK)
}

type feedbackRequest struct {
	Status string `json:"status"`
}

// HandleResolveAnomaly records the user's decision for one active anomaly
// and removes it from the active list.
func (h *AnomalyHandler) HandleResolveAnomaly(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		sendJSONError(w, "transaction id is required", http.StatusBadRequest)
		return
	}

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	status, err := models.ParseAnomalyStatus(req.Status)
	if err != nil || !status.IsTerminal() {
		sendJSONError(w, "status must be 'confirmed' or 'fraud'", http.StatusBadRequest)
		return
	}

	if err := h.anomalyService.ResolveAnomaly(r.Context(), userID, transactionID, status); err != nil {
		if errors.Is(err, services.ErrAnomalyNotFound) {
			sendJSONError(w, "No active anomaly for that transaction", http.StatusNotFound)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to resolve anomaly", "transactionID", transactionID, "error", err)
		sendJSONError(w, "Failed to record feedback", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type recordFeedbackRequest struct {
	Item   models.AnomalyItem `json:"item"`
	Status string             `json:"status"`
}

// HandleRecordFeedback records feedback for an arbitrary anomaly item, even
// one that is not currently active. The decision only takes effect if the
// transaction id shows up in a future report.
func (h *AnomalyHandler) HandleRecordFeedback(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req recordFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	status, err := models.ParseAnomalyStatus(req.Status)
	if err != nil || !status.IsTerminal() {
		sendJSONError(w, "status must be 'confirmed' or 'fraud'", http.StatusBadRequest)
		return
	}

	if err := h.anomalyService.RecordAnomalyFeedback(r.Context(), userID, req.Item, status); err != nil {
		if errors.Is(err, services.ErrMissingTransactionID) {
			sendJSONError(w, "item.transaction_id is required", http.StatusBadRequest)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to record anomaly feedback", "error", err)
		sendJSONError(w, "Failed to record feedback", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
