// backend/src/handlers/merchant_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/security/validation"
	"github.com/username/fincoach/backend/src/services"
	"github.com/username/fincoach/backend/src/store"
)

// MerchantHandler manages the per-user trusted merchant whitelist.
// Whitelisted merchants are excluded from anomaly detection entirely.
type MerchantHandler struct {
	store          store.Store
	anomalyService services.AnomalyService
}

func NewMerchantHandler(st store.Store, anomalyService services.AnomalyService) *MerchantHandler {
	return &MerchantHandler{store: st, anomalyService: anomalyService}
}

func (h *MerchantHandler) HandleListTrustedMerchants(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	merchants, err := h.store.ListTrustedMerchants(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list trusted merchants", "error", err)
		sendJSONError(w, "Failed to load trusted merchants", http.StatusInternalServerError)
		return
	}
	if merchants == nil {
		merchants = []string{}
	}
	sendJSON(w, merchants, http.StatusOK)
}

type trustedMerchantRequest struct {
	Name string `json:"name"`
}

func (h *MerchantHandler) HandleAddTrustedMerchant(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req trustedMerchantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	name := validation.CleanName(req.Name)
	if name == "" {
		sendJSONError(w, "Merchant name is required", http.StatusBadRequest)
		return
	}

	if err := h.store.AddTrustedMerchant(r.Context(), userID, name); err != nil {
		logger.FromContext(r.Context()).Error("Failed to add trusted merchant", "merchant", name, "error", err)
		sendJSONError(w, "Failed to save trusted merchant", http.StatusInternalServerError)
		return
	}

	// The whitelist feeds detection; force a recompute on the next refresh.
	h.anomalyService.InvalidateUserCache(userID)
	logger.FromContext(r.Context()).Info("Trusted merchant added", "merchant", name)
	w.WriteHeader(http.StatusNoContent)
}

func (h *MerchantHandler) HandleRemoveTrustedMerchant(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	name := validation.CleanName(chi.URLParam(r, "name"))
	if name == "" {
		sendJSONError(w, "Merchant name is required", http.StatusBadRequest)
		return
	}

	if err := h.store.RemoveTrustedMerchant(r.Context(), userID, name); err != nil {
		logger.FromContext(r.Context()).Error("Failed to remove trusted merchant", "merchant", name, "error", err)
		sendJSONError(w, "Failed to remove trusted merchant", http.StatusInternalServerError)
		return
	}

	h.anomalyService.InvalidateUserCache(userID)
	logger.FromContext(r.Context()).Info("Trusted merchant removed", "merchant", name)
	w.WriteHeader(http.StatusNoContent)
}
