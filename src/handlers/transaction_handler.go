// backend/src/handlers/transaction_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/username/fincoach/backend/src/config"
	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/models"
	"github.com/username/fincoach/backend/src/security/validation"
	"github.com/username/fincoach/backend/src/services"
	"github.com/username/fincoach/backend/src/store"
)

const transactionDateLayout = "2006-01-02"

type TransactionHandler struct {
	store            store.Store
	anomalyService   services.AnomalyService
	statementService services.StatementService
}

func NewTransactionHandler(st store.Store, anomalyService services.AnomalyService, statementService services.StatementService) *TransactionHandler {
	return &TransactionHandler{
		store:            st,
		anomalyService:   anomalyService,
		statementService: statementService,
	}
}

// normalizeTransaction sanitizes free-text fields, assigns an id when
// missing, and validates the fields the anomaly engine depends on.
func normalizeTransaction(tx models.Transaction) (models.Transaction, error) {
	tx.Merchant = validation.CleanName(tx.Merchant)
	tx.Category = validation.CleanName(tx.Category)
	tx.RawText = validation.SanitizeText(tx.RawText)

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.Merchant == "" {
		return tx, errors.New("merchant is required")
	}
	if tx.Category == "" {
		tx.Category = "Uncategorized"
	}
	if _, err := time.Parse(transactionDateLayout, tx.Date); err != nil {
		return tx, fmt.Errorf("date must be in YYYY-MM-DD format: %w", err)
	}
	return tx, nil
}

func (h *TransactionHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := h.store.ListTransactions(r.Context(), userID)
	if err != nil {
		logger.FromContext(r.Context()).Error("Failed to list transactions", "error", err)
		sendJSONError(w, "Failed to load transactions", http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	sendJSON(w, transactions, http.StatusOK)
}

func (h *TransactionHandler) HandleAddManualTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var tx models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	tx, err := normalizeTransaction(tx)
	if err != nil {
		sendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.CreateTransaction(r.Context(), userID, tx); err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			sendJSONError(w, "Transaction already exists", http.StatusConflict)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to create transaction", "error", err)
		sendJSONError(w, "Failed to save transaction", http.StatusInternalServerError)
		return
	}

	h.anomalyService.InvalidateUserCache(userID)
	sendJSON(w, tx, http.StatusCreated)
}

// HandleImportTransactions ingests a batch of structured transactions, as
// delivered by the external extraction pipeline.
func (h *TransactionHandler) HandleImportTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var incoming []models.Transaction
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		sendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(incoming) == 0 {
		sendJSONError(w, "No transactions to import", http.StatusBadRequest)
		return
	}
	if len(incoming) > config.Cfg.MaxImportBatchSize {
		sendJSONError(w, fmt.Sprintf("Import batch exceeds maximum of %d transactions", config.Cfg.MaxImportBatchSize), http.StatusRequestEntityTooLarge)
		return
	}

	normalized := make([]models.Transaction, 0, len(incoming))
	for i, tx := range incoming {
		tx, err := normalizeTransaction(tx)
		if err != nil {
			sendJSONError(w, fmt.Sprintf("Transaction %d: %v", i, err), http.StatusBadRequest)
			return
		}
		normalized = append(normalized, tx)
	}

	if err := h.store.CreateTransactions(r.Context(), userID, normalized); err != nil {
		if errors.Is(err, store.ErrDuplicateTransaction) {
			sendJSONError(w, "Import contains a transaction that already exists", http.StatusConflict)
			return
		}
		logger.FromContext(r.Context()).Error("Failed to import transactions", "count", len(normalized), "error", err)
		sendJSONError(w, "Failed to import transactions", http.StatusInternalServerError)
		return
	}

	h.anomalyService.InvalidateUserCache(userID)
	logger.FromContext(r.Context()).Info("Transactions imported", "count", len(normalized))
	sendJSON(w, map[string]int{"imported": len(normalized)}, http.StatusCreated)
}

// HandleUploadStatement ingests a bank statement CSV uploaded as multipart
// form data under the "statementFile" field.
func (h *TransactionHandler) HandleUploadStatement(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		sendJSONError(w, "File too large or malformed upload", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("statementFile")
	if err != nil {
		sendJSONError(w, "statementFile form field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	summary, err := h.statementService.ImportStatement(r.Context(), userID, file)
	if err != nil {
		logger.FromContext(r.Context()).Error("Statement import failed", "filename", header.Filename, "error", err)
		sendJSONError(w, "Failed to import statement", http.StatusUnprocessableEntity)
		return
	}

	h.anomalyService.InvalidateUserCache(userID)
	logger.FromContext(r.Context()).Info("Statement uploaded", "filename", header.Filename, "imported", summary.Imported)
	sendJSON(w, summary, http.StatusCreated)
}

func (h *TransactionHandler) HandleDeleteAllTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		sendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	if err := h.store.DeleteAllTransactions(r.Context(), userID); err != nil {
		logger.FromContext(r.Context()).Error("Failed to delete transactions", "error", err)
		sendJSONError(w, "Failed to delete transactions", http.StatusInternalServerError)
		return
	}

	h.anomalyService.InvalidateUserCache(userID)
	logger.FromContext(r.Context()).Info("All transactions deleted")
	w.WriteHeader(http.StatusNoContent)
}
