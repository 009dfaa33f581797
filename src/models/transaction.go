// backend/src/models/transaction.go
package models

import "sort"

// Transaction is a normalized spending record as delivered by the extraction
// pipeline (receipt OCR) or entered manually. Positive amounts are expenses.
type Transaction struct {
	// ID is the stable identifier used as the anomaly reconciliation key.
	ID string `json:"id"`
	// Date is the posting date in ISO format (YYYY-MM-DD).
	Date          string  `json:"date"`
	Merchant      string  `json:"merchant"`
	Category      string  `json:"category"`
	Amount        float64 `json:"amount"`
	Currency      string  `json:"currency,omitempty"`
	PaymentMethod string  `json:"payment_method,omitempty"`
	// RawText keeps the original OCR snippet for explainability.
	RawText string `json:"raw_text,omitempty"`
}

// SortTransactionsByDate orders transactions by ascending date in place.
// ISO dates sort chronologically as plain strings. The sort is stable so
// same-day transactions keep their input order.
func SortTransactionsByDate(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date < txs[j].Date
	})
}

// SpendingInsight is a high-level talking point for the dashboard.
type SpendingInsight struct {
	Title  string   `json:"title"`
	Detail string   `json:"detail"`
	Delta  *float64 `json:"delta,omitempty"` // month-over-month delta as a percentage
}

// TrendPoint is one bucket of the aggregated spending trend.
type TrendPoint struct {
	Period string  `json:"period"` // YYYY-MM
	Amount float64 `json:"amount"`
}
