// backend/src/models/anomaly.go
package models

import "fmt"

// AnomalyStatus is the lifecycle state of a flagged transaction.
type AnomalyStatus string

const (
	AnomalyStatusNew       AnomalyStatus = "new"
	AnomalyStatusReview    AnomalyStatus = "review"
	AnomalyStatusConfirmed AnomalyStatus = "confirmed"
	AnomalyStatusFraud     AnomalyStatus = "fraud"
)

// ParseAnomalyStatus validates a free-form status string coming from the
// API edge or from storage.
func ParseAnomalyStatus(s string) (AnomalyStatus, error) {
	switch AnomalyStatus(s) {
	case AnomalyStatusNew, AnomalyStatusReview, AnomalyStatusConfirmed, AnomalyStatusFraud:
		return AnomalyStatus(s), nil
	}
	return "", fmt.Errorf("unknown anomaly status %q", s)
}

// IsTerminal reports whether the status permanently resolves an anomaly.
// Terminal anomalies never reappear in the active list.
func (s AnomalyStatus) IsTerminal() bool {
	return s == AnomalyStatusConfirmed || s == AnomalyStatusFraud
}

// CanTransition reports whether moving from one status to another is a legal
// step of the feedback state machine: new -> review -> confirmed|fraud, with
// confirmed and fraud terminal.
func CanTransition(from, to AnomalyStatus) bool {
	if from.IsTerminal() {
		return false
	}
	switch from {
	case AnomalyStatusNew:
		return to == AnomalyStatusReview || to.IsTerminal()
	case AnomalyStatusReview:
		return to.IsTerminal()
	}
	return false
}

// Sensitivity labels reported by the detector.
const (
	SensitivityNormal  = "normal"
	SensitivityReduced = "reduced"
)

// AnomalyItem is a single statistical outlier produced by a detection run.
// Items are transient: only the user's feedback decision is persisted.
type AnomalyItem struct {
	TransactionID string        `json:"transaction_id"`
	Date          string        `json:"date"`
	Category      string        `json:"category"`
	Merchant      string        `json:"merchant"`
	Amount        float64       `json:"amount"`
	ZScore        float64       `json:"z_score"`
	Reason        string        `json:"reason"`
	Status        AnomalyStatus `json:"status"`
	ThresholdUsed float64       `json:"threshold_used"`
}

// AnomalyReport is the full outcome of one detection run, including the
// metadata the UI needs to explain why the list looks the way it does.
type AnomalyReport struct {
	Items         []AnomalyItem `json:"items"`
	ThresholdUsed float64       `json:"threshold_used"`
	Adaptive      bool          `json:"adaptive"`
	SampleSize    int           `json:"sample_size"`
	Sensitivity   string        `json:"sensitivity"`
	Message       string        `json:"message,omitempty"`
}

// FeedbackRecord is the persisted copy of an anomaly at the moment the user
// resolved it. Records are keyed by TransactionID with last-write-wins
// semantics; Status is always terminal (confirmed or fraud).
type FeedbackRecord struct {
	AnomalyItem
	RecordedAt string `json:"recorded_at,omitempty"` // RFC3339
}
