// backend/src/processors/anomaly_processor.go
package processors

import (
	"fmt"
	"math"
	"strings"

	"github.com/username/fincoach/backend/src/models"
)

const (
	// DefaultBaseThreshold is the default z-score magnitude cutoff.
	DefaultBaseThreshold = 2.5

	// minSampleSize is the smallest sample the detector will look at.
	// A z-score over fewer than 3 points is statistically meaningless.
	minSampleSize = 3

	// reducedSensitivitySampleSize is the sample size below which the
	// threshold is tightened to suppress noise-driven false positives
	// while the dataset is still accumulating.
	reducedSensitivitySampleSize = 10

	// reducedSensitivityFloor is the minimum threshold applied to small samples.
	reducedSensitivityFloor = 3.0
)

// adaptiveCandidates are the relaxed thresholds tried, in order, when the
// applied threshold yields nothing on a full-sized sample. Only candidates
// strictly below the applied threshold are considered.
var adaptiveCandidates = [...]float64{2.0, 1.5}

// Detection outcome messages surfaced to the UI.
const (
	MsgInsufficientData   = "Not enough transaction data yet; anomaly detection is on hold."
	MsgReducedSensitivity = "Still building up data; detection sensitivity was reduced to limit false positives."
	MsgNoAnomalies        = "No unusual spending detected."
)

// AnomalyProcessor flags transactions whose amount is a statistical outlier
// for the sample, using a z-score test with policy-driven threshold
// adaptation. It is pure: no storage, no side effects.
type AnomalyProcessor struct{}

func NewAnomalyProcessor() *AnomalyProcessor { return &AnomalyProcessor{} }

// normalizeWhitelist turns the raw merchant whitelist into a set of trimmed,
// deduplicated, non-empty names. Blank entries are silently dropped.
func normalizeWhitelist(merchants []string) map[string]struct{} {
	set := make(map[string]struct{}, len(merchants))
	for _, m := range merchants {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		set[m] = struct{}{}
	}
	return set
}

// computeZScoreAnomalies returns the items whose amount deviates from the
// sample mean by at least threshold standard deviations. The sample must
// already be sorted by date so the output keeps date order. Uses the
// population standard deviation (divide by N). A zero deviation means every
// amount is identical and no anomaly is possible.
func computeZScoreAnomalies(txs []models.Transaction, threshold float64) []models.AnomalyItem {
	if len(txs) == 0 {
		return nil
	}

	var sum float64
	for _, tx := range txs {
		sum += tx.Amount
	}
	mean := sum / float64(len(txs))

	var variance float64
	for _, tx := range txs {
		d := tx.Amount - mean
		variance += d * d
	}
	variance /= float64(len(txs))
	std := math.Sqrt(variance)
	if std == 0 {
		return nil
	}

	var items []models.AnomalyItem
	for _, tx := range txs {
		z := (tx.Amount - mean) / std
		if math.Abs(z) < threshold {
			continue
		}
		items = append(items, models.AnomalyItem{
			TransactionID: tx.ID,
			Date:          tx.Date,
			Category:      tx.Category,
			Merchant:      tx.Merchant,
			Amount:        tx.Amount,
			ZScore:        z,
			Reason:        fmt.Sprintf("deviates from the average by %.1fσ", math.Abs(z)),
			Status:        models.AnomalyStatusNew,
		})
	}
	return items
}

// ComputeAnomalyReport runs the full detection policy over the given
// transactions and returns the report with contextual metadata.
//
// Merchants on the whitelist are excluded from both the statistical sample
// and the output. Samples under 3 are skipped entirely; samples under 10 are
// tested at a tightened threshold (reduced sensitivity). When the normal
// threshold finds nothing on a full-sized sample, progressively looser
// candidate thresholds are tried so a relatively large outlier is not
// silently reported as "all clear".
func (p *AnomalyProcessor) ComputeAnomalyReport(
	transactions []models.Transaction,
	baseThreshold float64,
	whitelistMerchants []string,
) models.AnomalyReport {
	whitelist := normalizeWhitelist(whitelistMerchants)

	filtered := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if _, trusted := whitelist[tx.Merchant]; trusted {
			continue
		}
		filtered = append(filtered, tx)
	}
	models.SortTransactionsByDate(filtered)

	report := models.AnomalyReport{
		Items:         []models.AnomalyItem{},
		ThresholdUsed: baseThreshold,
		Adaptive:      false,
		SampleSize:    len(filtered),
		Sensitivity:   models.SensitivityNormal,
	}

	if report.SampleSize < minSampleSize {
		report.Message = MsgInsufficientData
		return report
	}

	appliedThreshold := baseThreshold
	if report.SampleSize < reducedSensitivitySampleSize {
		appliedThreshold = math.Max(baseThreshold, reducedSensitivityFloor)
		report.Sensitivity = models.SensitivityReduced
		report.Message = MsgReducedSensitivity
		report.ThresholdUsed = appliedThreshold
	}

	anomalies := computeZScoreAnomalies(filtered, appliedThreshold)

	if len(anomalies) == 0 && report.SampleSize >= reducedSensitivitySampleSize {
		for _, candidate := range adaptiveCandidates {
			if candidate >= appliedThreshold {
				continue
			}
			candidateAnomalies := computeZScoreAnomalies(filtered, candidate)
			if len(candidateAnomalies) > 0 {
				anomalies = candidateAnomalies
				appliedThreshold = candidate
				report.Adaptive = true
				break
			}
		}
	}

	if len(anomalies) > 0 {
		for i := range anomalies {
			anomalies[i].ThresholdUsed = appliedThreshold
		}
		report.Items = anomalies
		report.ThresholdUsed = appliedThreshold
	} else if report.Message == "" {
		report.Message = MsgNoAnomalies
	}

	return report
}

// DetectAnomalies is a convenience wrapper returning only the flagged items,
// for callers that do not need the report metadata.
func (p *AnomalyProcessor) DetectAnomalies(
	transactions []models.Transaction,
	threshold float64,
	whitelistMerchants []string,
) []models.AnomalyItem {
	return p.ComputeAnomalyReport(transactions, threshold, whitelistMerchants).Items
}
