// backend/src/processors/insight_processor.go
package processors

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/models"
	"github.com/username/fincoach/backend/src/utils"
)

const transactionDateLayout = "2006-01-02"

// InsightProcessor turns raw transactions into aggregate views and the
// high-level talking points shown on the dashboard.
type InsightProcessor struct{}

func NewInsightProcessor() *InsightProcessor { return &InsightProcessor{} }

// CategoryTotals aggregates spending totals per category.
func (p *InsightProcessor) CategoryTotals(transactions []models.Transaction) map[string]float64 {
	totals := make(map[string]float64)
	for _, tx := range transactions {
		totals[tx.Category] += tx.Amount
	}
	return totals
}

// MonthlyTrend buckets spending totals by calendar month, ascending.
func (p *InsightProcessor) MonthlyTrend(transactions []models.Transaction) []models.TrendPoint {
	byMonth := make(map[string]float64)
	for _, tx := range transactions {
		if len(tx.Date) < 7 {
			logger.L.Warn("Skipping transaction with malformed date in trend", "transactionID", tx.ID, "date", tx.Date)
			continue
		}
		byMonth[tx.Date[:7]] += tx.Amount
	}

	trend := make([]models.TrendPoint, 0, len(byMonth))
	for period, amount := range byMonth {
		trend = append(trend, models.TrendPoint{Period: period, Amount: utils.RoundFloat(amount, 2)})
	}
	sort.Slice(trend, func(i, j int) bool { return trend[i].Period < trend[j].Period })
	return trend
}

// topCategoryInsight highlights the category with the highest total spend.
func (p *InsightProcessor) topCategoryInsight(totals map[string]float64) *models.SpendingInsight {
	if len(totals) == 0 {
		return nil
	}
	topCategory := ""
	topAmount := math.Inf(-1)
	for category, amount := range totals {
		if amount > topAmount || (amount == topAmount && category < topCategory) {
			topCategory = category
			topAmount = amount
		}
	}
	return &models.SpendingInsight{
		Title:  "Spending concentration",
		Detail: fmt.Sprintf("Your highest spending is in %q, at about %.2f.", topCategory, topAmount),
	}
}

// monthOverMonthInsight compares the latest month against the previous one
// and reports the category with the largest relative increase. Categories
// with no spend in the previous month are ignored (the ratio is unbounded).
func (p *InsightProcessor) monthOverMonthInsight(transactions []models.Transaction) *models.SpendingInsight {
	byMonthCategory := make(map[string]map[string]float64)
	for _, tx := range transactions {
		if len(tx.Date) < 7 {
			continue
		}
		month := tx.Date[:7]
		if byMonthCategory[month] == nil {
			byMonthCategory[month] = make(map[string]float64)
		}
		byMonthCategory[month][tx.Category] += tx.Amount
	}
	if len(byMonthCategory) < 2 {
		return nil
	}

	months := make([]string, 0, len(byMonthCategory))
	for month := range byMonthCategory {
		months = append(months, month)
	}
	sort.Strings(months)
	latest := byMonthCategory[months[len(months)-1]]
	previous := byMonthCategory[months[len(months)-2]]

	bestCategory := ""
	bestDelta := math.Inf(-1)
	for category, latestAmount := range latest {
		prevAmount := previous[category]
		if prevAmount == 0 {
			continue
		}
		deltaPct := (latestAmount - prevAmount) / prevAmount * 100
		if deltaPct > bestDelta || (deltaPct == bestDelta && category < bestCategory) {
			bestCategory = category
			bestDelta = deltaPct
		}
	}
	if bestCategory == "" {
		return nil
	}

	delta := utils.RoundFloat(bestDelta, 1)
	return &models.SpendingInsight{
		Title:  "Category spending change",
		Detail: fmt.Sprintf("Spending on %q changed by about %.1f%% compared with last month.", bestCategory, delta),
		Delta:  &delta,
	}
}

// recentAverageInsight reports the average daily spend over the trailing
// window ending at the most recent transaction date.
func (p *InsightProcessor) recentAverageInsight(transactions []models.Transaction, days int) *models.SpendingInsight {
	var latest time.Time
	parsed := make(map[string]time.Time, len(transactions))
	for _, tx := range transactions {
		t, err := time.Parse(transactionDateLayout, tx.Date)
		if err != nil {
			continue
		}
		parsed[tx.ID] = t
		if t.After(latest) {
			latest = t
		}
	}
	if latest.IsZero() {
		return nil
	}

	windowStart := latest.AddDate(0, 0, -(days - 1))
	var sum float64
	var count int
	for _, tx := range transactions {
		t, ok := parsed[tx.ID]
		if !ok || t.Before(windowStart) {
			continue
		}
		sum += tx.Amount
		count++
	}
	if count == 0 {
		return nil
	}

	return &models.SpendingInsight{
		Title:  "Recent spending pace",
		Detail: fmt.Sprintf("Average spend over the last %d days is about %.2f per transaction.", days, sum/float64(count)),
	}
}

// GenerateInsights produces the dashboard talking points: spending
// concentration, month-over-month movement, and recent pace.
func (p *InsightProcessor) GenerateInsights(transactions []models.Transaction) []models.SpendingInsight {
	if len(transactions) == 0 {
		return []models.SpendingInsight{}
	}

	insights := []models.SpendingInsight{}
	if insight := p.topCategoryInsight(p.CategoryTotals(transactions)); insight != nil {
		insights = append(insights, *insight)
	}
	if insight := p.monthOverMonthInsight(transactions); insight != nil {
		insights = append(insights, *insight)
	}
	if insight := p.recentAverageInsight(transactions, 3); insight != nil {
		insights = append(insights, *insight)
	}
	return insights
}
