// backend/src/processors/currency_processor.go
package processors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/models"
)

var rateCache = cache.New(24*time.Hour, 48*time.Hour)

// GetExchangeRate retrieves the rate of a currency versus the euro for a
// given date from the ECB API, expressed as units of currency per EUR.
// Results are cached; weekends and holidays fall back to the last available
// rate, looking back up to 7 days.
func GetExchangeRate(currency string, date time.Time) (float64, error) {
	if currency == "EUR" {
		return 1.0, nil
	}

	cacheKey := fmt.Sprintf("rate-%s-%s", currency, date.Format("2006-01-02"))
	if rate, found := rateCache.Get(cacheKey); found {
		return rate.(float64), nil
	}

	for i := 0; i < 7; i++ {
		queryDate := date.AddDate(0, 0, -i)
		dateStr := queryDate.Format("2006-01-02")

		// Key structure is D.{CURRENCY}.EUR.SP00.A for daily rates vs Euro
		seriesKey := fmt.Sprintf("D.%s.EUR.SP00.A", currency)
		url := fmt.Sprintf(
			"https://data-api.ecb.europa.eu/service/data/EXR/%s?startPeriod=%s&endPeriod=%s&format=jsondata",
			seriesKey,
			dateStr,
			dateStr,
		)

		resp, err := http.Get(url)
		if err != nil {
			logger.L.Warn("Failed to make ECB API request", "url", url, "error", err)
			continue
		}
		defer resp.Body.Close()

		// A 404 means no data for this day (weekend/holiday); try the
		// previous day.
		if resp.StatusCode == http.StatusNotFound {
			logger.L.Debug("No exchange rate found for date, trying previous day", "currency", currency, "date", dateStr)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			logger.L.Warn("ECB API returned non-OK status", "status", resp.Status, "url", url)
			continue
		}

		var ecbData models.ECBResponse
		if err := json.NewDecoder(resp.Body).Decode(&ecbData); err != nil {
			logger.L.Warn("Failed to decode ECB API response", "url", url, "error", err)
			continue
		}

		rate, err := extractRateFromResponse(ecbData)
		if err != nil {
			logger.L.Warn("Could not extract rate from ECB response", "date", dateStr, "error", err)
			continue
		}

		rateCache.Set(cacheKey, rate, cache.DefaultExpiration)
		return rate, nil
	}

	return 0, fmt.Errorf("exchange rate not found for %s on or before %s", currency, date.Format("2006-01-02"))
}

// extractRateFromResponse safely navigates the ECB JSON structure to find the rate.
func extractRateFromResponse(data models.ECBResponse) (float64, error) {
	if len(data.DataSets) == 0 {
		return 0, fmt.Errorf("no dataSets in response")
	}

	// The series key is "0:0:0:0:0". We iterate to be safe.
	for _, seriesData := range data.DataSets[0].Series {
		if observations, ok := seriesData.Observations["0"]; ok {
			if len(observations) > 0 {
				return observations[0], nil
			}
		}
	}

	return 0, fmt.Errorf("observation value not found in the expected structure")
}
