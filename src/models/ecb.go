// backend/src/models/ecb.go
package models

// ECBResponse mirrors the relevant slice of the ECB data portal's SDMX-JSON
// exchange rate payload. Only the observation values are extracted.
type ECBResponse struct {
	DataSets []struct {
		Series map[string]struct {
			Observations map[string][]float64 `json:"observations"`
		} `json:"series"`
	} `json:"dataSets"`
}
