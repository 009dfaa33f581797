// backend/src/utils/utils.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/username/fincoach/backend/src/models"
)

// RoundFloat rounds a float to the given number of decimal places.
func RoundFloat(val float64, precision uint) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}

// FingerprintTransactions produces a stable content hash over the fields
// that matter for anomaly detection (id, amount, date). Callers use it to
// skip recomputation when the transaction set has not changed.
func FingerprintTransactions(txs []models.Transaction) string {
	var b strings.Builder
	for _, tx := range txs {
		fmt.Fprintf(&b, "%s|%.8f|%s\n", tx.ID, tx.Amount, tx.Date)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
