// backend/src/parsers/csvbank/parser.go
package csvbank

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/models"
)

// rawRow holds the direct string values from a single statement row, mapped
// by header name.
type rawRow struct {
	Date, Merchant, Category, Amount, Currency, PaymentMethod string
	RawLine                                                   string
}

// CSVParser implements the parsers.StatementParser interface for generic
// bank CSV exports. The file must carry a header row; columns are matched by
// name so column order does not matter.
type CSVParser struct{}

// NewParser creates a new instance of the CSVParser.
func NewParser() *CSVParser {
	return &CSVParser{}
}

// dateLayouts are tried in order. Banks disagree on date formats.
var dateLayouts = []string{"2006-01-02", "02-01-2006", "02/01/2006", "2006/01/02"}

func normalizeDecimalString(s string) string {
	cleaned := strings.TrimSpace(s)
	cleaned = strings.Trim(cleaned, "\"")

	// European exports use a comma decimal separator and may group thousands
	// with periods or spaces ("1.234,56").
	if strings.Contains(cleaned, ",") {
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	}
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	return cleaned
}

func parseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// rowID derives a stable transaction id from the fields that identify a
// statement row, so re-importing the same file is a no-op. seq disambiguates
// genuinely identical rows within one file.
func rowID(date, merchant, amount string, seq int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d", date, merchant, amount, seq)))
	return hex.EncodeToString(sum[:])
}

// columnIndexes maps the known header names to their positions. Returns an
// error when the required columns are missing.
func columnIndexes(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "date", "transaction date", "posting date":
			idx["date"] = i
		case "merchant", "description", "payee":
			idx["merchant"] = i
		case "category":
			idx["category"] = i
		case "amount", "value":
			idx["amount"] = i
		case "currency":
			idx["currency"] = i
		case "payment method", "payment_method", "method":
			idx["payment_method"] = i
		}
	}
	for _, required := range []string{"date", "merchant", "amount"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("csv parser: missing required column %q", required)
		}
	}
	return idx, nil
}

func field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return record[i]
}

// Parse reads a bank CSV export and converts its rows into transactions.
// Rows with an unparseable date or a zero amount are skipped with a warning
// rather than failing the whole file.
func (p *CSVParser) Parse(file io.Reader) ([]models.Transaction, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("csv parser: failed to read header: %w", err)
	}
	idx, err := columnIndexes(header)
	if err != nil {
		return nil, err
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv parser: failed to read records: %w", err)
	}

	var rawRows []rawRow
	for _, record := range records {
		rawRows = append(rawRows, rawRow{
			Date:          field(record, idx, "date"),
			Merchant:      field(record, idx, "merchant"),
			Category:      field(record, idx, "category"),
			Amount:        field(record, idx, "amount"),
			Currency:      field(record, idx, "currency"),
			PaymentMethod: field(record, idx, "payment_method"),
			RawLine:       strings.Join(record, ","),
		})
	}

	var txs []models.Transaction
	seen := make(map[string]int)
	for _, raw := range rawRows {
		date, err := parseDate(raw.Date)
		if err != nil {
			logger.L.Warn("Skipping statement row with invalid date", "date", raw.Date)
			continue
		}

		amountStr := normalizeDecimalString(raw.Amount)
		amount, err := strconv.ParseFloat(amountStr, 64)
		if err != nil {
			logger.L.Warn("Skipping statement row with invalid amount", "amount", raw.Amount)
			continue
		}
		if amount == 0 {
			continue
		}

		merchant := strings.TrimSpace(raw.Merchant)
		key := date + "|" + merchant + "|" + amountStr
		seq := seen[key]
		seen[key] = seq + 1

		// Bank exports sign debits negative; spending analysis works on
		// magnitudes.
		txs = append(txs, models.Transaction{
			ID:            rowID(date, merchant, amountStr, seq),
			Date:          date,
			Merchant:      merchant,
			Category:      strings.TrimSpace(raw.Category),
			Amount:        math.Abs(amount),
			Currency:      strings.ToUpper(strings.TrimSpace(raw.Currency)),
			PaymentMethod: strings.TrimSpace(raw.PaymentMethod),
			RawText:       raw.RawLine,
		})
	}

	models.SortTransactionsByDate(txs)
	return txs, nil
}
