// backend/src/services/statement_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/username/fincoach/backend/src/logger"
	"github.com/username/fincoach/backend/src/models"
	"github.com/username/fincoach/backend/src/parsers"
	"github.com/username/fincoach/backend/src/processors"
	"github.com/username/fincoach/backend/src/security/validation"
	"github.com/username/fincoach/backend/src/store"
	"github.com/username/fincoach/backend/src/utils"
)

// ImportSummary reports what happened to each row of an imported statement.
type ImportSummary struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
}

// StatementService ingests uploaded bank statement files.
type StatementService interface {
	ImportStatement(ctx context.Context, userID int64, file io.Reader) (ImportSummary, error)
}

type statementServiceImpl struct {
	store        store.Store
	parser       parsers.StatementParser
	baseCurrency string
}

func NewStatementService(st store.Store, parser parsers.StatementParser, baseCurrency string) StatementService {
	return &statementServiceImpl{
		store:        st,
		parser:       parser,
		baseCurrency: baseCurrency,
	}
}

// ImportStatement parses the file and persists its rows. Rows already in the
// store (same derived id) count as duplicates, so re-uploading a statement is
// harmless. Foreign-currency amounts are normalized into the base currency
// when a rate is available.
func (s *statementServiceImpl) ImportStatement(ctx context.Context, userID int64, file io.Reader) (ImportSummary, error) {
	var summary ImportSummary

	txs, err := s.parser.Parse(file)
	if err != nil {
		return summary, fmt.Errorf("parsing statement: %w", err)
	}

	for _, tx := range txs {
		tx.Merchant = validation.CleanName(tx.Merchant)
		if tx.Merchant == "" {
			summary.Skipped++
			continue
		}
		tx.Category = validation.CleanName(tx.Category)
		if tx.Category == "" {
			tx.Category = "Uncategorized"
		}
		tx.RawText = validation.SanitizeText(tx.RawText)

		tx = s.normalizeCurrency(tx)

		if err := s.store.CreateTransaction(ctx, userID, tx); err != nil {
			if errors.Is(err, store.ErrDuplicateTransaction) {
				summary.Duplicates++
				continue
			}
			return summary, fmt.Errorf("saving imported transaction: %w", err)
		}
		summary.Imported++
	}

	logger.L.Info("Statement imported",
		"userID", userID,
		"imported", summary.Imported,
		"duplicates", summary.Duplicates,
		"skipped", summary.Skipped)
	return summary, nil
}

// normalizeCurrency converts a foreign-currency amount into the base
// currency. ECB rates are only quoted against the euro, so conversion is
// skipped for other base currencies. A missing rate keeps the original
// amount rather than failing the import.
func (s *statementServiceImpl) normalizeCurrency(tx models.Transaction) models.Transaction {
	if tx.Currency == "" || tx.Currency == s.baseCurrency || s.baseCurrency != "EUR" {
		return tx
	}

	date, err := time.Parse("2006-01-02", tx.Date)
	if err != nil {
		return tx
	}
	rate, err := processors.GetExchangeRate(tx.Currency, date)
	if err != nil {
		logger.L.Warn("Keeping original currency, no exchange rate available",
			"currency", tx.Currency, "date", tx.Date, "error", err)
		return tx
	}

	tx.Amount = utils.RoundFloat(tx.Amount/rate, 2)
	tx.Currency = s.baseCurrency
	return tx
}
