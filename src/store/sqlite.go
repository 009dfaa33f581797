// backend/src/store/sqlite.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"errors"
	"strings"
	"time"

	"github.com/username/fincoach/backend/src/model"
	"github.com/username/fincoach/backend/src/models"
)

// isUniqueViolation detects a primary key or unique constraint failure. The
// modernc driver exposes no typed error for this, only the message.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// SQLiteStore implements Store on top of the shared SQLite connection.
// Schema lives in db/migrations and is applied at startup.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an already-initialized database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.Username, user.Email, user.Password, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	user.ID, err = result.LastInsertId()
	return err
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password, created_at, updated_at
		FROM users WHERE email = ?`, email))
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password, created_at, updated_at
		FROM users WHERE id = ?`, id))
}

func (s *SQLiteStore) CreateTransaction(ctx context.Context, userID int64, tx models.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, id, date, merchant, category, amount, currency, payment_method, raw_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, tx.ID, tx.Date, tx.Merchant, tx.Category, tx.Amount, tx.Currency, tx.PaymentMethod, tx.RawText)
	if isUniqueViolation(err) {
		return ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("inserting transaction %s: %w", tx.ID, err)
	}
	return nil
}

func (s *SQLiteStore) CreateTransactions(ctx context.Context, userID int64, txs []models.Transaction) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction batch: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.PrepareContext(ctx, `
		INSERT INTO transactions (user_id, id, date, merchant, category, amount, currency, payment_method, raw_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx, userID, tx.ID, tx.Date, tx.Merchant, tx.Category, tx.Amount, tx.Currency, tx.PaymentMethod, tx.RawText); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateTransaction
			}
			return fmt.Errorf("inserting transaction %s: %w", tx.ID, err)
		}
	}
	return dbTx.Commit()
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, date, merchant, category, amount, currency, payment_method, raw_text
		FROM transactions
		WHERE user_id = ?
		ORDER BY date ASC, id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		if err := rows.Scan(&tx.ID, &tx.Date, &tx.Merchant, &tx.Category, &tx.Amount, &tx.Currency, &tx.PaymentMethod, &tx.RawText); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (s *SQLiteStore) DeleteAllTransactions(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE user_id = ?`, userID)
	return err
}

func (s *SQLiteStore) ListTrustedMerchants(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM trusted_merchants WHERE user_id = ? ORDER BY rowid ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying trusted merchants: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) AddTrustedMerchant(ctx context.Context, userID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trusted_merchants (user_id, name) VALUES (?, ?)
		ON CONFLICT(user_id, name) DO NOTHING`, userID, name)
	return err
}

func (s *SQLiteStore) RemoveTrustedMerchant(ctx context.Context, userID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM trusted_merchants WHERE user_id = ? AND name = ?`, userID, name)
	return err
}

func (s *SQLiteStore) GetActiveAnomalies(ctx context.Context, userID int64) ([]models.AnomalyItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, date, category, merchant, amount, z_score, reason, status, threshold_used
		FROM anomaly_active
		WHERE user_id = ?
		ORDER BY position ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying active anomalies: %w", err)
	}
	defer rows.Close()
	return scanAnomalyItems(rows)
}

func scanAnomalyItems(rows *sql.Rows) ([]models.AnomalyItem, error) {
	var items []models.AnomalyItem
	for rows.Next() {
		var item models.AnomalyItem
		var status string
		if err := rows.Scan(&item.TransactionID, &item.Date, &item.Category, &item.Merchant,
			&item.Amount, &item.ZScore, &item.Reason, &status, &item.ThresholdUsed); err != nil {
			return nil, fmt.Errorf("scanning anomaly item: %w", err)
		}
		item.Status = models.AnomalyStatus(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveActiveAnomalies replaces the stored active list wholesale. The position
// column preserves the report's date ordering across reads.
func (s *SQLiteStore) SaveActiveAnomalies(ctx context.Context, userID int64, items []models.AnomalyItem) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning active anomaly replace: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM anomaly_active WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for i, item := range items {
		_, err := dbTx.ExecContext(ctx, `
			INSERT INTO anomaly_active (user_id, position, transaction_id, date, category, merchant, amount, z_score, reason, status, threshold_used)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, i, item.TransactionID, item.Date, item.Category, item.Merchant,
			item.Amount, item.ZScore, item.Reason, string(item.Status), item.ThresholdUsed)
		if err != nil {
			return fmt.Errorf("inserting active anomaly %s: %w", item.TransactionID, err)
		}
	}
	return dbTx.Commit()
}

func (s *SQLiteStore) GetAnomalyHistory(ctx context.Context, userID int64) ([]models.FeedbackRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, date, category, merchant, amount, z_score, reason, status, threshold_used, recorded_at
		FROM anomaly_history
		WHERE user_id = ?
		ORDER BY recorded_at ASC, transaction_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying anomaly history: %w", err)
	}
	defer rows.Close()

	var records []models.FeedbackRecord
	for rows.Next() {
		var rec models.FeedbackRecord
		var status string
		if err := rows.Scan(&rec.TransactionID, &rec.Date, &rec.Category, &rec.Merchant,
			&rec.Amount, &rec.ZScore, &rec.Reason, &status, &rec.ThresholdUsed, &rec.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning feedback record: %w", err)
		}
		rec.Status = models.AnomalyStatus(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SaveAnomalyHistory replaces the stored history wholesale. The history is
// already deduplicated by transaction_id by the service layer; the primary
// key enforces it here as well.
func (s *SQLiteStore) SaveAnomalyHistory(ctx context.Context, userID int64, records []models.FeedbackRecord) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning anomaly history replace: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.ExecContext(ctx, `DELETE FROM anomaly_history WHERE user_id = ?`, userID); err != nil {
		return err
	}
	for _, rec := range records {
		_, err := dbTx.ExecContext(ctx, `
			INSERT INTO anomaly_history (user_id, transaction_id, date, category, merchant, amount, z_score, reason, status, threshold_used, recorded_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			userID, rec.TransactionID, rec.Date, rec.Category, rec.Merchant,
			rec.Amount, rec.ZScore, rec.Reason, string(rec.Status), rec.ThresholdUsed, rec.RecordedAt)
		if err != nil {
			return fmt.Errorf("inserting feedback record %s: %w", rec.TransactionID, err)
		}
	}
	return dbTx.Commit()
}

func (s *SQLiteStore) GetAnomalyMessage(ctx context.Context, userID int64) (string, error) {
	var message string
	err := s.db.QueryRowContext(ctx, `
		SELECT message FROM anomaly_messages WHERE user_id = ?`, userID).Scan(&message)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("querying anomaly message: %w", err)
	}
	return message, nil
}

func (s *SQLiteStore) SaveAnomalyMessage(ctx context.Context, userID int64, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO anomaly_messages (user_id, message) VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET message = excluded.message`, userID, message)
	return err
}
