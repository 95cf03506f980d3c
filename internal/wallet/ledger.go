package wallet

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/models"
)

// LedgerStore is the single source of truth for balances and the
// append-only wallet transaction log. Balance mutation only happens inside
// a *sql.Tx owned by the TransferCoordinator: there is no standalone
// apply-delta so no caller can move money without a paired ledger row.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// GetBalance is the authoritative balance read.
func (s *LedgerStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT balance FROM accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrUnknownAccount
	}
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// EnsureAccount creates a zero-balance account row if none exists. Used
// at startup to seed the platform commission account.
func (s *LedgerStore) EnsureAccount(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, balance, version, frozen, updated_at)
		VALUES ($1, 0, 0, false, $2)
		ON CONFLICT (user_id) DO NOTHING`, userID, time.Now())
	return err
}

// SumDeltas returns the ledger-side balance: the sum of all signed
// transaction amounts for a user. Used by the reconciliation check.
func (s *LedgerStore) SumDeltas(ctx context.Context, userID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM wallet_transactions WHERE user_id = $1`, userID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// ListTransactions returns the most recent ledger rows for a user.
func (s *LedgerStore) ListTransactions(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, amount, status, description, metadata, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.WalletTransaction{}
	for rows.Next() {
		var tx models.WalletTransaction
		var metadata []byte
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Type, &tx.Amount,
			&tx.Status, &tx.Description, &metadata, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Metadata = metadata
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// lockAccount reads an account row under FOR UPDATE. Callers must acquire
// locks in ascending user-ID order to avoid deadlocks.
func (s *LedgerStore) lockAccount(tx *sql.Tx, userID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT user_id, balance, version, frozen, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID).Scan(&account.UserID, &account.Balance,
		&account.Version, &account.Frozen, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerStore) insertTransaction(tx *sql.Tx, row *models.WalletTransaction) error {
	_, err := tx.Exec(`
		INSERT INTO wallet_transactions (id, user_id, type, amount, status, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		row.ID, row.UserID, row.Type, row.Amount, row.Status,
		row.Description, []byte(row.Metadata), row.CreatedAt)
	return err
}

// updateBalance writes a new balance guarded by the version read under the
// row lock. Zero rows affected means someone slipped a write in between,
// which surfaces as a retryable conflict.
func (s *LedgerStore) updateBalance(tx *sql.Tx, userID string, newBalance decimal.Decimal, version int) error {
	result, err := tx.Exec(`
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND version = $4`,
		newBalance, time.Now(), userID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}
