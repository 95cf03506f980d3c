package wallet

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/config"
)

func newTestConfig() *config.WalletConfig {
	return &config.WalletConfig{
		MinAmount:         decimal.NewFromInt(10000),
		CommissionRate:    decimal.RequireFromString("0.10"),
		PlatformAccountID: "platform",
		MaxCommitAttempts: 3,
		RetryBackoff:      time.Millisecond,
		RequestExpiry:     7 * 24 * time.Hour,
	}
}

func newTestCoordinator(db *sql.DB) *TransferCoordinator {
	return NewTransferCoordinator(db, NewLedgerStore(db), nil, nil, newTestConfig())
}

func expectLock(mock sqlmock.Sqlmock, userID string, balance string, version int, frozen bool) {
	mock.ExpectQuery("SELECT user_id, balance, version, frozen, updated_at FROM accounts WHERE user_id = \\$1 FOR UPDATE").
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "version", "frozen", "updated_at"}).
			AddRow(userID, balance, version, frozen, time.Now()))
}

func expectBalanceUpdate(mock sqlmock.Sqlmock, userID string, newBalance decimal.Decimal, version int, rowsAffected int64) {
	mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE user_id = \\$3 AND version = \\$4").
		WithArgs(newBalance, sqlmock.AnyArg(), userID, version).
		WillReturnResult(sqlmock.NewResult(0, rowsAffected))
}

func expectLedgerInsert(mock sqlmock.Sqlmock, userID, txType string, amount decimal.Decimal) {
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(sqlmock.AnyArg(), userID, txType, amount, "completed",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func TestTransferCoordinator_Send(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	coordinator := newTestCoordinator(db)
	amount := decimal.NewFromInt(150000)

	t.Run("successful send", func(t *testing.T) {
		mock.ExpectBegin()
		// Locks are acquired in ascending user-ID order
		expectLock(mock, "alice", "500000", 1, false)
		expectBalanceUpdate(mock, "alice", decimal.NewFromInt(350000), 1, 1)
		expectLock(mock, "bob", "100000", 1, false)
		expectBalanceUpdate(mock, "bob", decimal.NewFromInt(250000), 1, 1)
		expectLedgerInsert(mock, "alice", "send", amount.Neg())
		expectLedgerInsert(mock, "bob", "receive", amount)
		mock.ExpectCommit()

		tx, err := coordinator.Send(context.Background(), SendCommand{
			FromID:      "alice",
			ToID:        "bob",
			Amount:      amount,
			Description: "gaming account purchase",
		})
		assert.NoError(t, err)
		assert.Equal(t, "alice", tx.UserID)
		assert.True(t, tx.Amount.Equal(amount.Neg()))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("below minimum amount", func(t *testing.T) {
		_, err := coordinator.Send(context.Background(), SendCommand{
			FromID: "alice",
			ToID:   "bob",
			Amount: decimal.NewFromInt(5000),
		})
		assert.True(t, errors.Is(err, ErrInvalidAmount))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("send to self", func(t *testing.T) {
		_, err := coordinator.Send(context.Background(), SendCommand{
			FromID: "alice",
			ToID:   "alice",
			Amount: amount,
		})
		assert.True(t, errors.Is(err, ErrInvalidAmount))
	})

	t.Run("insufficient balance rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		expectLock(mock, "alice", "100000", 1, false)
		mock.ExpectRollback()

		_, err := coordinator.Send(context.Background(), SendCommand{
			FromID: "alice",
			ToID:   "bob",
			Amount: amount,
		})
		assert.True(t, errors.Is(err, ErrInsufficientFunds))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("frozen recipient rejects transfer", func(t *testing.T) {
		mock.ExpectBegin()
		expectLock(mock, "alice", "500000", 1, false)
		expectBalanceUpdate(mock, "alice", decimal.NewFromInt(350000), 1, 1)
		expectLock(mock, "bob", "100000", 1, true)
		mock.ExpectRollback()

		_, err := coordinator.Send(context.Background(), SendCommand{
			FromID: "alice",
			ToID:   "bob",
			Amount: amount,
		})
		assert.True(t, errors.Is(err, ErrAccountFrozen))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferCoordinator_Deposit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	coordinator := newTestCoordinator(db)
	amount := decimal.NewFromInt(150000)

	t.Run("successful deposit", func(t *testing.T) {
		mock.ExpectBegin()
		expectLock(mock, "alice", "500000", 1, false)
		expectBalanceUpdate(mock, "alice", decimal.NewFromInt(650000), 1, 1)
		expectLedgerInsert(mock, "alice", "topup", amount)
		mock.ExpectCommit()

		tx, err := coordinator.Deposit(context.Background(), DepositCommand{
			UserID:      "alice",
			Amount:      amount,
			Description: "bank deposit",
		})
		assert.NoError(t, err)
		assert.Equal(t, "topup", tx.Type)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("frozen account", func(t *testing.T) {
		mock.ExpectBegin()
		expectLock(mock, "alice", "500000", 1, true)
		mock.ExpectRollback()

		_, err := coordinator.Deposit(context.Background(), DepositCommand{
			UserID: "alice",
			Amount: amount,
		})
		assert.True(t, errors.Is(err, ErrAccountFrozen))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferCoordinator_Withdraw(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	coordinator := newTestCoordinator(db)
	amount := decimal.NewFromInt(150000)

	t.Run("successful withdrawal", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance FROM accounts WHERE user_id = \\$1").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("500000"))

		mock.ExpectBegin()
		expectLock(mock, "alice", "500000", 1, false)
		expectBalanceUpdate(mock, "alice", decimal.NewFromInt(350000), 1, 1)
		expectLedgerInsert(mock, "alice", "withdrawal", amount.Neg())
		mock.ExpectCommit()

		tx, err := coordinator.Withdraw(context.Background(), WithdrawCommand{
			UserID:      "alice",
			Amount:      amount,
			Description: "payout",
		})
		assert.NoError(t, err)
		assert.True(t, tx.Amount.IsNegative())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds fails before any write", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance FROM accounts WHERE user_id = \\$1").
			WithArgs("alice").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("100000"))

		_, err := coordinator.Withdraw(context.Background(), WithdrawCommand{
			UserID: "alice",
			Amount: amount,
		})
		assert.True(t, errors.Is(err, ErrInsufficientFunds))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferCoordinator_Retry(t *testing.T) {
	amount := decimal.NewFromInt(150000)

	t.Run("conflict retried then succeeds", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		coordinator := newTestCoordinator(db)

		// First attempt loses the version race
		mock.ExpectBegin()
		expectLock(mock, "alice", "500000", 1, false)
		expectBalanceUpdate(mock, "alice", decimal.NewFromInt(650000), 1, 0)
		mock.ExpectRollback()

		// Second attempt sees the new version and wins
		mock.ExpectBegin()
		expectLock(mock, "alice", "500000", 2, false)
		expectBalanceUpdate(mock, "alice", decimal.NewFromInt(650000), 2, 1)
		expectLedgerInsert(mock, "alice", "topup", amount)
		mock.ExpectCommit()

		_, err = coordinator.Deposit(context.Background(), DepositCommand{
			UserID: "alice",
			Amount: amount,
		})
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exhausted retries abort the transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		cfg := newTestConfig()
		cfg.MaxCommitAttempts = 2
		coordinator := NewTransferCoordinator(db, NewLedgerStore(db), nil, nil, cfg)

		for i := 0; i < 2; i++ {
			mock.ExpectBegin()
			expectLock(mock, "alice", "500000", 1, false)
			expectBalanceUpdate(mock, "alice", decimal.NewFromInt(650000), 1, 0)
			mock.ExpectRollback()
		}

		_, err = coordinator.Deposit(context.Background(), DepositCommand{
			UserID: "alice",
			Amount: amount,
		})
		assert.True(t, errors.Is(err, ErrTransactionAborted))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ledger insert failure rolls back without retry", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		coordinator := newTestCoordinator(db)

		mock.ExpectBegin()
		expectLock(mock, "alice", "500000", 1, false)
		expectBalanceUpdate(mock, "alice", decimal.NewFromInt(650000), 1, 1)
		mock.ExpectExec("INSERT INTO wallet_transactions").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		_, err = coordinator.Deposit(context.Background(), DepositCommand{
			UserID: "alice",
			Amount: amount,
		})
		assert.Error(t, err)
		assert.False(t, errors.Is(err, ErrTransactionAborted))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(ErrConcurrencyConflict))
	assert.False(t, isRetryable(ErrInsufficientFunds))
	assert.False(t, isRetryable(errors.New("connection reset")))
}
