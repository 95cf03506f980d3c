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
)

func TestLedgerStore_GetBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	t.Run("existing account", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance FROM accounts WHERE user_id = \\$1").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"balance"}).AddRow("500000"))

		balance, err := store.GetBalance(context.Background(), "user1")
		assert.NoError(t, err)
		assert.True(t, balance.Equal(decimal.NewFromInt(500000)))
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectQuery("SELECT balance FROM accounts WHERE user_id = \\$1").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetBalance(context.Background(), "ghost")
		assert.True(t, errors.Is(err, ErrUnknownAccount))
	})
}

func TestLedgerStore_EnsureAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	t.Run("seeds missing account", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs("platform", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		assert.NoError(t, store.EnsureAccount(context.Background(), "platform"))
	})

	t.Run("existing account untouched", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO accounts").
			WithArgs("platform", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, store.EnsureAccount(context.Background(), "platform"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerStore_SumDeltas(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM wallet_transactions WHERE user_id = \\$1").
		WithArgs("user1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("350000"))

	sum, err := store.SumDeltas(context.Background(), "user1")
	assert.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(350000)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_ListTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	now := time.Now()
	mock.ExpectQuery("SELECT id, user_id, type, amount, status, description, metadata, created_at FROM wallet_transactions WHERE user_id = \\$1 ORDER BY created_at DESC LIMIT \\$2").
		WithArgs("user1", 50).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "type", "amount", "status", "description", "metadata", "created_at"}).
			AddRow("tx1", "user1", "topup", "150000", "completed", "bank deposit", nil, now).
			AddRow("tx2", "user1", "send", "-50000", "completed", "gift", nil, now))

	transactions, err := store.ListTransactions(context.Background(), "user1", 50)
	assert.NoError(t, err)
	assert.Len(t, transactions, 2)
	assert.Equal(t, "topup", transactions[0].Type)
	assert.True(t, transactions[1].Amount.IsNegative())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerStore_lockAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	t.Run("existing account", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("SELECT user_id, balance, version, frozen, updated_at FROM accounts WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "balance", "version", "frozen", "updated_at"}).
				AddRow("user1", "500000", 3, false, time.Now()))

		account, err := store.lockAccount(tx, "user1")
		assert.NoError(t, err)
		assert.Equal(t, "user1", account.UserID)
		assert.Equal(t, 3, account.Version)
		assert.False(t, account.Frozen)
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectQuery("SELECT user_id, balance, version, frozen, updated_at FROM accounts WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		_, err := store.lockAccount(tx, "ghost")
		assert.True(t, errors.Is(err, ErrUnknownAccount))
	})
}

func TestLedgerStore_updateBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	store := NewLedgerStore(db)

	t.Run("successful update", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE user_id = \\$3 AND version = \\$4").
			WithArgs(decimal.NewFromInt(350000), sqlmock.AnyArg(), "user1", 3).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := store.updateBalance(tx, "user1", decimal.NewFromInt(350000), 3)
		assert.NoError(t, err)
	})

	t.Run("stale version surfaces conflict", func(t *testing.T) {
		mock.ExpectBegin()
		tx, _ := db.Begin()

		mock.ExpectExec("UPDATE accounts SET balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE user_id = \\$3 AND version = \\$4").
			WithArgs(decimal.NewFromInt(350000), sqlmock.AnyArg(), "user1", 3).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.updateBalance(tx, "user1", decimal.NewFromInt(350000), 3)
		assert.True(t, errors.Is(err, ErrConcurrencyConflict))
	})
}
