package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/config"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/models"
)

// BalanceCache is consulted only for advisory reads; the coordinator just
// needs to invalidate it after every committed mutation.
type BalanceCache interface {
	Invalidate(ctx context.Context, userID string) error
}

// EventPublisher receives post-commit notifications. Delivery is
// best-effort and never blocks a commit.
type EventPublisher interface {
	BalanceChanged(ctx context.Context, userID string, newBalance decimal.Decimal, reason string) error
	EscrowStateChanged(ctx context.Context, escrowID, newState string) error
}

// Delta is one signed balance change against one account.
type Delta struct {
	UserID string
	Amount decimal.Decimal
}

type DepositCommand struct {
	UserID      string
	Amount      decimal.Decimal
	Description string
}

type WithdrawCommand struct {
	UserID      string
	Amount      decimal.Decimal
	Description string
}

type SendCommand struct {
	FromID      string
	ToID        string
	Amount      decimal.Decimal
	Description string
}

// TransferCoordinator executes N-account atomic transfers: all deltas and
// all ledger rows commit together or none do. Locks are taken in ascending
// user-ID order so two opposite-direction transfers cannot deadlock.
type TransferCoordinator struct {
	db     *sql.DB
	ledger *LedgerStore
	cache  BalanceCache
	events EventPublisher
	audit  *AuditLogger
	cfg    *config.WalletConfig
}

func NewTransferCoordinator(db *sql.DB, ledger *LedgerStore, cache BalanceCache, events EventPublisher, cfg *config.WalletConfig) *TransferCoordinator {
	return &TransferCoordinator{
		db:     db,
		ledger: ledger,
		cache:  cache,
		events: events,
		audit:  NewAuditLogger(),
		cfg:    cfg,
	}
}

// NewLedgerRow builds an immutable wallet transaction row ready for commit.
func NewLedgerRow(userID, txType string, amount decimal.Decimal, description string) models.WalletTransaction {
	return models.WalletTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        txType,
		Amount:      amount,
		Status:      models.TxStatusCompleted,
		Description: description,
		CreatedAt:   time.Now(),
	}
}

func (c *TransferCoordinator) validateAmount(amount decimal.Decimal) error {
	if amount.LessThan(c.cfg.MinAmount) {
		return fmt.Errorf("%w: minimum is %s", ErrInvalidAmount, c.cfg.MinAmount)
	}
	return nil
}

// Deposit credits a user account.
func (c *TransferCoordinator) Deposit(ctx context.Context, cmd DepositCommand) (*models.WalletTransaction, error) {
	if err := c.validateAmount(cmd.Amount); err != nil {
		return nil, err
	}

	row := NewLedgerRow(cmd.UserID, models.TxTypeTopup, cmd.Amount, cmd.Description)
	deltas := []Delta{{UserID: cmd.UserID, Amount: cmd.Amount}}
	if err := c.Commit(ctx, deltas, []models.WalletTransaction{row}, models.TxTypeTopup); err != nil {
		return nil, err
	}
	return &row, nil
}

// Withdraw debits a user account. Sufficiency is pre-checked for a fast
// failure and re-checked under the row lock before anything is written.
func (c *TransferCoordinator) Withdraw(ctx context.Context, cmd WithdrawCommand) (*models.WalletTransaction, error) {
	if err := c.validateAmount(cmd.Amount); err != nil {
		return nil, err
	}
	balance, err := c.ledger.GetBalance(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(cmd.Amount) {
		return nil, ErrInsufficientFunds
	}

	row := NewLedgerRow(cmd.UserID, models.TxTypeWithdrawal, cmd.Amount.Neg(), cmd.Description)
	deltas := []Delta{{UserID: cmd.UserID, Amount: cmd.Amount.Neg()}}
	if err := c.Commit(ctx, deltas, []models.WalletTransaction{row}, models.TxTypeWithdrawal); err != nil {
		return nil, err
	}
	return &row, nil
}

// Send moves money between two users, producing exactly two ledger rows.
func (c *TransferCoordinator) Send(ctx context.Context, cmd SendCommand) (*models.WalletTransaction, error) {
	if cmd.FromID == cmd.ToID {
		return nil, fmt.Errorf("%w: cannot send to own account", ErrInvalidAmount)
	}
	if err := c.validateAmount(cmd.Amount); err != nil {
		return nil, err
	}

	debit := NewLedgerRow(cmd.FromID, models.TxTypeSend, cmd.Amount.Neg(), cmd.Description)
	credit := NewLedgerRow(cmd.ToID, models.TxTypeReceive, cmd.Amount, cmd.Description)
	deltas := []Delta{
		{UserID: cmd.FromID, Amount: cmd.Amount.Neg()},
		{UserID: cmd.ToID, Amount: cmd.Amount},
	}
	if err := c.Commit(ctx, deltas, []models.WalletTransaction{debit, credit}, models.TxTypeSend); err != nil {
		return nil, err
	}
	return &debit, nil
}

// Commit applies deltas and ledger rows in one atomic unit with bounded
// retry, then runs the post-commit hooks.
func (c *TransferCoordinator) Commit(ctx context.Context, deltas []Delta, rows []models.WalletTransaction, reason string) error {
	var balances map[string]decimal.Decimal
	err := c.RunAtomic(ctx, func(tx *sql.Tx) error {
		b, err := c.CommitTx(tx, deltas, rows)
		if err != nil {
			return err
		}
		balances = b
		return nil
	})
	if err != nil {
		if len(rows) > 0 {
			c.audit.LogError(rows[0].ID, rows[0].UserID, err)
		}
		return err
	}

	if len(rows) > 0 {
		users := make([]string, 0, len(balances))
		for userID := range balances {
			users = append(users, userID)
		}
		sort.Strings(users)
		c.audit.LogCommit(rows[0].ID, users, rows[0].Amount.Abs(), reason)
	}
	c.AfterCommit(ctx, balances, reason)
	return nil
}

// CommitTx applies deltas and rows inside a caller-owned transaction, so
// the escrow and money-request state machines can bundle their own state
// transition into the same atomic unit. Returns the post-commit balance of
// every touched account.
func (c *TransferCoordinator) CommitTx(tx *sql.Tx, deltas []Delta, rows []models.WalletTransaction) (map[string]decimal.Decimal, error) {
	// Aggregate per account first so each row is locked exactly once.
	agg := make(map[string]decimal.Decimal)
	users := make([]string, 0, len(deltas))
	for _, d := range deltas {
		if _, ok := agg[d.UserID]; !ok {
			users = append(users, d.UserID)
		}
		agg[d.UserID] = agg[d.UserID].Add(d.Amount)
	}
	sort.Strings(users)

	newBalances := make(map[string]decimal.Decimal, len(users))
	for _, userID := range users {
		account, err := c.ledger.lockAccount(tx, userID)
		if err != nil {
			return nil, err
		}
		if account.Frozen {
			return nil, fmt.Errorf("%w: user %s", ErrAccountFrozen, userID)
		}
		newBalance := account.Balance.Add(agg[userID])
		if newBalance.IsNegative() {
			return nil, ErrInsufficientFunds
		}
		if err := c.ledger.updateBalance(tx, userID, newBalance, account.Version); err != nil {
			return nil, err
		}
		newBalances[userID] = newBalance
	}

	for i := range rows {
		if err := c.ledger.insertTransaction(tx, &rows[i]); err != nil {
			return nil, err
		}
	}
	return newBalances, nil
}

// RunAtomic runs fn inside a transaction, retrying a bounded number of
// times with backoff when the failure is a concurrency conflict. Any
// failure rolls back, leaving the ledger untouched.
func (c *TransferCoordinator) RunAtomic(ctx context.Context, fn func(tx *sql.Tx) error) error {
	attempts := c.cfg.MaxCommitAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
		log.Printf("[TRANSFER] commit conflict, attempt %d/%d: %v", attempt, attempts, err)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * c.cfg.RetryBackoff):
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrTransactionAborted, lastErr)
}

func (c *TransferCoordinator) runOnce(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// AfterCommit invalidates cached reads and emits balanceChanged events for
// every touched account. Runs strictly outside the atomic unit; no locks
// are held across these calls.
func (c *TransferCoordinator) AfterCommit(ctx context.Context, balances map[string]decimal.Decimal, reason string) {
	for userID, balance := range balances {
		if c.cache != nil {
			if err := c.cache.Invalidate(ctx, userID); err != nil {
				log.Printf("[TRANSFER] cache invalidation failed for %s: %v", userID, err)
			}
		}
		if c.events != nil {
			go func(userID string, balance decimal.Decimal) {
				if err := c.events.BalanceChanged(context.Background(), userID, balance, reason); err != nil {
					log.Printf("[TRANSFER] balanceChanged event failed for %s: %v", userID, err)
				}
			}(userID, balance)
		}
	}
}

func isRetryable(err error) bool {
	if errors.Is(err, ErrConcurrencyConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// serialization_failure / deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
