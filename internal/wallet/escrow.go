package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/config"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/models"
)

// EscrowService drives the escrow lifecycle:
//
//	pending -> active -> completed
//	                  -> disputed -> completed (seller wins)
//	                              -> refunded  (buyer wins)
//
// Every transition that moves money performs a check-and-set on status in
// the same atomic unit as the balance change, so two concurrent Complete
// calls cannot both pay out.
type EscrowService struct {
	db          *sql.DB
	coordinator *TransferCoordinator
	events      EventPublisher
	cfg         *config.WalletConfig
}

func NewEscrowService(db *sql.DB, coordinator *TransferCoordinator, events EventPublisher, cfg *config.WalletConfig) *EscrowService {
	return &EscrowService{
		db:          db,
		coordinator: coordinator,
		events:      events,
		cfg:         cfg,
	}
}

// Create debits the buyer and writes the escrow row as active in the same
// atomic unit. The hold and the balance change are never two commits.
func (s *EscrowService) Create(ctx context.Context, productID, buyerID, sellerID string, amount decimal.Decimal) (*models.EscrowTransaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: escrow amount must be positive", ErrInvalidAmount)
	}
	if buyerID == sellerID {
		return nil, fmt.Errorf("%w: buyer and seller are the same account", ErrInvalidAmount)
	}

	escrow := &models.EscrowTransaction{
		ID:        uuid.NewString(),
		ProductID: productID,
		BuyerID:   buyerID,
		SellerID:  sellerID,
		Amount:    amount,
		Status:    models.EscrowStatusActive,
		CreatedAt: time.Now(),
	}

	metadata, _ := json.Marshal(map[string]string{
		"escrowId":  escrow.ID,
		"productId": productID,
	})
	debit := NewLedgerRow(buyerID, models.TxTypePayment, amount.Neg(), "escrow hold")
	debit.Metadata = metadata

	var balances map[string]decimal.Decimal
	err := s.coordinator.RunAtomic(ctx, func(tx *sql.Tx) error {
		b, err := s.coordinator.CommitTx(tx,
			[]Delta{{UserID: buyerID, Amount: amount.Neg()}},
			[]models.WalletTransaction{debit})
		if err != nil {
			return err
		}
		if err := s.insertEscrow(tx, escrow); err != nil {
			return err
		}
		balances = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.coordinator.AfterCommit(ctx, balances, models.TxTypePayment)
	s.publishState(escrow.ID, escrow.Status)
	return escrow, nil
}

// Complete releases held funds: the seller is credited amount minus
// commission, the platform account receives the commission, and the escrow
// becomes terminal. Idempotent: completing an already-completed escrow
// returns the existing row without re-crediting anyone.
func (s *EscrowService) Complete(ctx context.Context, escrowID string) (*models.EscrowTransaction, error) {
	var (
		escrow   *models.EscrowTransaction
		balances map[string]decimal.Decimal
		noop     bool
	)
	err := s.coordinator.RunAtomic(ctx, func(tx *sql.Tx) error {
		locked, err := s.lockEscrow(tx, escrowID)
		if err != nil {
			return err
		}
		if locked.IsTerminal() {
			escrow, noop = locked, true
			return nil
		}
		if locked.Status != models.EscrowStatusActive {
			return fmt.Errorf("%w: cannot complete escrow in state %s", ErrInvalidEscrowTransition, locked.Status)
		}

		b, err := s.settleToSeller(tx, locked)
		if err != nil {
			return err
		}
		escrow, balances = locked, b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if noop {
		log.Printf("[ESCROW] complete is a no-op, escrow %s already %s", escrowID, escrow.Status)
		return escrow, nil
	}

	s.coordinator.AfterCommit(ctx, balances, models.TxTypePayment)
	s.publishState(escrow.ID, escrow.Status)
	return escrow, nil
}

// Dispute freezes buyer/seller-initiated transitions pending admin
// resolution. No money moves.
func (s *EscrowService) Dispute(ctx context.Context, escrowID, reason string) (*models.EscrowTransaction, error) {
	var escrow *models.EscrowTransaction
	err := s.coordinator.RunAtomic(ctx, func(tx *sql.Tx) error {
		locked, err := s.lockEscrow(tx, escrowID)
		if err != nil {
			return err
		}
		if locked.IsTerminal() {
			return fmt.Errorf("%w: escrow is %s", ErrAlreadyTerminal, locked.Status)
		}
		if locked.Status != models.EscrowStatusActive {
			return fmt.Errorf("%w: cannot dispute escrow in state %s", ErrInvalidEscrowTransition, locked.Status)
		}

		result, err := tx.Exec(`
			UPDATE escrow_transactions
			SET status = $1, dispute_reason = $2
			WHERE id = $3 AND status = $4`,
			models.EscrowStatusDisputed, reason, escrowID, models.EscrowStatusActive)
		if err != nil {
			return err
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return ErrConcurrencyConflict
		}
		locked.Status = models.EscrowStatusDisputed
		locked.DisputeReason = reason
		escrow = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishState(escrow.ID, escrow.Status)
	return escrow, nil
}

// Resolve settles a disputed escrow by admin decision: completed pays the
// seller (minus commission), refunded returns the full amount to the buyer.
func (s *EscrowService) Resolve(ctx context.Context, escrowID, outcome string) (*models.EscrowTransaction, error) {
	if outcome != models.EscrowStatusCompleted && outcome != models.EscrowStatusRefunded {
		return nil, fmt.Errorf("%w: outcome must be completed or refunded", ErrInvalidEscrowTransition)
	}

	var (
		escrow   *models.EscrowTransaction
		balances map[string]decimal.Decimal
	)
	err := s.coordinator.RunAtomic(ctx, func(tx *sql.Tx) error {
		locked, err := s.lockEscrow(tx, escrowID)
		if err != nil {
			return err
		}
		if locked.IsTerminal() {
			return fmt.Errorf("%w: escrow is %s", ErrAlreadyTerminal, locked.Status)
		}
		if locked.Status != models.EscrowStatusDisputed {
			return fmt.Errorf("%w: cannot resolve escrow in state %s", ErrInvalidEscrowTransition, locked.Status)
		}

		var b map[string]decimal.Decimal
		if outcome == models.EscrowStatusCompleted {
			b, err = s.settleToSeller(tx, locked)
		} else {
			b, err = s.refundToBuyer(tx, locked)
		}
		if err != nil {
			return err
		}
		escrow, balances = locked, b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.coordinator.AfterCommit(ctx, balances, models.TxTypePayment)
	s.publishState(escrow.ID, escrow.Status)
	return escrow, nil
}

// Get returns an escrow row.
func (s *EscrowService) Get(ctx context.Context, escrowID string) (*models.EscrowTransaction, error) {
	var escrow models.EscrowTransaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, product_id, buyer_id, seller_id, amount, status, COALESCE(dispute_reason, ''), created_at, completed_at
		FROM escrow_transactions
		WHERE id = $1`, escrowID).Scan(
		&escrow.ID, &escrow.ProductID, &escrow.BuyerID, &escrow.SellerID,
		&escrow.Amount, &escrow.Status, &escrow.DisputeReason,
		&escrow.CreatedAt, &escrow.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEscrowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

// settleToSeller pays out a held amount: seller gets amount - commission,
// the platform account gets the commission. The status check-and-set rides
// in the same transaction as the credits.
func (s *EscrowService) settleToSeller(tx *sql.Tx, escrow *models.EscrowTransaction) (map[string]decimal.Decimal, error) {
	commission := escrow.Amount.Mul(s.cfg.CommissionRate).Round(2)
	sellerNet := escrow.Amount.Sub(commission)

	now := time.Now()
	if err := s.markTerminal(tx, escrow, models.EscrowStatusCompleted, now); err != nil {
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]string{"escrowId": escrow.ID, "productId": escrow.ProductID})
	sellerRow := NewLedgerRow(escrow.SellerID, models.TxTypeReceive, sellerNet, "escrow release")
	sellerRow.Metadata = metadata
	commissionRow := NewLedgerRow(s.cfg.PlatformAccountID, models.TxTypeCommission, commission, "escrow commission")
	commissionRow.Metadata = metadata

	return s.coordinator.CommitTx(tx,
		[]Delta{
			{UserID: escrow.SellerID, Amount: sellerNet},
			{UserID: s.cfg.PlatformAccountID, Amount: commission},
		},
		[]models.WalletTransaction{sellerRow, commissionRow})
}

// refundToBuyer returns the full held amount to the buyer.
func (s *EscrowService) refundToBuyer(tx *sql.Tx, escrow *models.EscrowTransaction) (map[string]decimal.Decimal, error) {
	now := time.Now()
	if err := s.markTerminal(tx, escrow, models.EscrowStatusRefunded, now); err != nil {
		return nil, err
	}

	metadata, _ := json.Marshal(map[string]string{"escrowId": escrow.ID, "productId": escrow.ProductID})
	refundRow := NewLedgerRow(escrow.BuyerID, models.TxTypeReceive, escrow.Amount, "escrow refund")
	refundRow.Metadata = metadata

	return s.coordinator.CommitTx(tx,
		[]Delta{{UserID: escrow.BuyerID, Amount: escrow.Amount}},
		[]models.WalletTransaction{refundRow})
}

// markTerminal is the status check-and-set. Zero rows affected means a
// concurrent transition won the race; the caller's transaction rolls back
// without having moved money.
func (s *EscrowService) markTerminal(tx *sql.Tx, escrow *models.EscrowTransaction, status string, completedAt time.Time) error {
	result, err := tx.Exec(`
		UPDATE escrow_transactions
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4`,
		status, completedAt, escrow.ID, escrow.Status)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConcurrencyConflict
	}
	escrow.Status = status
	escrow.CompletedAt = &completedAt
	return nil
}

func (s *EscrowService) insertEscrow(tx *sql.Tx, escrow *models.EscrowTransaction) error {
	_, err := tx.Exec(`
		INSERT INTO escrow_transactions (id, product_id, buyer_id, seller_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		escrow.ID, escrow.ProductID, escrow.BuyerID, escrow.SellerID,
		escrow.Amount, escrow.Status, escrow.CreatedAt)
	return err
}

func (s *EscrowService) lockEscrow(tx *sql.Tx, escrowID string) (*models.EscrowTransaction, error) {
	var escrow models.EscrowTransaction
	err := tx.QueryRow(`
		SELECT id, product_id, buyer_id, seller_id, amount, status, COALESCE(dispute_reason, ''), created_at, completed_at
		FROM escrow_transactions
		WHERE id = $1
		FOR UPDATE`, escrowID).Scan(
		&escrow.ID, &escrow.ProductID, &escrow.BuyerID, &escrow.SellerID,
		&escrow.Amount, &escrow.Status, &escrow.DisputeReason,
		&escrow.CreatedAt, &escrow.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEscrowNotFound
	}
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

func (s *EscrowService) publishState(escrowID, state string) {
	if s.events == nil {
		return
	}
	go func() {
		if err := s.events.EscrowStateChanged(context.Background(), escrowID, state); err != nil {
			log.Printf("[ESCROW] escrowStateChanged event failed for %s: %v", escrowID, err)
		}
	}()
}
