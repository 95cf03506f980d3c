package wallet

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/config"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/models"
)

// MoneyRequestService manages peer-to-peer funds solicitations. A request
// moves no money until the designated payer accepts it, at which point the
// transfer and the pending->completed transition commit as one unit.
type MoneyRequestService struct {
	db          *sql.DB
	coordinator *TransferCoordinator
	cfg         *config.WalletConfig
	now         func() time.Time
}

func NewMoneyRequestService(db *sql.DB, coordinator *TransferCoordinator, cfg *config.WalletConfig) *MoneyRequestService {
	return &MoneyRequestService{
		db:          db,
		coordinator: coordinator,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Create records a pending request against the payer, looked up by
// username. Expires after the configured window (7 days by default).
func (s *MoneyRequestService) Create(ctx context.Context, requesterID, payerUsername string, amount decimal.Decimal, message string) (*models.MoneyRequest, error) {
	if amount.LessThan(s.cfg.MinAmount) {
		return nil, fmt.Errorf("%w: minimum is %s", ErrInvalidAmount, s.cfg.MinAmount)
	}

	var payerID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM users WHERE username = $1`, payerUsername).Scan(&payerID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: no user named %s", ErrUnknownAccount, payerUsername)
	}
	if err != nil {
		return nil, err
	}
	if payerID == requesterID {
		return nil, fmt.Errorf("%w: cannot request money from yourself", ErrInvalidRequestState)
	}

	createdAt := s.now()
	request := &models.MoneyRequest{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		PayerID:     payerID,
		Amount:      amount,
		Message:     message,
		Status:      models.RequestStatusPending,
		CreatedAt:   createdAt,
		ExpiresAt:   createdAt.Add(s.cfg.RequestExpiry),
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO money_requests (id, requester_id, payer_id, amount, message, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		request.ID, request.RequesterID, request.PayerID, request.Amount,
		request.Message, request.Status, request.CreatedAt, request.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Accept triggers the payer->requester send. The request row is locked and
// re-validated so a stale read that still shows pending cannot pay twice,
// and an overdue request is rejected even before the expiry sweep marks
// it. On insufficient funds everything rolls back and the request stays
// pending.
func (s *MoneyRequestService) Accept(ctx context.Context, requestID, actingUserID string) (*models.MoneyRequest, error) {
	var (
		request  *models.MoneyRequest
		balances map[string]decimal.Decimal
	)
	err := s.coordinator.RunAtomic(ctx, func(tx *sql.Tx) error {
		locked, err := s.lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		if locked.PayerID != actingUserID {
			return fmt.Errorf("%w: only the designated payer can accept", ErrPermissionDenied)
		}
		if locked.Status != models.RequestStatusPending {
			return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, locked.Status)
		}
		if locked.ExpiresAt.Before(s.now()) {
			return ErrRequestExpired
		}

		if err := s.markRequest(tx, requestID, models.RequestStatusPending, models.RequestStatusCompleted); err != nil {
			return err
		}

		metadata, _ := json.Marshal(map[string]string{"requestId": locked.ID})
		debit := NewLedgerRow(locked.PayerID, models.TxTypeSend, locked.Amount.Neg(), "money request payment")
		debit.Metadata = metadata
		credit := NewLedgerRow(locked.RequesterID, models.TxTypeReceive, locked.Amount, "money request payment")
		credit.Metadata = metadata

		b, err := s.coordinator.CommitTx(tx,
			[]Delta{
				{UserID: locked.PayerID, Amount: locked.Amount.Neg()},
				{UserID: locked.RequesterID, Amount: locked.Amount},
			},
			[]models.WalletTransaction{debit, credit})
		if err != nil {
			return err
		}
		locked.Status = models.RequestStatusCompleted
		request, balances = locked, b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.coordinator.AfterCommit(ctx, balances, models.TxTypeSend)
	return request, nil
}

// Decline ends a pending request. The payer declines; the requester may
// also cancel their own request the same way.
func (s *MoneyRequestService) Decline(ctx context.Context, requestID, actingUserID string) (*models.MoneyRequest, error) {
	var request *models.MoneyRequest
	err := s.coordinator.RunAtomic(ctx, func(tx *sql.Tx) error {
		locked, err := s.lockRequest(tx, requestID)
		if err != nil {
			return err
		}
		if actingUserID != locked.PayerID && actingUserID != locked.RequesterID {
			return fmt.Errorf("%w: not a party to this request", ErrPermissionDenied)
		}
		if locked.Status != models.RequestStatusPending {
			return fmt.Errorf("%w: request is %s", ErrInvalidRequestState, locked.Status)
		}

		if err := s.markRequest(tx, requestID, models.RequestStatusPending, models.RequestStatusDeclined); err != nil {
			return err
		}
		locked.Status = models.RequestStatusDeclined
		request = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// ExpireOverdue sweeps all pending requests past their deadline into the
// expired state. Invoked periodically by the job runner.
func (s *MoneyRequestService) ExpireOverdue(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE money_requests
		SET status = $1
		WHERE status = $2 AND expires_at < $3`,
		models.RequestStatusExpired, models.RequestStatusPending, s.now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Get returns a single request.
func (s *MoneyRequestService) Get(ctx context.Context, requestID string) (*models.MoneyRequest, error) {
	var request models.MoneyRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT id, requester_id, payer_id, amount, message, status, created_at, expires_at
		FROM money_requests
		WHERE id = $1`, requestID).Scan(
		&request.ID, &request.RequesterID, &request.PayerID, &request.Amount,
		&request.Message, &request.Status, &request.CreatedAt, &request.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns requests where the user is requester or payer.
func (s *MoneyRequestService) List(ctx context.Context, userID string, limit int) ([]models.MoneyRequest, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, requester_id, payer_id, amount, message, status, created_at, expires_at
		FROM money_requests
		WHERE requester_id = $1 OR payer_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.MoneyRequest{}
	for rows.Next() {
		var request models.MoneyRequest
		if err := rows.Scan(&request.ID, &request.RequesterID, &request.PayerID,
			&request.Amount, &request.Message, &request.Status,
			&request.CreatedAt, &request.ExpiresAt); err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}

func (s *MoneyRequestService) lockRequest(tx *sql.Tx, requestID string) (*models.MoneyRequest, error) {
	var request models.MoneyRequest
	err := tx.QueryRow(`
		SELECT id, requester_id, payer_id, amount, message, status, created_at, expires_at
		FROM money_requests
		WHERE id = $1
		FOR UPDATE`, requestID).Scan(
		&request.ID, &request.RequesterID, &request.PayerID, &request.Amount,
		&request.Message, &request.Status, &request.CreatedAt, &request.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// markRequest is the status check-and-set guarding double acceptance.
func (s *MoneyRequestService) markRequest(tx *sql.Tx, requestID, fromStatus, toStatus string) error {
	result, err := tx.Exec(`
		UPDATE money_requests
		SET status = $1
		WHERE id = $2 AND status = $3`,
		toStatus, requestID, fromStatus)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrConcurrencyConflict
	}
	return nil
}
