package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/cache"
	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/wallet"
)

type WalletHandler struct {
	db          *sql.DB
	coordinator *wallet.TransferCoordinator
	ledger      *wallet.LedgerStore
	cache       *cache.BalanceCache
	validator   *ValidationHelper
}

func NewWalletHandler(db *sql.DB, coordinator *wallet.TransferCoordinator, ledger *wallet.LedgerStore, balanceCache *cache.BalanceCache) *WalletHandler {
	return &WalletHandler{
		db:          db,
		coordinator: coordinator,
		ledger:      ledger,
		cache:       balanceCache,
		validator:   NewValidationHelper(),
	}
}

type amountRequest struct {
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=200"`
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, wallet.ErrInvalidAmount
	}
	return amount, nil
}

// Deposit credits the authenticated user's wallet
// @Summary Deposit funds
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=string,description=string} true "Deposit request"
// @Success 201 {object} models.WalletTransaction
// @Failure 400 {object} ErrorResponse
// @Router /wallet/deposit [post]
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	tx, err := h.coordinator.Deposit(r.Context(), wallet.DepositCommand{
		UserID:      userID,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "transaction": tx})
}

// Withdraw debits the authenticated user's wallet
// @Summary Withdraw funds
// @Tags wallet
// @Security BearerAuth
// @Router /wallet/withdraw [post]
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req amountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	tx, err := h.coordinator.Withdraw(r.Context(), wallet.WithdrawCommand{
		UserID:      userID,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "transaction": tx})
}

// Send transfers funds to another user
// @Summary Send funds to another user
// @Tags wallet
// @Security BearerAuth
// @Router /wallet/send [post]
func (h *WalletHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		ToUserID    string `json:"toUserId" validate:"required"`
		Amount      string `json:"amount" validate:"required"`
		Description string `json:"description" validate:"max=200"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := parseAmount(req.Amount)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	tx, err := h.coordinator.Send(r.Context(), wallet.SendCommand{
		FromID:      userID,
		ToID:        req.ToUserID,
		Amount:      amount,
		Description: req.Description,
	})
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "transaction": tx})
}

// GetBalance returns the user's balance, served through the cache for
// this non-mutating context.
// @Summary Get wallet balance
// @Tags wallet
// @Security BearerAuth
// @Router /wallet/balance [get]
func (h *WalletHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	source := "cache"
	balance, hit := h.cache.GetBalance(r.Context(), userID)
	if !hit {
		var err error
		balance, err = h.ledger.GetBalance(r.Context(), userID)
		if err != nil {
			SendEngineError(w, err)
			return
		}
		source = "ledger"
		if err := h.cache.SetBalance(r.Context(), userID, balance); err != nil {
			log.Printf("[WALLET] failed to cache balance for %s: %v", userID, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"userId":  userID,
		"balance": balance,
		"source":  source,
	})
}

// ListTransactions returns the user's ledger history
// @Summary List wallet transactions
// @Tags wallet
// @Security BearerAuth
// @Router /wallet/transactions [get]
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	transactions, err := h.ledger.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

type walletSummary struct {
	UserID          string          `json:"userId"`
	Balance         decimal.Decimal `json:"balance"`
	OpenEscrows     int             `json:"openEscrows"`
	PendingRequests int             `json:"pendingRequests"`
	CachedAt        time.Time       `json:"cachedAt"`
}

// GetSummary returns a cached dashboard aggregate for the user.
// @Summary Get wallet dashboard summary
// @Tags wallet
// @Security BearerAuth
// @Router /wallet/summary [get]
func (h *WalletHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if payload, hit := h.cache.GetSummary(r.Context(), userID); hit {
		w.Write(payload)
		return
	}

	summary, err := h.buildSummary(r, userID)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	payload, _ := json.Marshal(summary)
	if err := h.cache.SetSummary(r.Context(), userID, payload); err != nil {
		log.Printf("[WALLET] failed to cache summary for %s: %v", userID, err)
	}
	w.Write(payload)
}

func (h *WalletHandler) buildSummary(r *http.Request, userID string) (*walletSummary, error) {
	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		return nil, err
	}

	var openEscrows int
	err = h.db.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM escrow_transactions
		WHERE (buyer_id = $1 OR seller_id = $1) AND status IN ($2, $3)`,
		userID, "active", "disputed").Scan(&openEscrows)
	if err != nil {
		return nil, err
	}

	var pendingRequests int
	err = h.db.QueryRowContext(r.Context(), `
		SELECT COUNT(*) FROM money_requests
		WHERE payer_id = $1 AND status = $2`, userID, "pending").Scan(&pendingRequests)
	if err != nil {
		return nil, err
	}

	return &walletSummary{
		UserID:          userID,
		Balance:         balance,
		OpenEscrows:     openEscrows,
		PendingRequests: pendingRequests,
		CachedAt:        time.Now(),
	}, nil
}

// Reconcile verifies the denormalized balance equals the ledger sum for a
// user. Admin-facing consistency check.
// @Summary Reconcile balance against ledger
// @Tags wallet
// @Security BearerAuth
// @Router /wallet/reconcile [get]
func (h *WalletHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		if ctxUser, ok := userIDFromContext(r); ok {
			userID = ctxUser
		}
	}
	if userID == "" {
		SendErrorResponse(w, "userId is required", http.StatusBadRequest, nil)
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		SendEngineError(w, err)
		return
	}
	ledgerSum, err := h.ledger.SumDeltas(r.Context(), userID)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	consistent := balance.Equal(ledgerSum)
	if !consistent {
		log.Printf("[WALLET] reconciliation mismatch for %s: balance=%s ledger=%s", userID, balance, ledgerSum)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"userId":     userID,
		"balance":    balance,
		"ledgerSum":  ledgerSum,
		"consistent": consistent,
	})
}
