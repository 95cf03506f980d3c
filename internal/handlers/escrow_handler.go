package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/wallet"
)

type EscrowHandler struct {
	escrow    *wallet.EscrowService
	validator *ValidationHelper
}

func NewEscrowHandler(escrow *wallet.EscrowService) *EscrowHandler {
	return &EscrowHandler{
		escrow:    escrow,
		validator: NewValidationHelper(),
	}
}

// Create opens an escrow for a product purchase: the buyer is debited and
// the funds are held by the platform.
// @Summary Create escrow for a purchase
// @Tags escrow
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{productId=string,sellerId=string,amount=string} true "Purchase details"
// @Success 201 {object} models.EscrowTransaction
// @Failure 400 {object} ErrorResponse
// @Router /escrow [post]
func (h *EscrowHandler) Create(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		ProductID string `json:"productId" validate:"required"`
		SellerID  string `json:"sellerId" validate:"required"`
		Amount    string `json:"amount" validate:"required"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		SendEngineError(w, wallet.ErrInvalidAmount)
		return
	}

	escrow, err := h.escrow.Create(r.Context(), req.ProductID, buyerID, req.SellerID, amount)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "escrow": escrow})
}

// Complete releases held funds to the seller minus commission. Safe to
// retry: a repeated call returns the terminal escrow without re-paying.
// @Summary Complete an escrow
// @Tags escrow
// @Security BearerAuth
// @Router /escrow/{escrowId}/complete [post]
func (h *EscrowHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if _, ok := userIDFromContext(r); !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	escrowID := chi.URLParam(r, "escrowId")
	escrow, err := h.escrow.Complete(r.Context(), escrowID)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "escrow": escrow})
}

// Dispute freezes an active escrow pending admin resolution.
// @Summary Dispute an escrow
// @Tags escrow
// @Security BearerAuth
// @Router /escrow/{escrowId}/dispute [post]
func (h *EscrowHandler) Dispute(w http.ResponseWriter, r *http.Request) {
	if _, ok := userIDFromContext(r); !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Reason string `json:"reason" validate:"required,max=500"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	escrowID := chi.URLParam(r, "escrowId")
	escrow, err := h.escrow.Dispute(r.Context(), escrowID, req.Reason)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "escrow": escrow})
}

// Resolve settles a disputed escrow by admin decision.
// @Summary Resolve a disputed escrow
// @Tags escrow
// @Security BearerAuth
// @Router /escrow/{escrowId}/resolve [post]
func (h *EscrowHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if _, ok := userIDFromContext(r); !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Outcome string `json:"outcome" validate:"required,oneof=completed refunded"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	escrowID := chi.URLParam(r, "escrowId")
	escrow, err := h.escrow.Resolve(r.Context(), escrowID, req.Outcome)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "escrow": escrow})
}

// Get returns one escrow row.
// @Summary Get escrow by ID
// @Tags escrow
// @Security BearerAuth
// @Router /escrow/{escrowId} [get]
func (h *EscrowHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := userIDFromContext(r); !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	escrowID := chi.URLParam(r, "escrowId")
	escrow, err := h.escrow.Get(r.Context(), escrowID)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(escrow)
}
