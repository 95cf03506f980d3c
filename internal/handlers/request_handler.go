package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/wallet"
)

type RequestHandler struct {
	requests  *wallet.MoneyRequestService
	redis     *redis.Client
	validator *ValidationHelper
}

func NewRequestHandler(requests *wallet.MoneyRequestService, redisClient *redis.Client) *RequestHandler {
	return &RequestHandler{
		requests:  requests,
		redis:     redisClient,
		validator: NewValidationHelper(),
	}
}

// Create opens a money request against another user.
// @Summary Request money from another user
// @Tags requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{payerUsername=string,amount=string,message=string} true "Request details"
// @Success 201 {object} models.MoneyRequest
// @Failure 400 {object} ErrorResponse
// @Router /requests [post]
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	requesterID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		PayerUsername string `json:"payerUsername" validate:"required"`
		Amount        string `json:"amount" validate:"required"`
		Message       string `json:"message" validate:"max=200"`
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

	request, err := h.requests.Create(r.Context(), requesterID, req.PayerUsername, amount, req.Message)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"success": true, "request": request})
}

// Accept pays a pending money request.
// @Summary Accept a money request
// @Tags requests
// @Security BearerAuth
// @Router /requests/{requestId}/accept [post]
func (h *RequestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "requestId")
	request, err := h.requests.Accept(r.Context(), requestID, userID)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "request": request})
}

// Decline ends a pending money request.
// @Summary Decline a money request
// @Tags requests
// @Security BearerAuth
// @Router /requests/{requestId}/decline [post]
func (h *RequestHandler) Decline(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "requestId")
	request, err := h.requests.Decline(r.Context(), requestID, userID)
	if err != nil {
		SendEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "request": request})
}

// List returns the user's requests, both sent and received.
// @Summary List money requests
// @Tags requests
// @Security BearerAuth
// @Router /requests [get]
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
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

	requests, err := h.requests.List(r.Context(), userID, limit)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"requests": requests,
		"count":    len(requests),
	})
}

// GenerateQR produces a scannable QR referencing a money request, so the
// payer can settle it from the mobile app. The reference is single-use and
// short-lived.
// @Summary Generate payment QR for a money request
// @Tags requests
// @Security BearerAuth
// @Router /requests/{requestId}/qr [post]
func (h *RequestHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "requestId")
	request, err := h.requests.Get(r.Context(), requestID)
	if err != nil {
		SendEngineError(w, err)
		return
	}
	if request.RequesterID != userID {
		SendEngineError(w, wallet.ErrPermissionDenied)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"requestId": request.ID,
		"amount":    request.Amount.String(),
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		SendErrorResponse(w, "Failed to generate QR", http.StatusInternalServerError, nil)
		return
	}

	code := base64.URLEncoding.EncodeToString(payload)
	if h.redis != nil {
		key := fmt.Sprintf("reqqr:%s", code)
		if err := h.redis.Set(r.Context(), key, payload, 5*time.Minute).Err(); err != nil {
			SendErrorResponse(w, "Failed to generate QR", http.StatusInternalServerError, nil)
			return
		}
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		SendErrorResponse(w, "Failed to generate QR", http.StatusInternalServerError, nil)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		SendErrorResponse(w, "Failed to generate QR", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"qrCode":  code,
		"qrImage": base64.StdEncoding.EncodeToString(buf.Bytes()),
	})
}
