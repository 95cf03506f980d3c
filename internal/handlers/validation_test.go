package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/wallet"
)

func TestSendEngineError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid amount", wallet.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"insufficient funds", wallet.ErrInsufficientFunds, http.StatusBadRequest, "INSUFFICIENT_FUNDS"},
		{"unknown account", wallet.ErrUnknownAccount, http.StatusNotFound, "UNKNOWN_ACCOUNT"},
		{"escrow not found", wallet.ErrEscrowNotFound, http.StatusNotFound, "ESCROW_NOT_FOUND"},
		{"frozen account", wallet.ErrAccountFrozen, http.StatusForbidden, "ACCOUNT_FROZEN"},
		{"permission denied", wallet.ErrPermissionDenied, http.StatusForbidden, "PERMISSION_DENIED"},
		{"invalid escrow transition", wallet.ErrInvalidEscrowTransition, http.StatusConflict, "INVALID_ESCROW_TRANSITION"},
		{"invalid request state", wallet.ErrInvalidRequestState, http.StatusConflict, "INVALID_REQUEST_STATE"},
		{"request expired", wallet.ErrRequestExpired, http.StatusGone, "REQUEST_EXPIRED"},
		{"transaction aborted", wallet.ErrTransactionAborted, http.StatusServiceUnavailable, "TRANSACTION_ABORTED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			SendEngineError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp ErrorResponse
			assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}

	t.Run("wrapped errors keep their code", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendEngineError(w, fmt.Errorf("%w: minimum is 10000", wallet.ErrInvalidAmount))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown errors stay internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendEngineError(w, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "internal error", resp.Error)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Amount string `json:"amount"`
	}

	t.Run("valid body", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"150000"}`))
		var dst payload
		err := decodeJSON(httptest.NewRecorder(), r, &dst)
		assert.NoError(t, err)
		assert.Equal(t, "150000", dst.Amount)
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1","hack":true}`))
		var dst payload
		err := decodeJSON(httptest.NewRecorder(), r, &dst)
		assert.Error(t, err)
	})

	t.Run("trailing object rejected", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1"}{"amount":"2"}`))
		var dst payload
		err := decodeJSON(httptest.NewRecorder(), r, &dst)
		assert.Error(t, err)
	})
}
