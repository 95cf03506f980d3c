package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/NewProjekBotpy/nubiluXchange-sub002/internal/wallet"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable error code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	if validationErr != nil {
		errorResp.Details = make(map[string]string)
		for _, err := range validationErr.(validator.ValidationErrors) {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// SendEngineError maps a wallet engine error to its HTTP status and stable
// code. Internal causes never cross the boundary.
func SendEngineError(w http.ResponseWriter, err error) {
	code := wallet.CodeOf(err)

	status := http.StatusInternalServerError
	message := "internal error"
	switch code {
	case wallet.CodeInvalidAmount, wallet.CodeInsufficientFunds:
		status = http.StatusBadRequest
	case wallet.CodeUnknownAccount, wallet.CodeEscrowNotFound, wallet.CodeRequestNotFound:
		status = http.StatusNotFound
	case wallet.CodeAccountFrozen, wallet.CodePermissionDenied:
		status = http.StatusForbidden
	case wallet.CodeInvalidEscrowTransition, wallet.CodeAlreadyTerminal,
		wallet.CodeInvalidRequestState, wallet.CodeConcurrencyConflict:
		status = http.StatusConflict
	case wallet.CodeRequestExpired:
		status = http.StatusGone
	case wallet.CodeTransactionAborted:
		status = http.StatusServiceUnavailable
	}

	var we *wallet.WalletError
	if errors.As(err, &we) {
		message = we.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message, Code: string(code)})
}

// decodeJSON enforces the request body rules shared by every endpoint:
// bounded size, no unknown fields, a single JSON object.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must only contain a single JSON object")
	}
	return nil
}

func userIDFromContext(r *http.Request) (string, bool) {
	userID, ok := r.Context().Value("userID").(string)
	return userID, ok && userID != ""
}
