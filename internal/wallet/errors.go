package wallet

import (
	"errors"
	"fmt"
)

// Code is the stable machine-readable error code surfaced to clients.
type Code string

const (
	CodeInvalidAmount           Code = "INVALID_AMOUNT"
	CodeInsufficientFunds       Code = "INSUFFICIENT_FUNDS"
	CodeUnknownAccount          Code = "UNKNOWN_ACCOUNT"
	CodeAccountFrozen           Code = "ACCOUNT_FROZEN"
	CodeInvalidEscrowTransition Code = "INVALID_ESCROW_TRANSITION"
	CodeEscrowNotFound          Code = "ESCROW_NOT_FOUND"
	CodeAlreadyTerminal         Code = "ALREADY_TERMINAL"
	CodeRequestNotFound         Code = "REQUEST_NOT_FOUND"
	CodeRequestExpired          Code = "REQUEST_EXPIRED"
	CodeInvalidRequestState     Code = "INVALID_REQUEST_STATE"
	CodePermissionDenied        Code = "PERMISSION_DENIED"
	CodeConcurrencyConflict     Code = "CONCURRENCY_CONFLICT"
	CodeTransactionAborted      Code = "TRANSACTION_ABORTED"
)

// WalletError carries a stable code alongside a human-readable message.
// Internal causes are wrapped but never serialized across the API boundary.
type WalletError struct {
	Code    Code
	Message string
	Err     error
}

func (e *WalletError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *WalletError) Unwrap() error {
	return e.Err
}

var (
	ErrInvalidAmount           = &WalletError{Code: CodeInvalidAmount, Message: "invalid amount"}
	ErrInsufficientFunds       = &WalletError{Code: CodeInsufficientFunds, Message: "insufficient funds"}
	ErrUnknownAccount          = &WalletError{Code: CodeUnknownAccount, Message: "account not found"}
	ErrAccountFrozen           = &WalletError{Code: CodeAccountFrozen, Message: "account is frozen"}
	ErrInvalidEscrowTransition = &WalletError{Code: CodeInvalidEscrowTransition, Message: "invalid escrow transition"}
	ErrEscrowNotFound          = &WalletError{Code: CodeEscrowNotFound, Message: "escrow not found"}
	ErrAlreadyTerminal         = &WalletError{Code: CodeAlreadyTerminal, Message: "escrow already in terminal state"}
	ErrRequestNotFound         = &WalletError{Code: CodeRequestNotFound, Message: "money request not found"}
	ErrRequestExpired          = &WalletError{Code: CodeRequestExpired, Message: "money request has expired"}
	ErrInvalidRequestState     = &WalletError{Code: CodeInvalidRequestState, Message: "money request is not pending"}
	ErrPermissionDenied        = &WalletError{Code: CodePermissionDenied, Message: "not allowed to act on this resource"}
	ErrConcurrencyConflict     = &WalletError{Code: CodeConcurrencyConflict, Message: "concurrent balance update detected"}
	ErrTransactionAborted      = &WalletError{Code: CodeTransactionAborted, Message: "transaction aborted after retries"}
)

// CodeOf extracts the stable code from an error chain. Unknown errors map
// to an empty code so callers can fall back to a generic 500.
func CodeOf(err error) Code {
	var we *WalletError
	if errors.As(err, &we) {
		return we.Code
	}
	return ""
}
