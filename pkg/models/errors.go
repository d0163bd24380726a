package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes surfaced to callers
var (
	ErrSignerUnavailable   = errors.New("no signer capability is available")
	ErrUserRejected        = errors.New("connection request rejected by the account holder")
	ErrInvalidAddress      = errors.New("invalid ledger address")
	ErrLedgerUnreachable   = errors.New("ledger is unreachable")
	ErrUnauthorized        = errors.New("account is not authorized for this operation")
	ErrOperationInProgress = errors.New("another operation is already in progress")
	ErrConfirmationTimeout = errors.New("timed out waiting for ledger confirmation")
)

// Error classification codes as they appear in ViewState.LastError
const (
	CodeSignerUnavailable   = "signer_unavailable"
	CodeUserRejected        = "user_rejected"
	CodeInvalidAddress      = "invalid_address"
	CodeMissingField        = "missing_field"
	CodeLedgerUnreachable   = "ledger_unreachable"
	CodeUnauthorized        = "unauthorized"
	CodeOperationInProgress = "operation_in_progress"
	CodeConfirmationTimeout = "confirmation_timeout"
	CodeLedgerRejected      = "ledger_rejected"
	CodeInternal            = "internal"
)

// MissingFieldError reports the first empty required field of a record
// submission.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("required field '%s' is empty", e.Field)
}

// RejectionError carries a ledger-reported rejection reason verbatim.
// Rejections are deterministic and are never retried automatically.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return "ledger rejected the operation"
	}
	return fmt.Sprintf("ledger rejected the operation: %s", e.Reason)
}

// ErrorInfo is the classified, human-readable projection of a failure
// placed into ViewState.LastError.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Classify maps an error to its ErrorInfo. A nil error yields nil.
func Classify(err error) *ErrorInfo {
	if err == nil {
		return nil
	}

	var missing *MissingFieldError
	if errors.As(err, &missing) {
		return &ErrorInfo{Code: CodeMissingField, Message: missing.Error()}
	}

	var rejected *RejectionError
	if errors.As(err, &rejected) {
		return &ErrorInfo{Code: CodeLedgerRejected, Message: rejected.Error()}
	}

	switch {
	case errors.Is(err, ErrSignerUnavailable):
		return &ErrorInfo{Code: CodeSignerUnavailable, Message: err.Error()}
	case errors.Is(err, ErrUserRejected):
		return &ErrorInfo{Code: CodeUserRejected, Message: err.Error()}
	case errors.Is(err, ErrInvalidAddress):
		return &ErrorInfo{Code: CodeInvalidAddress, Message: err.Error()}
	case errors.Is(err, ErrLedgerUnreachable):
		return &ErrorInfo{Code: CodeLedgerUnreachable, Message: err.Error()}
	case errors.Is(err, ErrUnauthorized):
		return &ErrorInfo{Code: CodeUnauthorized, Message: err.Error()}
	case errors.Is(err, ErrOperationInProgress):
		return &ErrorInfo{Code: CodeOperationInProgress, Message: err.Error()}
	case errors.Is(err, ErrConfirmationTimeout):
		return &ErrorInfo{Code: CodeConfirmationTimeout, Message: err.Error()}
	}

	return &ErrorInfo{Code: CodeInternal, Message: err.Error()}
}
