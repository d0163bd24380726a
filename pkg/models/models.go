// Package models contains the shared domain types for MedLedger
package models

import (
	"time"
)

// Role describes what the active account is allowed to do on the ledger.
// It is computed from ledger reads, never stored, and is only valid for
// the session that produced it.
type Role struct {
	IsOwner              bool `json:"isOwner"`
	IsAuthorizedProvider bool `json:"isAuthorizedProvider"`
}

// MedicalRecord is one append-only entry on the ledger. RecordID and
// Timestamp are assigned by the ledger and read-only.
type MedicalRecord struct {
	RecordID    int64     `json:"recordId"`
	PatientID   string    `json:"patientId"`
	PatientName string    `json:"patientName"`
	Diagnosis   string    `json:"diagnosis"`
	Treatment   string    `json:"treatment"`
	Medication  string    `json:"medication"`
	Provider    string    `json:"providerAddress"`
	Timestamp   time.Time `json:"timestamp"`
}

// RecordFields holds the five caller-supplied fields of a record
// submission. All of them are required.
type RecordFields struct {
	PatientID   string `json:"patientId"`
	PatientName string `json:"patientName"`
	Diagnosis   string `json:"diagnosis"`
	Treatment   string `json:"treatment"`
	Medication  string `json:"medication"`
}

// OperationKind identifies a mutating ledger call
type OperationKind string

const (
	OpAppendRecord      OperationKind = "append_record"
	OpAuthorizeProvider OperationKind = "authorize_provider"
	OpRevokeProvider    OperationKind = "revoke_provider"
)

// OperationState is the lifecycle state of a mutating operation
type OperationState string

const (
	StateSubmitted            OperationState = "submitted"
	StateAwaitingConfirmation OperationState = "awaiting_confirmation"
	StateConfirmed            OperationState = "confirmed"
	StateFailed               OperationState = "failed"
)

// Terminal reports whether the state is final
func (s OperationState) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// PendingOperation tracks one mutating ledger call from submission to
// its terminal state. At most one exists per session at a time.
type PendingOperation struct {
	ID          string            `json:"id"`
	Kind        OperationKind     `json:"kind"`
	Account     string            `json:"account"`
	Payload     map[string]string `json:"payload,omitempty"`
	TxHash      string            `json:"txHash,omitempty"`
	State       OperationState    `json:"state"`
	RecordID    *int64            `json:"recordId,omitempty"`
	Error       *ErrorInfo        `json:"error,omitempty"`
	SubmittedAt time.Time         `json:"submittedAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ViewState is the externally observable snapshot. It is rebuilt as a
// whole after every state-changing event; callers never see a partially
// mutated view.
type ViewState struct {
	Connected        bool              `json:"connected"`
	Account          string            `json:"account,omitempty"`
	Role             *Role             `json:"role,omitempty"`
	PatientID        string            `json:"patientId,omitempty"`
	Records          []MedicalRecord   `json:"records"`
	Loading          bool              `json:"loading"`
	CurrentOperation *PendingOperation `json:"currentOperation,omitempty"`
	LastError        *ErrorInfo        `json:"lastError,omitempty"`
}
