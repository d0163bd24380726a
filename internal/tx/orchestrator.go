// Package tx serializes mutating ledger calls and tracks each one
// through submitted → awaiting_confirmation → confirmed/failed.
package tx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savegress/medledger/internal/audit"
	"github.com/savegress/medledger/internal/ledger"
	"github.com/savegress/medledger/pkg/models"
)

// Confirmer is the slice of the ledger surface confirmation needs
type Confirmer interface {
	TransactionReceipt(ctx context.Context, hash string) (*ledger.Receipt, error)
	WaitForReceipt(ctx context.Context, hash string, pollInterval time.Duration) (*ledger.Receipt, error)
	RevertReason(ctx context.Context, hash string) string
}

// SubmitFunc issues the underlying write call and returns its
// transaction hash.
type SubmitFunc func(ctx context.Context) (string, error)

// Orchestrator holds the single operation slot per session. Mutating
// calls from one account are strictly serialized; two writers on the
// same account risk conflicting ordering at the ledger boundary.
type Orchestrator struct {
	confirmer      Confirmer
	trail          *audit.Logger
	confirmTimeout time.Duration
	pollInterval   time.Duration

	mu      sync.Mutex
	current *models.PendingOperation
}

// NewOrchestrator creates an orchestrator. trail may be nil.
func NewOrchestrator(confirmer Confirmer, trail *audit.Logger, confirmTimeout, pollInterval time.Duration) *Orchestrator {
	if confirmTimeout <= 0 {
		confirmTimeout = 2 * time.Minute
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Orchestrator{
		confirmer:      confirmer,
		trail:          trail,
		confirmTimeout: confirmTimeout,
		pollInterval:   pollInterval,
	}
}

// Begin claims the operation slot. It fails with ErrOperationInProgress
// while a prior operation is non-terminal, including one whose
// confirmation wait timed out: a timed-out operation may still land on
// the ledger and must be resolved through Recheck first.
func (o *Orchestrator) Begin(account string, kind models.OperationKind, payload map[string]string) (*models.PendingOperation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil && !o.current.State.Terminal() {
		return nil, fmt.Errorf("%w: %s is %s", models.ErrOperationInProgress, o.current.Kind, o.current.State)
	}

	now := time.Now().UTC()
	op := &models.PendingOperation{
		ID:          uuid.New().String(),
		Kind:        kind,
		Account:     account,
		Payload:     payload,
		State:       models.StateSubmitted,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	o.current = op
	o.trail.RecordTransition(op, "operation slot claimed")
	return o.snapshotLocked(), nil
}

// Run drives a begun operation to a terminal state (or to a timed-out
// awaiting_confirmation). No automatic retry on any path: ledger
// rejections are deterministic and resubmitting a mutating call risks
// a duplicate.
func (o *Orchestrator) Run(ctx context.Context, submit SubmitFunc) error {
	hash, err := submit(ctx)
	if err != nil {
		o.fail(err)
		return err
	}

	o.transition(func(op *models.PendingOperation) {
		op.TxHash = hash
		op.State = models.StateAwaitingConfirmation
	}, "accepted into pending pool")

	waitCtx, cancel := context.WithTimeout(ctx, o.confirmTimeout)
	defer cancel()

	receipt, err := o.confirmer.WaitForReceipt(waitCtx, hash, o.pollInterval)
	if err != nil {
		if errors.Is(err, models.ErrConfirmationTimeout) {
			// The ledger is authoritative; the true outcome stays
			// unresolved until a later recheck. The slot stays held.
			o.transition(nil, "confirmation wait timed out")
			return err
		}
		o.fail(err)
		return err
	}

	return o.resolve(ctx, receipt)
}

// Recheck polls once for the receipt of an operation whose confirmation
// wait timed out. Still-unmined operations report ErrConfirmationTimeout
// again and keep the slot.
func (o *Orchestrator) Recheck(ctx context.Context) (*models.PendingOperation, error) {
	o.mu.Lock()
	op := o.current
	o.mu.Unlock()

	if op == nil || op.State.Terminal() || op.TxHash == "" {
		return o.Current(), nil
	}

	receipt, err := o.confirmer.TransactionReceipt(ctx, op.TxHash)
	if err != nil {
		return o.Current(), err
	}
	if receipt == nil {
		return o.Current(), fmt.Errorf("%w: %s still unresolved", models.ErrConfirmationTimeout, op.TxHash)
	}

	err = o.resolve(ctx, receipt)
	return o.Current(), err
}

// resolve applies a receipt to the current operation
func (o *Orchestrator) resolve(ctx context.Context, receipt *ledger.Receipt) error {
	if receipt.Status {
		recordID := ledger.RecordIDFromReceipt(receipt)
		o.transition(func(op *models.PendingOperation) {
			op.State = models.StateConfirmed
			if op.Kind == models.OpAppendRecord {
				op.RecordID = recordID
			}
		}, "ledger reported finality")
		return nil
	}

	reason := o.confirmer.RevertReason(ctx, receipt.TxHash)
	err := classifyRejection(reason)
	o.fail(err)
	return err
}

// classifyRejection maps a ledger revert reason to the error taxonomy.
// Authorization reverts get their own class; everything else surfaces
// verbatim.
func classifyRejection(reason string) error {
	lower := strings.ToLower(reason)
	if strings.Contains(lower, "authorized") || strings.Contains(lower, "owner") {
		if reason != "" {
			return fmt.Errorf("%w: %s", models.ErrUnauthorized, reason)
		}
		return models.ErrUnauthorized
	}
	return &models.RejectionError{Reason: reason}
}

// Current returns a snapshot of the tracked operation, or nil
func (o *Orchestrator) Current() *models.PendingOperation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Clear drops a terminal operation from the slot. Non-terminal
// operations cannot be cleared; the ledger is authoritative.
func (o *Orchestrator) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil && o.current.State.Terminal() {
		o.current = nil
	}
}

func (o *Orchestrator) fail(err error) {
	info := models.Classify(err)
	o.transition(func(op *models.PendingOperation) {
		op.State = models.StateFailed
		op.Error = info
	}, info.Message)
}

// transition mutates the current operation under the lock and records
// the result in the audit trail.
func (o *Orchestrator) transition(mutate func(*models.PendingOperation), detail string) {
	o.mu.Lock()
	op := o.current
	if op == nil {
		o.mu.Unlock()
		return
	}
	if mutate != nil {
		mutate(op)
	}
	op.UpdatedAt = time.Now().UTC()
	snapshot := *op
	o.mu.Unlock()

	o.trail.RecordTransition(&snapshot, detail)
}

func (o *Orchestrator) snapshotLocked() *models.PendingOperation {
	if o.current == nil {
		return nil
	}
	snapshot := *o.current
	return &snapshot
}
