// Package audit records the lifecycle of every mutating ledger
// operation. Entries are kept in memory and, when a database is
// configured, persisted through the repository.
package audit

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/savegress/medledger/pkg/models"
)

// Event is one audit trail entry for an operation state transition
type Event struct {
	ID          string                `json:"id"`
	OperationID string                `json:"operationId"`
	Kind        models.OperationKind  `json:"kind"`
	Account     string                `json:"account"`
	TxHash      string                `json:"txHash,omitempty"`
	State       models.OperationState `json:"state"`
	Detail      string                `json:"detail,omitempty"`
	Recorded    time.Time             `json:"recorded"`
}

// Sink persists audit events. The pgx-backed Repository implements it.
type Sink interface {
	SaveEvent(ctx context.Context, event *Event) error
}

// Logger collects audit events on a channel and drains them on a
// background goroutine so the orchestrator never blocks on the trail.
type Logger struct {
	sink Sink

	mu      sync.RWMutex
	events  []*Event
	running bool
	stopCh  chan struct{}
	eventCh chan *Event
}

// NewLogger creates an audit logger. sink may be nil for in-memory
// operation.
func NewLogger(sink Sink) *Logger {
	return &Logger{
		sink:    sink,
		stopCh:  make(chan struct{}),
		eventCh: make(chan *Event, 256),
	}
}

// Start begins draining events
func (l *Logger) Start(ctx context.Context) {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.mu.Unlock()

	go l.processEvents(ctx)
}

// Stop stops the drain loop
func (l *Logger) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		close(l.stopCh)
		l.running = false
	}
}

func (l *Logger) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case event := <-l.eventCh:
			l.mu.Lock()
			l.events = append(l.events, event)
			l.mu.Unlock()

			if l.sink != nil {
				if err := l.sink.SaveEvent(ctx, event); err != nil {
					log.Printf("audit: persist event %s: %v", event.ID, err)
				}
			}
		}
	}
}

// RecordTransition logs one operation state transition
func (l *Logger) RecordTransition(op *models.PendingOperation, detail string) {
	if l == nil || op == nil {
		return
	}

	event := &Event{
		ID:          uuid.New().String(),
		OperationID: op.ID,
		Kind:        op.Kind,
		Account:     op.Account,
		TxHash:      op.TxHash,
		State:       op.State,
		Detail:      detail,
		Recorded:    time.Now().UTC(),
	}

	select {
	case l.eventCh <- event:
	default:
		// Trail full; the operation must not stall on it.
		log.Printf("audit: dropping event for operation %s (%s)", op.ID, op.State)
	}
}

// Events returns a copy of the in-memory trail, oldest first
func (l *Logger) Events() []*Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}
