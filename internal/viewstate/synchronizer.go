// Package viewstate coordinates every user-initiated action and keeps
// the locally observable state consistent with ledger truth after each
// mutation. It is the only surface callers touch; no failure escapes it
// as a raw error.
package viewstate

import (
	"context"
	"sync"

	"github.com/savegress/medledger/internal/cache"
	"github.com/savegress/medledger/internal/roles"
	"github.com/savegress/medledger/internal/tx"
	"github.com/savegress/medledger/internal/validate"
	"github.com/savegress/medledger/internal/wallet"
	"github.com/savegress/medledger/pkg/models"
)

// Ledger is the contract call surface the synchronizer routes through
type Ledger interface {
	Owner(ctx context.Context) (string, error)
	IsProviderAuthorized(ctx context.Context, address string) (bool, error)
	GetMedicalRecords(ctx context.Context, patientID string) ([]models.MedicalRecord, error)
	AddMedicalRecord(ctx context.Context, session *wallet.Session, fields *models.RecordFields) (string, error)
	AuthorizeProvider(ctx context.Context, session *wallet.Session, address string) (string, error)
	RevokeProvider(ctx context.Context, session *wallet.Session, address string) (string, error)
}

// Publisher receives a ViewState snapshot after every state transition
type Publisher func(models.ViewState)

// Synchronizer rebuilds the ViewState after every state-changing event
// and hands out immutable snapshots.
type Synchronizer struct {
	sessions *wallet.Manager
	ledger   Ledger
	resolver *roles.Resolver
	orch     *tx.Orchestrator
	cache    *cache.Cache

	mu        sync.Mutex
	role      *models.Role
	patientID string
	records   []models.MedicalRecord
	lastError *models.ErrorInfo
	loading   int

	publishMu sync.RWMutex
	publish   Publisher
}

// New wires a synchronizer over its collaborators. The session
// manager's change signal is hooked up here: a replaced session drops
// every piece of state computed for the old account.
func New(sessions *wallet.Manager, client Ledger, resolver *roles.Resolver, orch *tx.Orchestrator, recordCache *cache.Cache) *Synchronizer {
	s := &Synchronizer{
		sessions: sessions,
		ledger:   client,
		resolver: resolver,
		orch:     orch,
		cache:    recordCache,
	}

	sessions.OnChange(func(prev, current *wallet.Session) {
		if prev != nil {
			resolver.Invalidate(prev.Account())
		}
		s.mu.Lock()
		s.role = nil
		s.patientID = ""
		s.records = nil
		s.lastError = nil
		s.mu.Unlock()
		s.broadcast()
	})

	return s
}

// SetPublisher registers the snapshot push target
func (s *Synchronizer) SetPublisher(p Publisher) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.publish = p
}

// State returns the current snapshot without touching the ledger
func (s *Synchronizer) State() models.ViewState {
	return s.snapshot()
}

// Connect establishes a session and resolves the account's role
func (s *Synchronizer) Connect(ctx context.Context) models.ViewState {
	s.beginLoading()
	defer s.endLoading()

	session, err := s.sessions.Connect(ctx)
	if err != nil {
		return s.failWith(err)
	}

	role, err := s.resolveRole(ctx, session)
	if err != nil {
		return s.failWith(err)
	}

	s.mu.Lock()
	s.role = &role
	s.lastError = nil
	s.mu.Unlock()
	return s.broadcast()
}

// FetchRecords loads the record list for a patient, oldest first.
// Consecutive fetches with no intervening mutation return identical
// sequences.
func (s *Synchronizer) FetchRecords(ctx context.Context, patientID string) models.ViewState {
	if patientID == "" {
		return s.failWith(&models.MissingFieldError{Field: "patientId"})
	}
	session := s.sessions.Current()
	if session == nil {
		return s.failWith(models.ErrSignerUnavailable)
	}

	s.beginLoading()
	defer s.endLoading()

	records, ok := s.cache.GetRecords(ctx, patientID)
	if !ok {
		var err error
		records, err = s.ledger.GetMedicalRecords(ctx, patientID)
		if err != nil {
			return s.failWith(err)
		}
		s.cache.SetRecords(ctx, patientID, records)
	}

	s.mu.Lock()
	s.patientID = patientID
	s.records = records
	s.lastError = nil
	s.mu.Unlock()
	return s.broadcast()
}

// SubmitRecord validates and appends a record through the orchestrator.
// On confirmation the record list for that patient is re-fetched from
// the ledger.
func (s *Synchronizer) SubmitRecord(ctx context.Context, fields *models.RecordFields) models.ViewState {
	if err := validate.RecordFields(fields); err != nil {
		return s.failWith(err)
	}
	session := s.sessions.Current()
	if session == nil {
		return s.failWith(models.ErrSignerUnavailable)
	}

	payload := map[string]string{"patientId": fields.PatientID}
	if _, err := s.orch.Begin(session.Account(), models.OpAppendRecord, payload); err != nil {
		return s.failWith(err)
	}

	s.beginLoading()
	defer s.endLoading()

	err := s.orch.Run(ctx, func(ctx context.Context) (string, error) {
		return s.ledger.AddMedicalRecord(ctx, session, fields)
	})
	if err != nil {
		return s.failWith(err)
	}

	return s.afterConfirmed(ctx, session, s.orch.Current())
}

// AuthorizeProvider grants provider access to an address. Owner-only,
// enforced at the ledger boundary.
func (s *Synchronizer) AuthorizeProvider(ctx context.Context, address string) models.ViewState {
	return s.providerOperation(ctx, models.OpAuthorizeProvider, address, s.ledger.AuthorizeProvider)
}

// RevokeProvider revokes provider access from an address
func (s *Synchronizer) RevokeProvider(ctx context.Context, address string) models.ViewState {
	return s.providerOperation(ctx, models.OpRevokeProvider, address, s.ledger.RevokeProvider)
}

func (s *Synchronizer) providerOperation(ctx context.Context, kind models.OperationKind, address string,
	submit func(context.Context, *wallet.Session, string) (string, error)) models.ViewState {

	if err := validate.Address(address); err != nil {
		return s.failWith(err)
	}
	session := s.sessions.Current()
	if session == nil {
		return s.failWith(models.ErrSignerUnavailable)
	}

	payload := map[string]string{"provider": address}
	if _, err := s.orch.Begin(session.Account(), kind, payload); err != nil {
		return s.failWith(err)
	}

	s.beginLoading()
	defer s.endLoading()

	err := s.orch.Run(ctx, func(ctx context.Context) (string, error) {
		return submit(ctx, session, address)
	})
	if err != nil {
		return s.failWith(err)
	}

	return s.afterConfirmed(ctx, session, s.orch.Current())
}

// Recheck re-polls the receipt of an operation whose confirmation wait
// timed out and applies its late outcome.
func (s *Synchronizer) Recheck(ctx context.Context) models.ViewState {
	s.beginLoading()
	defer s.endLoading()

	op, err := s.orch.Recheck(ctx)
	if err != nil {
		return s.failWith(err)
	}
	if op == nil || op.State != models.StateConfirmed {
		return s.broadcast()
	}

	session := s.sessions.Current()
	return s.afterConfirmed(ctx, session, op)
}

// afterConfirmed re-derives whatever ledger state a confirmed mutation
// may have changed: the record list after an append, the role cache
// after an authorization change.
func (s *Synchronizer) afterConfirmed(ctx context.Context, session *wallet.Session, op *models.PendingOperation) models.ViewState {
	if op == nil || op.State != models.StateConfirmed {
		return s.broadcast()
	}

	switch op.Kind {
	case models.OpAppendRecord:
		patientID := op.Payload["patientId"]
		if patientID != "" {
			s.cache.InvalidateRecords(ctx, patientID)
			records, err := s.ledger.GetMedicalRecords(ctx, patientID)
			if err != nil {
				return s.failWith(err)
			}
			s.cache.SetRecords(ctx, patientID, records)
			s.mu.Lock()
			s.patientID = patientID
			s.records = records
			s.mu.Unlock()
		}

	case models.OpAuthorizeProvider, models.OpRevokeProvider:
		s.resolver.InvalidateAll()
		s.cache.InvalidateRoles(ctx)
		if session != nil && session.Active() {
			role, err := s.resolveRole(ctx, session)
			if err != nil {
				return s.failWith(err)
			}
			s.mu.Lock()
			s.role = &role
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	s.lastError = nil
	s.mu.Unlock()
	return s.broadcast()
}

// resolveRole consults the shared role cache, then the resolver
func (s *Synchronizer) resolveRole(ctx context.Context, session *wallet.Session) (models.Role, error) {
	if cached, ok := s.cache.GetRole(ctx, session.Account()); ok {
		return *cached, nil
	}

	role, err := s.resolver.Resolve(ctx, session)
	if err != nil {
		return models.Role{}, err
	}
	s.cache.SetRole(ctx, session.Account(), role)
	return role, nil
}

// failWith classifies err into LastError and leaves the rest of the
// view untouched: no partial record lists, no role flips on failure.
func (s *Synchronizer) failWith(err error) models.ViewState {
	s.mu.Lock()
	s.lastError = models.Classify(err)
	s.mu.Unlock()
	return s.broadcast()
}

func (s *Synchronizer) beginLoading() {
	s.mu.Lock()
	s.loading++
	s.mu.Unlock()
	s.broadcast()
}

func (s *Synchronizer) endLoading() {
	s.mu.Lock()
	if s.loading > 0 {
		s.loading--
	}
	s.mu.Unlock()
	s.broadcast()
}

// snapshot rebuilds the externally observable state as one value
func (s *Synchronizer) snapshot() models.ViewState {
	session := s.sessions.Current()

	s.mu.Lock()
	defer s.mu.Unlock()

	vs := models.ViewState{
		Connected: session != nil,
		PatientID: s.patientID,
		Records:   append([]models.MedicalRecord{}, s.records...),
		Loading:   s.loading > 0,
		LastError: s.lastError,
	}
	if session != nil {
		vs.Account = session.Account()
	}
	if s.role != nil {
		role := *s.role
		vs.Role = &role
	}
	vs.CurrentOperation = s.orch.Current()
	return vs
}

// broadcast rebuilds the snapshot and pushes it to the publisher
func (s *Synchronizer) broadcast() models.ViewState {
	vs := s.snapshot()

	s.publishMu.RLock()
	publish := s.publish
	s.publishMu.RUnlock()
	if publish != nil {
		publish(vs)
	}
	return vs
}
