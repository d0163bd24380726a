// Package roles resolves what the active account may do on the ledger
package roles

import (
	"context"
	"strings"
	"sync"

	"github.com/savegress/medledger/internal/wallet"
	"github.com/savegress/medledger/pkg/models"
)

// LedgerReader is the slice of the ledger surface role resolution needs
type LedgerReader interface {
	Owner(ctx context.Context) (string, error)
	IsProviderAuthorized(ctx context.Context, address string) (bool, error)
}

// Resolver computes and caches the Role of an account. Entries are
// keyed by account address and survive only as long as the session that
// produced them: session replacement and confirmed authorization
// changes both invalidate.
type Resolver struct {
	ledger LedgerReader

	mu    sync.RWMutex
	cache map[string]models.Role
}

// NewResolver creates a role resolver over a ledger reader
func NewResolver(ledger LedgerReader) *Resolver {
	return &Resolver{
		ledger: ledger,
		cache:  make(map[string]models.Role),
	}
}

// Resolve returns the Role of the session's account, from cache when
// possible. The two ledger reads run concurrently; if either fails the
// result is ErrLedgerUnreachable and nothing is cached. A "not
// authorized" answer is a valid role, not an error.
func (r *Resolver) Resolve(ctx context.Context, session *wallet.Session) (models.Role, error) {
	if session == nil {
		return models.Role{}, models.ErrSignerUnavailable
	}
	account := strings.ToLower(session.Account())

	r.mu.RLock()
	cached, ok := r.cache[account]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	var (
		wg         sync.WaitGroup
		owner      string
		authorized bool
		ownerErr   error
		authErr    error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		owner, ownerErr = r.ledger.Owner(ctx)
	}()
	go func() {
		defer wg.Done()
		authorized, authErr = r.ledger.IsProviderAuthorized(ctx, session.Account())
	}()
	wg.Wait()

	if ownerErr != nil {
		return models.Role{}, ownerErr
	}
	if authErr != nil {
		return models.Role{}, authErr
	}

	role := models.Role{
		IsOwner:              strings.EqualFold(owner, session.Account()),
		IsAuthorizedProvider: authorized,
	}

	// A role computed against a since-replaced session must not be
	// cached or trusted.
	if !session.Active() {
		return role, nil
	}

	r.mu.Lock()
	r.cache[account] = role
	r.mu.Unlock()

	return role, nil
}

// Invalidate drops the cache entry for one account
func (r *Resolver) Invalidate(account string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, strings.ToLower(account))
}

// InvalidateAll drops every cached role. Used when a confirmed
// authorization change may affect accounts other than the active one.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]models.Role)
}
