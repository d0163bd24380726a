package wallet

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/savegress/medledger/pkg/models"
)

// Session is one authenticated (account, signer) pair. Exactly one
// session is active at a time; a replaced session stays around only so
// holders of stale references can detect that it is no longer valid.
type Session struct {
	account string
	signer  Signer
	gen     uint64
	mgr     *Manager
}

// Account returns the session's account address
func (s *Session) Account() string {
	return s.account
}

// Signer returns the signing capability bound to this session
func (s *Session) Signer() Signer {
	return s.signer
}

// Active reports whether this session is still the manager's current
// one. Stale sessions must not be used for further calls.
func (s *Session) Active() bool {
	if s == nil || s.mgr == nil {
		return false
	}
	return s.mgr.generation() == s.gen
}

// ChangeListener is notified when the active session is replaced.
// prev is nil on first connect.
type ChangeListener func(prev, current *Session)

// Manager owns the active session and watches the signer for
// externally initiated account switches.
type Manager struct {
	signer       Signer
	pollInterval time.Duration

	mu        sync.RWMutex
	current   *Session
	gen       uint64
	listeners []ChangeListener

	running bool
	stopCh  chan struct{}
}

// NewManager creates a session manager over a signer capability
func NewManager(signer Signer, pollInterval time.Duration) *Manager {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Manager{
		signer:       signer,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
}

// OnChange registers a listener for session replacement. Listeners are
// invoked synchronously, in registration order, while the new session
// is already current.
func (m *Manager) OnChange(fn ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Connect requests a connection from the signer and installs the
// resulting session as the active one.
func (m *Manager) Connect(ctx context.Context) (*Session, error) {
	if m.signer == nil {
		return nil, models.ErrSignerUnavailable
	}

	account, err := m.signer.RequestConnection(ctx)
	if err != nil {
		return nil, err
	}

	return m.replace(account), nil
}

// Current returns the active session, or nil before the first connect
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Start begins watching the signer for account switches
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.watch(ctx)
}

// Stop stops the account watcher
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		close(m.stopCh)
		m.running = false
	}
}

func (m *Manager) watch(ctx context.Context) {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkAccount(ctx)
		}
	}
}

// checkAccount polls the signer and replaces the session if the
// selected account changed underneath us.
func (m *Manager) checkAccount(ctx context.Context) {
	current := m.Current()
	if current == nil {
		return
	}

	account, err := m.signer.ActiveAccount(ctx)
	if err != nil {
		// Signer went away; the session is no longer trustworthy.
		log.Printf("session watcher: signer unavailable: %v", err)
		m.replace("")
		return
	}

	if !strings.EqualFold(account, current.account) {
		log.Printf("session watcher: account switched %s -> %s", current.account, account)
		m.replace(account)
	}
}

// replace atomically installs a new session and notifies listeners.
// An empty account installs no session (disconnected state).
func (m *Manager) replace(account string) *Session {
	m.mu.Lock()
	prev := m.current
	m.gen++
	var next *Session
	if account != "" {
		next = &Session{
			account: account,
			signer:  m.signer,
			gen:     m.gen,
			mgr:     m,
		}
	}
	m.current = next
	listeners := make([]ChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
	return next
}

func (m *Manager) generation() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return 0
	}
	return m.current.gen
}
