package roles

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/savegress/medledger/internal/wallet"
	"github.com/savegress/medledger/pkg/models"
)

const (
	ownerAccount    = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	providerAccount = "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"
	patientAccount  = "0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb"
)

// fakeReader is a scriptable ledger read surface with call counting
type fakeReader struct {
	owner      string
	authorized map[string]bool
	err        error
	ownerCalls int64
	authCalls  int64
}

func (f *fakeReader) Owner(ctx context.Context) (string, error) {
	atomic.AddInt64(&f.ownerCalls, 1)
	if f.err != nil {
		return "", f.err
	}
	return f.owner, nil
}

func (f *fakeReader) IsProviderAuthorized(ctx context.Context, address string) (bool, error) {
	atomic.AddInt64(&f.authCalls, 1)
	if f.err != nil {
		return false, f.err
	}
	return f.authorized[strings.ToLower(address)], nil
}

type fixedSigner struct {
	mu      sync.Mutex
	account string
}

func (f *fixedSigner) ActiveAccount(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.account, nil
}

func (f *fixedSigner) RequestConnection(ctx context.Context) (string, error) {
	return f.ActiveAccount(ctx)
}

func (f *fixedSigner) SignAndSend(ctx context.Context, tx wallet.TxRequest) (string, error) {
	return "0xhash", nil
}

func sessionFor(t *testing.T, account string) *wallet.Session {
	t.Helper()
	mgr := wallet.NewManager(&fixedSigner{account: account}, time.Minute)
	session, err := mgr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	return session
}

func TestResolveRoles(t *testing.T) {
	reader := &fakeReader{
		owner: ownerAccount,
		authorized: map[string]bool{
			strings.ToLower(providerAccount): true,
		},
	}
	resolver := NewResolver(reader)

	tests := []struct {
		name    string
		account string
		want    models.Role
	}{
		{"owner", ownerAccount, models.Role{IsOwner: true}},
		{"owner case-insensitive", strings.ToLower(ownerAccount), models.Role{IsOwner: true}},
		{"authorized provider", providerAccount, models.Role{IsAuthorizedProvider: true}},
		{"patient", patientAccount, models.Role{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			role, err := resolver.Resolve(context.Background(), sessionFor(t, tt.account))
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if role != tt.want {
				t.Errorf("role = %+v, want %+v", role, tt.want)
			}
		})
	}
}

func TestResolveCaches(t *testing.T) {
	reader := &fakeReader{owner: ownerAccount, authorized: map[string]bool{}}
	resolver := NewResolver(reader)
	session := sessionFor(t, ownerAccount)

	for i := 0; i < 3; i++ {
		if _, err := resolver.Resolve(context.Background(), session); err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
	}

	if n := atomic.LoadInt64(&reader.ownerCalls); n != 1 {
		t.Errorf("Owner called %d times, want 1", n)
	}
	if n := atomic.LoadInt64(&reader.authCalls); n != 1 {
		t.Errorf("IsProviderAuthorized called %d times, want 1", n)
	}
}

func TestResolveInvalidate(t *testing.T) {
	reader := &fakeReader{owner: ownerAccount, authorized: map[string]bool{}}
	resolver := NewResolver(reader)
	session := sessionFor(t, providerAccount)

	if _, err := resolver.Resolve(context.Background(), session); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	// Authorization flips on the ledger; the cache still serves pre-flip
	reader.authorized = map[string]bool{strings.ToLower(providerAccount): true}
	role, err := resolver.Resolve(context.Background(), session)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if role.IsAuthorizedProvider {
		t.Error("cache served a fresh read instead of the cached role")
	}

	resolver.Invalidate(providerAccount)
	role, err = resolver.Resolve(context.Background(), session)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !role.IsAuthorizedProvider {
		t.Error("invalidation did not force a fresh read")
	}
}

func TestResolveInvalidateAll(t *testing.T) {
	reader := &fakeReader{owner: ownerAccount, authorized: map[string]bool{}}
	resolver := NewResolver(reader)

	if _, err := resolver.Resolve(context.Background(), sessionFor(t, ownerAccount)); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if _, err := resolver.Resolve(context.Background(), sessionFor(t, patientAccount)); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	resolver.InvalidateAll()

	before := atomic.LoadInt64(&reader.ownerCalls)
	if _, err := resolver.Resolve(context.Background(), sessionFor(t, ownerAccount)); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if atomic.LoadInt64(&reader.ownerCalls) != before+1 {
		t.Error("InvalidateAll did not drop the cached role")
	}
}

func TestResolveLedgerUnreachable(t *testing.T) {
	reader := &fakeReader{err: models.ErrLedgerUnreachable}
	resolver := NewResolver(reader)
	session := sessionFor(t, ownerAccount)

	_, err := resolver.Resolve(context.Background(), session)
	if !errors.Is(err, models.ErrLedgerUnreachable) {
		t.Fatalf("Resolve error = %v, want ErrLedgerUnreachable", err)
	}

	// A failed read must not poison the cache
	reader.err = nil
	reader.owner = ownerAccount
	role, err := resolver.Resolve(context.Background(), session)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if !role.IsOwner {
		t.Error("recovered read did not produce the owner role")
	}
}

func TestResolveNilSession(t *testing.T) {
	resolver := NewResolver(&fakeReader{})
	if _, err := resolver.Resolve(context.Background(), nil); !errors.Is(err, models.ErrSignerUnavailable) {
		t.Errorf("Resolve(nil session) error = %v, want ErrSignerUnavailable", err)
	}
}

func TestResolveStaleSessionNotCached(t *testing.T) {
	reader := &fakeReader{owner: ownerAccount, authorized: map[string]bool{}}
	resolver := NewResolver(reader)

	signer := &fixedSigner{account: ownerAccount}
	mgr := wallet.NewManager(signer, time.Minute)
	stale, err := mgr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	signer.mu.Lock()
	signer.account = patientAccount
	signer.mu.Unlock()
	if _, err := mgr.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect returned error: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), stale); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	// The stale result must not have been cached
	before := atomic.LoadInt64(&reader.ownerCalls)
	if _, err := resolver.Resolve(context.Background(), sessionFor(t, ownerAccount)); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if atomic.LoadInt64(&reader.ownerCalls) != before+1 {
		t.Error("role resolved through a stale session was cached")
	}
}
