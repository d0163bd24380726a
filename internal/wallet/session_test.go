package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/savegress/medledger/pkg/models"
)

// fakeSigner is a scriptable in-memory signer
type fakeSigner struct {
	mu      sync.Mutex
	account string
	err     error
}

func (f *fakeSigner) setAccount(account string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = account
}

func (f *fakeSigner) ActiveAccount(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.account == "" {
		return "", models.ErrSignerUnavailable
	}
	return f.account, nil
}

func (f *fakeSigner) RequestConnection(ctx context.Context) (string, error) {
	return f.ActiveAccount(ctx)
}

func (f *fakeSigner) SignAndSend(ctx context.Context, tx TxRequest) (string, error) {
	return "0xhash", nil
}

func TestManagerConnect(t *testing.T) {
	signer := &fakeSigner{account: "0xAbc0000000000000000000000000000000000001"}
	mgr := NewManager(signer, time.Minute)

	if mgr.Current() != nil {
		t.Fatal("Current != nil before first connect")
	}

	session, err := mgr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if session.Account() != signer.account {
		t.Errorf("session account = %s, want %s", session.Account(), signer.account)
	}
	if !session.Active() {
		t.Error("fresh session reports inactive")
	}
	if mgr.Current() != session {
		t.Error("Current did not return the connected session")
	}
}

func TestManagerConnectRejected(t *testing.T) {
	signer := &fakeSigner{err: models.ErrUserRejected}
	mgr := NewManager(signer, time.Minute)

	_, err := mgr.Connect(context.Background())
	if !errors.Is(err, models.ErrUserRejected) {
		t.Errorf("Connect error = %v, want ErrUserRejected", err)
	}
	if mgr.Current() != nil {
		t.Error("a rejected connect installed a session")
	}
}

func TestManagerReplaceInvalidatesStaleSession(t *testing.T) {
	signer := &fakeSigner{account: "0xAbc0000000000000000000000000000000000001"}
	mgr := NewManager(signer, time.Minute)

	first, err := mgr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	signer.setAccount("0xAbc0000000000000000000000000000000000002")
	second, err := mgr.Connect(context.Background())
	if err != nil {
		t.Fatalf("second Connect returned error: %v", err)
	}

	if first.Active() {
		t.Error("replaced session still reports active")
	}
	if !second.Active() {
		t.Error("new session reports inactive")
	}
}

func TestManagerNotifiesListeners(t *testing.T) {
	signer := &fakeSigner{account: "0xAbc0000000000000000000000000000000000001"}
	mgr := NewManager(signer, time.Minute)

	type change struct{ prev, current string }
	var mu sync.Mutex
	var changes []change

	mgr.OnChange(func(prev, current *Session) {
		mu.Lock()
		defer mu.Unlock()
		c := change{}
		if prev != nil {
			c.prev = prev.Account()
		}
		if current != nil {
			c.current = current.Account()
		}
		changes = append(changes, c)
	})

	if _, err := mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	signer.setAccount("0xAbc0000000000000000000000000000000000002")
	if _, err := mgr.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Fatalf("got %d change notifications, want 2", len(changes))
	}
	if changes[0].prev != "" || changes[0].current != "0xAbc0000000000000000000000000000000000001" {
		t.Errorf("first change = %+v", changes[0])
	}
	if changes[1].prev != "0xAbc0000000000000000000000000000000000001" ||
		changes[1].current != "0xAbc0000000000000000000000000000000000002" {
		t.Errorf("second change = %+v", changes[1])
	}
}

func TestManagerWatchDetectsAccountSwitch(t *testing.T) {
	signer := &fakeSigner{account: "0xAbc0000000000000000000000000000000000001"}
	mgr := NewManager(signer, 10*time.Millisecond)

	replaced := make(chan *Session, 1)
	mgr.OnChange(func(prev, current *Session) {
		if prev != nil {
			select {
			case replaced <- current:
			default:
			}
		}
	})

	first, err := mgr.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	mgr.Start(context.Background())
	defer mgr.Stop()

	signer.setAccount("0xAbc0000000000000000000000000000000000002")

	select {
	case current := <-replaced:
		if current == nil || current.Account() != "0xAbc0000000000000000000000000000000000002" {
			t.Errorf("watcher installed session %+v", current)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never detected the account switch")
	}

	if first.Active() {
		t.Error("stale session still reports active after watcher replacement")
	}
}

func TestManagerWatchHandlesSignerLoss(t *testing.T) {
	signer := &fakeSigner{account: "0xAbc0000000000000000000000000000000000001"}
	mgr := NewManager(signer, 10*time.Millisecond)

	disconnected := make(chan struct{}, 1)
	mgr.OnChange(func(prev, current *Session) {
		if prev != nil && current == nil {
			select {
			case disconnected <- struct{}{}:
			default:
			}
		}
	})

	if _, err := mgr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}

	mgr.Start(context.Background())
	defer mgr.Stop()

	signer.mu.Lock()
	signer.err = models.ErrSignerUnavailable
	signer.mu.Unlock()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never reacted to signer loss")
	}

	if mgr.Current() != nil {
		t.Error("Current != nil after signer loss")
	}
}

func TestSessionActiveNilSafe(t *testing.T) {
	var s *Session
	if s.Active() {
		t.Error("nil session reports active")
	}
}
