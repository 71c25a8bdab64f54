package ledger

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/custodia-wallet/custodia/internal/address"
	"github.com/custodia-wallet/custodia/internal/asset"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(address.NewGenerator(), asset.Default())
}

func TestCreateWalletAllocatesPerAssetAddresses(t *testing.T) {
	s := newTestStore(t)

	view, err := s.CreateWallet("Alice", nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	assets := asset.Default()
	if len(view.Addresses) != assets.Len() {
		t.Fatalf("expected %d addresses, got %d", assets.Len(), len(view.Addresses))
	}
	for _, sym := range assets.Symbols() {
		addr, ok := view.Addresses[sym]
		if !ok {
			t.Fatalf("missing address for %s", sym)
		}
		if len(addr) != 42 || addr[:2] != "0x" {
			t.Fatalf("unexpected address format for %s: %q", sym, addr)
		}
		if !view.Balances[sym].IsZero() {
			t.Fatalf("expected zero balance for %s, got %s", sym, view.Balances[sym])
		}
	}
	if len(view.Transactions) != 0 {
		t.Fatalf("expected empty history, got %d records", len(view.Transactions))
	}
}

func TestCreateWalletIdentifiersDisjoint(t *testing.T) {
	s := newTestStore(t)

	seen := map[string]struct{}{}
	for i := 0; i < 10; i++ {
		view, err := s.CreateWallet("w", nil, time.Now().UTC())
		if err != nil {
			t.Fatalf("create wallet %d: %v", i, err)
		}
		ids := []string{view.ID}
		for _, addr := range view.Addresses {
			ids = append(ids, addr)
		}
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				t.Fatalf("identifier %s allocated twice", id)
			}
			seen[id] = struct{}{}
		}
	}
}

func TestResolve(t *testing.T) {
	s := newTestStore(t)

	view, err := s.CreateWallet("Alice", nil, time.Now().UTC())
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}

	id, err := s.Resolve(view.ID)
	if err != nil || id != view.ID {
		t.Fatalf("resolve by id: got %q, %v", id, err)
	}
	for sym, addr := range view.Addresses {
		id, err := s.Resolve(addr)
		if err != nil {
			t.Fatalf("resolve %s address: %v", sym, err)
		}
		if id != view.ID {
			t.Fatalf("resolve %s address: expected %s, got %s", sym, view.ID, id)
		}
	}

	if _, err := s.Resolve("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown address, got %v", err)
	}
	if _, err := s.Resolve(""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty identifier, got %v", err)
	}
}

func TestWithLockedWalletReleasesOnError(t *testing.T) {
	s := newTestStore(t)
	view, _ := s.CreateWallet("Alice", nil, time.Now().UTC())

	wantErr := errors.New("boom")
	if err := s.WithLockedWallet(view.ID, func(*Wallet) error { return wantErr }); !errors.Is(err, wantErr) {
		t.Fatalf("expected fn error propagated, got %v", err)
	}

	// The lock must be free again.
	done := make(chan struct{})
	go func() {
		_ = s.WithLockedWallet(view.ID, func(*Wallet) error { return nil })
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("wallet lock not released after fn error")
	}
}

func TestWithLockedPairOppositeOrders(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.CreateWallet("a", nil, time.Now().UTC())
	b, _ := s.CreateWallet("b", nil, time.Now().UTC())

	// Hammer both argument orders concurrently; deterministic lock ordering
	// must prevent deadlock.
	var wg sync.WaitGroup
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.WithLockedPair(a.ID, b.ID, func(x, y *Wallet) error { return nil })
		}()
		go func() {
			defer wg.Done()
			_ = s.WithLockedPair(b.ID, a.ID, func(x, y *Wallet) error { return nil })
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("locked pair deadlocked under opposing acquisition orders")
	}
}

func TestWithLockedPairArgumentOrderPreserved(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.CreateWallet("a", nil, time.Now().UTC())
	b, _ := s.CreateWallet("b", nil, time.Now().UTC())

	err := s.WithLockedPair(b.ID, a.ID, func(first, second *Wallet) error {
		if first.ID != b.ID || second.ID != a.ID {
			t.Fatalf("argument order not preserved: got %s, %s", first.ID, second.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("locked pair: %v", err)
	}
}

func TestWithLockedPairSameWallet(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.CreateWallet("a", nil, time.Now().UTC())

	err := s.WithLockedPair(a.ID, a.ID, func(x, y *Wallet) error { return nil })
	if !errors.Is(err, ErrSameWallet) {
		t.Fatalf("expected ErrSameWallet, got %v", err)
	}
}

func TestGetReturnsDetachedCopy(t *testing.T) {
	s := newTestStore(t)
	view, _ := s.CreateWallet("Alice", nil, time.Now().UTC())

	snap, err := s.Get(view.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Mutating the snapshot must not touch canonical state.
	snap.Balances["BTC"] = decimal.NewFromInt(999)
	snap.Addresses["BTC"] = "0xtampered"
	snap.Name = "Mallory"

	again, err := s.Get(view.ID)
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if !again.Balances["BTC"].IsZero() {
		t.Fatalf("snapshot mutation leaked into store: balance %s", again.Balances["BTC"])
	}
	if again.Addresses["BTC"] == "0xtampered" {
		t.Fatal("snapshot mutation leaked into store: address")
	}
	if again.Name != "Alice" {
		t.Fatalf("snapshot mutation leaked into store: name %q", again.Name)
	}
}

func TestListOrderedByID(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := s.CreateWallet("w", nil, time.Now().UTC()); err != nil {
			t.Fatalf("create wallet: %v", err)
		}
	}

	out := s.List()
	if len(out) != 5 {
		t.Fatalf("expected 5 wallets, got %d", len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].ID >= out[i].ID {
			t.Fatalf("listing not ordered: %s before %s", out[i-1].ID, out[i].ID)
		}
	}
}
